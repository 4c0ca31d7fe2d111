package repository

import (
	"context"
	"errors"

	"laser-repair/internal/domain"
)

var (
	// ErrRecordNotFound 工单不存在
	ErrRecordNotFound = errors.New("record not found")
	// ErrCorruptStore 数据文件无法解析（不再静默当作空集合处理）
	ErrCorruptStore = errors.New("record store is corrupt")
)

// RecordsRepository 维修工单 Repository 接口
type RecordsRepository interface {
	// All 按写入顺序返回全部工单
	All(ctx context.Context) ([]domain.Record, error)
	// List 按序列号子串过滤（不区分大小写），最新的在前
	List(ctx context.Context, filter RecordFilter) ([]domain.Record, error)
	Get(ctx context.Context, id int) (*domain.Record, error)

	// Append 分配 id 并立即持久化；持久化失败时不保留该工单
	Append(ctx context.Context, rec domain.Record) (domain.Record, error)
	// Delete 按 id 删除并持久化；id 不存在时返回 false 且不写盘
	Delete(ctx context.Context, id int) (bool, error)
}

// RecordFilter 工单查询过滤器
type RecordFilter struct {
	SN string // 序列号关键字
}
