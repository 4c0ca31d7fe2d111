package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"laser-repair/internal/auth"
	"laser-repair/internal/domain"
	"laser-repair/internal/events"
	"laser-repair/internal/repository"

	"go.uber.org/zap"
)

// RecordService 维修工单服务接口
type RecordService interface {
	// Draft 空白工单（录入页初始值）
	Draft(ctx context.Context) domain.Record
	// Create 校验序列号后追加保存；日期由服务端写入
	Create(ctx context.Context, rec domain.Record) (*domain.Record, error)
	List(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error)
	Get(ctx context.Context, id int) (*domain.Record, error)
	// Delete 需要管理员会话；id 不存在时返回 false
	Delete(ctx context.Context, id int) (bool, error)
	// Drain 等待已发出的事件通知结束（停机时调用）
	Drain()
}

// ListRecordsRequest 历史查询请求
type ListRecordsRequest struct {
	SN string // 序列号关键字，空表示全部
}

// ListRecordsResponse 历史查询响应（最新的在前）
type ListRecordsResponse struct {
	Items []domain.Record `json:"items"`
	Total int             `json:"total"`
}

// 单次事件通知的上限（含 webhook 重试）
const publishTimeout = 30 * time.Second

type recordService struct {
	repo      repository.RecordsRepository
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewRecordService 创建工单服务；publisher 为 nil 时不发事件
func NewRecordService(repo repository.RecordsRepository, publisher events.Publisher, logger *zap.Logger) RecordService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &recordService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *recordService) Draft(_ context.Context) domain.Record {
	return domain.NewDraft(s.now())
}

func (s *recordService) Create(ctx context.Context, rec domain.Record) (*domain.Record, error) {
	if err := rec.ValidateForSubmit(); err != nil {
		return nil, err
	}
	rec.Normalize()
	rec.ID = 0
	rec.Date = s.now().Format(domain.DateLayout)

	saved, err := s.repo.Append(ctx, rec)
	if err != nil {
		s.logger.Error("Failed to save record", zap.String("sn", rec.SN), zap.Error(err))
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Info("Record saved", zap.Int("id", saved.ID), zap.String("sn", saved.SN))
	s.publish(ctx, events.TypeRecordCreated, saved)
	return &saved, nil
}

func (s *recordService) List(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error) {
	items, err := s.repo.List(ctx, repository.RecordFilter{SN: strings.TrimSpace(req.SN)})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if items == nil {
		items = []domain.Record{}
	}
	return &ListRecordsResponse{Items: items, Total: len(items)}, nil
}

func (s *recordService) Get(ctx context.Context, id int) (*domain.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *recordService) Delete(ctx context.Context, id int) (bool, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return false, err
	}

	// 删除前取序列号，仅用于事件通知
	var sn string
	if rec, err := s.repo.Get(ctx, id); err == nil {
		sn = rec.SN
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("Failed to delete record", zap.Int("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	if !deleted {
		s.logger.Info("Delete ignored, record not found", zap.Int("id", id))
		return false, nil
	}

	s.logger.Info("Record deleted", zap.Int("id", id), zap.String("sn", sn))
	s.publish(ctx, events.TypeRecordDeleted, domain.Record{ID: id, SN: sn})
	return true, nil
}

// publish 后台发送，不阻塞请求；请求结束后 context 不再取消通知
func (s *recordService) publish(ctx context.Context, typ string, rec domain.Record) {
	ev := events.Event{Type: typ, RecordID: rec.ID, SN: rec.SN, At: s.now()}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.publisher.Publish(pubCtx, ev); err != nil {
			s.logger.Warn("Failed to publish record event",
				zap.String("type", typ),
				zap.Int("id", rec.ID),
				zap.Error(err),
			)
		}
	}()
}

func (s *recordService) Drain() {
	s.pending.Wait()
}
