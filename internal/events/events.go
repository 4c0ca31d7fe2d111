package events

import (
	"context"
	"errors"
	"time"
)

// 事件类型
const (
	TypeRecordCreated = "record.created"
	TypeRecordDeleted = "record.deleted"
)

// Event 维修记录变更通知
type Event struct {
	Type     string    `json:"type"`
	RecordID int       `json:"record_id"`
	SN       string    `json:"sn"`
	At       time.Time `json:"at"`
}

// Publisher 事件发布；失败只影响通知，不影响记录本身
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop 未配置任何通道时使用
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi 依次发布到所有通道，汇总错误
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine 去掉 nil 后组合；没有可用通道时返回 Nop
func Combine(pubs ...Publisher) Publisher {
	var out Multi
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}
