package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookPublisher 以 JSON POST 事件到外部地址，5xx 与网络错误会重试
type WebhookPublisher struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookPublisher(url string, timeout time.Duration, logger *zap.Logger) *WebhookPublisher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookPublisher{httpClient: client, url: url, logger: logger}
}

func (w *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(ev).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	if resp.IsError() {
		w.logger.Warn("webhook rejected event",
			zap.String("type", ev.Type),
			zap.Int("record_id", ev.RecordID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
