package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laser-repair/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "laser-repair:session:"

// SessionManager 管理员会话：token -> Gate 状态，保存在 KV（内存或 Redis）
type SessionManager struct {
	kv     store.KV
	cred   *Credential
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionManager(kv store.KV, cred *Credential, ttl time.Duration, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{kv: kv, cred: cred, ttl: ttl, logger: logger}
}

// TTL 会话有效期
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Login 校验账号密码，成功后签发新 token
func (m *SessionManager) Login(ctx context.Context, username, password string) (string, error) {
	var g Gate
	if err := g.Login(m.cred, username, password); err != nil {
		m.logger.Warn("admin login rejected", zap.String("username", username))
		return "", err
	}

	token := uuid.NewString()
	if err := m.kv.Set(ctx, sessionKeyPrefix+token, g.State().String(), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	m.logger.Info("admin logged in", zap.String("username", username))
	return token, nil
}

// Logout 结束会话；未知 token 也视为成功
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.kv.Delete(ctx, sessionKeyPrefix+token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Gate 按 token 还原会话状态；缺失、过期或 KV 出错时均为 anonymous
func (m *SessionManager) Gate(ctx context.Context, token string) Gate {
	if token == "" {
		return Gate{}
	}
	v, err := m.kv.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			m.logger.Warn("session lookup failed", zap.Error(err))
		}
		return Gate{}
	}
	if v == Admin.String() {
		return Gate{state: Admin}
	}
	return Gate{}
}
