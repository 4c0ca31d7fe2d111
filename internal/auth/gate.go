package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials 账号或密码错误（不区分具体原因）
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAdminRequired 需要管理员会话
	ErrAdminRequired = errors.New("admin login required")
)

// State 管理员开关状态
type State int

const (
	Anonymous State = iota
	Admin
)

func (s State) String() string {
	if s == Admin {
		return "admin"
	}
	return "anonymous"
}

// Gate 管理员开关：anonymous <-> admin，只控制删除权限
// 每个会话一个 Gate，不是进程级全局变量
type Gate struct {
	state State
}

// Login anonymous -> admin；账号密码不匹配时保持原状态
func (g *Gate) Login(cred *Credential, username, password string) error {
	if cred == nil || !cred.Matches(username, password) {
		return ErrInvalidCredentials
	}
	g.state = Admin
	return nil
}

// Logout admin -> anonymous（无条件）
func (g *Gate) Logout() {
	g.state = Anonymous
}

func (g Gate) State() State { return g.state }

func (g Gate) IsAdmin() bool { return g.state == Admin }

type gateKey struct{}

// WithGate 把会话的 Gate 放进请求上下文
func WithGate(ctx context.Context, g Gate) context.Context {
	return context.WithValue(ctx, gateKey{}, g)
}

// GateFrom 取请求上下文中的 Gate；没有时为 anonymous
func GateFrom(ctx context.Context) Gate {
	if g, ok := ctx.Value(gateKey{}).(Gate); ok {
		return g
	}
	return Gate{}
}

// RequireAdmin 非管理员返回 ErrAdminRequired
func RequireAdmin(ctx context.Context) error {
	if !GateFrom(ctx).IsAdmin() {
		return ErrAdminRequired
	}
	return nil
}
