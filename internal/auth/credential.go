package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Credential 唯一的管理员账号，密码只保存 bcrypt 哈希
type Credential struct {
	username string
	hash     []byte
}

// NewCredential 优先使用已有哈希；未配置哈希时对明文密码做 bcrypt
func NewCredential(username, passwordHash, password string) (*Credential, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is empty")
	}
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("invalid admin password hash: %w", err)
		}
		return &Credential{username: username, hash: []byte(passwordHash)}, nil
	}
	if password == "" {
		return nil, fmt.Errorf("admin password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Credential{username: username, hash: h}, nil
}

// Username 管理员账号名
func (c *Credential) Username() string { return c.username }

// Matches 账号、密码需完全一致
func (c *Credential) Matches(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}
