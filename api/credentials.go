package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential 表示没有可用的访问令牌，对当前操作是终止性错误，
// 引擎内部不做重试，由调用方重新认证后再发起。
var ErrNoCredential = errors.New("api: no credential available")

// ErrCredentialExpired 表示令牌已过期
var ErrCredentialExpired = errors.New("api: credential expired")

// CredentialProvider 按需提供短期有效的 bearer 令牌
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider 返回固定令牌，适用于配置文件注入令牌的场景
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider 创建固定令牌提供者
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token 返回配置的令牌，为空时返回 ErrNoCredential
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNoCredential
	}
	return p.token, nil
}

// checkTokenExpiry 在发起请求前本地检查 JWT 的 exp 声明，
// 已过期的令牌直接拒绝，避免一次必然 401 的往返。
// 非 JWT 格式的令牌不做检查，交由服务端判定。
func checkTokenExpiry(token string) error {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil // 不是JWT，跳过本地检查
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return fmt.Errorf("%w: token expired at %s", ErrCredentialExpired, exp.Time.Format(time.RFC3339))
	}
	return nil
}
