package auth

import (
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
	"github.com/alikamatu/artisan-app-sub002/pkg/metrics"
)

// Session 是唯一的令牌读取路径，统一两个存储作用域的访问顺序：
// 先持久作用域，后会话作用域。
// 所有需要认证的调用都必须先经过 GetValidToken，拿不到令牌就不发网络请求。
type Session struct {
	persistent TokenStore
	session    TokenStore
	now        func() time.Time
	logger     *zap.Logger

	mu       sync.Mutex
	onExpire []func()
}

type Option func(*Session)

// WithClock 注入时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(persistent, session TokenStore, opts ...Option) *Session {
	s := &Session{
		persistent: persistent,
		session:    session,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetValidToken 返回当前可用的令牌。
// 取第一个非空作用域的令牌做结构与过期校验；任何一项不满足都会
// 清空两个作用域并返回 false，绝不返回半无效的令牌。
func (s *Session) GetValidToken() (string, bool) {
	raw := s.firstPopulated()
	if raw == "" {
		return "", false
	}

	if err := validateToken(raw, s.now()); err != nil {
		s.logger.Warn("Discarding unusable token", zap.Error(err))
		s.Invalidate()
		return "", false
	}

	return raw, true
}

// Save 校验后把令牌写入选定作用域：remember 为真写持久作用域，否则写会话作用域。
func (s *Session) Save(token string, remember bool) error {
	if err := validateToken(token, s.now()); err != nil {
		return err
	}
	if remember {
		return s.persistent.Save(token)
	}
	return s.session.Save(token)
}

// Invalidate 同时清空两个作用域。
func (s *Session) Invalidate() {
	if err := s.persistent.Clear(); err != nil {
		s.logger.Error("Failed to clear persistent token scope", zap.Error(err))
	}
	if err := s.session.Clear(); err != nil {
		s.logger.Error("Failed to clear session token scope", zap.Error(err))
	}
	metrics.RecordTokenInvalidation()
}

// OnExpire 注册会话过期回调，服务端确认 401 后触发。
func (s *Session) OnExpire(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = append(s.onExpire, cb)
}

// NotifyExpired 清空令牌并异步派发过期回调。
// 回调延迟到独立 goroutine 执行，避免在调用链中途改动上层状态。
func (s *Session) NotifyExpired() {
	s.Invalidate()

	s.mu.Lock()
	cbs := make([]func(), len(s.onExpire))
	copy(cbs, s.onExpire)
	s.mu.Unlock()

	go func() {
		for _, cb := range cbs {
			cb()
		}
	}()
}

func (s *Session) firstPopulated() string {
	if raw, err := s.persistent.Load(); err == nil && raw != "" {
		return raw
	} else if err != nil {
		s.logger.Error("Failed to read persistent token scope", zap.Error(err))
	}

	if raw, err := s.session.Load(); err == nil && raw != "" {
		return raw
	} else if err != nil {
		s.logger.Error("Failed to read session token scope", zap.Error(err))
	}

	return ""
}

// validateToken 做结构与过期校验：必须恰好三段，且 exp 严格大于当前时间。
// 客户端不持有签名密钥，签名校验是服务端的职责。
func validateToken(raw string, now time.Time) error {
	if len(strings.Split(raw, ".")) != 3 {
		return pkgerrors.AuthenticationRequired
	}

	token, _, err := jwtv5.NewParser().ParseUnverified(raw, jwtv5.MapClaims{})
	if err != nil {
		return pkgerrors.AuthenticationRequired
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return pkgerrors.AuthenticationRequired
	}

	if !exp.Time.After(now) {
		return pkgerrors.AuthenticationRequired
	}

	return nil
}
