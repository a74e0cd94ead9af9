package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"RecruitChain/pkg/logger"
)

// Option 调整 Server 的可选行为。
type Option func(*Server)

// WithToken 要求会话台账接口携带 Bearer 令牌。空令牌表示不启用认证。
func WithToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// requireToken 校验 Authorization 头，拒绝时写入审计日志。
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	expected := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			status := http.StatusUnauthorized
			http.Error(w, http.StatusText(status), status)
			logger.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"remote", r.RemoteAddr,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}
