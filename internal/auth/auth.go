package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	loggerpkg "SuiAgent/pkg/logger"
)

// Mode 表示鉴权模式。
type Mode string

const (
	// ModeDisabled 跳过所有鉴权检查，仅用于本地开发。
	ModeDisabled Mode = "disabled"
	// ModeAPIKey 要求每个请求携带预先配置的 API key。
	ModeAPIKey Mode = "apikey"
)

var (
	// ErrMissingToken 请求缺少凭证。
	ErrMissingToken = errors.New("缺少访问凭证")
	// ErrInvalidToken 凭证不在许可列表中。
	ErrInvalidToken = errors.New("访问凭证无效")
)

// Config 描述鉴权服务的配置。
type Config struct {
	Mode    string
	APIKeys []string
}

// Service 校验入站请求的 API key。
type Service struct {
	mode Mode
	// 只保存 key 的 SHA-256 摘要，避免明文驻留内存。
	digests [][32]byte
}

// NewService 根据配置构造鉴权服务。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(cfg.Mode)))
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled:
		return &Service{mode: mode}, nil
	case ModeAPIKey:
		if len(cfg.APIKeys) == 0 {
			return nil, errors.New("apikey 模式至少需要配置一个 API key")
		}
		svc := &Service{mode: mode}
		for _, key := range cfg.APIKeys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			svc.digests = append(svc.digests, sha256.Sum256([]byte(key)))
		}
		if len(svc.digests) == 0 {
			return nil, errors.New("apikey 模式至少需要配置一个非空 API key")
		}
		return svc, nil
	default:
		return nil, errors.New("不支持的鉴权模式: " + string(mode))
	}
}

// Authenticate 校验凭证字符串。
func (s *Service) Authenticate(token string) error {
	if s == nil || s.mode == ModeDisabled {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	for _, candidate := range s.digests {
		if subtle.ConstantTimeCompare(digest[:], candidate[:]) == 1 {
			return nil
		}
	}
	return ErrInvalidToken
}

// Middleware 返回一个校验 API key 并记录审计日志的 HTTP 中间件。
// 凭证可放在 Authorization: Bearer 头或 X-API-Key 头。
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s != nil && s.mode != ModeDisabled {
			if err := s.Authenticate(requestToken(r)); err != nil {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				loggerpkg.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
		}
		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r)
		loggerpkg.Audit().Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func requestToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层实现。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
