package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"RecruitChain/internal/observability/metrics"
	"RecruitChain/internal/session"
	"RecruitChain/pkg/logger"
)

// SessionView 是 HTTP 层读取会话状态所需的最小接口。
type SessionView interface {
	Snapshot() session.Snapshot
}

// Server 负责暴露会话状态接口。
type Server struct {
	addr     string
	session  SessionView
	recorder session.Recorder
	metrics  *metrics.Collector
	logger   *slog.Logger
	token    string
	limiter  *clientLimiter
}

// NewServer 构造 API 服务实例。recorder 与 collector 可以为空。
func NewServer(addr string, view SessionView, recorder session.Recorder, collector *metrics.Collector, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		session:  view,
		recorder: recorder,
		metrics:  collector,
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/session", s.instrument("session", http.HandlerFunc(s.handleSession)))
	mux.Handle("/sessions", s.instrument("sessions", s.requireToken(http.HandlerFunc(s.handleListSessions))))
	mux.Handle("/sessions/", s.instrument("session_detail", s.requireToken(http.HandlerFunc(s.handleSessionDetail))))
	mux.Handle("/healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealth)))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return s.rateLimit(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", "address", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	status := http.StatusOK
	if snap.State != session.StateInitialized.String() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": snap.State})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		http.Error(w, "会话记录未启用", http.StatusNotImplemented)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.recorder.ListLatest(r.Context(), limit)
	if err != nil {
		s.logger.Error("查询会话记录失败", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []session.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if id == "" {
		http.Error(w, "缺少会话 ID", http.StatusBadRequest)
		return
	}
	if s.recorder == nil {
		http.Error(w, "会话记录未启用", http.StatusNotImplemented)
		return
	}
	rec, err := s.recorder.Get(r.Context(), id)
	if errors.Is(err, session.ErrRecordNotFound) {
		http.Error(w, "会话记录不存在", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(started))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
