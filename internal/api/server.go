package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SuiAgent/internal/agent"
	"SuiAgent/internal/auth"
	"SuiAgent/internal/contacts"
	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/observability/metrics"
	"SuiAgent/internal/planner"
	"SuiAgent/internal/task"
)

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr      string
	agent     *agent.Agent
	tasks     *task.Service
	directory *contacts.Directory
	auth      *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, tasks *task.Service, directory *contacts.Directory, authSvc *auth.Service) *Server {
	return &Server{addr: addr, agent: ag, tasks: tasks, directory: directory, auth: authSvc}
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

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.instrument("chat", s.handleChat))
	mux.HandleFunc("/api/v1/execute", s.instrument("execute", s.handleExecute))
	mux.HandleFunc("/api/v1/tasks", s.instrument("tasks", s.handleTasks))
	mux.HandleFunc("/api/v1/tasks/", s.instrument("task_detail", s.handleTaskDetail))
	mux.HandleFunc("/api/v1/contacts", s.instrument("contacts", s.handleContacts))
	mux.HandleFunc("/api/v1/history", s.instrument("history", s.handleHistory))
	mux.HandleFunc("/api/v1/health", s.instrument("health", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	if s.auth != nil {
		return s.auth.Middleware(mux)
	}
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}

	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	resp, err := s.agent.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}

	var req agent.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	resp, err := s.agent.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// submitTaskRequest 是异步执行接口的请求体。
type submitTaskRequest struct {
	RequestID   string                   `json:"request_id,omitempty"`
	UserAddress string                   `json:"user_address"`
	RiskLevel   string                   `json:"risk_level,omitempty"`
	PrivateKey  string                   `json:"private_key"`
	Plan        *planner.TransactionPlan `json:"plan"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.tasks.Submit(r.Context(), task.SubmitRequest{
		ID:          req.RequestID,
		UserAddress: req.UserAddress,
		Plan:        req.Plan,
		RiskLevel:   req.RiskLevel,
		PrivateKey:  req.PrivateKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := make([]task.ListOption, 0, 3)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithLimit(parsed))
		}
	}
	if address := r.URL.Query().Get("user_address"); address != "" {
		opts = append(opts, task.WithAddress(address))
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts = append(opts, task.WithStatuses(task.Status(status)))
	}

	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "任务 ID 不合法", http.StatusBadRequest)
		return
	}
	if id == "stats" {
		stats, err := s.tasks.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	result, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// saveContactRequest 是联系人保存接口的请求体。
type saveContactRequest struct {
	UserAddress string           `json:"user_address"`
	Signature   string           `json:"signature"`
	Contact     contacts.Contact `json:"contact"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		http.Error(w, "联系人目录未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req saveContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		if err := s.directory.Save(r.Context(), req.UserAddress, req.Signature, req.Contact); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	case http.MethodGet:
		userAddress := r.URL.Query().Get("user_address")
		signature := r.Header.Get("X-Signature")
		list, err := s.directory.List(r.Context(), userAddress, signature)
		if err != nil {
			if xerrors.CodeOf(err) == xerrors.CodeContactsNotFound {
				writeJSON(w, http.StatusOK, []contacts.Contact{})
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.agent.History(r.Context(), r.URL.Query().Get("user_address"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument 记录每个接口的请求指标。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusOf(code), errorResponse{Error: err.Error(), Code: string(code)})
}

func statusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeContactNotFound, xerrors.CodeContactsNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeDecryptionFailure:
		return http.StatusForbidden
	case task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeIntentUnresolved, xerrors.CodeInsufficientFunds, xerrors.CodeInsufficientStake:
		return http.StatusUnprocessableEntity
	case xerrors.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeIntentFault, xerrors.CodeExecutionStatusUnknown, xerrors.CodeChainFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
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
