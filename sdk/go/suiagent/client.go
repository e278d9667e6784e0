// Package suiagent provides a thin Go client for the SuiAgent REST API.
package suiagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the SuiAgent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// ChatRequest carries one turn of a natural language conversation.
type ChatRequest struct {
	Message     string       `json:"message"`
	UserAddress string       `json:"user_address"`
	Signature   string       `json:"signature"`
	Context     *ChatContext `json:"context,omitempty"`
}

// ChatContext carries clarification state between turns. Pass the context
// returned by the previous ChatResponse verbatim.
type ChatContext struct {
	Turn   int               `json:"turn"`
	Fields map[string]string `json:"fields,omitempty"`
}

// TransactionPlan mirrors the server side transaction plan.
type TransactionPlan struct {
	Kind               string `json:"kind"`
	RecipientAddress   string `json:"recipient_address,omitempty"`
	AmountSmallestUnit uint64 `json:"amount_smallest_unit"`
	Token              string `json:"token,omitempty"`
	GasBudget          uint64 `json:"gas_budget"`
	EstimatedFee       uint64 `json:"estimated_fee"`
}

// DryRunSummary is the human readable preview shown before execution.
type DryRunSummary struct {
	Description   string   `json:"description"`
	EstimatedFee  uint64   `json:"estimated_fee"`
	BalanceBefore uint64   `json:"balance_before"`
	BalanceAfter  uint64   `json:"balance_after"`
	RiskLevel     string   `json:"risk_level"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Contact is one entry of the encrypted address book.
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// ChatResponse aggregates the result of one conversation turn.
type ChatResponse struct {
	Action          string           `json:"action"`
	Confidence      float64          `json:"confidence"`
	Clarification   string           `json:"clarification,omitempty"`
	Context         *ChatContext     `json:"context,omitempty"`
	ReadyToExecute  bool             `json:"ready_to_execute"`
	Plan            *TransactionPlan `json:"plan,omitempty"`
	Summary         *DryRunSummary   `json:"summary,omitempty"`
	ResolvedAddress string           `json:"resolved_address,omitempty"`
	Contacts        []Contact        `json:"contacts,omitempty"`
	Message         string           `json:"message,omitempty"`
}

// ExecuteRequest submits a confirmed plan for synchronous execution.
type ExecuteRequest struct {
	RequestID  string           `json:"request_id,omitempty"`
	Plan       *TransactionPlan `json:"plan"`
	RiskLevel  string           `json:"risk_level,omitempty"`
	PrivateKey string           `json:"private_key"`
}

// ExecuteResponse is the outcome of a synchronous execution.
type ExecuteResponse struct {
	RequestID string `json:"request_id"`
	State     string `json:"state"`
	Digest    string `json:"digest,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	GasUsed   uint64 `json:"gas_used,omitempty"`
}

// TaskSubmission queues a confirmed plan for asynchronous execution.
type TaskSubmission struct {
	RequestID   string           `json:"request_id,omitempty"`
	UserAddress string           `json:"user_address"`
	RiskLevel   string           `json:"risk_level,omitempty"`
	PrivateKey  string           `json:"private_key"`
	Plan        *TransactionPlan `json:"plan"`
}

// TaskResult is the on-chain outcome recorded on a finished task.
type TaskResult struct {
	Digest      string `json:"digest,omitempty"`
	State       string `json:"state,omitempty"`
	ChainStatus string `json:"chain_status,omitempty"`
	ChainError  string `json:"chain_error,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

// Task is the server side view of an asynchronous execution.
type Task struct {
	ID           string      `json:"id"`
	UserAddress  string      `json:"user_address"`
	Kind         string      `json:"kind"`
	Token        string      `json:"token,omitempty"`
	Amount       uint64      `json:"amount,omitempty"`
	Recipient    string      `json:"recipient,omitempty"`
	GasBudget    uint64      `json:"gas_budget,omitempty"`
	EstimatedFee uint64      `json:"estimated_fee,omitempty"`
	RiskLevel    string      `json:"risk_level,omitempty"`
	Status       string      `json:"status"`
	Attempts     int         `json:"attempts"`
	MaxRetries   int         `json:"max_retries"`
	LastError    string      `json:"last_error,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	Result       *TaskResult `json:"result,omitempty"`
	CreatedAt    int64       `json:"created_at"`
	UpdatedAt    int64       `json:"updated_at"`
}

// SaveContactRequest stores one contact in the caller's encrypted book.
type SaveContactRequest struct {
	UserAddress string  `json:"user_address"`
	Signature   string  `json:"signature"`
	Contact     Contact `json:"contact"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("suiagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("suiagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the SuiAgent API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey stores the API key sent as a Bearer token on every request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) currentAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Chat runs one turn of intent resolution and planning.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/api/v1/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Execute submits a confirmed plan and waits for the on-chain result.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.post(ctx, "/api/v1/execute", req, &resp); err != nil {
		return ExecuteResponse{}, err
	}
	return resp, nil
}

// SubmitTask queues a confirmed plan for background execution.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// ListTasks returns the most recent tasks, optionally filtered by sender.
func (c *Client) ListTasks(ctx context.Context, userAddress string, limit int) ([]Task, error) {
	query := url.Values{}
	if userAddress != "" {
		query.Set("user_address", userAddress)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/api/v1/tasks"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var tasks []Task
	if err := c.get(ctx, endpoint, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// WaitForTask polls the task until it reaches a terminal status.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		detail, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if detail.Status == "succeeded" || detail.Status == "failed" {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveContact stores a contact in the caller's encrypted address book.
func (c *Client) SaveContact(ctx context.Context, req SaveContactRequest) error {
	return c.post(ctx, "/api/v1/contacts", req, nil)
}

// ListContacts decrypts and returns the caller's address book.
func (c *Client) ListContacts(ctx context.Context, userAddress, signature string) ([]Contact, error) {
	endpoint := "/api/v1/contacts?user_address=" + url.QueryEscape(userAddress)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Signature", signature)
	var list []Contact
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/api/v1/health", nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if key := c.currentAPIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
