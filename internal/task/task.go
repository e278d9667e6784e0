package task

import (
	stdErrors "errors"

	xerrors "SuiAgent/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	// StatusPending 任务已创建但尚未执行。
	StatusPending Status = "pending"
	// StatusRunning 任务正在执行链上操作。
	StatusRunning Status = "running"
	// StatusSucceeded 任务执行成功。
	StatusSucceeded Status = "succeeded"
	// StatusFailed 任务执行失败。
	StatusFailed Status = "failed"
)

// 任务子系统专用的错误码。
const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskCompensate xerrors.Code = "TASK_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:   "任务不存在",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:   "任务已存在或正在执行",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:   "任务已完成",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:   "任务重试次数已耗尽",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:   "任务参数校验失败",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "任务入队失败",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "任务处理失败",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeTaskCompensate, xerrors.Attributes{
		Message:   "任务补偿失败",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// 哨兵错误，便于调用方用 errors.Is 判断。
var (
	ErrTaskNotFound  = xerrors.New(CodeTaskNotFound, "任务不存在")
	ErrTaskConflict  = xerrors.New(CodeTaskConflict, "任务已存在或正在执行")
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "任务已完成")
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "任务重试次数已耗尽")
)

// ExecutionResult 记录链上执行的最终产物。
type ExecutionResult struct {
	Digest      string `json:"digest,omitempty"`
	State       string `json:"state,omitempty"`
	ChainStatus string `json:"chain_status,omitempty"`
	ChainError  string `json:"chain_error,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

// Empty 判断结果是否为空。
func (r ExecutionResult) Empty() bool {
	return r.Digest == "" && r.State == "" && r.ChainStatus == "" && r.ChainError == "" && r.GasUsed == 0
}

// Task 表示一次已确认、等待异步执行的交易计划。
// 签名材料不会出现在 Task 中，只存在于内存保险箱里。
type Task struct {
	ID           string           `json:"id"`
	UserAddress  string           `json:"user_address"`
	Kind         string           `json:"kind"`
	Token        string           `json:"token,omitempty"`
	Amount       uint64           `json:"amount,omitempty"`
	Recipient    string           `json:"recipient,omitempty"`
	GasBudget    uint64           `json:"gas_budget,omitempty"`
	EstimatedFee uint64           `json:"estimated_fee,omitempty"`
	RiskLevel    string           `json:"risk_level,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Status       Status           `json:"status"`
	Attempts     int              `json:"attempts"`
	MaxRetries   int              `json:"max_retries"`
	LastError    string           `json:"last_error,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	Result       *ExecutionResult `json:"result,omitempty"`
	CreatedAt    int64            `json:"created_at"`
	UpdatedAt    int64            `json:"updated_at"`
}

// IsTaskError 判断给定错误是否属于任务子系统。
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range []error{ErrTaskNotFound, ErrTaskConflict, ErrTaskCompleted, ErrTaskExhausted} {
		if stdErrors.Is(err, sentinel) {
			return true
		}
	}
	switch xerrors.CodeOf(err) {
	case CodeTaskNotFound, CodeTaskConflict, CodeTaskCompleted, CodeTaskExhausted,
		CodeTaskValidation, CodeTaskPublish, CodeTaskProcessing, CodeTaskCompensate:
		return true
	}
	return false
}

// IsValidStatus 判断状态枚举是否合法。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]any, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}
