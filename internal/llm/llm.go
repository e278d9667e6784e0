package llm

import "context"

// ToolName 枚举大模型允许调用的函数。
type ToolName string

const (
	ToolTransferToken  ToolName = "transfer_token"
	ToolResolveContact ToolName = "resolve_contact"
	ToolGetBalance     ToolName = "get_balance"
	ToolStakeToken     ToolName = "stake_token"
	ToolUnstakeToken   ToolName = "unstake_token"
	ToolGetStakeInfo   ToolName = "get_stake_info"
	ToolSaveContact    ToolName = "save_contact"
	ToolListContacts   ToolName = "list_contacts"
)

// IsValidTool 检查函数名是否在约定的工具集内。
func IsValidTool(name ToolName) bool {
	switch name {
	case ToolTransferToken, ToolResolveContact, ToolGetBalance,
		ToolStakeToken, ToolUnstakeToken, ToolGetStakeInfo,
		ToolSaveContact, ToolListContacts:
		return true
	default:
		return false
	}
}

// Request 描述发送给大模型的一轮意图解析请求。
// Prior 是调用方在多轮澄清之间维护的已知字段映射。
type Request struct {
	Message     string
	UserAddress string
	Prior       map[string]string
	Examples    []Example
}

// Example 是提示词中的少样本示例。
type Example struct {
	Input string
	Tool  string
}

// ToolCall 表示大模型返回的一次函数调用。
// Arguments 按原样保留，由调用方在边界处做严格校验。
type ToolCall struct {
	Name      ToolName
	Arguments map[string]any
}

// Response 是一轮解析的结构化输出：要么是一次工具调用，
// 要么是一个向用户提出的澄清问题，二者互斥。
type Response struct {
	Call          *ToolCall
	Clarification string
	Confidence    float64
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	ParseIntent(ctx context.Context, req Request) (*Response, error)
}
