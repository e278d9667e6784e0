package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义少样本示例检索的通用接口。
// 返回的示例会拼进提示词，引导大模型选择正确的函数。
type Provider interface {
	Query(message string) []Example
}

// Example 描述一条「用户输入 -> 目标函数」的少样本示例。
type Example struct {
	Input    string   `json:"input"`
	Tool     string   `json:"tool"`
	Keywords []string `json:"keywords"`
}

// StaticProvider 通过加载 JSON 文件提供静态示例检索能力。
type StaticProvider struct {
	items      []Example
	maxResults int
}

// NewStaticProvider 创建静态示例库实例。
func NewStaticProvider(items []Example, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载示例条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("示例库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析示例库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取示例库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Example
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析示例库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据用户消息做简单关键词匹配，返回最多 maxResults 条示例。
func (p *StaticProvider) Query(message string) []Example {
	if p == nil {
		return nil
	}

	message = strings.ToLower(strings.TrimSpace(message))

	results := make([]Example, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, message) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(example Example, message string) bool {
	if len(example.Keywords) == 0 {
		return true
	}
	for _, keyword := range example.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(message, normalized) {
			return true
		}
	}
	return false
}

// DefaultExamples 返回内置的示例集，覆盖每一种目标函数。
func DefaultExamples() []Example {
	return []Example{
		{Input: "Send 100 SUI to Mom", Tool: "transfer_token", Keywords: []string{"send", "transfer", "pay"}},
		{Input: "Transfer 25 USDC to 0x3a9f...", Tool: "transfer_token", Keywords: []string{"send", "transfer", "usdc"}},
		{Input: "What's Mom's address?", Tool: "resolve_contact", Keywords: []string{"address", "who", "contact"}},
		{Input: "How much SUI do I have?", Tool: "get_balance", Keywords: []string{"balance", "how much", "have"}},
		{Input: "Stake 50 SUI", Tool: "stake_token", Keywords: []string{"stake"}},
		{Input: "Unstake 20 SUI", Tool: "unstake_token", Keywords: []string{"unstake", "withdraw"}},
		{Input: "How much have I staked?", Tool: "get_stake_info", Keywords: []string{"staked", "staking"}},
		{Input: "Save Bob's address 0x7c21... as a contact", Tool: "save_contact", Keywords: []string{"save", "remember", "add contact"}},
		{Input: "Show my contacts", Tool: "list_contacts", Keywords: []string{"contacts", "list", "show"}},
	}
}

var _ Provider = (*StaticProvider)(nil)
