package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SuiAgent/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o"
	defaultTimeout   = 30 * time.Second

	// toolCallConfidence 是严格模式下函数调用的置信度。
	// strict schema 保证了参数形状，因此置信度固定为高值。
	toolCallConfidence      = 0.95
	clarificationConfidence = 0.5
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 的严格模式函数调用能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ParseIntent 调用 OpenAI 解析一轮自然语言意图。
// 返回的要么是工具集内的一次函数调用，要么是澄清问题；
// 工具集之外的函数名按管线故障处理，直接返回错误。
func (c *Client) ParseIntent(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	choice := decoded.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		name := llm.ToolName(call.Function.Name)
		if !llm.IsValidTool(name) {
			return nil, fmt.Errorf("大模型调用了工具集之外的函数: %s", call.Function.Name)
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("解析函数参数失败: %w", err)
			}
		}
		return &llm.Response{
			Call:       &llm.ToolCall{Name: name, Arguments: args},
			Confidence: toolCallConfidence,
		}, nil
	}

	// 未调用函数时，模型的回复作为澄清问题返回。
	question := strings.TrimSpace(choice.Message.Content)
	if question == "" {
		return nil, errors.New("OpenAI 既未调用函数也未给出澄清问题")
	}
	return &llm.Response{
		Clarification: question,
		Confidence:    clarificationConfidence,
	}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"tools":       toolDefinitions,
		"tool_choice": "auto",
		"temperature": 0.2,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You are a blockchain agent for the Sui network. " +
	"Understand the user's intent and call exactly one of the provided functions. " +
	"If a critical field (amount, recipient or token) is missing, do not call a function; " +
	"ask a single concise clarification question instead. " +
	"Treat names like \"Mom\" or \"alice\" as contact names (is_contact_name=true) and " +
	"0x-prefixed strings as addresses. Default the token to SUI when unspecified. " +
	"Staking supports SUI only."

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## 用户请求\n")
	builder.WriteString(strings.TrimSpace(req.Message))
	builder.WriteString("\n")
	if address := strings.TrimSpace(req.UserAddress); address != "" {
		builder.WriteString(fmt.Sprintf("\n用户地址: %s\n", address))
	}

	if len(req.Prior) > 0 {
		builder.WriteString("\n## 已确认字段（来自此前的澄清回合）\n")
		for key, value := range req.Prior {
			builder.WriteString(fmt.Sprintf("- %s: %s\n", key, value))
		}
	}

	if len(req.Examples) > 0 {
		builder.WriteString("\n## 示例\n")
		for _, example := range req.Examples {
			builder.WriteString(fmt.Sprintf("- %q -> %s\n", example.Input, example.Tool))
		}
	}
	return builder.String()
}
