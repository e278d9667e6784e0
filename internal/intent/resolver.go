package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SuiAgent/internal/contacts"
	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/knowledge"
	"SuiAgent/internal/llm"
	"SuiAgent/pkg/logger"
)

const defaultMaxTurns = 3

// ContactResolver 是意图解析阶段对通讯录的最小依赖。
type ContactResolver interface {
	Resolve(ctx context.Context, userAddress, signature, name string) (*contacts.Contact, error)
}

// Resolver 把自然语言请求收敛成结构化动作。
// 多轮澄清的回合数有上限，超出后返回 INTENT_UNRESOLVED。
type Resolver struct {
	client   llm.Client
	contacts ContactResolver
	examples knowledge.Provider
	maxTurns int
}

// ResolverConfig 描述解析器的依赖与策略。
type ResolverConfig struct {
	Client   llm.Client
	Contacts ContactResolver
	Examples knowledge.Provider
	MaxTurns int
}

// NewResolver 创建意图解析器。
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Client == nil {
		return nil, errors.New("意图解析器需要大模型客户端")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Resolver{
		client:   cfg.Client,
		contacts: cfg.Contacts,
		examples: cfg.Examples,
		maxTurns: maxTurns,
	}, nil
}

// Request 是一轮解析的输入。Context 在多轮之间由调用方回传。
type Request struct {
	Message     string
	UserAddress string
	Signature   string
	Context     *Context
}

// Resolve 执行一轮意图解析。
// 返回的 Intent 要么携带可执行的 ResolvedAction，
// 要么是 ambiguous 并附带澄清问题；回合预算耗尽时返回错误。
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Intent, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "用户消息不能为空")
	}

	turn := 0
	var prior map[string]string
	if req.Context != nil {
		turn = req.Context.Turn
		prior = req.Context.Fields
	}
	if turn >= r.maxTurns {
		return nil, xerrors.New(xerrors.CodeIntentUnresolved, "澄清回合预算已耗尽")
	}

	llmReq := llm.Request{
		Message:     req.Message,
		UserAddress: req.UserAddress,
		Prior:       prior,
	}
	if r.examples != nil {
		for _, example := range r.examples.Query(req.Message) {
			llmReq.Examples = append(llmReq.Examples, llm.Example{
				Input: example.Input,
				Tool:  example.Tool,
			})
		}
	}

	resp, err := r.client.ParseIntent(ctx, llmReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeUpstreamTimeout, err, "意图解析超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeIntentFault, err, "意图解析失败")
	}

	return r.finish(ctx, req, resp, turn)
}

func (r *Resolver) finish(ctx context.Context, req Request, resp *llm.Response, turn int) (*Intent, error) {
	var result *Intent
	if resp.Call == nil {
		result = &Intent{
			Action:        ActionAmbiguous,
			Confidence:    resp.Confidence,
			Fields:        copyFields(req.Context),
			Clarification: resp.Clarification,
		}
	} else {
		built, err := r.buildIntent(ctx, req, resp)
		if err != nil {
			return nil, err
		}
		result = built
	}

	if result.Ambiguous() && turn+1 >= r.maxTurns {
		return nil, xerrors.New(xerrors.CodeIntentUnresolved, "澄清回合预算已耗尽",
			xerrors.WithMetadata("turns", fmt.Sprintf("%d", turn+1)),
		)
	}
	return result, nil
}

// buildIntent 在边界处严格校验模型返回的函数调用。
func (r *Resolver) buildIntent(ctx context.Context, req Request, resp *llm.Response) (*Intent, error) {
	call := resp.Call
	args := call.Arguments

	switch call.Name {
	case llm.ToolTransferToken:
		return r.buildTransfer(ctx, req, resp)

	case llm.ToolResolveContact:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		contact, err := r.resolveContact(ctx, req, name)
		if err != nil {
			return nil, err
		}
		return &Intent{
			Action:     ActionResolveContact,
			Confidence: resp.Confidence,
			Resolved: &ResolvedAction{
				Kind:             ActionResolveContact,
				RecipientAddress: contact.Address,
				ContactName:      contact.Name,
			},
		}, nil

	case llm.ToolGetBalance:
		rawToken, err := stringArg(args, "token")
		if err != nil {
			return nil, err
		}
		token, err := ParseToken(rawToken)
		if err != nil {
			return nil, err
		}
		return &Intent{
			Action:     ActionGetBalance,
			Confidence: resp.Confidence,
			Resolved:   &ResolvedAction{Kind: ActionGetBalance, Token: token},
		}, nil

	case llm.ToolStakeToken, llm.ToolUnstakeToken:
		kind := ActionStake
		if call.Name == llm.ToolUnstakeToken {
			kind = ActionUnstake
		}
		rawAmount, err := stringArg(args, "amount")
		if err != nil {
			return nil, err
		}
		amount, parseErr := ParseAmount(rawAmount, TokenSUI)
		if parseErr != nil || amount == 0 {
			return r.clarify(req, resp, "How much SUI would you like to use? Please give a positive amount like 50 or 1.5."), nil
		}
		return &Intent{
			Action:     kind,
			Confidence: resp.Confidence,
			Resolved: &ResolvedAction{
				Kind:               kind,
				AmountSmallestUnit: amount,
				Token:              TokenSUI,
			},
		}, nil

	case llm.ToolGetStakeInfo:
		return &Intent{
			Action:     ActionGetStakeInfo,
			Confidence: resp.Confidence,
			Resolved:   &ResolvedAction{Kind: ActionGetStakeInfo},
		}, nil

	case llm.ToolSaveContact:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		address, err := stringArg(args, "address")
		if err != nil {
			return nil, err
		}
		notes, _ := stringArg(args, "notes")
		return &Intent{
			Action:     ActionSaveContact,
			Confidence: resp.Confidence,
			Resolved: &ResolvedAction{
				Kind:           ActionSaveContact,
				ContactName:    name,
				ContactAddress: address,
				ContactNotes:   notes,
			},
		}, nil

	case llm.ToolListContacts:
		return &Intent{
			Action:     ActionListContacts,
			Confidence: resp.Confidence,
			Resolved:   &ResolvedAction{Kind: ActionListContacts},
		}, nil

	default:
		return nil, xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具集之外的函数调用: %s", call.Name))
	}
}

func (r *Resolver) buildTransfer(ctx context.Context, req Request, resp *llm.Response) (*Intent, error) {
	args := resp.Call.Arguments

	recipient, err := stringArg(args, "recipient")
	if err != nil {
		return nil, err
	}
	rawAmount, err := stringArg(args, "amount")
	if err != nil {
		return nil, err
	}
	rawToken, err := stringArg(args, "token")
	if err != nil {
		return nil, err
	}
	token, err := ParseToken(rawToken)
	if err != nil {
		return nil, err
	}
	isContactName, err := boolArg(args, "is_contact_name")
	if err != nil {
		return nil, err
	}

	amount, parseErr := ParseAmount(rawAmount, token)
	if parseErr != nil || amount == 0 {
		clarified := r.clarify(req, resp, fmt.Sprintf("I couldn't read the amount %q. Please give a positive amount like 100 or 1.5.", rawAmount))
		clarified.Fields["recipient"] = recipient
		clarified.Fields["token"] = string(token)
		return clarified, nil
	}

	address := recipient
	if isContactName {
		contact, resolveErr := r.resolveContact(ctx, req, recipient)
		if resolveErr != nil {
			// 未知联系人不终结请求，转为追问地址。
			if xerrors.CodeOf(resolveErr) == xerrors.CodeContactNotFound ||
				xerrors.CodeOf(resolveErr) == xerrors.CodeContactsNotFound {
				clarified := r.clarify(req, resp, fmt.Sprintf("I don't have %q in your contacts. What is their wallet address?", recipient))
				clarified.Fields["amount"] = rawAmount
				clarified.Fields["token"] = string(token)
				return clarified, nil
			}
			return nil, resolveErr
		}
		address = contact.Address
		logger.L().Debug("contact substituted in transfer intent", "name", recipient)
	}

	return &Intent{
		Action:     ActionTransfer,
		Confidence: resp.Confidence,
		Resolved: &ResolvedAction{
			Kind:               ActionTransfer,
			RecipientAddress:   address,
			AmountSmallestUnit: amount,
			Token:              token,
		},
	}, nil
}

func (r *Resolver) resolveContact(ctx context.Context, req Request, name string) (*contacts.Contact, error) {
	if r.contacts == nil {
		return nil, xerrors.New(xerrors.CodeContactsNotFound, "通讯录未启用")
	}
	return r.contacts.Resolve(ctx, req.UserAddress, req.Signature, name)
}

func (r *Resolver) clarify(req Request, resp *llm.Response, question string) *Intent {
	return &Intent{
		Action:        ActionAmbiguous,
		Confidence:    resp.Confidence,
		Fields:        copyFields(req.Context),
		Clarification: question,
	}
}

func copyFields(ctx *Context) map[string]string {
	fields := make(map[string]string)
	if ctx == nil {
		return fields
	}
	for key, value := range ctx.Fields {
		fields[key] = value
	}
	return fields
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具参数缺少字段 %q", key))
	}
	value, ok := raw.(string)
	if !ok {
		return "", xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具参数 %q 不是字符串", key))
	}
	return strings.TrimSpace(value), nil
}

func boolArg(args map[string]any, key string) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具参数缺少字段 %q", key))
	}
	value, ok := raw.(bool)
	if !ok {
		return false, xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具参数 %q 不是布尔值", key))
	}
	return value, nil
}
