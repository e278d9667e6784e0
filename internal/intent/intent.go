// Package intent turns free-form user text into schema-validated actions.
package intent

import (
	"fmt"
	"strings"

	xerrors "SuiAgent/internal/errors"
)

// Action 枚举意图解析后的动作类型。
type Action string

const (
	ActionTransfer       Action = "transfer"
	ActionGetBalance     Action = "get_balance"
	ActionResolveContact Action = "resolve_contact"
	ActionStake          Action = "stake"
	ActionUnstake        Action = "unstake"
	ActionGetStakeInfo   Action = "get_stake_info"
	ActionSaveContact    Action = "save_contact"
	ActionListContacts   Action = "list_contacts"
	ActionAmbiguous      Action = "ambiguous"
)

// Token 是管线支持的代币符号，闭集。
type Token string

const (
	TokenSUI  Token = "SUI"
	TokenUSDC Token = "USDC"
)

// ParseToken 在边界处把自由文本收敛到闭集。
func ParseToken(value string) (Token, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "SUI":
		return TokenSUI, nil
	case "USDC":
		return TokenUSDC, nil
	default:
		return "", xerrors.New(xerrors.CodeIntentFault, fmt.Sprintf("工具参数中出现闭集之外的代币: %q", value))
	}
}

// Decimals 返回代币的链上精度。
func (t Token) Decimals() int {
	switch t {
	case TokenUSDC:
		return 6
	default:
		return 9
	}
}

// ResolvedAction 是收敛完成、可以进入规划阶段的动作。
// 金额一律以链上最小单位表示。
type ResolvedAction struct {
	Kind               Action
	RecipientAddress   string
	AmountSmallestUnit uint64
	Token              Token

	// 联系人相关动作的载荷。
	ContactName    string
	ContactAddress string
	ContactNotes   string
}

// Intent 是一轮解析的结果。Action 为 ambiguous 时携带澄清问题，
// 其余情况下 Resolved 非空。
type Intent struct {
	Action        Action
	Confidence    float64
	Fields        map[string]string
	Clarification string
	Resolved      *ResolvedAction
}

// Ambiguous 报告该意图是否仍需澄清。
func (i *Intent) Ambiguous() bool {
	return i != nil && i.Action == ActionAmbiguous
}

// Context 在多轮澄清之间由调用方传递。
// Turn 是已经消耗的对话回合数，Fields 是已确认的字段。
type Context struct {
	Turn   int
	Fields map[string]string
}

// Merge 把用户补充的字段并入上下文，返回新上下文。
func (c *Context) Merge(fields map[string]string) *Context {
	next := &Context{
		Turn:   0,
		Fields: make(map[string]string),
	}
	if c != nil {
		next.Turn = c.Turn
		for key, value := range c.Fields {
			next.Fields[key] = value
		}
	}
	for key, value := range fields {
		next.Fields[key] = value
	}
	return next
}

// ParseAmount 把十进制金额字符串精确换算成最小单位。
// 小数位超过代币精度时拒绝，而不是静默截断。
func ParseAmount(value string, token Token) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("金额不能为空")
	}
	if strings.HasPrefix(value, "-") {
		return 0, fmt.Errorf("金额不能为负数: %s", value)
	}

	wholePart := value
	fracPart := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		wholePart = value[:idx]
		fracPart = value[idx+1:]
	}
	if wholePart == "" {
		wholePart = "0"
	}

	decimals := token.Decimals()
	if len(fracPart) > decimals {
		return 0, fmt.Errorf("金额小数位超过 %s 的精度 %d: %s", token, decimals, value)
	}
	// 右补零到精度长度后与整数部分拼接。
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	var result uint64
	for _, ch := range wholePart + fracPart {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("金额格式不合法: %s", value)
		}
		digit := uint64(ch - '0')
		if result > (^uint64(0)-digit)/10 {
			return 0, fmt.Errorf("金额超出可表示范围: %s", value)
		}
		result = result*10 + digit
	}
	return result, nil
}

// FormatAmount 把最小单位金额渲染回十进制字符串。
func FormatAmount(amount uint64, token Token) string {
	decimals := token.Decimals()
	digits := fmt.Sprintf("%0*d", decimals+1, amount)
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
