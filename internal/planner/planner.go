// Package planner builds transaction plans and risk-scored dry-run previews.
//
// Every computation here is a pure function of its inputs. Chain state
// (balances, stakes) is fetched by the caller and passed in, which keeps
// the numeric policies unit-testable without network collaborators.
package planner

import (
	"fmt"

	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/intent"
)

// 费用与风险策略常量。手续费是确定性的启发值，不是链上模拟结果。
const (
	// EstimatedFeeMist 是固定的手续费估算，单位 MIST。
	EstimatedFeeMist uint64 = 2_000_000

	// GasBudgetMist 是提交交易时携带的 gas 预算，单位 MIST。
	GasBudgetMist uint64 = 10_000_000

	// 风险分级阈值，按 amount / balanceBefore 计算。
	riskMediumRatio = 0.25
	riskHighRatio   = 0.60

	// 交易后余额低于该倍数的手续费时，风险至少为 medium 并附告警。
	lowBalanceFeeMultiple = 10
)

// RiskLevel 是面向用户的粗粒度风险分级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TransactionPlan 是可以直接交给执行协调器的动作描述。
type TransactionPlan struct {
	Kind               intent.Action `json:"kind"`
	RecipientAddress   string        `json:"recipient_address,omitempty"`
	AmountSmallestUnit uint64        `json:"amount_smallest_unit"`
	Token              intent.Token  `json:"token,omitempty"`
	GasBudget          uint64        `json:"gas_budget"`
	EstimatedFee       uint64        `json:"estimated_fee"`
}

// DryRunSummary 是执行前展示给用户确认的预览。
// EstimatedFee 是启发式估算值，所有展示位置都应注明这一点。
type DryRunSummary struct {
	Description   string
	EstimatedFee  uint64
	BalanceBefore uint64
	BalanceAfter  uint64
	RiskLevel     RiskLevel
	Warnings      []string
}

// Inputs 是规划所需的链上状态快照。
type Inputs struct {
	// Balance 是动作代币的余额，最小单位。
	Balance uint64
	// SuiBalance 是 gas 代币余额，用于非 SUI 动作的手续费校验。
	SuiBalance uint64
	// StakePrincipal 是当前质押本金。
	StakePrincipal uint64
	// PoolConfigured 标记质押池是否已配置。
	PoolConfigured bool
}

// Plan 校验动作并产出交易计划与预览。
// 金额不足时返回 INSUFFICIENT_FUNDS / INSUFFICIENT_STAKE，不会产出计划。
func Plan(action *intent.ResolvedAction, in Inputs) (*TransactionPlan, *DryRunSummary, error) {
	if action == nil {
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, "没有可规划的动作")
	}

	switch action.Kind {
	case intent.ActionTransfer:
		return planTransfer(action, in)
	case intent.ActionStake:
		return planStake(action, in)
	case intent.ActionUnstake:
		return planUnstake(action, in)
	default:
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("动作 %s 不需要交易规划", action.Kind))
	}
}

func planTransfer(action *intent.ResolvedAction, in Inputs) (*TransactionPlan, *DryRunSummary, error) {
	amount := action.AmountSmallestUnit
	if amount == 0 {
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须大于零")
	}
	if amount > in.Balance {
		return nil, nil, xerrors.New(xerrors.CodeInsufficientFunds,
			fmt.Sprintf("余额不足: 需要 %s %s, 可用 %s",
				intent.FormatAmount(amount, action.Token), action.Token,
				intent.FormatAmount(in.Balance, action.Token)))
	}

	var balanceAfter uint64
	if action.Token == intent.TokenSUI {
		// 手续费与转账金额同币种，余额必须同时覆盖两者。
		// 用减法侧比较，amount 接近 uint64 上限时加法会回绕。
		if in.Balance < EstimatedFeeMist || amount > in.Balance-EstimatedFeeMist {
			return nil, nil, xerrors.New(xerrors.CodeInsufficientFunds, "余额不足以同时覆盖转账金额与手续费")
		}
		balanceAfter = in.Balance - amount - EstimatedFeeMist
	} else {
		if in.SuiBalance < EstimatedFeeMist {
			return nil, nil, xerrors.New(xerrors.CodeInsufficientFunds, "SUI 余额不足以支付手续费")
		}
		balanceAfter = in.Balance - amount
	}

	plan := &TransactionPlan{
		Kind:               intent.ActionTransfer,
		RecipientAddress:   action.RecipientAddress,
		AmountSmallestUnit: amount,
		Token:              action.Token,
		GasBudget:          GasBudgetMist,
		EstimatedFee:       EstimatedFeeMist,
	}
	summary := buildSummary(
		fmt.Sprintf("Transfer %s %s to %s", intent.FormatAmount(amount, action.Token), action.Token, shortAddress(action.RecipientAddress)),
		amount, in.Balance, balanceAfter, in, action,
	)
	return plan, summary, nil
}

func planStake(action *intent.ResolvedAction, in Inputs) (*TransactionPlan, *DryRunSummary, error) {
	amount := action.AmountSmallestUnit
	if amount == 0 {
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, "质押金额必须大于零")
	}
	// 减法侧比较，避免 amount+fee 回绕绕过校验。
	if in.Balance < EstimatedFeeMist || amount > in.Balance-EstimatedFeeMist {
		return nil, nil, xerrors.New(xerrors.CodeInsufficientFunds,
			fmt.Sprintf("余额不足以质押 %s SUI", intent.FormatAmount(amount, intent.TokenSUI)))
	}

	balanceAfter := in.Balance - amount - EstimatedFeeMist
	plan := &TransactionPlan{
		Kind:               intent.ActionStake,
		AmountSmallestUnit: amount,
		Token:              intent.TokenSUI,
		GasBudget:          GasBudgetMist,
		EstimatedFee:       EstimatedFeeMist,
	}
	summary := buildSummary(
		fmt.Sprintf("Stake %s SUI", intent.FormatAmount(amount, intent.TokenSUI)),
		amount, in.Balance, balanceAfter, in, action,
	)
	return plan, summary, nil
}

func planUnstake(action *intent.ResolvedAction, in Inputs) (*TransactionPlan, *DryRunSummary, error) {
	amount := action.AmountSmallestUnit
	if amount == 0 {
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, "解质押金额必须大于零")
	}
	if amount > in.StakePrincipal {
		return nil, nil, xerrors.New(xerrors.CodeInsufficientStake,
			fmt.Sprintf("质押本金不足: 需要 %s SUI, 实际 %s",
				intent.FormatAmount(amount, intent.TokenSUI),
				intent.FormatAmount(in.StakePrincipal, intent.TokenSUI)))
	}
	if in.SuiBalance < EstimatedFeeMist {
		return nil, nil, xerrors.New(xerrors.CodeInsufficientFunds, "SUI 余额不足以支付手续费")
	}

	// 解质押的预览以质押本金为基准。
	balanceAfter := in.StakePrincipal - amount
	plan := &TransactionPlan{
		Kind:               intent.ActionUnstake,
		AmountSmallestUnit: amount,
		Token:              intent.TokenSUI,
		GasBudget:          GasBudgetMist,
		EstimatedFee:       EstimatedFeeMist,
	}
	summary := buildSummary(
		fmt.Sprintf("Unstake %s SUI", intent.FormatAmount(amount, intent.TokenSUI)),
		amount, in.StakePrincipal, balanceAfter, in, action,
	)
	return plan, summary, nil
}

func buildSummary(description string, amount, balanceBefore, balanceAfter uint64, in Inputs, action *intent.ResolvedAction) *DryRunSummary {
	summary := &DryRunSummary{
		Description:   description,
		EstimatedFee:  EstimatedFeeMist,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		RiskLevel:     riskLevel(amount, balanceBefore, balanceAfter),
	}

	if balanceAfter < lowBalanceFeeMultiple*EstimatedFeeMist {
		summary.Warnings = append(summary.Warnings, "Balance after this transaction will be near zero.")
	}
	if amount >= balanceBefore {
		summary.Warnings = append(summary.Warnings, "This transaction uses your entire balance.")
	}
	if (action.Kind == intent.ActionStake || action.Kind == intent.ActionUnstake) && !in.PoolConfigured {
		summary.Warnings = append(summary.Warnings, "The staking pool is not configured; the transaction may be rejected by the chain.")
	}
	return summary
}

// riskLevel 按 amount / balanceBefore 分级，阈值固定。
// 交易后余额过低时至少提升到 medium。
func riskLevel(amount, balanceBefore, balanceAfter uint64) RiskLevel {
	if balanceBefore == 0 {
		return RiskHigh
	}

	ratio := float64(amount) / float64(balanceBefore)
	level := RiskLow
	switch {
	case ratio >= riskHighRatio:
		level = RiskHigh
	case ratio >= riskMediumRatio:
		level = RiskMedium
	}

	if level == RiskLow && balanceAfter < lowBalanceFeeMultiple*EstimatedFeeMist {
		level = RiskMedium
	}
	return level
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:8] + "…" + address[len(address)-4:]
}
