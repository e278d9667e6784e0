package planner

import (
	"reflect"
	"testing"

	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/intent"
)

const sui = 1_000_000_000 // 1 SUI in MIST

func transferAction(amount uint64) *intent.ResolvedAction {
	return &intent.ResolvedAction{
		Kind:               intent.ActionTransfer,
		RecipientAddress:   "0xabcdef0123456789abcdef0123456789abcdef01",
		AmountSmallestUnit: amount,
		Token:              intent.TokenSUI,
	}
}

func TestPlanTransferScenario(t *testing.T) {
	// Balance 500 SUI, send 100 SUI.
	plan, summary, err := Plan(transferAction(100*sui), Inputs{Balance: 500 * sui, PoolConfigured: true})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if plan.AmountSmallestUnit != 100*sui {
		t.Fatalf("unexpected amount: %d", plan.AmountSmallestUnit)
	}
	if plan.GasBudget != GasBudgetMist || plan.EstimatedFee != EstimatedFeeMist {
		t.Fatalf("unexpected fee policy: %+v", plan)
	}

	want := uint64(500*sui) - 100*sui - EstimatedFeeMist
	if summary.BalanceAfter != want {
		t.Fatalf("BalanceAfter = %d, want %d", summary.BalanceAfter, want)
	}
	if summary.BalanceBefore-plan.AmountSmallestUnit-summary.EstimatedFee != summary.BalanceAfter {
		t.Fatal("balance equation must hold exactly")
	}
	// 100/500 = 0.2, below the medium cutoff.
	if summary.RiskLevel != RiskLow {
		t.Fatalf("RiskLevel = %s, want low", summary.RiskLevel)
	}
	if len(summary.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", summary.Warnings)
	}
}

func TestPlanIsPure(t *testing.T) {
	action := transferAction(100 * sui)
	in := Inputs{Balance: 500 * sui, PoolConfigured: true}

	_, first, err := Plan(action, in)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	_, second, err := Plan(action, in)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs must yield identical summaries")
	}
}

func TestPlanInsufficientFunds(t *testing.T) {
	_, _, err := Plan(transferAction(600*sui), Inputs{Balance: 500 * sui})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	// Amount equals balance: the fee would force the balance negative.
	_, _, err = Plan(transferAction(500*sui), Inputs{Balance: 500 * sui})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("fee shortfall must also be INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestPlanRejectsAmountNearUint64Max(t *testing.T) {
	// amount+fee would wrap uint64; the guard must compare subtraction-side
	// so the balance equation can never be violated by overflow.
	const max = ^uint64(0)

	_, _, err := Plan(transferAction(max), Inputs{Balance: max})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("transfer at MaxUint64: expected INSUFFICIENT_FUNDS, got %v", err)
	}

	_, _, err = Plan(transferAction(max-1), Inputs{Balance: max})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("transfer at MaxUint64-1: expected INSUFFICIENT_FUNDS, got %v", err)
	}

	stake := &intent.ResolvedAction{
		Kind:               intent.ActionStake,
		AmountSmallestUnit: max,
		Token:              intent.TokenSUI,
	}
	_, _, err = Plan(stake, Inputs{Balance: max, PoolConfigured: true})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("stake at MaxUint64: expected INSUFFICIENT_FUNDS, got %v", err)
	}

	// The largest amount the guard should still allow.
	plan, summary, err := Plan(transferAction(max-EstimatedFeeMist), Inputs{Balance: max})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if summary.BalanceAfter != 0 {
		t.Fatalf("BalanceAfter = %d, want 0", summary.BalanceAfter)
	}
	if summary.BalanceBefore-plan.AmountSmallestUnit-summary.EstimatedFee != summary.BalanceAfter {
		t.Fatal("balance equation must hold exactly")
	}
}

func TestRiskThresholdBoundaries(t *testing.T) {
	balance := uint64(1000 * sui)
	cases := []struct {
		amount uint64
		want   RiskLevel
	}{
		{100 * sui, RiskLow},     // 0.10
		{249 * sui, RiskLow},     // 0.249
		{250 * sui, RiskMedium},  // exactly the medium cutoff
		{400 * sui, RiskMedium},  // 0.40
		{599 * sui, RiskMedium},  // 0.599
		{600 * sui, RiskHigh},    // exactly the high cutoff
		{900 * sui, RiskHigh},    // 0.90
	}
	for _, tc := range cases {
		_, summary, err := Plan(transferAction(tc.amount), Inputs{Balance: balance, PoolConfigured: true})
		if err != nil {
			t.Fatalf("Plan(%d) returned error: %v", tc.amount, err)
		}
		if summary.RiskLevel != tc.want {
			t.Fatalf("amount %d: RiskLevel = %s, want %s", tc.amount, summary.RiskLevel, tc.want)
		}
	}
}

func TestRiskMonotonic(t *testing.T) {
	balance := uint64(1000 * sui)
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

	previous := RiskLow
	for amount := uint64(10 * sui); amount <= 990*sui; amount += 10 * sui {
		_, summary, err := Plan(transferAction(amount), Inputs{Balance: balance, PoolConfigured: true})
		if err != nil {
			t.Fatalf("Plan(%d) returned error: %v", amount, err)
		}
		if rank[summary.RiskLevel] < rank[previous] {
			t.Fatalf("risk decreased from %s to %s at amount %d", previous, summary.RiskLevel, amount)
		}
		previous = summary.RiskLevel
	}
}

func TestLowBalanceFloorsRisk(t *testing.T) {
	// Ratio 3/13 is below the medium cutoff, but the remaining
	// balance dips under 10x the fee.
	balance := 13 * EstimatedFeeMist
	amount := 3 * EstimatedFeeMist
	_, summary, err := Plan(transferAction(amount), Inputs{Balance: balance, PoolConfigured: true})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if summary.RiskLevel == RiskLow {
		t.Fatal("near-zero remaining balance must not be rated low risk")
	}

	found := false
	for _, warning := range summary.Warnings {
		if warning == "Balance after this transaction will be near zero." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected near-zero warning, got %v", summary.Warnings)
	}
}

func TestPlanUSDCTransfer(t *testing.T) {
	action := &intent.ResolvedAction{
		Kind:               intent.ActionTransfer,
		RecipientAddress:   "0xabc",
		AmountSmallestUnit: 50_000_000, // 50 USDC
		Token:              intent.TokenUSDC,
	}

	_, summary, err := Plan(action, Inputs{Balance: 200_000_000, SuiBalance: sui, PoolConfigured: true})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	// USDC balances do not absorb the SUI-denominated fee.
	if summary.BalanceAfter != 150_000_000 {
		t.Fatalf("BalanceAfter = %d, want 150000000", summary.BalanceAfter)
	}

	// Without SUI for gas the plan must fail.
	_, _, err = Plan(action, Inputs{Balance: 200_000_000, SuiBalance: 0})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS without gas funds, got %v", err)
	}
}

func TestPlanUnstake(t *testing.T) {
	action := &intent.ResolvedAction{
		Kind:               intent.ActionUnstake,
		AmountSmallestUnit: 60 * sui,
		Token:              intent.TokenSUI,
	}

	_, summary, err := Plan(action, Inputs{Balance: 10 * sui, SuiBalance: 10 * sui, StakePrincipal: 100 * sui, PoolConfigured: true})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if summary.BalanceAfter != 40*sui {
		t.Fatalf("BalanceAfter = %d, want %d", summary.BalanceAfter, 40*sui)
	}

	action.AmountSmallestUnit = 200 * sui
	_, _, err = Plan(action, Inputs{Balance: 10 * sui, SuiBalance: 10 * sui, StakePrincipal: 100 * sui, PoolConfigured: true})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientStake {
		t.Fatalf("expected INSUFFICIENT_STAKE, got %v", err)
	}
}

func TestPlanWarnsOnUnconfiguredPool(t *testing.T) {
	action := &intent.ResolvedAction{
		Kind:               intent.ActionStake,
		AmountSmallestUnit: 10 * sui,
		Token:              intent.TokenSUI,
	}

	_, summary, err := Plan(action, Inputs{Balance: 100 * sui, SuiBalance: 100 * sui, PoolConfigured: false})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	found := false
	for _, warning := range summary.Warnings {
		if warning == "The staking pool is not configured; the transaction may be rejected by the chain." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pool warning, got %v", summary.Warnings)
	}
}

func TestPlanRejectsReadOnlyActions(t *testing.T) {
	_, _, err := Plan(&intent.ResolvedAction{Kind: intent.ActionGetStakeInfo}, Inputs{})
	if err == nil {
		t.Fatal("read-only actions must not be planned")
	}
}
