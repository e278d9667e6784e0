package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/intent"
	"SuiAgent/internal/planner"
	"SuiAgent/internal/sui"
)

type fakeChain struct {
	mu          sync.Mutex
	buildErr    error
	executeErr  error
	effects     *sui.TransactionResult
	stakes      *sui.StakeSummary
	inFlight    int32
	maxInFlight int32
	executed    int
	delay       time.Duration
}

func (f *fakeChain) GetBalance(context.Context, string, string) (uint64, error) { return 0, nil }

func (f *fakeChain) GetStakes(context.Context, string) (*sui.StakeSummary, error) {
	if f.stakes == nil {
		return &sui.StakeSummary{}, nil
	}
	return f.stakes, nil
}

func (f *fakeChain) BuildTransfer(context.Context, sui.TransferParams) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	return "dHg=", nil
}

func (f *fakeChain) BuildStake(context.Context, sui.StakeParams) (string, error) {
	return "dHg=", nil
}

func (f *fakeChain) BuildUnstake(context.Context, sui.UnstakeParams) (string, error) {
	return "dHg=", nil
}

func (f *fakeChain) Execute(context.Context, string, string) (*sui.TransactionResult, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	f.executed++
	f.mu.Unlock()

	if f.executeErr != nil {
		return nil, f.executeErr
	}
	if f.effects != nil {
		return f.effects, nil
	}
	return &sui.TransactionResult{Digest: "0xdigest", Status: "success"}, nil
}

func (f *fakeChain) Close() {}

type staticSigner struct {
	address string
	signErr error
}

func (s staticSigner) Address() string { return s.address }

func (s staticSigner) SignTransaction(string) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return "AAsig", nil
}

func transferPlan() *planner.TransactionPlan {
	return &planner.TransactionPlan{
		Kind:               intent.ActionTransfer,
		RecipientAddress:   "0xrecipient",
		AmountSmallestUnit: 1_000_000_000,
		Token:              intent.TokenSUI,
		GasBudget:          planner.GasBudgetMist,
		EstimatedFee:       planner.EstimatedFeeMist,
	}
}

func TestExecuteSucceeds(t *testing.T) {
	chain := &fakeChain{}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	result, err := coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: "0xsender"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.State != StateSucceeded {
		t.Fatalf("State = %s, want SUCCEEDED", result.State)
	}
	if result.Digest != "0xdigest" {
		t.Fatalf("unexpected digest: %s", result.Digest)
	}
}

func TestExecuteOnChainFailureIsResultNotError(t *testing.T) {
	chain := &fakeChain{effects: &sui.TransactionResult{
		Digest: "0xdigest",
		Status: "failure",
		Error:  "MoveAbort(7)",
	}}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	result, err := coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: "0xsender"})
	if err != nil {
		t.Fatalf("on-chain failure must not surface as a Go error: %v", err)
	}
	if result.State != StateFailed {
		t.Fatalf("State = %s, want FAILED", result.State)
	}
	if result.Error != "MoveAbort(7)" {
		t.Fatalf("unexpected effects error: %s", result.Error)
	}
}

func TestExecuteBuildFailureIsRetryable(t *testing.T) {
	chain := &fakeChain{buildErr: errors.New("connection refused")}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	_, err = coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: "0xsender"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("pre-digest failures must be retryable: %v", err)
	}
	if chain.executed != 0 {
		t.Fatal("nothing must reach the chain when building fails")
	}
}

func TestExecuteSubmitFailureIsStatusUnknown(t *testing.T) {
	chain := &fakeChain{executeErr: errors.New("i/o timeout")}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	_, err = coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: "0xsender"})
	if xerrors.CodeOf(err) != xerrors.CodeExecutionStatusUnknown {
		t.Fatalf("expected EXECUTION_STATUS_UNKNOWN, got %v", err)
	}
	if xerrors.RetryableError(err) {
		t.Fatal("post-submission failures must never be auto-retried")
	}
}

func TestExecuteSerializesSameSender(t *testing.T) {
	chain := &fakeChain{delay: 20 * time.Millisecond}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: "0xSAME"}); err != nil {
				t.Errorf("Execute returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&chain.maxInFlight); max > 1 {
		t.Fatalf("submissions for the same sender overlapped: max in flight %d", max)
	}
	if chain.executed != 4 {
		t.Fatalf("expected 4 executions, got %d", chain.executed)
	}
}

func TestExecuteAllowsDifferentSendersConcurrently(t *testing.T) {
	chain := &fakeChain{delay: 20 * time.Millisecond}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	var wg sync.WaitGroup
	for _, sender := range []string{"0xalice", "0xbob"} {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			if _, err := coordinator.Execute(context.Background(), transferPlan(), staticSigner{address: address}); err != nil {
				t.Errorf("Execute returned error: %v", err)
			}
		}(sender)
	}
	wg.Wait()

	if max := atomic.LoadInt32(&chain.maxInFlight); max < 2 {
		t.Logf("different senders did not overlap in this run (max %d), scheduling dependent", max)
	}
}

func TestExecuteUnstakePicksCoveringPosition(t *testing.T) {
	chain := &fakeChain{stakes: &sui.StakeSummary{
		TotalPrincipal: 150_000_000_000,
		Stakes: []sui.Stake{
			{StakedSuiID: "0xsmall", Principal: 10_000_000_000},
			{StakedSuiID: "0xbig", Principal: 140_000_000_000},
		},
	}}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	plan := &planner.TransactionPlan{
		Kind:               intent.ActionUnstake,
		AmountSmallestUnit: 50_000_000_000,
		Token:              intent.TokenSUI,
		GasBudget:          planner.GasBudgetMist,
	}
	result, err := coordinator.Execute(context.Background(), plan, staticSigner{address: "0xsender"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.State != StateSucceeded {
		t.Fatalf("State = %s, want SUCCEEDED", result.State)
	}

	plan.AmountSmallestUnit = 200_000_000_000
	_, err = coordinator.Execute(context.Background(), plan, staticSigner{address: "0xsender"})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientStake {
		t.Fatalf("expected INSUFFICIENT_STAKE, got %v", err)
	}
}

func TestExecuteStakeRequiresValidator(t *testing.T) {
	chain := &fakeChain{}
	coordinator, err := NewCoordinator(chain, Config{})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	plan := &planner.TransactionPlan{
		Kind:               intent.ActionStake,
		AmountSmallestUnit: 1_000_000_000,
		Token:              intent.TokenSUI,
		GasBudget:          planner.GasBudgetMist,
	}
	if _, err := coordinator.Execute(context.Background(), plan, staticSigner{address: "0xsender"}); err == nil {
		t.Fatal("expected error without a configured validator")
	}
}
