package agent

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"SuiAgent/internal/contacts"
	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/executor"
	"SuiAgent/internal/intent"
	"SuiAgent/internal/llm"
	"SuiAgent/internal/planner"
	"SuiAgent/internal/storage/mysql"
	"SuiAgent/internal/sui"
	"SuiAgent/internal/walrus"
)

const mist = 1_000_000_000

type scriptedLLM struct {
	responses []*llm.Response
}

func (c *scriptedLLM) ParseIntent(context.Context, llm.Request) (*llm.Response, error) {
	if len(c.responses) == 0 {
		return &llm.Response{Clarification: "Could you clarify?", Confidence: 0.5}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type fakeChain struct {
	balances map[string]uint64
	stakes   *sui.StakeSummary
	result   *sui.TransactionResult
}

func (f *fakeChain) GetBalance(_ context.Context, _, coinType string) (uint64, error) {
	return f.balances[coinType], nil
}

func (f *fakeChain) GetStakes(context.Context, string) (*sui.StakeSummary, error) {
	if f.stakes == nil {
		return &sui.StakeSummary{}, nil
	}
	return f.stakes, nil
}

func (f *fakeChain) BuildTransfer(context.Context, sui.TransferParams) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte("tx")), nil
}

func (f *fakeChain) BuildStake(context.Context, sui.StakeParams) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte("tx")), nil
}

func (f *fakeChain) BuildUnstake(context.Context, sui.UnstakeParams) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte("tx")), nil
}

func (f *fakeChain) Execute(context.Context, string, string) (*sui.TransactionResult, error) {
	if f.result != nil {
		return f.result, nil
	}
	return &sui.TransactionResult{Digest: "0xdigest", Status: "success"}, nil
}

func (f *fakeChain) Close() {}

func testNetwork() *sui.Network {
	return &sui.Network{
		Name:         "testnet",
		RPCURL:       "https://fullnode.testnet.sui.io:443",
		USDCCoinType: "0xa1ec::usdc::USDC",
	}
}

func newTestAgent(t *testing.T, llmClient llm.Client, chain sui.Client, opts ...Option) *Agent {
	t.Helper()

	cipher, err := contacts.NewCipher("unit-test-pepper")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}
	directory, err := contacts.NewDirectory(cipher, walrus.NewMemoryStore(), contacts.NewMemoryIndex())
	if err != nil {
		t.Fatalf("NewDirectory returned error: %v", err)
	}

	resolver, err := intent.NewResolver(intent.ResolverConfig{
		Client:   llmClient,
		Contacts: directory,
	})
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}

	coordinator, err := executor.NewCoordinator(chain, executor.Config{
		Validator:    "0xvalidator",
		USDCCoinType: "0xa1ec::usdc::USDC",
	})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}

	opts = append([]Option{WithValidatorConfigured(true)}, opts...)
	return New(resolver, directory, chain, coordinator, testNetwork(), opts...)
}

func transferCall(recipient, amount string) *llm.Response {
	return &llm.Response{
		Call: &llm.ToolCall{
			Name: llm.ToolTransferToken,
			Arguments: map[string]any{
				"recipient":       recipient,
				"amount":          amount,
				"token":           "SUI",
				"is_contact_name": false,
			},
		},
		Confidence: 0.95,
	}
}

func TestChatTransferPreview(t *testing.T) {
	chain := &fakeChain{balances: map[string]uint64{sui.CoinTypeSUI: 500 * mist}}
	ag := newTestAgent(t, &scriptedLLM{responses: []*llm.Response{transferCall("0xabc", "100")}}, chain)

	resp, err := ag.Chat(context.Background(), ChatRequest{
		Message:     "Send 100 SUI to 0xabc",
		UserAddress: "0xuser",
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !resp.ReadyToExecute {
		t.Fatal("transfer preview must be ready to execute")
	}
	if resp.Plan == nil || resp.Summary == nil {
		t.Fatal("preview must carry plan and summary")
	}
	if resp.Plan.AmountSmallestUnit != 100*mist {
		t.Fatalf("unexpected amount: %d", resp.Plan.AmountSmallestUnit)
	}
	want := uint64(500*mist) - 100*mist - resp.Summary.EstimatedFee
	if resp.Summary.BalanceAfter != want {
		t.Fatalf("BalanceAfter = %d, want %d", resp.Summary.BalanceAfter, want)
	}
}

func TestChatAmbiguous(t *testing.T) {
	ag := newTestAgent(t, &scriptedLLM{}, &fakeChain{})

	resp, err := ag.Chat(context.Background(), ChatRequest{
		Message:     "Send money",
		UserAddress: "0xuser",
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.ReadyToExecute {
		t.Fatal("ambiguous intent must not be ready to execute")
	}
	if resp.Clarification == "" {
		t.Fatal("ambiguous response must carry a clarification question")
	}
	if resp.Context == nil || resp.Context.Turn != 1 {
		t.Fatalf("context must track the consumed turn: %+v", resp.Context)
	}
}

func TestChatInsufficientFunds(t *testing.T) {
	chain := &fakeChain{balances: map[string]uint64{sui.CoinTypeSUI: 50 * mist}}
	ag := newTestAgent(t, &scriptedLLM{responses: []*llm.Response{transferCall("0xabc", "100")}}, chain)

	_, err := ag.Chat(context.Background(), ChatRequest{
		Message:     "Send 100 SUI to 0xabc",
		UserAddress: "0xuser",
	})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestChatGetStakeInfo(t *testing.T) {
	chain := &fakeChain{
		balances: map[string]uint64{sui.CoinTypeSUI: 500 * mist},
		stakes: &sui.StakeSummary{
			TotalPrincipal: 100 * mist,
			Stakes:         []sui.Stake{{StakedSuiID: "0xstake", Principal: 100 * mist, Status: "Active"}},
		},
	}
	ag := newTestAgent(t, &scriptedLLM{responses: []*llm.Response{{
		Call:       &llm.ToolCall{Name: llm.ToolGetStakeInfo, Arguments: map[string]any{}},
		Confidence: 0.95,
	}}}, chain)

	resp, err := ag.Chat(context.Background(), ChatRequest{
		Message:     "How much have I staked?",
		UserAddress: "0xuser",
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.StakeInfo == nil || resp.StakeInfo.Total != "100" {
		t.Fatalf("unexpected stake info: %+v", resp.StakeInfo)
	}
	// A read-only query never produces dry-run fields.
	if resp.Plan != nil || resp.Summary != nil || resp.ReadyToExecute {
		t.Fatal("stake info query must not carry a plan")
	}
}

func TestChatSaveAndListContacts(t *testing.T) {
	ag := newTestAgent(t, &scriptedLLM{responses: []*llm.Response{
		{
			Call: &llm.ToolCall{Name: llm.ToolSaveContact, Arguments: map[string]any{
				"name":    "Mom",
				"address": "0xmom",
				"notes":   "",
			}},
			Confidence: 0.95,
		},
		{
			Call:       &llm.ToolCall{Name: llm.ToolListContacts, Arguments: map[string]any{}},
			Confidence: 0.95,
		},
	}}, &fakeChain{})

	ctx := context.Background()
	if _, err := ag.Chat(ctx, ChatRequest{
		Message:     "Save Mom's address 0xmom",
		UserAddress: "0xuser",
		Signature:   "sig",
	}); err != nil {
		t.Fatalf("save chat returned error: %v", err)
	}

	resp, err := ag.Chat(ctx, ChatRequest{
		Message:     "Show my contacts",
		UserAddress: "0xuser",
		Signature:   "sig",
	})
	if err != nil {
		t.Fatalf("list chat returned error: %v", err)
	}
	if len(resp.Contacts) != 1 || resp.Contacts[0].Name != "Mom" {
		t.Fatalf("unexpected contacts: %+v", resp.Contacts)
	}
}

func testPrivateKey() string {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(seed)
}

func TestExecuteRecordsResult(t *testing.T) {
	repo, err := mysql.NewMemoryExecutionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryExecutionRepository returned error: %v", err)
	}
	chain := &fakeChain{balances: map[string]uint64{sui.CoinTypeSUI: 500 * mist}}
	ag := newTestAgent(t, &scriptedLLM{}, chain, WithExecutionRepository(repo))

	resp, err := ag.Execute(context.Background(), ExecuteRequest{
		Plan: &planner.TransactionPlan{
			Kind:               intent.ActionTransfer,
			RecipientAddress:   "0xabc",
			AmountSmallestUnit: 100 * mist,
			Token:              intent.TokenSUI,
			GasBudget:          10_000_000,
			EstimatedFee:       2_000_000,
		},
		RiskLevel:  "low",
		PrivateKey: testPrivateKey(),
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.State != executor.StateSucceeded {
		t.Fatalf("State = %s, want SUCCEEDED", resp.State)
	}
	if resp.Digest != "0xdigest" {
		t.Fatalf("unexpected digest: %s", resp.Digest)
	}

	records, err := repo.ListLatest(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListLatest returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one execution record, got %d", len(records))
	}
	if records[0].Digest != "0xdigest" || records[0].State != "SUCCEEDED" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestExecuteRejectsBadKey(t *testing.T) {
	ag := newTestAgent(t, &scriptedLLM{}, &fakeChain{})

	_, err := ag.Execute(context.Background(), ExecuteRequest{
		Plan: &planner.TransactionPlan{
			Kind:               intent.ActionTransfer,
			AmountSmallestUnit: 1,
			Token:              intent.TokenSUI,
		},
		PrivateKey: "bad key",
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
