package intent

import (
	"context"
	"testing"

	"SuiAgent/internal/contacts"
	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/llm"
)

type scriptedClient struct {
	responses []*llm.Response
	requests  []llm.Request
}

func (c *scriptedClient) ParseIntent(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &llm.Response{Clarification: "Could you clarify?", Confidence: 0.5}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type fakeContacts struct {
	book map[string]string
}

func (f *fakeContacts) Resolve(_ context.Context, _, _, name string) (*contacts.Contact, error) {
	address, ok := f.book[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeContactNotFound, "unknown contact")
	}
	return &contacts.Contact{Name: name, Address: address}, nil
}

func toolResponse(name llm.ToolName, args map[string]any) *llm.Response {
	return &llm.Response{
		Call:       &llm.ToolCall{Name: name, Arguments: args},
		Confidence: 0.95,
	}
}

func newTestResolver(t *testing.T, client llm.Client, book map[string]string) *Resolver {
	t.Helper()
	resolver, err := NewResolver(ResolverConfig{
		Client:   client,
		Contacts: &fakeContacts{book: book},
	})
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	return resolver
}

func TestResolveTransferWithContact(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolTransferToken, map[string]any{
			"recipient":       "Mom",
			"amount":          "100",
			"token":           "SUI",
			"is_contact_name": true,
		}),
	}}
	resolver := newTestResolver(t, client, map[string]string{"Mom": "0xmom"})

	result, err := resolver.Resolve(context.Background(), Request{
		Message:     "send 100 SUI to Mom",
		UserAddress: "0xuser",
		Signature:   "sig",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.Ambiguous() {
		t.Fatalf("expected resolved intent, got clarification %q", result.Clarification)
	}
	if result.Resolved.Kind != ActionTransfer {
		t.Fatalf("unexpected action: %s", result.Resolved.Kind)
	}
	if result.Resolved.RecipientAddress != "0xmom" {
		t.Fatalf("contact not substituted: %s", result.Resolved.RecipientAddress)
	}
	if result.Resolved.AmountSmallestUnit != 100_000_000_000 {
		t.Fatalf("unexpected amount: %d", result.Resolved.AmountSmallestUnit)
	}
}

func TestResolveAmbiguousMessage(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Clarification: "How much, and to whom?", Confidence: 0.5},
	}}
	resolver := newTestResolver(t, client, nil)

	result, err := resolver.Resolve(context.Background(), Request{
		Message:     "Send money",
		UserAddress: "0xuser",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !result.Ambiguous() {
		t.Fatal("expected ambiguous intent")
	}
	if result.Clarification == "" {
		t.Fatal("ambiguous intent must carry a clarification question")
	}
	if result.Resolved != nil {
		t.Fatal("ambiguous intent must not carry executable fields")
	}
}

func TestResolveUnknownContactStaysAmbiguous(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolTransferToken, map[string]any{
			"recipient":       "Stranger",
			"amount":          "5",
			"token":           "SUI",
			"is_contact_name": true,
		}),
	}}
	resolver := newTestResolver(t, client, map[string]string{"Mom": "0xmom"})

	result, err := resolver.Resolve(context.Background(), Request{
		Message:     "send 5 SUI to Stranger",
		UserAddress: "0xuser",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !result.Ambiguous() {
		t.Fatal("unknown contact must keep the intent ambiguous")
	}
	if result.Fields["amount"] != "5" || result.Fields["token"] != "SUI" {
		t.Fatalf("confirmed fields must be retained: %v", result.Fields)
	}
}

func TestResolveTurnBudgetExhausted(t *testing.T) {
	client := &scriptedClient{}
	resolver := newTestResolver(t, client, nil)

	var prior *Context
	for turn := 0; turn < defaultMaxTurns-1; turn++ {
		result, err := resolver.Resolve(context.Background(), Request{
			Message: "still vague",
			Context: prior,
		})
		if err != nil {
			t.Fatalf("turn %d returned error: %v", turn, err)
		}
		if !result.Ambiguous() {
			t.Fatalf("turn %d should stay ambiguous", turn)
		}
		prior = &Context{Turn: turn + 1, Fields: result.Fields}
	}

	_, err := resolver.Resolve(context.Background(), Request{
		Message: "still vague",
		Context: prior,
	})
	if xerrors.CodeOf(err) != xerrors.CodeIntentUnresolved {
		t.Fatalf("expected INTENT_UNRESOLVED after budget, got %v", err)
	}
}

func TestResolveRejectsOutOfEnumToken(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolTransferToken, map[string]any{
			"recipient":       "0xabc",
			"amount":          "1",
			"token":           "DOGE",
			"is_contact_name": false,
		}),
	}}
	resolver := newTestResolver(t, client, nil)

	_, err := resolver.Resolve(context.Background(), Request{Message: "send 1 DOGE"})
	if xerrors.CodeOf(err) != xerrors.CodeIntentFault {
		t.Fatalf("out-of-enum token must be a pipeline fault, got %v", err)
	}
}

func TestResolveStake(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolStakeToken, map[string]any{"amount": "50", "token": "SUI"}),
	}}
	resolver := newTestResolver(t, client, nil)

	result, err := resolver.Resolve(context.Background(), Request{Message: "stake 50 SUI"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.Resolved.Kind != ActionStake {
		t.Fatalf("unexpected action: %s", result.Resolved.Kind)
	}
	if result.Resolved.AmountSmallestUnit != 50_000_000_000 {
		t.Fatalf("unexpected amount: %d", result.Resolved.AmountSmallestUnit)
	}
}

func TestResolvePassesPriorContext(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolTransferToken, map[string]any{
			"recipient":       "0xabc",
			"amount":          "100",
			"token":           "SUI",
			"is_contact_name": false,
		}),
	}}
	resolver := newTestResolver(t, client, nil)

	prior := &Context{Turn: 1, Fields: map[string]string{"amount": "100"}}
	if _, err := resolver.Resolve(context.Background(), Request{
		Message: "to 0xabc",
		Context: prior,
	}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(client.requests))
	}
	if client.requests[0].Prior["amount"] != "100" {
		t.Fatalf("prior context not forwarded: %v", client.requests[0].Prior)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input   string
		token   Token
		want    uint64
		wantErr bool
	}{
		{"100", TokenSUI, 100_000_000_000, false},
		{"1.5", TokenSUI, 1_500_000_000, false},
		{"0.000000001", TokenSUI, 1, false},
		{"2.5", TokenUSDC, 2_500_000, false},
		{"0.0000000001", TokenSUI, 0, true},
		{"-5", TokenSUI, 0, true},
		{"abc", TokenSUI, 0, true},
		{"", TokenSUI, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.input, tc.token)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseAmount(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q) returned error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(1_500_000_000, TokenSUI); got != "1.5" {
		t.Fatalf("FormatAmount = %s, want 1.5", got)
	}
	if got := FormatAmount(100_000_000_000, TokenSUI); got != "100" {
		t.Fatalf("FormatAmount = %s, want 100", got)
	}
	if got := FormatAmount(2_500_000, TokenUSDC); got != "2.5" {
		t.Fatalf("FormatAmount = %s, want 2.5", got)
	}
}
