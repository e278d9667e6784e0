package task

import (
	"context"
	"errors"
	"testing"

	xerrors "SuiAgent/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), NewKeyVault(), 3)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing plan", SubmitRequest{UserAddress: "0xsender", PrivateKey: "key"}},
		{"missing address", SubmitRequest{Plan: testPlan(), PrivateKey: "key"}},
		{"missing key", SubmitRequest{UserAddress: "0xsender", Plan: testPlan()}},
	}
	for _, tc := range cases {
		if _, err := service.Submit(ctx, tc.req); xerrors.CodeOf(err) != CodeTaskValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), NewKeyVault(), 3)
	ctx := context.Background()

	first, err := service.Submit(ctx, SubmitRequest{
		ID:          "req-1",
		UserAddress: "0xsender",
		Plan:        testPlan(),
		PrivateKey:  "key",
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := service.Submit(ctx, SubmitRequest{
		ID:          "req-1",
		UserAddress: "0xsender",
		Plan:        testPlan(),
		PrivateKey:  "key",
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same task, got %s and %s", first.ID, second.ID)
	}

	tasks, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected a single task, got %d", len(tasks))
	}
}

func TestServiceSubmitPublishFailure(t *testing.T) {
	store := NewMemoryStore()
	vault := NewKeyVault()
	service := NewService(store, failingProducer{}, vault, 3)
	ctx := context.Background()

	_, err := service.Submit(ctx, SubmitRequest{
		ID:          "req-1",
		UserAddress: "0xsender",
		Plan:        testPlan(),
		PrivateKey:  "key",
	})
	if xerrors.CodeOf(err) != CodeTaskPublish {
		t.Fatalf("expected publish error, got %v", err)
	}

	stored, getErr := store.Get(ctx, "req-1")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed status after publish failure, got %s", stored.Status)
	}
	if _, ok := vault.Get("req-1"); ok {
		t.Fatalf("signing material should be cleared when publish fails")
	}
}
