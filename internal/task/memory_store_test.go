package task

import (
	"context"
	"testing"
	"time"

	xerrors "SuiAgent/internal/errors"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", UserAddress: "0xaaa", Kind: "transfer", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", UserAddress: "0xbbb", Kind: "stake", Status: StatusFailed, MaxRetries: 3},
		{ID: "t3", UserAddress: "0xaaa", Kind: "transfer", Status: StatusSucceeded, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Digest: "9kXs", State: "SUCCEEDED"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	mine, err := store.List(ctx, buildListOptions([]ListOption{WithAddress("0xAAA")}))
	if err != nil {
		t.Fatalf("list by address: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 tasks for address, got %d", len(mine))
	}

	withResult, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	byDigest, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("9kXs")}))
	if err != nil {
		t.Fatalf("list by digest: %v", err)
	}
	if len(byDigest) != 1 || byDigest[0].ID != "t3" {
		t.Fatalf("unexpected digest query result: %+v", byDigest)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "t1", UserAddress: "0xaaa", Kind: "transfer", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "t1"); err != ErrTaskConflict {
		t.Fatalf("expected conflict on running task, got %v", err)
	}

	if err := store.MarkFailed(ctx, "t1", CodeTaskProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	claimed, err = store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("reclaim after failure: %v", err)
	}
	if claimed.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", claimed.Attempts)
	}

	if err := store.MarkFailed(ctx, "t1", CodeTaskProcessing, "boom again", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != ErrTaskExhausted {
		t.Fatalf("expected retries exhausted, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "t1", ExecutionResult{Digest: "abc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != ErrTaskCompleted {
		t.Fatalf("expected completed, got %v", err)
	}
}

func TestMemoryStoreTerminalFailureBlocksReclaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "t1", UserAddress: "0xaaa", Kind: "transfer", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// A transaction with unknown on-chain status must stay parked even though
	// the task has attempts left; a redelivered queue message may not run it again.
	if err := store.MarkFailed(ctx, "t1", xerrors.CodeExecutionStatusUnknown, "status unknown", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != ErrTaskExhausted {
		t.Fatalf("expected terminal task to be unclaimable, got %v", err)
	}

	task, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != StatusFailed || task.ErrorCode != string(xerrors.CodeExecutionStatusUnknown) {
		t.Fatalf("unexpected task state: %+v", task)
	}
	if task.Attempts != task.MaxRetries {
		t.Fatalf("expected attempts pinned to max retries, got %d/%d", task.Attempts, task.MaxRetries)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	tasks := []*Task{
		{ID: "a", UserAddress: "0xaaa", Kind: "transfer", Status: StatusPending, MaxRetries: 3},
		{ID: "b", UserAddress: "0xaaa", Kind: "stake", Status: StatusPending, MaxRetries: 3},
		{ID: "c", UserAddress: "0xbbb", Kind: "unstake", Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Digest: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("stats with result: %v", err)
	}
	if withResults.Total != 1 || withResults.Succeeded != 1 {
		t.Fatalf("unexpected stats with result: %+v", withResults)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
}
