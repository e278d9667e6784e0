package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"SuiAgent/sdk/go/suiagent"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suiagent.ChatResponse{
			Action:         "transfer",
			Confidence:     0.95,
			ReadyToExecute: true,
			Plan: &suiagent.TransactionPlan{
				Kind:               "transfer",
				RecipientAddress:   "0xmom",
				AmountSmallestUnit: 100_000_000_000,
				Token:              "SUI",
				GasBudget:          10_000_000,
				EstimatedFee:       2_000_000,
			},
			Summary: &suiagent.DryRunSummary{
				Description:   "Send 100 SUI to 0xmom",
				EstimatedFee:  2_000_000,
				BalanceBefore: 500_000_000_000,
				BalanceAfter:  399_998_000_000,
				RiskLevel:     "medium",
			},
		})
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suiagent.Task{
			ID:     "task-demo",
			Status: "pending",
		})
	})
	mux.HandleFunc("/api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suiagent.Task{
			ID:     "task-demo",
			Status: "succeeded",
			Result: &suiagent.TaskResult{
				Digest: "9kXsAB12",
				State:  "SUCCEEDED",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := suiagent.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chat, err := client.Chat(ctx, suiagent.ChatRequest{
		Message:     "Send 100 SUI to Mom",
		UserAddress: "0xalice",
		Signature:   "demo-signature",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("plan: %+v\n", chat.Plan)

	created, err := client.SubmitTask(ctx, suiagent.TaskSubmission{
		UserAddress: "0xalice",
		Plan:        chat.Plan,
		RiskLevel:   chat.Summary.RiskLevel,
		PrivateKey:  "demo-private-key",
	})
	if err != nil {
		panic(err)
	}

	done, err := client.WaitForTask(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished with digest %s\n", done.ID, done.Result.Digest)
}
