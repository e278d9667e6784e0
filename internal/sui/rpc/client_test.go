package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"SuiAgent/internal/sui"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newCoinNode serves a fullnode holding the given coin balances and records
// which coin objects each build call receives.
func newCoinNode(t *testing.T, balances []uint64, gotCoins *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}

		var result any
		switch req.Method {
		case "suix_getCoins":
			data := make([]map[string]any, 0, len(balances))
			for i, balance := range balances {
				data = append(data, map[string]any{
					"coinObjectId": fmt.Sprintf("0xc%d", i+1),
					"balance":      strconv.FormatUint(balance, 10),
				})
			}
			result = map[string]any{"data": data, "hasNextPage": false}
		case "unsafe_paySui", "unsafe_pay":
			var coins []string
			if err := json.Unmarshal(req.Params[1], &coins); err != nil {
				t.Errorf("decode coins param: %v", err)
			}
			*gotCoins = coins
			result = map[string]any{"txBytes": "dHgtYnl0ZXM="}
		default:
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func TestBuildTransferSelectsCoinsCoveringGas(t *testing.T) {
	const oneSUI = 1_000_000_000

	var gotCoins []string
	// Three coins of 5 SUI each: two cover the amount exactly, but paySui
	// also draws gas from the selected set, so all three must be picked.
	node := newCoinNode(t, []uint64{5 * oneSUI, 5 * oneSUI, 5 * oneSUI}, &gotCoins)
	defer node.Close()

	client, err := NewClient(context.Background(), Config{Name: "test", RPCURL: node.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	txBytes, err := client.BuildTransfer(context.Background(), sui.TransferParams{
		Sender:    "0xalice",
		Recipient: "0xbob",
		CoinType:  sui.CoinTypeSUI,
		Amount:    10 * oneSUI,
		GasBudget: 10_000_000,
	})
	if err != nil {
		t.Fatalf("BuildTransfer: %v", err)
	}
	if txBytes == "" {
		t.Fatal("expected transaction bytes")
	}
	if len(gotCoins) != 3 {
		t.Fatalf("expected 3 coins selected to cover amount plus gas, got %v", gotCoins)
	}
}

func TestBuildTransferNonSUISelectsAmountOnly(t *testing.T) {
	var gotCoins []string
	node := newCoinNode(t, []uint64{6_000_000, 6_000_000}, &gotCoins)
	defer node.Close()

	client, err := NewClient(context.Background(), Config{Name: "test", RPCURL: node.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	// Gas is paid in SUI from a separate coin, so USDC selection only needs
	// to cover the transfer amount.
	_, err = client.BuildTransfer(context.Background(), sui.TransferParams{
		Sender:    "0xalice",
		Recipient: "0xbob",
		CoinType:  "0xusdc::coin::COIN",
		Amount:    6_000_000,
		GasBudget: 10_000_000,
	})
	if err != nil {
		t.Fatalf("BuildTransfer: %v", err)
	}
	if len(gotCoins) != 1 {
		t.Fatalf("expected 1 coin selected, got %v", gotCoins)
	}
}

func TestBuildTransferRejectsAmountOverflowingGas(t *testing.T) {
	var gotCoins []string
	node := newCoinNode(t, []uint64{1_000_000_000}, &gotCoins)
	defer node.Close()

	client, err := NewClient(context.Background(), Config{Name: "test", RPCURL: node.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	_, err = client.BuildTransfer(context.Background(), sui.TransferParams{
		Sender:    "0xalice",
		Recipient: "0xbob",
		CoinType:  sui.CoinTypeSUI,
		Amount:    ^uint64(0),
		GasBudget: 10_000_000,
	})
	if err == nil {
		t.Fatal("expected error for amount near uint64 max")
	}
	if len(gotCoins) != 0 {
		t.Fatalf("no build call should reach the node, got coins %v", gotCoins)
	}
}
