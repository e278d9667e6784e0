// Package rpc implements the Sui fullnode gateway over JSON-RPC 2.0.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"SuiAgent/internal/sui"
)

// Config describes how to reach a Sui fullnode.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// Client talks to a Sui fullnode. The fullnode assembles transaction
// bytes for us, so the client never needs a BCS encoder of its own.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	mu        sync.Mutex
}

// NewClient dials the configured fullnode and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Sui 节点 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 Sui 节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
	}, nil
}

// Close releases the network connection held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// GetBalance returns the total balance of a coin type in base units.
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (uint64, error) {
	var result struct {
		CoinType        string `json:"coinType"`
		CoinObjectCount int    `json:"coinObjectCount"`
		TotalBalance    string `json:"totalBalance"`
	}
	if err := c.rpcClient.CallContext(ctx, &result, "suix_getBalance", owner, coinType); err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	return parseU64(result.TotalBalance, "totalBalance")
}

// GetStakes returns all delegated stake positions of an address.
func (c *Client) GetStakes(ctx context.Context, owner string) (*sui.StakeSummary, error) {
	var result []struct {
		ValidatorAddress string `json:"validatorAddress"`
		StakingPool      string `json:"stakingPool"`
		Stakes           []struct {
			StakedSuiID     string `json:"stakedSuiId"`
			Principal       string `json:"principal"`
			Status          string `json:"status"`
			EstimatedReward string `json:"estimatedReward"`
		} `json:"stakes"`
	}
	if err := c.rpcClient.CallContext(ctx, &result, "suix_getStakes", owner); err != nil {
		return nil, fmt.Errorf("查询质押信息失败: %w", err)
	}

	summary := &sui.StakeSummary{}
	for _, pool := range result {
		for _, position := range pool.Stakes {
			principal, err := parseU64(position.Principal, "principal")
			if err != nil {
				return nil, err
			}
			reward := uint64(0)
			if position.EstimatedReward != "" {
				reward, err = parseU64(position.EstimatedReward, "estimatedReward")
				if err != nil {
					return nil, err
				}
			}
			summary.TotalPrincipal += principal
			summary.Stakes = append(summary.Stakes, sui.Stake{
				ValidatorAddress: pool.ValidatorAddress,
				StakedSuiID:      position.StakedSuiID,
				Principal:        principal,
				Status:           position.Status,
				EstimatedReward:  reward,
			})
		}
	}
	return summary, nil
}

// BuildTransfer asks the fullnode to assemble a pay transaction and
// returns the BCS bytes in base64.
func (c *Client) BuildTransfer(ctx context.Context, params sui.TransferParams) (string, error) {
	required := params.Amount
	if params.CoinType == sui.CoinTypeSUI {
		// paySui 从同一批 coin 里扣 gas，选币时必须连 gas 预算一起覆盖。
		if required > ^uint64(0)-params.GasBudget {
			return "", fmt.Errorf("转账金额过大: %d", params.Amount)
		}
		required += params.GasBudget
	}
	coins, err := c.selectCoins(ctx, params.Sender, params.CoinType, required)
	if err != nil {
		return "", err
	}

	var result txBytesResult
	if params.CoinType == sui.CoinTypeSUI {
		err = c.rpcClient.CallContext(ctx, &result, "unsafe_paySui",
			params.Sender,
			coins,
			[]string{params.Recipient},
			[]string{strconv.FormatUint(params.Amount, 10)},
			strconv.FormatUint(params.GasBudget, 10),
		)
	} else {
		err = c.rpcClient.CallContext(ctx, &result, "unsafe_pay",
			params.Sender,
			coins,
			[]string{params.Recipient},
			[]string{strconv.FormatUint(params.Amount, 10)},
			nil,
			strconv.FormatUint(params.GasBudget, 10),
		)
	}
	if err != nil {
		return "", fmt.Errorf("构建转账交易失败: %w", err)
	}
	return result.TxBytes, nil
}

// BuildStake assembles a delegated staking transaction.
func (c *Client) BuildStake(ctx context.Context, params sui.StakeParams) (string, error) {
	coins, err := c.selectCoins(ctx, params.Sender, sui.CoinTypeSUI, params.Amount)
	if err != nil {
		return "", err
	}

	var result txBytesResult
	err = c.rpcClient.CallContext(ctx, &result, "unsafe_requestAddStake",
		params.Sender,
		coins,
		strconv.FormatUint(params.Amount, 10),
		params.Validator,
		nil,
		strconv.FormatUint(params.GasBudget, 10),
	)
	if err != nil {
		return "", fmt.Errorf("构建质押交易失败: %w", err)
	}
	return result.TxBytes, nil
}

// BuildUnstake assembles a withdrawal of a staked position.
func (c *Client) BuildUnstake(ctx context.Context, params sui.UnstakeParams) (string, error) {
	var result txBytesResult
	err := c.rpcClient.CallContext(ctx, &result, "unsafe_requestWithdrawStake",
		params.Sender,
		params.StakedSuiID,
		nil,
		strconv.FormatUint(params.GasBudget, 10),
	)
	if err != nil {
		return "", fmt.Errorf("构建解质押交易失败: %w", err)
	}
	return result.TxBytes, nil
}

// Execute submits signed transaction bytes and waits for local execution.
func (c *Client) Execute(ctx context.Context, txBytes, signature string) (*sui.TransactionResult, error) {
	options := map[string]any{
		"showEffects": true,
	}

	var result struct {
		Digest  string `json:"digest"`
		Effects *struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
			GasUsed struct {
				ComputationCost string `json:"computationCost"`
				StorageCost     string `json:"storageCost"`
				StorageRebate   string `json:"storageRebate"`
			} `json:"gasUsed"`
		} `json:"effects"`
		Checkpoint string `json:"checkpoint"`
	}
	err := c.rpcClient.CallContext(ctx, &result, "sui_executeTransactionBlock",
		txBytes,
		[]string{signature},
		options,
		"WaitForLocalExecution",
	)
	if err != nil {
		return nil, fmt.Errorf("提交交易失败: %w", err)
	}

	out := &sui.TransactionResult{
		Digest:     result.Digest,
		Checkpoint: result.Checkpoint,
	}
	if result.Effects != nil {
		out.Status = result.Effects.Status.Status
		out.Error = result.Effects.Status.Error
		if cost := result.Effects.GasUsed.ComputationCost; cost != "" {
			gas, err := parseU64(cost, "computationCost")
			if err != nil {
				return nil, err
			}
			out.GasUsed = gas
		}
	}
	return out, nil
}

// selectCoins picks coin objects until the requested amount is covered.
func (c *Client) selectCoins(ctx context.Context, owner, coinType string, amount uint64) ([]string, error) {
	var page struct {
		Data []struct {
			CoinObjectID string `json:"coinObjectId"`
			Balance      string `json:"balance"`
		} `json:"data"`
		HasNextPage bool   `json:"hasNextPage"`
		NextCursor  string `json:"nextCursor"`
	}

	var (
		selected []string
		covered  uint64
		cursor   any
	)
	for {
		if err := c.rpcClient.CallContext(ctx, &page, "suix_getCoins", owner, coinType, cursor, 50); err != nil {
			return nil, fmt.Errorf("查询 coin 对象失败: %w", err)
		}
		for _, coin := range page.Data {
			balance, err := parseU64(coin.Balance, "balance")
			if err != nil {
				return nil, err
			}
			selected = append(selected, coin.CoinObjectID)
			covered += balance
			if covered >= amount {
				return selected, nil
			}
		}
		if !page.HasNextPage {
			break
		}
		cursor = page.NextCursor
	}

	return nil, fmt.Errorf("可用 coin 余额不足: 需要 %d, 实际 %d", amount, covered)
}

type txBytesResult struct {
	TxBytes string `json:"txBytes"`
}

func parseU64(value, field string) (uint64, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", field, err)
	}
	return parsed, nil
}

var _ sui.Client = (*Client)(nil)
