// Package executor submits confirmed transaction plans to the chain.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/intent"
	"SuiAgent/internal/planner"
	"SuiAgent/internal/sui"
	"SuiAgent/pkg/logger"
)

// State 是单次执行的阶段标记。
type State string

const (
	StatePlanned    State = "PLANNED"
	StateSubmitting State = "SUBMITTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// Signer 是执行阶段对签名材料的最小依赖。
// 私钥由调用方按请求提供，协调器不保管。
type Signer interface {
	Address() string
	SignTransaction(txBytes string) (string, error)
}

// Result 是一次执行的最终报告。
// 链上执行失败表现为 State=FAILED 加 Error 字段，而不是 Go 错误；
// Go 错误只留给管线级故障。
type Result struct {
	State   State
	Digest  string
	Status  string
	Error   string
	GasUsed uint64
}

// Config 描述执行协调器的链上参数。
type Config struct {
	// Validator 是质押委托的目标验证人地址。
	Validator string
	// USDCCoinType 是当前网络上 USDC 的完整 coin type。
	USDCCoinType string
}

// Coordinator 持有链客户端与按发送方互斥的锁注册表。
type Coordinator struct {
	chain     sui.Client
	validator string
	usdcType  string
	locks     *LockRegistry
}

// NewCoordinator 创建执行协调器。
func NewCoordinator(chain sui.Client, cfg Config) (*Coordinator, error) {
	if chain == nil {
		return nil, errors.New("执行协调器需要链客户端")
	}
	return &Coordinator{
		chain:     chain,
		validator: strings.TrimSpace(cfg.Validator),
		usdcType:  strings.TrimSpace(cfg.USDCCoinType),
		locks:     NewLockRegistry(),
	}, nil
}

// Execute 提交一份已确认的计划。
// 状态机: PLANNED -> SUBMITTING -> {SUCCEEDED, FAILED}。
// 拿到 digest 之前的失败可以安全重试；之后的失败绝不自动重试，
// 提交阶段的网络错误以 EXECUTION_STATUS_UNKNOWN 上抛。
func (c *Coordinator) Execute(ctx context.Context, plan *planner.TransactionPlan, signer Signer) (*Result, error) {
	if plan == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "没有可执行的计划")
	}
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少签名材料")
	}

	sender := signer.Address()
	lock := c.locks.Acquire(sender)
	lock.Lock()
	defer lock.Unlock()

	// 拿到锁之后才开始构建，避免两笔交易引用同一批 coin 版本。
	txBytes, err := c.buildTransaction(ctx, plan, sender)
	if err != nil {
		return nil, err
	}

	signature, err := signer.SignTransaction(txBytes)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "交易签名失败")
	}

	logger.Audit().Info("transaction submitting",
		"sender", sender,
		"kind", string(plan.Kind),
		"amount", plan.AmountSmallestUnit,
	)

	result, err := c.chain.Execute(ctx, txBytes, signature)
	if err != nil {
		// 交易可能已经发出。状态未知,交由调用方对账后再决定是否重发。
		return nil, xerrors.Wrap(xerrors.CodeExecutionStatusUnknown, err,
			"交易提交后状态未知, 请先核对链上状态再重试",
			xerrors.WithMetadata("sender", sender),
		)
	}

	out := &Result{
		State:   StateSucceeded,
		Digest:  result.Digest,
		Status:  result.Status,
		Error:   result.Error,
		GasUsed: result.GasUsed,
	}
	if !result.Succeeded() {
		out.State = StateFailed
	}

	logger.Audit().Info("transaction executed",
		"sender", sender,
		"digest", out.Digest,
		"state", string(out.State),
	)
	return out, nil
}

// buildTransaction 让全节点按计划组装交易字节。
// 这一步尚未触发任何链上效果，失败可以安全重试。
func (c *Coordinator) buildTransaction(ctx context.Context, plan *planner.TransactionPlan, sender string) (string, error) {
	switch plan.Kind {
	case intent.ActionTransfer:
		coinType := sui.CoinTypeSUI
		if plan.Token == intent.TokenUSDC {
			if c.usdcType == "" {
				return "", xerrors.New(xerrors.CodeInvalidArgument, "当前网络未配置 USDC coin type")
			}
			coinType = c.usdcType
		}
		txBytes, err := c.chain.BuildTransfer(ctx, sui.TransferParams{
			Sender:    sender,
			Recipient: plan.RecipientAddress,
			CoinType:  coinType,
			Amount:    plan.AmountSmallestUnit,
			GasBudget: plan.GasBudget,
		})
		if err != nil {
			return "", retryableChainError(err, "构建转账交易失败")
		}
		return txBytes, nil

	case intent.ActionStake:
		if c.validator == "" {
			return "", xerrors.New(xerrors.CodeInvalidArgument, "未配置质押验证人地址")
		}
		txBytes, err := c.chain.BuildStake(ctx, sui.StakeParams{
			Sender:    sender,
			Validator: c.validator,
			Amount:    plan.AmountSmallestUnit,
			GasBudget: plan.GasBudget,
		})
		if err != nil {
			return "", retryableChainError(err, "构建质押交易失败")
		}
		return txBytes, nil

	case intent.ActionUnstake:
		stakedID, err := c.pickStakedPosition(ctx, sender, plan.AmountSmallestUnit)
		if err != nil {
			return "", err
		}
		txBytes, err := c.chain.BuildUnstake(ctx, sui.UnstakeParams{
			Sender:      sender,
			StakedSuiID: stakedID,
			GasBudget:   plan.GasBudget,
		})
		if err != nil {
			return "", retryableChainError(err, "构建解质押交易失败")
		}
		return txBytes, nil

	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("动作 %s 不可执行", plan.Kind))
	}
}

// pickStakedPosition 选择一个本金足以覆盖金额的质押对象。
// 链上按整个对象提取, 取能覆盖金额的最小持仓。
func (c *Coordinator) pickStakedPosition(ctx context.Context, sender string, amount uint64) (string, error) {
	summary, err := c.chain.GetStakes(ctx, sender)
	if err != nil {
		return "", retryableChainError(err, "查询质押持仓失败")
	}

	var (
		bestID        string
		bestPrincipal uint64
	)
	for _, position := range summary.Stakes {
		if position.Principal < amount {
			continue
		}
		if bestID == "" || position.Principal < bestPrincipal {
			bestID = position.StakedSuiID
			bestPrincipal = position.Principal
		}
	}
	if bestID == "" {
		return "", xerrors.New(xerrors.CodeInsufficientStake,
			fmt.Sprintf("没有单笔质押持仓能覆盖 %d MIST", amount))
	}
	return bestID, nil
}

func retryableChainError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeUpstreamTimeout, err, message)
	}
	return xerrors.Wrap(xerrors.CodeChainFailure, err, message, xerrors.WithRetryable(true))
}
