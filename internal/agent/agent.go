package agent

import (
	"context"
	stdErrors "errors"
	"time"

	"SuiAgent/internal/contacts"
	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/executor"
	"SuiAgent/internal/intent"
	"SuiAgent/internal/planner"
	"SuiAgent/internal/storage/mysql"
	"SuiAgent/internal/sui"
	"SuiAgent/internal/sui/signer"
	"SuiAgent/pkg/logger"

	"github.com/google/uuid"
)

// Agent 协调意图解析、通讯录、交易规划与链上执行，是系统的业务核心。
type Agent struct {
	resolver    *intent.Resolver
	directory   *contacts.Directory
	chain       sui.Client
	coordinator *executor.Coordinator
	records     mysql.ExecutionRepository
	network     *sui.Network

	validatorConfigured bool
	chainTimeout        time.Duration
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithExecutionRepository 配置执行记录的持久化仓库。
func WithExecutionRepository(repo mysql.ExecutionRepository) Option {
	return func(a *Agent) {
		a.records = repo
	}
}

// WithChainTimeout 设置链上查询与提交的超时时间。
func WithChainTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.chainTimeout = 0
			return
		}
		a.chainTimeout = timeout
	}
}

// WithValidatorConfigured 标记质押验证人是否已配置, 影响风险预警。
func WithValidatorConfigured(configured bool) Option {
	return func(a *Agent) {
		a.validatorConfigured = configured
	}
}

// New 创建一个 Agent。
func New(resolver *intent.Resolver, directory *contacts.Directory, chain sui.Client, coordinator *executor.Coordinator, network *sui.Network, opts ...Option) *Agent {
	ag := &Agent{
		resolver:    resolver,
		directory:   directory,
		chain:       chain,
		coordinator: coordinator,
		network:     network,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// ChatRequest 是一轮对话式请求。Context 在多轮澄清之间由调用方回传。
type ChatRequest struct {
	Message     string          `json:"message"`
	UserAddress string          `json:"user_address"`
	Signature   string          `json:"signature"`
	Context     *intent.Context `json:"context,omitempty"`
}

// ChatResponse 汇总一轮对话的结果。
// ReadyToExecute 为 true 时 Plan 与 Summary 非空, 可直接进入执行。
type ChatResponse struct {
	Action         intent.Action            `json:"action"`
	Confidence     float64                  `json:"confidence"`
	Clarification  string                   `json:"clarification,omitempty"`
	Context        *intent.Context          `json:"context,omitempty"`
	ReadyToExecute bool                     `json:"ready_to_execute"`
	Plan           *planner.TransactionPlan `json:"plan,omitempty"`
	Summary        *planner.DryRunSummary   `json:"summary,omitempty"`

	// 只读查询的结果载荷。
	Balance         *BalanceInfo       `json:"balance,omitempty"`
	StakeInfo       *StakeInfo         `json:"stake_info,omitempty"`
	ResolvedAddress string             `json:"resolved_address,omitempty"`
	Contacts        []contacts.Contact `json:"contacts,omitempty"`
	Message         string             `json:"message,omitempty"`
}

// BalanceInfo 是余额查询的展示结构。
type BalanceInfo struct {
	Token  intent.Token `json:"token"`
	Raw    uint64       `json:"raw"`
	Amount string       `json:"amount"`
}

// StakeInfo 是质押查询的展示结构。
type StakeInfo struct {
	TotalPrincipal uint64      `json:"total_principal"`
	Total          string      `json:"total"`
	Positions      []sui.Stake `json:"positions,omitempty"`
}

// Chat 执行一轮「文本 -> 结构化动作 -> 预览或查询」的流程。
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if a.resolver == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置意图解析器")
	}

	resolved, err := a.resolver.Resolve(ctx, intent.Request{
		Message:     req.Message,
		UserAddress: req.UserAddress,
		Signature:   req.Signature,
		Context:     req.Context,
	})
	if err != nil {
		return nil, err
	}

	if resolved.Ambiguous() {
		turn := 1
		if req.Context != nil {
			turn = req.Context.Turn + 1
		}
		return &ChatResponse{
			Action:        intent.ActionAmbiguous,
			Confidence:    resolved.Confidence,
			Clarification: resolved.Clarification,
			Context: &intent.Context{
				Turn:   turn,
				Fields: resolved.Fields,
			},
		}, nil
	}

	action := resolved.Resolved
	switch action.Kind {
	case intent.ActionTransfer, intent.ActionStake, intent.ActionUnstake:
		return a.preview(ctx, req, resolved)
	case intent.ActionGetBalance:
		return a.queryBalance(ctx, req.UserAddress, action.Token, resolved.Confidence)
	case intent.ActionGetStakeInfo:
		return a.queryStakeInfo(ctx, req.UserAddress, resolved.Confidence)
	case intent.ActionResolveContact:
		return &ChatResponse{
			Action:          intent.ActionResolveContact,
			Confidence:      resolved.Confidence,
			ResolvedAddress: action.RecipientAddress,
		}, nil
	case intent.ActionSaveContact:
		return a.saveContact(ctx, req, resolved)
	case intent.ActionListContacts:
		return a.listContacts(ctx, req, resolved)
	default:
		return nil, xerrors.New(xerrors.CodeIntentFault, "无法处理的动作类型")
	}
}

// preview 为可执行动作并发拉取链上状态后产出交易预览。
func (a *Agent) preview(ctx context.Context, req ChatRequest, resolved *intent.Intent) (*ChatResponse, error) {
	action := resolved.Resolved

	chainCtx, cancel := a.withChainTimeout(ctx)
	defer cancel()

	coinType := sui.CoinTypeSUI
	if action.Token == intent.TokenUSDC {
		var err error
		coinType, err = a.network.CoinTypeFor(string(action.Token))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "当前网络不支持该代币")
		}
	}

	// 余额与质押查询没有数据依赖, 并发执行。
	type balanceOut struct {
		balance uint64
		suiBal  uint64
		err     error
	}
	type stakeOut struct {
		summary *sui.StakeSummary
		err     error
	}
	balanceCh := make(chan balanceOut, 1)
	stakeCh := make(chan stakeOut, 1)

	go func() {
		balance, err := a.chain.GetBalance(chainCtx, req.UserAddress, coinType)
		if err != nil {
			balanceCh <- balanceOut{err: err}
			return
		}
		suiBalance := balance
		if coinType != sui.CoinTypeSUI {
			suiBalance, err = a.chain.GetBalance(chainCtx, req.UserAddress, sui.CoinTypeSUI)
			if err != nil {
				balanceCh <- balanceOut{err: err}
				return
			}
		}
		balanceCh <- balanceOut{balance: balance, suiBal: suiBalance}
	}()
	go func() {
		summary, err := a.chain.GetStakes(chainCtx, req.UserAddress)
		stakeCh <- stakeOut{summary: summary, err: err}
	}()

	balanceResult := <-balanceCh
	stakeResult := <-stakeCh
	if balanceResult.err != nil {
		return nil, chainQueryError(balanceResult.err, "查询余额失败")
	}
	if stakeResult.err != nil {
		return nil, chainQueryError(stakeResult.err, "查询质押信息失败")
	}

	plan, summary, err := planner.Plan(action, planner.Inputs{
		Balance:        balanceResult.balance,
		SuiBalance:     balanceResult.suiBal,
		StakePrincipal: stakeResult.summary.TotalPrincipal,
		PoolConfigured: a.validatorConfigured,
	})
	if err != nil {
		return nil, err
	}

	logger.Audit().Info("plan previewed",
		"user_address", req.UserAddress,
		"kind", string(plan.Kind),
		"amount", plan.AmountSmallestUnit,
		"risk", string(summary.RiskLevel),
	)

	return &ChatResponse{
		Action:         action.Kind,
		Confidence:     resolved.Confidence,
		ReadyToExecute: true,
		Plan:           plan,
		Summary:        summary,
	}, nil
}

func (a *Agent) queryBalance(ctx context.Context, userAddress string, token intent.Token, confidence float64) (*ChatResponse, error) {
	chainCtx, cancel := a.withChainTimeout(ctx)
	defer cancel()

	coinType, err := a.network.CoinTypeFor(string(token))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "当前网络不支持该代币")
	}
	balance, err := a.chain.GetBalance(chainCtx, userAddress, coinType)
	if err != nil {
		return nil, chainQueryError(err, "查询余额失败")
	}

	return &ChatResponse{
		Action:     intent.ActionGetBalance,
		Confidence: confidence,
		Balance: &BalanceInfo{
			Token:  token,
			Raw:    balance,
			Amount: intent.FormatAmount(balance, token),
		},
	}, nil
}

func (a *Agent) queryStakeInfo(ctx context.Context, userAddress string, confidence float64) (*ChatResponse, error) {
	chainCtx, cancel := a.withChainTimeout(ctx)
	defer cancel()

	summary, err := a.chain.GetStakes(chainCtx, userAddress)
	if err != nil {
		return nil, chainQueryError(err, "查询质押信息失败")
	}

	return &ChatResponse{
		Action:     intent.ActionGetStakeInfo,
		Confidence: confidence,
		StakeInfo: &StakeInfo{
			TotalPrincipal: summary.TotalPrincipal,
			Total:          intent.FormatAmount(summary.TotalPrincipal, intent.TokenSUI),
			Positions:      summary.Stakes,
		},
	}, nil
}

func (a *Agent) saveContact(ctx context.Context, req ChatRequest, resolved *intent.Intent) (*ChatResponse, error) {
	if a.directory == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置通讯录")
	}
	action := resolved.Resolved
	err := a.directory.Save(ctx, req.UserAddress, req.Signature, contacts.Contact{
		Name:    action.ContactName,
		Address: action.ContactAddress,
		Notes:   action.ContactNotes,
	})
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Action:     intent.ActionSaveContact,
		Confidence: resolved.Confidence,
		Message:    "Contact saved.",
	}, nil
}

func (a *Agent) listContacts(ctx context.Context, req ChatRequest, resolved *intent.Intent) (*ChatResponse, error) {
	if a.directory == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置通讯录")
	}
	book, err := a.directory.List(ctx, req.UserAddress, req.Signature)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Action:     intent.ActionListContacts,
		Confidence: resolved.Confidence,
		Contacts:   book,
	}, nil
}

// ExecuteRequest 是一次确认后的执行请求。
// PrivateKey 按请求提供, 只在本次调用的内存里存在。
type ExecuteRequest struct {
	RequestID  string                   `json:"request_id,omitempty"`
	Plan       *planner.TransactionPlan `json:"plan"`
	RiskLevel  string                   `json:"risk_level,omitempty"`
	PrivateKey string                   `json:"private_key"`
}

// ExecuteResponse 是执行结果的对外结构。
type ExecuteResponse struct {
	RequestID string         `json:"request_id"`
	State     executor.State `json:"state"`
	Digest    string         `json:"digest,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	GasUsed   uint64         `json:"gas_used,omitempty"`
}

// Execute 提交一份已确认的计划并落库执行记录。
func (a *Agent) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if a.coordinator == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置执行协调器")
	}
	if req.Plan == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "执行请求缺少交易计划")
	}

	sig, err := signer.NewFromBase64(req.PrivateKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "签名材料不合法")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	chainCtx, cancel := a.withChainTimeout(ctx)
	defer cancel()

	result, execErr := a.coordinator.Execute(chainCtx, req.Plan, sig)

	record := mysql.ExecutionRecord{
		RequestID:   requestID,
		UserAddress: sig.Address(),
		Kind:        string(req.Plan.Kind),
		Token:       string(req.Plan.Token),
		Amount:      req.Plan.AmountSmallestUnit,
		Recipient:   req.Plan.RecipientAddress,
		RiskLevel:   req.RiskLevel,
		CreatedAt:   time.Now().Unix(),
	}
	if execErr != nil {
		record.State = string(executor.StateFailed)
		record.ChainError = execErr.Error()
		if xerrors.CodeOf(execErr) == xerrors.CodeExecutionStatusUnknown {
			record.State = "UNKNOWN"
		}
	} else {
		record.State = string(result.State)
		record.Digest = result.Digest
		record.ChainStatus = result.Status
		record.ChainError = result.Error
		record.GasUsed = result.GasUsed
	}
	a.saveRecord(ctx, record)

	if execErr != nil {
		return nil, execErr
	}
	return &ExecuteResponse{
		RequestID: requestID,
		State:     result.State,
		Digest:    result.Digest,
		Status:    result.Status,
		Error:     result.Error,
		GasUsed:   result.GasUsed,
	}, nil
}

// History 返回某个地址最近的执行记录。
func (a *Agent) History(ctx context.Context, userAddress string, limit int) ([]mysql.ExecutionRecord, error) {
	if a.records == nil {
		return nil, nil
	}
	return a.records.ListLatest(ctx, userAddress, limit)
}

func (a *Agent) saveRecord(ctx context.Context, record mysql.ExecutionRecord) {
	if a.records == nil {
		return
	}
	// 落库失败不影响执行结果, 只记日志。
	if err := a.records.Save(ctx, record); err != nil {
		logger.L().Warn("failed to persist execution record",
			"request_id", record.RequestID,
			"error", err.Error(),
		)
	}
}

func (a *Agent) withChainTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.chainTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.chainTimeout)
}

func chainQueryError(err error, message string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeUpstreamTimeout, err, message)
	}
	return xerrors.Wrap(xerrors.CodeChainFailure, err, message, xerrors.WithRetryable(true))
}
