package sui

import "context"

// Coin type tags understood across the pipeline. USDC's full type tag
// differs per network and lives in the network catalogue.
const (
	CoinTypeSUI = "0x2::sui::SUI"

	// DecimalsSUI and DecimalsUSDC are the on-chain coin precisions.
	DecimalsSUI  = 9
	DecimalsUSDC = 6
)

// TransferParams describes a coin transfer to be assembled by the fullnode.
type TransferParams struct {
	Sender    string
	Recipient string
	CoinType  string
	Amount    uint64
	GasBudget uint64
}

// StakeParams describes a delegated staking request.
type StakeParams struct {
	Sender    string
	Validator string
	Amount    uint64
	GasBudget uint64
}

// UnstakeParams describes a withdrawal of a staked position.
type UnstakeParams struct {
	Sender      string
	StakedSuiID string
	GasBudget   uint64
}

// Stake is a single staked position held by an address.
type Stake struct {
	ValidatorAddress string
	StakedSuiID      string
	Principal        uint64
	Status           string
	EstimatedReward  uint64
}

// StakeSummary aggregates all staked positions of an address.
type StakeSummary struct {
	TotalPrincipal uint64
	Stakes         []Stake
}

// TransactionResult reports the outcome of an executed transaction block.
type TransactionResult struct {
	Digest     string
	Status     string
	Error      string
	GasUsed    uint64
	Checkpoint string
}

// Succeeded reports whether the effects carry a success status.
func (r *TransactionResult) Succeeded() bool {
	return r != nil && r.Status == "success"
}

// Client is the fullnode gateway used by the planner and the executor.
// Build* methods return BCS transaction bytes (base64) assembled by the
// node; Execute submits user-signed bytes and waits for effects.
type Client interface {
	GetBalance(ctx context.Context, owner, coinType string) (uint64, error)
	GetStakes(ctx context.Context, owner string) (*StakeSummary, error)

	BuildTransfer(ctx context.Context, params TransferParams) (string, error)
	BuildStake(ctx context.Context, params StakeParams) (string, error)
	BuildUnstake(ctx context.Context, params UnstakeParams) (string, error)

	Execute(ctx context.Context, txBytes, signature string) (*TransactionResult, error)

	Close()
}
