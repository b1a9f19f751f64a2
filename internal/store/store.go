package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

// UncreditedDeposit is a confirmed-pending gas deposit joined to the
// verified sender's account
type UncreditedDeposit struct {
	Tx    schema.WalletTx
	Owner domain.AccountRef
}

// UncreditedNftDeposit is a confirmed-pending NFT deposit joined to the
// verified sender's account and the tracked contract it matched
type UncreditedNftDeposit struct {
	Tx       schema.WalletNftTx
	Owner    domain.AccountRef
	Contract schema.TrackedContract
}

// CreateWithdrawalInput carries the fields of a new withdrawal intent.
// TokenAddress, TokenIDHex and ContractType are nil for gas withdrawals.
type CreateWithdrawalInput struct {
	ID           string
	Chain        domain.Chain
	Account      domain.AccountRef
	TokenAddress *string
	TokenIDHex   *string
	ContractType *domain.ContractType
	Amount       decimal.Decimal
	Destination  string
	TxHash       string
}

// Store defines the interface for database operations
type Store interface {
	// GetAccount retrieves an account, returning nil when it does not exist
	GetAccount(ctx context.Context, ref domain.AccountRef) (*schema.Account, error)
	// GetOrCreateAccount retrieves an account, creating it lazily on first use
	GetOrCreateAccount(ctx context.Context, ref domain.AccountRef) (*schema.Account, error)
	// SetAccountFrozen toggles the frozen flag on an account
	SetAccountFrozen(ctx context.Context, ref domain.AccountRef, frozen bool) error
	// CreditGas adds gas to an account, creating the account if needed
	CreditGas(ctx context.Context, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error
	// DebitGas conditionally subtracts gas; returns domain.ErrInsufficientBalance
	// when the balance would go negative
	DebitGas(ctx context.Context, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error
	// TransferGas atomically moves gas between accounts and appends an audit row
	TransferGas(ctx context.Context, from, to domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error

	// GetAssetCredit retrieves a single holding, nil when absent
	GetAssetCredit(ctx context.Context, key domain.AssetKey, ref domain.AccountRef) (*schema.AssetCredit, error)
	// ListAssetCredits retrieves all non-empty holdings of an account
	ListAssetCredits(ctx context.Context, ref domain.AccountRef) ([]schema.AssetCredit, error)
	// CreditAsset additively upserts a holding
	CreditAsset(ctx context.Context, key domain.AssetKey, ref domain.AccountRef, amount int64) error
	// TransferAsset atomically moves editions between accounts and appends an audit row
	TransferAsset(ctx context.Context, key domain.AssetKey, from, to domain.AccountRef, amount int64) error

	// RecentWalletTxHashes returns the hashes of the most recently stored deposits.
	// The window is a cheap pre-filter; the unique index is the real guard.
	RecentWalletTxHashes(ctx context.Context, chain domain.Chain, limit int) (map[string]struct{}, error)
	// InsertWalletTxs stores new deposit rows, silently skipping known hashes
	InsertWalletTxs(ctx context.Context, txs []schema.WalletTx) (int64, error)
	// ListUncreditedWalletTxs returns deposits from verified senders awaiting a receipt check
	ListUncreditedWalletTxs(ctx context.Context, chain domain.Chain, limit int) ([]UncreditedDeposit, error)
	// MarkWalletTxFailed terminally marks a deposit whose receipt reported failure
	MarkWalletTxFailed(ctx context.Context, id int64) error
	// CreditWalletDeposit credits a confirmed deposit exactly once: the credited
	// flag flip and the balance mutation share one transaction
	CreditWalletDeposit(ctx context.Context, id int64, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error

	// RecentWalletNftTxKeys returns dedup keys of the most recently stored NFT deposits
	RecentWalletNftTxKeys(ctx context.Context, chain domain.Chain, limit int) (map[string]struct{}, error)
	// InsertWalletNftTxs stores new NFT deposit rows, silently skipping known events
	InsertWalletNftTxs(ctx context.Context, txs []schema.WalletNftTx) (int64, error)
	// ListUncreditedWalletNftTxs returns NFT deposits from verified senders that
	// matched an enabled tracked contract
	ListUncreditedWalletNftTxs(ctx context.Context, chain domain.Chain, limit int) ([]UncreditedNftDeposit, error)
	// SkipWalletNftTx excludes a transfer from crediting with a reason
	SkipWalletNftTx(ctx context.Context, id int64, reason string) error
	// CreditNftDeposit credits a confirmed NFT deposit exactly once
	CreditNftDeposit(ctx context.Context, id int64, ref domain.AccountRef, key domain.AssetKey, amount int64) error

	// ListUnnotifiedDeposits returns credited gas deposits without a published confirmation
	ListUnnotifiedDeposits(ctx context.Context, limit int) ([]schema.WalletTx, error)
	// MarkWalletTxNotified records that a confirmation was published for a gas deposit
	MarkWalletTxNotified(ctx context.Context, id int64, at time.Time) error
	// ListUnnotifiedNftDeposits returns credited NFT deposits without a published confirmation
	ListUnnotifiedNftDeposits(ctx context.Context, limit int) ([]schema.WalletNftTx, error)
	// MarkWalletNftTxNotified records that a confirmation was published for an NFT deposit
	MarkWalletNftTxNotified(ctx context.Context, id int64, at time.Time) error
	// ListUnnotifiedWithdrawals returns settled withdrawals without a published confirmation
	ListUnnotifiedWithdrawals(ctx context.Context, limit int) ([]schema.Withdrawal, error)
	// MarkWithdrawalNotified records that a confirmation was published for a withdrawal
	MarkWithdrawalNotified(ctx context.Context, id string, at time.Time) error

	// RegisterContract stores a new tracked contract; domain.ErrContractExists on duplicate
	RegisterContract(ctx context.Context, contract *schema.TrackedContract) error
	// GetTrackedContract retrieves a contract by chain and address, nil when absent
	GetTrackedContract(ctx context.Context, chain domain.Chain, address string) (*schema.TrackedContract, error)
	// ListContractsDueForFetch returns fetch-enabled contracts, least recently fetched first
	ListContractsDueForFetch(ctx context.Context, limit int) ([]schema.TrackedContract, error)
	// UpsertTokens inserts discovered tokens, skipping known token IDs; returns inserted count
	UpsertTokens(ctx context.Context, tokens []schema.Token) (int64, error)
	// ExistingTokenIDHexes reports which of the given token IDs are already stored
	ExistingTokenIDHexes(ctx context.Context, contractID int64, hexes []string) (map[string]struct{}, error)
	// CountTokens returns the number of stored tokens for a contract
	CountTokens(ctx context.Context, contractID int64) (int64, error)
	// UpdateContractFetchState advances the discovery high-water mark and fetch time
	UpdateContractFetchState(ctx context.Context, contractID int64, lastTokenIDHex *string, fetchedAt time.Time) error
	// ListTokensNeedingMedia returns tokens with a media reference but no cached file
	ListTokensNeedingMedia(ctx context.Context, limit int) ([]schema.Token, error)
	// SetTokenMedia records the cached media filename and detected type
	SetTokenMedia(ctx context.Context, tokenID int64, storedAs, mimeType string) error

	// HasPendingWithdrawal reports whether the account has an in-flight withdrawal on the chain
	HasPendingWithdrawal(ctx context.Context, ref domain.AccountRef, chain domain.Chain) (bool, error)
	// HasPendingWithdrawalOnChain reports whether any withdrawal is in flight on the chain
	HasPendingWithdrawalOnChain(ctx context.Context, chain domain.Chain) (bool, error)
	// CreateAssetWithdrawal debits the holding and inserts the pending intent atomically
	CreateAssetWithdrawal(ctx context.Context, input CreateWithdrawalInput) error
	// CreateGasWithdrawal debits the gas balance and inserts the pending intent atomically
	CreateGasWithdrawal(ctx context.Context, input CreateWithdrawalInput) error
	// ListPendingWithdrawals returns withdrawals awaiting a receipt
	ListPendingWithdrawals(ctx context.Context, chain domain.Chain) ([]schema.Withdrawal, error)
	// ConfirmWithdrawal settles a pending withdrawal: records receipt data, debits
	// the realized fee and bumps the withdrawn counter in one transaction
	ConfirmWithdrawal(ctx context.Context, id string, effectiveGasPrice string, gasUsed uint64, fee decimal.Decimal) error
	// FailWithdrawal terminally marks a withdrawal whose receipt reported failure
	FailWithdrawal(ctx context.Context, id string) error

	// UpsertVerifiedAddress links an external wallet address to a platform user
	UpsertVerifiedAddress(ctx context.Context, address schema.VerifiedAddress) error
	// GetVerifiedAddress retrieves an address link, nil when absent
	GetVerifiedAddress(ctx context.Context, address string) (*schema.VerifiedAddress, error)

	// GetSetting retrieves a settings value, empty string when absent
	GetSetting(ctx context.Context, key string) (string, error)
	// SetSetting stores a settings value
	SetSetting(ctx context.Context, key, value string) error
	// MaintenanceEnabled reports whether background processing is paused
	MaintenanceEnabled(ctx context.Context) (bool, error)
}
