// Package withdraw moves custodial balances back out to external wallets.
// The balance debit happens at request time in the same transaction that
// records the pending intent; a failed on-chain transaction is terminal and
// reconciled manually, never refunded automatically.
package withdraw

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/store"
)

// Submitter signs and broadcasts the outbound transaction. Implementations
// live outside this module; only the returned transaction hash matters here.
type Submitter interface {
	// SubmitGas sends native currency to the destination and returns the tx hash
	SubmitGas(ctx context.Context, chain domain.Chain, destination string, amount decimal.Decimal) (string, error)
	// SubmitAsset sends NFT editions to the destination and returns the tx hash
	SubmitAsset(ctx context.Context, chain domain.Chain, contractType domain.ContractType, key domain.AssetKey, destination string, amount int64) (string, error)
}

// GasRequest asks for native currency to be withdrawn
type GasRequest struct {
	Account     domain.AccountRef
	Chain       domain.Chain
	Amount      decimal.Decimal
	Destination string
}

// AssetRequest asks for NFT editions to be withdrawn
type AssetRequest struct {
	Account     domain.AccountRef
	Asset       domain.AssetKey
	Amount      int64
	Destination string
}

// Receipt identifies an accepted withdrawal
type Receipt struct {
	// ID is the withdrawal's UUID
	ID string
	// TxHash is the submitted transaction hash
	TxHash string
}

// Coordinator validates withdrawal requests, submits the transaction and
// records the debited pending intent.
type Coordinator struct {
	store     store.Store
	submitter Submitter
}

// NewCoordinator creates a withdrawal coordinator
func NewCoordinator(st store.Store, submitter Submitter) *Coordinator {
	return &Coordinator{store: st, submitter: submitter}
}

// RequestGas withdraws native currency. The gas balance is debited in the
// same transaction that inserts the pending intent.
func (c *Coordinator) RequestGas(ctx context.Context, req GasRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}
	if err := c.checkRequest(ctx, req.Account, req.Chain, req.Destination); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	txHash, err := c.submitter.SubmitGas(ctx, req.Chain, req.Destination, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to submit gas withdrawal: %w", err)
	}

	err = c.store.CreateGasWithdrawal(ctx, store.CreateWithdrawalInput{
		ID:          id,
		Chain:       req.Chain,
		Account:     req.Account,
		Amount:      req.Amount,
		Destination: req.Destination,
		TxHash:      txHash,
	})
	if err != nil {
		// The transaction is already on its way; this needs an operator
		logger.ErrorCtx(ctx, fmt.Errorf("submitted gas withdrawal could not be recorded: %w", err),
			zap.String("withdrawal_id", id),
			zap.String("tx_hash", txHash),
		)
		return nil, err
	}

	logger.InfoCtx(ctx, "Gas withdrawal submitted",
		zap.String("withdrawal_id", id),
		zap.String("chain", string(req.Chain)),
		zap.String("amount", req.Amount.String()),
	)
	return &Receipt{ID: id, TxHash: txHash}, nil
}

// RequestAsset withdraws NFT editions. The holding is debited in the same
// transaction that inserts the pending intent.
func (c *Coordinator) RequestAsset(ctx context.Context, req AssetRequest) (*Receipt, error) {
	if req.Amount < 1 {
		return nil, domain.ErrAmountNotPositive
	}
	if err := c.checkRequest(ctx, req.Account, req.Asset.Chain, req.Destination); err != nil {
		return nil, err
	}

	credit, err := c.store.GetAssetCredit(ctx, req.Asset, req.Account)
	if err != nil {
		return nil, err
	}
	if credit == nil || credit.Amount < req.Amount {
		return nil, domain.ErrAssetNotOwned
	}

	contract, err := c.store.GetTrackedContract(ctx, req.Asset.Chain, req.Asset.TokenAddress)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, domain.ErrContractNotTracked
	}

	id := uuid.NewString()
	txHash, err := c.submitter.SubmitAsset(ctx, req.Asset.Chain, contract.ContractType, req.Asset, req.Destination, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to submit asset withdrawal: %w", err)
	}

	tokenAddress := req.Asset.TokenAddress
	tokenIDHex := req.Asset.TokenIDHex
	contractType := contract.ContractType
	err = c.store.CreateAssetWithdrawal(ctx, store.CreateWithdrawalInput{
		ID:           id,
		Chain:        req.Asset.Chain,
		Account:      req.Account,
		TokenAddress: &tokenAddress,
		TokenIDHex:   &tokenIDHex,
		ContractType: &contractType,
		Amount:       decimal.NewFromInt(req.Amount),
		Destination:  req.Destination,
		TxHash:       txHash,
	})
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("submitted asset withdrawal could not be recorded: %w", err),
			zap.String("withdrawal_id", id),
			zap.String("tx_hash", txHash),
		)
		return nil, err
	}

	logger.InfoCtx(ctx, "Asset withdrawal submitted",
		zap.String("withdrawal_id", id),
		zap.String("chain", string(req.Asset.Chain)),
		zap.String("token_address", req.Asset.TokenAddress),
		zap.String("token_id", req.Asset.TokenIDHex),
		zap.Int64("amount", req.Amount),
	)
	return &Receipt{ID: id, TxHash: txHash}, nil
}

// checkRequest runs the validations shared by both withdrawal kinds
func (c *Coordinator) checkRequest(ctx context.Context, ref domain.AccountRef, chain domain.Chain, destination string) error {
	if !domain.IsValidChain(chain) {
		return fmt.Errorf("unsupported chain %q", chain)
	}
	if !common.IsHexAddress(destination) {
		return domain.ErrInvalidAddress
	}

	// Withdrawals never go out while the operator has the system paused
	paused, err := c.store.MaintenanceEnabled(ctx)
	if err != nil {
		return err
	}
	if paused {
		return domain.ErrMaintenance
	}

	account, err := c.store.GetAccount(ctx, ref)
	if err != nil {
		return err
	}
	if account == nil {
		return domain.ErrAccountNotFound
	}
	if account.Frozen {
		return domain.ErrAccountFrozen
	}

	// One withdrawal at a time per account, and one in flight per chain
	// overall since the custodial wallet submits with sequential nonces
	pending, err := c.store.HasPendingWithdrawal(ctx, ref, chain)
	if err != nil {
		return err
	}
	if pending {
		return domain.ErrWithdrawalInFlight
	}
	chainPending, err := c.store.HasPendingWithdrawalOnChain(ctx, chain)
	if err != nil {
		return err
	}
	if chainPending {
		return domain.ErrWithdrawalInFlight
	}

	reserve, err := c.withdrawReserve(ctx, chain)
	if err != nil {
		return err
	}
	if account.GasBalance(chain).LessThan(reserve) {
		return domain.ErrGasReserveTooLow
	}
	return nil
}

// withdrawReserve returns the minimum gas balance required to withdraw on
// the chain; zero when unconfigured.
func (c *Coordinator) withdrawReserve(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	value, err := c.store.GetSetting(ctx, store.SettingWithdrawReservePrefix+string(chain))
	if err != nil {
		return decimal.Zero, err
	}
	if value == "" {
		return decimal.Zero, nil
	}
	reserve, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed withdraw reserve setting for %s: %w", chain, err)
	}
	return reserve, nil
}
