// Package ledger implements balance queries and user-to-user transfers
// on top of the store's conditional-update primitives.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// gasScale is the number of decimal places kept on tip amounts. Deposits
// and fees carry the full 18 places; user-entered tips are truncated.
const gasScale = 4

// Service exposes ledger operations over a Store
type Service struct {
	store  store.Store
	maxTip decimal.Decimal
}

// NewService creates a ledger service. maxTip of zero disables the per-tip cap.
func NewService(s store.Store, maxTip decimal.Decimal) *Service {
	return &Service{store: s, maxTip: maxTip}
}

// Tip moves gas from one user to another on the given chain.
// The amount is truncated to 4 decimal places before any check.
func (s *Service) Tip(ctx context.Context, from, to domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	if !domain.IsValidChain(chain) {
		return fmt.Errorf("unsupported chain: %s", chain)
	}
	if from == to {
		return domain.ErrSelfTransfer
	}

	amount = amount.Truncate(gasScale)
	if !amount.IsPositive() {
		return domain.ErrAmountNotPositive
	}
	if s.maxTip.IsPositive() && amount.GreaterThan(s.maxTip) {
		return domain.ErrAmountTooLarge
	}

	sender, err := s.store.GetAccount(ctx, from)
	if err != nil {
		return err
	}
	if sender == nil {
		return domain.ErrAccountNotFound
	}
	if sender.Frozen {
		return domain.ErrAccountFrozen
	}

	// The conditional update inside TransferGas is the real guard; the
	// checks above only produce friendlier errors.
	return s.store.TransferGas(ctx, from, to, chain, amount)
}

// TipAsset moves editions of a held token from one user to another
func (s *Service) TipAsset(ctx context.Context, key domain.AssetKey, from, to domain.AccountRef, amount int64) error {
	if from == to {
		return domain.ErrSelfTransfer
	}
	if amount <= 0 {
		return domain.ErrAmountNotPositive
	}

	sender, err := s.store.GetAccount(ctx, from)
	if err != nil {
		return err
	}
	if sender == nil {
		return domain.ErrAccountNotFound
	}
	if sender.Frozen {
		return domain.ErrAccountFrozen
	}

	if err := s.store.TransferAsset(ctx, key, from, to, amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return domain.ErrAssetNotOwned
		}
		return err
	}
	return nil
}

// Balance returns the account row holding all gas balances and counters
func (s *Service) Balance(ctx context.Context, ref domain.AccountRef) (*schema.Account, error) {
	account, err := s.store.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// AssetsOf returns all non-empty holdings of an account
func (s *Service) AssetsOf(ctx context.Context, ref domain.AccountRef) ([]schema.AssetCredit, error) {
	return s.store.ListAssetCredits(ctx, ref)
}

// SetFrozen toggles the frozen flag, blocking debits while leaving credits open
func (s *Service) SetFrozen(ctx context.Context, ref domain.AccountRef, frozen bool) error {
	return s.store.SetAccountFrozen(ctx, ref, frozen)
}
