package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

// HasPendingWithdrawal reports whether the account has an in-flight withdrawal on the chain
func (s *pgStore) HasPendingWithdrawal(ctx context.Context, ref domain.AccountRef, chain domain.Chain) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Withdrawal{}).
		Where("user_id = ? AND platform_id = ? AND chain = ? AND status = ?",
			ref.UserID, ref.PlatformID, chain, schema.WithdrawalStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending withdrawal: %w", err)
	}
	return count > 0, nil
}

// HasPendingWithdrawalOnChain reports whether any withdrawal is in flight on the
// chain. The custodial wallet serializes nonces, so at most one withdrawal per
// chain may be pending.
func (s *pgStore) HasPendingWithdrawalOnChain(ctx context.Context, chain domain.Chain) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Withdrawal{}).
		Where("chain = ? AND status = ?", chain, schema.WithdrawalStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending withdrawals on chain: %w", err)
	}
	return count > 0, nil
}

// CreateAssetWithdrawal debits the holding and inserts the pending intent
// atomically. A failed debit rolls back the insert, so no intent row ever
// exists without its matching debit.
func (s *pgStore) CreateAssetWithdrawal(ctx context.Context, input CreateWithdrawalInput) error {
	if input.TokenAddress == nil || input.TokenIDHex == nil {
		return errors.New("asset withdrawal requires token address and token id")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := domain.AssetKey{
			Chain:        input.Chain,
			TokenAddress: *input.TokenAddress,
			TokenIDHex:   *input.TokenIDHex,
		}
		if err := debitAsset(tx, key, input.Account, input.Amount.IntPart()); err != nil {
			return err
		}

		return tx.Create(newWithdrawalRow(input)).Error
	})
}

// CreateGasWithdrawal debits the gas balance and inserts the pending intent atomically
func (s *pgStore) CreateGasWithdrawal(ctx context.Context, input CreateWithdrawalInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitGas(tx, input.Account, input.Chain, input.Amount); err != nil {
			return err
		}

		return tx.Create(newWithdrawalRow(input)).Error
	})
}

func newWithdrawalRow(input CreateWithdrawalInput) *schema.Withdrawal {
	return &schema.Withdrawal{
		ID:           input.ID,
		Chain:        input.Chain,
		Status:       schema.WithdrawalStatusPending,
		TokenAddress: input.TokenAddress,
		TokenIDHex:   input.TokenIDHex,
		ContractType: input.ContractType,
		Amount:       input.Amount,
		UserID:       input.Account.UserID,
		PlatformID:   input.Account.PlatformID,
		Destination:  input.Destination,
		TxHash:       input.TxHash,
	}
}

// ListPendingWithdrawals returns withdrawals awaiting a receipt
func (s *pgStore) ListPendingWithdrawals(ctx context.Context, chain domain.Chain) ([]schema.Withdrawal, error) {
	var withdrawals []schema.Withdrawal
	err := s.db.WithContext(ctx).
		Where("chain = ? AND status = ?", chain, schema.WithdrawalStatusPending).
		Order("created_at ASC").
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return withdrawals, nil
}

// ConfirmWithdrawal settles a pending withdrawal. The status guard makes the
// settlement idempotent; the realized fee is clamped at zero so the gas
// balance never goes negative even when the fee exceeds what is left.
func (s *pgStore) ConfirmWithdrawal(ctx context.Context, id string, effectiveGasPrice string, gasUsed uint64, fee decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w schema.Withdrawal
		err := tx.Where("id = ?", id).First(&w).Error
		if err != nil {
			return fmt.Errorf("failed to get withdrawal: %w", err)
		}

		result := tx.Model(&schema.Withdrawal{}).
			Where("id = ? AND status = ?", id, schema.WithdrawalStatusPending).
			Updates(map[string]interface{}{
				"status":              schema.WithdrawalStatusConfirmed,
				"effective_gas_price": effectiveGasPrice,
				"gas_used":            gasUsed,
				"fee":                 fee,
				"updated_at":          gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to confirm withdrawal: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Already settled
			return nil
		}

		col, ok := schema.GasColumn(w.Chain)
		if !ok {
			return fmt.Errorf("unsupported chain: %s", w.Chain)
		}

		err = tx.Model(&schema.Account{}).
			Where("user_id = ? AND platform_id = ?", w.UserID, w.PlatformID).
			Updates(map[string]interface{}{
				col:          gorm.Expr("GREATEST("+col+" - ?, 0)", fee),
				"updated_at": gorm.Expr("now()"),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to debit withdrawal fee: %w", err)
		}

		if !w.IsGas() {
			counter := "eth_nft_withdrawn"
			if w.Chain == domain.ChainPolygon {
				counter = "matic_nft_withdrawn"
			}
			err = tx.Model(&schema.Account{}).
				Where("user_id = ? AND platform_id = ?", w.UserID, w.PlatformID).
				Update(counter, gorm.Expr(counter+" + 1")).Error
			if err != nil {
				return fmt.Errorf("failed to bump withdrawn counter: %w", err)
			}
		}

		return nil
	})
}

// FailWithdrawal terminally marks a withdrawal whose receipt reported failure.
// The debited balance is deliberately not refunded; failed rows are
// reconciled by an operator.
func (s *pgStore) FailWithdrawal(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&schema.Withdrawal{}).
		Where("id = ? AND status = ?", id, schema.WithdrawalStatusPending).
		Updates(map[string]interface{}{
			"status":     schema.WithdrawalStatusFailed,
			"updated_at": gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to fail withdrawal: %w", err)
	}
	return nil
}

// ListUnnotifiedWithdrawals returns settled withdrawals without a published confirmation
func (s *pgStore) ListUnnotifiedWithdrawals(ctx context.Context, limit int) ([]schema.Withdrawal, error) {
	var withdrawals []schema.Withdrawal
	err := s.db.WithContext(ctx).
		Where("status IN ? AND notified_at IS NULL",
			[]schema.WithdrawalStatus{schema.WithdrawalStatusConfirmed, schema.WithdrawalStatusFailed}).
		Order("created_at ASC").
		Limit(limit).
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unnotified withdrawals: %w", err)
	}
	return withdrawals, nil
}

// MarkWithdrawalNotified records that a confirmation was published for a withdrawal
func (s *pgStore) MarkWithdrawalNotified(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&schema.Withdrawal{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal notified: %w", err)
	}
	return nil
}
