package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

// RecentWalletTxHashes returns the hashes of the most recently stored deposits
func (s *pgStore) RecentWalletTxHashes(ctx context.Context, chain domain.Chain, limit int) (map[string]struct{}, error) {
	var hashes []string
	err := s.db.WithContext(ctx).Model(&schema.WalletTx{}).
		Where("chain = ?", chain).
		Order("id DESC").
		Limit(limit).
		Pluck("tx_hash", &hashes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent wallet tx hashes: %w", err)
	}

	result := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		result[h] = struct{}{}
	}
	return result, nil
}

// InsertWalletTxs stores new deposit rows, silently skipping known hashes
func (s *pgStore) InsertWalletTxs(ctx context.Context, txs []schema.WalletTx) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).CreateInBatches(txs, calculateSafeBatchSize(len(txs), 12))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert wallet txs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ListUncreditedWalletTxs returns deposits from verified senders awaiting a receipt check
func (s *pgStore) ListUncreditedWalletTxs(ctx context.Context, chain domain.Chain, limit int) ([]UncreditedDeposit, error) {
	var rows []struct {
		schema.WalletTx
		OwnerUserID     string `gorm:"column:owner_user_id"`
		OwnerPlatformID string `gorm:"column:owner_platform_id"`
	}

	err := s.db.WithContext(ctx).
		Table("wallet_txs").
		Select("wallet_txs.*, verified_addresses.user_id AS owner_user_id, verified_addresses.platform_id AS owner_platform_id").
		Joins("JOIN verified_addresses ON verified_addresses.address = wallet_txs.from_address AND verified_addresses.verified = true").
		Where("wallet_txs.chain = ? AND wallet_txs.credited = false AND wallet_txs.failed = false", chain).
		Order("wallet_txs.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list uncredited wallet txs: %w", err)
	}

	deposits := make([]UncreditedDeposit, len(rows))
	for i, row := range rows {
		deposits[i] = UncreditedDeposit{
			Tx:    row.WalletTx,
			Owner: domain.AccountRef{UserID: row.OwnerUserID, PlatformID: row.OwnerPlatformID},
		}
	}
	return deposits, nil
}

// MarkWalletTxFailed terminally marks a deposit whose receipt reported failure
func (s *pgStore) MarkWalletTxFailed(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&schema.WalletTx{}).
		Where("id = ? AND credited = false", id).
		Update("failed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark wallet tx failed: %w", err)
	}
	return nil
}

// CreditWalletDeposit credits a confirmed deposit exactly once. The credited
// flag flip carries the guard: when another worker already flipped it, zero
// rows are affected and the balance mutation is skipped.
func (s *pgStore) CreditWalletDeposit(ctx context.Context, id int64, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.WalletTx{}).
			Where("id = ? AND credited = false AND failed = false", id).
			Updates(map[string]interface{}{
				"credited":             true,
				"credited_user_id":     ref.UserID,
				"credited_platform_id": ref.PlatformID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark wallet tx credited: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Already credited or failed; nothing to do
			return nil
		}

		return creditGas(tx, ref, chain, amount)
	})
}

// RecentWalletNftTxKeys returns dedup keys of the most recently stored NFT deposits
func (s *pgStore) RecentWalletNftTxKeys(ctx context.Context, chain domain.Chain, limit int) (map[string]struct{}, error) {
	var txs []schema.WalletNftTx
	err := s.db.WithContext(ctx).
		Select("tx_hash", "token_address", "token_id_hex", "log_index").
		Where("chain = ?", chain).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent wallet nft tx keys: %w", err)
	}

	result := make(map[string]struct{}, len(txs))
	for i := range txs {
		result[txs[i].EventKey()] = struct{}{}
	}
	return result, nil
}

// InsertWalletNftTxs stores new NFT deposit rows, silently skipping known events
func (s *pgStore) InsertWalletNftTxs(ctx context.Context, txs []schema.WalletNftTx) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tx_hash"}, {Name: "token_address"}, {Name: "token_id_hex"}, {Name: "log_index"},
		},
		DoNothing: true,
	}).CreateInBatches(txs, calculateSafeBatchSize(len(txs), 15))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert wallet nft txs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ListUncreditedWalletNftTxs returns NFT deposits from verified senders that
// matched an enabled tracked contract. Transfers of untracked contracts stay
// in the table uncredited.
func (s *pgStore) ListUncreditedWalletNftTxs(ctx context.Context, chain domain.Chain, limit int) ([]UncreditedNftDeposit, error) {
	var rows []struct {
		schema.WalletNftTx
		OwnerUserID     string `gorm:"column:owner_user_id"`
		OwnerPlatformID string `gorm:"column:owner_platform_id"`
		ContractID      int64  `gorm:"column:contract_id"`
	}

	err := s.db.WithContext(ctx).
		Table("wallet_nft_txs").
		Select("wallet_nft_txs.*, verified_addresses.user_id AS owner_user_id, verified_addresses.platform_id AS owner_platform_id, tracked_contracts.id AS contract_id").
		Joins("JOIN verified_addresses ON verified_addresses.address = wallet_nft_txs.from_address AND verified_addresses.verified = true").
		Joins("JOIN tracked_contracts ON tracked_contracts.address = wallet_nft_txs.token_address AND tracked_contracts.chain = wallet_nft_txs.chain AND tracked_contracts.enabled = true").
		Where("wallet_nft_txs.chain = ? AND wallet_nft_txs.credited = false AND wallet_nft_txs.skipped = false", chain).
		Order("wallet_nft_txs.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list uncredited wallet nft txs: %w", err)
	}

	deposits := make([]UncreditedNftDeposit, 0, len(rows))
	for _, row := range rows {
		contract, err := s.getTrackedContractByID(ctx, row.ContractID)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, UncreditedNftDeposit{
			Tx:       row.WalletNftTx,
			Owner:    domain.AccountRef{UserID: row.OwnerUserID, PlatformID: row.OwnerPlatformID},
			Contract: *contract,
		})
	}
	return deposits, nil
}

// SkipWalletNftTx excludes a transfer from crediting with a reason
func (s *pgStore) SkipWalletNftTx(ctx context.Context, id int64, reason string) error {
	err := s.db.WithContext(ctx).Model(&schema.WalletNftTx{}).
		Where("id = ? AND credited = false", id).
		Updates(map[string]interface{}{
			"skipped":     true,
			"skip_reason": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to skip wallet nft tx: %w", err)
	}
	return nil
}

// CreditNftDeposit credits a confirmed NFT deposit exactly once
func (s *pgStore) CreditNftDeposit(ctx context.Context, id int64, ref domain.AccountRef, key domain.AssetKey, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.WalletNftTx{}).
			Where("id = ? AND credited = false AND skipped = false", id).
			Updates(map[string]interface{}{
				"credited":             true,
				"credited_user_id":     ref.UserID,
				"credited_platform_id": ref.PlatformID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark wallet nft tx credited: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Already credited or skipped; nothing to do
			return nil
		}

		if err := ensureAccount(tx, ref); err != nil {
			return err
		}

		if err := creditAsset(tx, key, ref, amount); err != nil {
			return err
		}

		counter := "eth_nft_deposited"
		if key.Chain == domain.ChainPolygon {
			counter = "matic_nft_deposited"
		}
		err := tx.Model(&schema.Account{}).
			Where("user_id = ? AND platform_id = ?", ref.UserID, ref.PlatformID).
			Update(counter, gorm.Expr(counter+" + 1")).Error
		if err != nil {
			return fmt.Errorf("failed to bump deposit counter: %w", err)
		}

		return nil
	})
}

// ListUnnotifiedDeposits returns credited gas deposits without a published confirmation
func (s *pgStore) ListUnnotifiedDeposits(ctx context.Context, limit int) ([]schema.WalletTx, error) {
	var txs []schema.WalletTx
	err := s.db.WithContext(ctx).
		Where("credited = true AND notified_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unnotified deposits: %w", err)
	}
	return txs, nil
}

// MarkWalletTxNotified records that a confirmation was published for a gas deposit
func (s *pgStore) MarkWalletTxNotified(ctx context.Context, id int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&schema.WalletTx{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark wallet tx notified: %w", err)
	}
	return nil
}

// ListUnnotifiedNftDeposits returns credited NFT deposits without a published confirmation
func (s *pgStore) ListUnnotifiedNftDeposits(ctx context.Context, limit int) ([]schema.WalletNftTx, error) {
	var txs []schema.WalletNftTx
	err := s.db.WithContext(ctx).
		Where("credited = true AND notified_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unnotified nft deposits: %w", err)
	}
	return txs, nil
}

// MarkWalletNftTxNotified records that a confirmation was published for an NFT deposit
func (s *pgStore) MarkWalletNftTxNotified(ctx context.Context, id int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&schema.WalletNftTx{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark wallet nft tx notified: %w", err)
	}
	return nil
}
