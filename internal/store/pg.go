package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk inserts that stays
// under PostgreSQL's 65535-parameter limit on the extended protocol. Each
// record consumes one parameter per field, and ON CONFLICT clauses plus GORM
// bookkeeping add batch-level overhead, covered by a fixed headroom.
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// GetAccount retrieves an account, returning nil when it does not exist
func (s *pgStore) GetAccount(ctx context.Context, ref domain.AccountRef) (*schema.Account, error) {
	var account schema.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform_id = ?", ref.UserID, ref.PlatformID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetOrCreateAccount retrieves an account, creating it lazily on first use
func (s *pgStore) GetOrCreateAccount(ctx context.Context, ref domain.AccountRef) (*schema.Account, error) {
	if err := ensureAccount(s.db.WithContext(ctx), ref); err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, ref)
}

// SetAccountFrozen toggles the frozen flag on an account
func (s *pgStore) SetAccountFrozen(ctx context.Context, ref domain.AccountRef, frozen bool) error {
	result := s.db.WithContext(ctx).Model(&schema.Account{}).
		Where("user_id = ? AND platform_id = ?", ref.UserID, ref.PlatformID).
		Update("frozen", frozen)
	if result.Error != nil {
		return fmt.Errorf("failed to update frozen flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ensureAccount creates the account row if it does not exist yet
func ensureAccount(tx *gorm.DB, ref domain.AccountRef) error {
	account := schema.Account{UserID: ref.UserID, PlatformID: ref.PlatformID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform_id"}},
		DoNothing: true,
	}).Create(&account).Error
	if err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

// creditGas adds gas to an account inside the given transaction.
// The target column comes from the fixed chain map, never from input.
func creditGas(tx *gorm.DB, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	col, ok := schema.GasColumn(chain)
	if !ok {
		return fmt.Errorf("unsupported chain: %s", chain)
	}

	if err := ensureAccount(tx, ref); err != nil {
		return err
	}

	err := tx.Model(&schema.Account{}).
		Where("user_id = ? AND platform_id = ?", ref.UserID, ref.PlatformID).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col+" + ?", amount),
			"updated_at": gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to credit gas: %w", err)
	}
	return nil
}

// debitGas conditionally subtracts gas inside the given transaction.
// The WHERE clause carries the non-negative invariant; zero rows affected
// means the balance was insufficient (or the account is frozen or missing).
func debitGas(tx *gorm.DB, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	col, ok := schema.GasColumn(chain)
	if !ok {
		return fmt.Errorf("unsupported chain: %s", chain)
	}

	result := tx.Model(&schema.Account{}).
		Where("user_id = ? AND platform_id = ? AND frozen = false AND "+col+" >= ?",
			ref.UserID, ref.PlatformID, amount).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col+" - ?", amount),
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit gas: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// CreditGas adds gas to an account, creating the account if needed
func (s *pgStore) CreditGas(ctx context.Context, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return creditGas(tx, ref, chain, amount)
	})
}

// DebitGas conditionally subtracts gas from an account
func (s *pgStore) DebitGas(ctx context.Context, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	return debitGas(s.db.WithContext(ctx), ref, chain, amount)
}

// TransferGas atomically moves gas between accounts and appends an audit row.
// The debit, the credit, the tip counters and the log entry either all commit
// or none do.
func (s *pgStore) TransferGas(ctx context.Context, from, to domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitGas(tx, from, chain, amount); err != nil {
			return err
		}

		if err := tx.Model(&schema.Account{}).
			Where("user_id = ? AND platform_id = ?", from.UserID, from.PlatformID).
			Update("total_tipped", gorm.Expr("total_tipped + ?", amount)).Error; err != nil {
			return fmt.Errorf("failed to bump total_tipped: %w", err)
		}

		if err := creditGas(tx, to, chain, amount); err != nil {
			return err
		}

		if err := tx.Model(&schema.Account{}).
			Where("user_id = ? AND platform_id = ?", to.UserID, to.PlatformID).
			Update("total_received", gorm.Expr("total_received + ?", amount)).Error; err != nil {
			return fmt.Errorf("failed to bump total_received: %w", err)
		}

		log := schema.TransferLog{
			Kind:           schema.TransferKindGas,
			Chain:          chain,
			FromUserID:     from.UserID,
			FromPlatformID: from.PlatformID,
			ToUserID:       to.UserID,
			ToPlatformID:   to.PlatformID,
			Amount:         amount,
		}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("failed to create transfer log: %w", err)
		}

		return nil
	})
}

// GetAssetCredit retrieves a single holding, nil when absent
func (s *pgStore) GetAssetCredit(ctx context.Context, key domain.AssetKey, ref domain.AccountRef) (*schema.AssetCredit, error) {
	var credit schema.AssetCredit
	err := s.db.WithContext(ctx).
		Where("chain = ? AND token_address = ? AND token_id_hex = ? AND user_id = ? AND platform_id = ?",
			key.Chain, key.TokenAddress, key.TokenIDHex, ref.UserID, ref.PlatformID).
		First(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset credit: %w", err)
	}
	return &credit, nil
}

// ListAssetCredits retrieves all non-empty holdings of an account
func (s *pgStore) ListAssetCredits(ctx context.Context, ref domain.AccountRef) ([]schema.AssetCredit, error) {
	var credits []schema.AssetCredit
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform_id = ? AND amount > 0", ref.UserID, ref.PlatformID).
		Order("chain ASC, token_address ASC, token_id_hex ASC").
		Find(&credits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list asset credits: %w", err)
	}
	return credits, nil
}

// creditAsset additively upserts a holding inside the given transaction
func creditAsset(tx *gorm.DB, key domain.AssetKey, ref domain.AccountRef, amount int64) error {
	credit := schema.AssetCredit{
		Chain:        key.Chain,
		TokenAddress: key.TokenAddress,
		TokenIDHex:   key.TokenIDHex,
		UserID:       ref.UserID,
		PlatformID:   ref.PlatformID,
		Amount:       amount,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "chain"}, {Name: "token_address"}, {Name: "token_id_hex"},
			{Name: "user_id"}, {Name: "platform_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("asset_credits.amount + excluded.amount"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(&credit).Error
	if err != nil {
		return fmt.Errorf("failed to credit asset: %w", err)
	}
	return nil
}

// debitAsset conditionally subtracts editions inside the given transaction
func debitAsset(tx *gorm.DB, key domain.AssetKey, ref domain.AccountRef, amount int64) error {
	result := tx.Model(&schema.AssetCredit{}).
		Where("chain = ? AND token_address = ? AND token_id_hex = ? AND user_id = ? AND platform_id = ? AND amount >= ?",
			key.Chain, key.TokenAddress, key.TokenIDHex, ref.UserID, ref.PlatformID, amount).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit asset: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// CreditAsset additively upserts a holding
func (s *pgStore) CreditAsset(ctx context.Context, key domain.AssetKey, ref domain.AccountRef, amount int64) error {
	return creditAsset(s.db.WithContext(ctx), key, ref, amount)
}

// TransferAsset atomically moves editions between accounts and appends an audit row
func (s *pgStore) TransferAsset(ctx context.Context, key domain.AssetKey, from, to domain.AccountRef, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitAsset(tx, key, from, amount); err != nil {
			return err
		}

		if err := ensureAccount(tx, to); err != nil {
			return err
		}

		if err := creditAsset(tx, key, to, amount); err != nil {
			return err
		}

		log := schema.TransferLog{
			Kind:           schema.TransferKindAsset,
			Chain:          key.Chain,
			TokenAddress:   &key.TokenAddress,
			TokenIDHex:     &key.TokenIDHex,
			FromUserID:     from.UserID,
			FromPlatformID: from.PlatformID,
			ToUserID:       to.UserID,
			ToPlatformID:   to.PlatformID,
			Amount:         decimal.NewFromInt(amount),
		}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("failed to create transfer log: %w", err)
		}

		return nil
	})
}
