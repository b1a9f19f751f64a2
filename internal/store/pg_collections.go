package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

// RegisterContract stores a new tracked contract
func (s *pgStore) RegisterContract(ctx context.Context, contract *schema.TrackedContract) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "address"}},
		DoNothing: true,
	}).Create(contract).Error
	if err != nil {
		return fmt.Errorf("failed to register contract: %w", err)
	}

	// ID stays zero when the row already existed
	if contract.ID == 0 {
		return domain.ErrContractExists
	}
	return nil
}

// GetTrackedContract retrieves a contract by chain and address, nil when absent
func (s *pgStore) GetTrackedContract(ctx context.Context, chain domain.Chain, address string) (*schema.TrackedContract, error) {
	var contract schema.TrackedContract
	err := s.db.WithContext(ctx).
		Where("chain = ? AND address = ?", chain, address).
		First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tracked contract: %w", err)
	}
	return &contract, nil
}

// getTrackedContractByID retrieves a contract by primary key
func (s *pgStore) getTrackedContractByID(ctx context.Context, id int64) (*schema.TrackedContract, error) {
	var contract schema.TrackedContract
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&contract).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked contract by id: %w", err)
	}
	return &contract, nil
}

// ListContractsDueForFetch returns fetch-enabled contracts, least recently fetched first
func (s *pgStore) ListContractsDueForFetch(ctx context.Context, limit int) ([]schema.TrackedContract, error) {
	var contracts []schema.TrackedContract
	err := s.db.WithContext(ctx).
		Where("fetch_enabled = true").
		Order("last_fetched_at ASC NULLS FIRST").
		Limit(limit).
		Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts due for fetch: %w", err)
	}
	return contracts, nil
}

// UpsertTokens inserts discovered tokens, skipping token IDs that already
// exist for the contract; returns the number actually inserted
func (s *pgStore) UpsertTokens(ctx context.Context, tokens []schema.Token) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tracked_contract_id"}, {Name: "token_id_hex"}},
		DoNothing: true,
	}).CreateInBatches(tokens, calculateSafeBatchSize(len(tokens), 10))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to upsert tokens: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ExistingTokenIDHexes reports which of the given token IDs are already stored
func (s *pgStore) ExistingTokenIDHexes(ctx context.Context, contractID int64, hexes []string) (map[string]struct{}, error) {
	result := make(map[string]struct{}, len(hexes))
	if len(hexes) == 0 {
		return result, nil
	}

	var existing []string
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Where("tracked_contract_id = ? AND token_id_hex IN ?", contractID, hexes).
		Pluck("token_id_hex", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check existing token ids: %w", err)
	}

	for _, h := range existing {
		result[h] = struct{}{}
	}
	return result, nil
}

// CountTokens returns the number of stored tokens for a contract
func (s *pgStore) CountTokens(ctx context.Context, contractID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Where("tracked_contract_id = ?", contractID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

// UpdateContractFetchState advances the discovery high-water mark and fetch time.
// A nil lastTokenIDHex leaves the cursor untouched (zero-row page).
func (s *pgStore) UpdateContractFetchState(ctx context.Context, contractID int64, lastTokenIDHex *string, fetchedAt time.Time) error {
	updates := map[string]interface{}{
		"last_fetched_at": fetchedAt,
	}
	if lastTokenIDHex != nil {
		updates["last_token_id_hex"] = *lastTokenIDHex
	}

	err := s.db.WithContext(ctx).Model(&schema.TrackedContract{}).
		Where("id = ?", contractID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update contract fetch state: %w", err)
	}
	return nil
}

// ListTokensNeedingMedia returns tokens with a media reference but no cached file
func (s *pgStore) ListTokensNeedingMedia(ctx context.Context, limit int) ([]schema.Token, error) {
	var tokens []schema.Token
	err := s.db.WithContext(ctx).
		Where("stored_as IS NULL AND image_uri IS NOT NULL AND image_uri != ''").
		Order("id ASC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens needing media: %w", err)
	}
	return tokens, nil
}

// SetTokenMedia records the cached media filename and detected type
func (s *pgStore) SetTokenMedia(ctx context.Context, tokenID int64, storedAs, mimeType string) error {
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Where("id = ?", tokenID).
		Updates(map[string]interface{}{
			"stored_as": storedAs,
			"mime_type": mimeType,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set token media: %w", err)
	}
	return nil
}
