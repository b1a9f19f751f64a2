package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainfund/custodian/internal/store/schema"
)

// UpsertVerifiedAddress links an external wallet address to a platform user.
// Re-linking an address moves it to the new user; an address belongs to at
// most one account at a time.
func (s *pgStore) UpsertVerifiedAddress(ctx context.Context, address schema.VerifiedAddress) error {
	address.Address = strings.ToLower(address.Address)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":     address.UserID,
			"platform_id": address.PlatformID,
			"verified":    address.Verified,
			"updated_at":  gorm.Expr("now()"),
		}),
	}).Create(&address).Error
	if err != nil {
		return fmt.Errorf("failed to upsert verified address: %w", err)
	}
	return nil
}

// GetVerifiedAddress retrieves an address link, nil when absent
func (s *pgStore) GetVerifiedAddress(ctx context.Context, address string) (*schema.VerifiedAddress, error) {
	var row schema.VerifiedAddress
	err := s.db.WithContext(ctx).
		Where("address = ?", strings.ToLower(address)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verified address: %w", err)
	}
	return &row, nil
}
