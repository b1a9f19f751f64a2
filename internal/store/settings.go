package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chainfund/custodian/internal/store/schema"
)

// Well-known settings keys
const (
	// SettingMaintenance pauses every background loop when set to "1"
	SettingMaintenance = "maintenance"
	// SettingGasPricesPrefix stores the latest gas price snapshot per chain
	// (full key: gas_prices:<chain>)
	SettingGasPricesPrefix = "gas_prices:"
	// SettingWithdrawReservePrefix stores the minimum gas balance required to
	// request a withdrawal (full key: withdraw_reserve:<chain>)
	SettingWithdrawReservePrefix = "withdraw_reserve:"
)

// GetSetting retrieves a settings value, empty string when absent
func (s *pgStore) GetSetting(ctx context.Context, key string) (string, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return kv.Value, nil
}

// SetSetting stores a settings value
func (s *pgStore) SetSetting(ctx context.Context, key, value string) error {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// MaintenanceEnabled reports whether background processing is paused
func (s *pgStore) MaintenanceEnabled(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, SettingMaintenance)
	if err != nil {
		return false, err
	}
	return value == "1" || value == "true", nil
}
