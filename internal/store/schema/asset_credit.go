package schema

import (
	"time"

	"github.com/chainfund/custodian/internal/domain"
)

// AssetCredit represents the asset_credits table - custodial NFT holdings per account.
// The quantity is additive for multi-edition tokens and must never go negative.
type AssetCredit struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the network the asset lives on
	Chain domain.Chain `gorm:"column:chain;not null;type:text;uniqueIndex:idx_asset_credits_key_owner,priority:1"`
	// TokenAddress is the contract address of the asset
	TokenAddress string `gorm:"column:token_address;not null;type:text;uniqueIndex:idx_asset_credits_key_owner,priority:2"`
	// TokenIDHex is the normalized hex token ID within the contract
	TokenIDHex string `gorm:"column:token_id_hex;not null;type:text;uniqueIndex:idx_asset_credits_key_owner,priority:3"`
	// UserID is the owning platform user
	UserID string `gorm:"column:user_id;not null;type:text;uniqueIndex:idx_asset_credits_key_owner,priority:4"`
	// PlatformID is the owning platform community
	PlatformID string `gorm:"column:platform_id;not null;type:text;uniqueIndex:idx_asset_credits_key_owner,priority:5"`
	// Amount is the number of editions held (1 for ERC-721)
	Amount int64 `gorm:"column:amount;not null;default:0"`
	// CreatedAt is the timestamp the holding was first credited
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last quantity change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AssetCredit model
func (AssetCredit) TableName() string {
	return "asset_credits"
}

// Key returns the asset key of the holding
func (c *AssetCredit) Key() domain.AssetKey {
	return domain.AssetKey{Chain: c.Chain, TokenAddress: c.TokenAddress, TokenIDHex: c.TokenIDHex}
}
