package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
)

// TransferKind distinguishes internal transfer audit rows
type TransferKind string

const (
	// TransferKindGas records a gas tip between accounts
	TransferKindGas TransferKind = "gas"
	// TransferKindAsset records an NFT tip between accounts
	TransferKindAsset TransferKind = "asset"
)

// TransferLog represents the transfer_logs table - an immutable audit row
// appended inside every successful internal transfer transaction.
type TransferLog struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Kind is gas or asset
	Kind TransferKind `gorm:"column:kind;not null;type:text"`
	// Chain identifies the network of the moved value
	Chain domain.Chain `gorm:"column:chain;not null;type:text"`
	// TokenAddress identifies the asset for NFT tips; nil for gas
	TokenAddress *string `gorm:"column:token_address;type:text"`
	// TokenIDHex identifies the asset for NFT tips; nil for gas
	TokenIDHex *string `gorm:"column:token_id_hex;type:text"`
	// FromUserID is the sending platform user
	FromUserID string `gorm:"column:from_user_id;not null;type:text;index"`
	// FromPlatformID is the sending platform community
	FromPlatformID string `gorm:"column:from_platform_id;not null;type:text"`
	// ToUserID is the receiving platform user
	ToUserID string `gorm:"column:to_user_id;not null;type:text;index"`
	// ToPlatformID is the receiving platform community
	ToPlatformID string `gorm:"column:to_platform_id;not null;type:text"`
	// Amount is the moved quantity (gas units or edition count)
	Amount decimal.Decimal `gorm:"column:amount;not null;type:numeric(36,18)"`
	// CreatedAt is the transfer timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TransferLog model
func (TransferLog) TableName() string {
	return "transfer_logs"
}
