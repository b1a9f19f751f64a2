package schema

import "time"

// VerifiedAddress represents the verified_addresses table - external wallet
// addresses linked to a platform user through the signature handshake.
// Deposits from unverified senders are ingested but never credited.
type VerifiedAddress struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the external wallet address (lowercased, unique across users)
	Address string `gorm:"column:address;not null;type:text;uniqueIndex"`
	// UserID is the platform user the address belongs to
	UserID string `gorm:"column:user_id;not null;type:text;index:idx_verified_addresses_user,priority:1"`
	// PlatformID is the platform community the link was made in
	PlatformID string `gorm:"column:platform_id;not null;type:text;index:idx_verified_addresses_user,priority:2"`
	// Verified is set once the ownership proof has been checked
	Verified bool `gorm:"column:verified;not null;default:false"`
	// CreatedAt is the timestamp the link was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last verification change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the VerifiedAddress model
func (VerifiedAddress) TableName() string {
	return "verified_addresses"
}
