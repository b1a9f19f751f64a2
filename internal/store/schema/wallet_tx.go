package schema

import (
	"time"

	"github.com/chainfund/custodian/internal/domain"
)

// WalletTx represents the wallet_txs table - raw native-currency transfers into
// the custodial wallet as reported by the indexer. The unique transaction hash
// is the correctness backstop against double ingestion; Credited guards the
// balance mutation so each deposit is credited exactly once.
type WalletTx struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the network the transfer happened on
	Chain domain.Chain `gorm:"column:chain;not null;type:text;index"`
	// TxHash is the transaction hash (globally unique per chain)
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex"`
	// FromAddress is the sender address (lowercased)
	FromAddress string `gorm:"column:from_address;not null;type:text;index"`
	// ToAddress is the custodial wallet address
	ToAddress string `gorm:"column:to_address;not null;type:text"`
	// ValueWei is the transferred amount in wei (string to avoid precision loss)
	ValueWei string `gorm:"column:value_wei;not null;type:numeric(78,0)"`
	// BlockNumber is the block the transfer was included in
	BlockNumber uint64 `gorm:"column:block_number;not null;default:0"`
	// BlockTimestamp is the block timestamp reported by the indexer
	BlockTimestamp time.Time `gorm:"column:block_timestamp;not null;type:timestamptz"`
	// Credited is set in the same transaction as the balance credit
	Credited bool `gorm:"column:credited;not null;default:false;index"`
	// Failed marks a transfer whose on-chain receipt reported failure (terminal, never credited)
	Failed bool `gorm:"column:failed;not null;default:false"`
	// CreditedUserID is the platform user the deposit was credited to
	CreditedUserID *string `gorm:"column:credited_user_id;type:text"`
	// CreditedPlatformID is the platform community the deposit was credited under
	CreditedPlatformID *string `gorm:"column:credited_platform_id;type:text"`
	// NotifiedAt is set after a confirmation message has been published
	NotifiedAt *time.Time `gorm:"column:notified_at;type:timestamptz"`
	// CreatedAt is the timestamp the row was ingested
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the WalletTx model
func (WalletTx) TableName() string {
	return "wallet_txs"
}
