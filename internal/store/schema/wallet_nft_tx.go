package schema

import (
	"fmt"
	"time"

	"github.com/chainfund/custodian/internal/domain"
)

// WalletNftTx represents the wallet_nft_txs table - NFT transfers into the
// custodial wallet. A single transaction can move several tokens, so the
// uniqueness key includes contract, token ID and log index.
type WalletNftTx struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the network the transfer happened on
	Chain domain.Chain `gorm:"column:chain;not null;type:text;index"`
	// TxHash is the transaction hash
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_wallet_nft_txs_event,priority:1"`
	// TokenAddress is the NFT contract address (lowercased)
	TokenAddress string `gorm:"column:token_address;not null;type:text;uniqueIndex:idx_wallet_nft_txs_event,priority:2"`
	// TokenIDHex is the normalized hex token ID
	TokenIDHex string `gorm:"column:token_id_hex;not null;type:text;uniqueIndex:idx_wallet_nft_txs_event,priority:3"`
	// LogIndex disambiguates multiple transfers of the same token in one transaction
	LogIndex uint64 `gorm:"column:log_index;not null;default:0;uniqueIndex:idx_wallet_nft_txs_event,priority:4"`
	// ContractType is the token standard reported by the indexer
	ContractType domain.ContractType `gorm:"column:contract_type;not null;type:text"`
	// FromAddress is the sender address (lowercased)
	FromAddress string `gorm:"column:from_address;not null;type:text;index"`
	// Amount is the number of editions transferred (1 for ERC-721)
	Amount int64 `gorm:"column:amount;not null;default:1"`
	// BlockNumber is the block the transfer was included in
	BlockNumber uint64 `gorm:"column:block_number;not null;default:0"`
	// BlockTimestamp is the block timestamp reported by the indexer
	BlockTimestamp time.Time `gorm:"column:block_timestamp;not null;type:timestamptz"`
	// Credited is set in the same transaction as the asset credit
	Credited bool `gorm:"column:credited;not null;default:false;index"`
	// Skipped marks transfers excluded from crediting (failed receipt, anomalous amount)
	Skipped bool `gorm:"column:skipped;not null;default:false"`
	// SkipReason records why a transfer was skipped
	SkipReason *string `gorm:"column:skip_reason;type:text"`
	// CreditedUserID is the platform user the deposit was credited to
	CreditedUserID *string `gorm:"column:credited_user_id;type:text"`
	// CreditedPlatformID is the platform community the deposit was credited under
	CreditedPlatformID *string `gorm:"column:credited_platform_id;type:text"`
	// NotifiedAt is set after a confirmation message has been published
	NotifiedAt *time.Time `gorm:"column:notified_at;type:timestamptz"`
	// CreatedAt is the timestamp the row was ingested
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the WalletNftTx model
func (WalletNftTx) TableName() string {
	return "wallet_nft_txs"
}

// EventKey returns the deduplication key for the transfer. It covers the
// same columns as the unique index, including the log index, so two
// transfers of one token within a single transaction stay distinct.
func (t *WalletNftTx) EventKey() string {
	return fmt.Sprintf("%s/%s/%s/%d", t.TxHash, t.TokenAddress, t.TokenIDHex, t.LogIndex)
}
