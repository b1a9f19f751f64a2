package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
)

// WithdrawalStatus represents the lifecycle state of a withdrawal intent
type WithdrawalStatus string

const (
	// WithdrawalStatusPending means the transaction was submitted and awaits a receipt
	WithdrawalStatusPending WithdrawalStatus = "pending"
	// WithdrawalStatusConfirmed means the on-chain receipt reported success
	WithdrawalStatusConfirmed WithdrawalStatus = "confirmed"
	// WithdrawalStatusFailed means the on-chain receipt reported failure.
	// Failed withdrawals are terminal and reconciled manually; the debited
	// balance is not refunded automatically.
	WithdrawalStatusFailed WithdrawalStatus = "failed"
)

// Withdrawal represents the withdrawals table - outbound transfer intents.
// The row is inserted in the same transaction that debits the balance.
type Withdrawal struct {
	// ID is a UUID assigned at request time
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Chain identifies the network the withdrawal runs on
	Chain domain.Chain `gorm:"column:chain;not null;type:text;index:idx_withdrawals_chain_status,priority:1"`
	// Status is the lifecycle state (pending, confirmed, failed)
	Status WithdrawalStatus `gorm:"column:status;not null;type:text;index:idx_withdrawals_chain_status,priority:2"`
	// TokenAddress is the NFT contract address; nil for native gas withdrawals
	TokenAddress *string `gorm:"column:token_address;type:text"`
	// TokenIDHex is the normalized hex token ID; nil for native gas withdrawals
	TokenIDHex *string `gorm:"column:token_id_hex;type:text"`
	// ContractType is the token standard; nil for native gas withdrawals
	ContractType *domain.ContractType `gorm:"column:contract_type;type:text"`
	// Amount is the edition count for NFTs or the gas amount for native withdrawals
	Amount decimal.Decimal `gorm:"column:amount;not null;type:numeric(36,18)"`
	// UserID is the requesting platform user
	UserID string `gorm:"column:user_id;not null;type:text;index:idx_withdrawals_user,priority:1"`
	// PlatformID is the requesting platform community
	PlatformID string `gorm:"column:platform_id;not null;type:text;index:idx_withdrawals_user,priority:2"`
	// Destination is the external address the asset was sent to
	Destination string `gorm:"column:destination;not null;type:text"`
	// TxHash is the submitted transaction hash
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex"`
	// EffectiveGasPrice is the receipt's effective gas price in wei
	EffectiveGasPrice *string `gorm:"column:effective_gas_price;type:numeric(78,0)"`
	// GasUsed is the receipt's gas used
	GasUsed *uint64 `gorm:"column:gas_used"`
	// Fee is the realized network fee in whole gas units, debited on confirmation
	Fee decimal.Decimal `gorm:"column:fee;not null;default:0;type:numeric(36,18)"`
	// NotifiedAt is set after a confirmation message has been published
	NotifiedAt *time.Time `gorm:"column:notified_at;type:timestamptz"`
	// CreatedAt is the timestamp the intent was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last status change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Withdrawal model
func (Withdrawal) TableName() string {
	return "withdrawals"
}

// IsGas reports whether the withdrawal moves native currency rather than an NFT
func (w *Withdrawal) IsGas() bool {
	return w.TokenAddress == nil
}
