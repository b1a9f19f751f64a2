package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
)

// gasColumns maps each supported chain to its balance column. Debits and
// credits select the column from this table so user input never reaches
// the SQL text.
var gasColumns = map[domain.Chain]string{
	domain.ChainEthereum: "eth_gas",
	domain.ChainPolygon:  "matic_gas",
}

// GasColumn returns the accounts column holding the gas balance for a chain
func GasColumn(chain domain.Chain) (string, bool) {
	col, ok := gasColumns[chain]
	return col, ok
}

// Account represents the accounts table - one custodial ledger account per platform user.
// Accounts are created lazily on first interaction and never deleted.
type Account struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID is the platform user identifier
	UserID string `gorm:"column:user_id;not null;type:text;uniqueIndex:idx_accounts_user_platform,priority:1"`
	// PlatformID is the platform community identifier the user belongs to
	PlatformID string `gorm:"column:platform_id;not null;type:text;uniqueIndex:idx_accounts_user_platform,priority:2"`
	// EthGas is the Ethereum gas balance in whole units (never negative)
	EthGas decimal.Decimal `gorm:"column:eth_gas;not null;default:0;type:numeric(36,18)"`
	// MaticGas is the Polygon gas balance in whole units (never negative)
	MaticGas decimal.Decimal `gorm:"column:matic_gas;not null;default:0;type:numeric(36,18)"`
	// TotalTipped accumulates gas sent to other accounts
	TotalTipped decimal.Decimal `gorm:"column:total_tipped;not null;default:0;type:numeric(36,18)"`
	// TotalReceived accumulates gas received from other accounts
	TotalReceived decimal.Decimal `gorm:"column:total_received;not null;default:0;type:numeric(36,18)"`
	// EthNftDeposited counts NFT deposits credited on Ethereum
	EthNftDeposited int64 `gorm:"column:eth_nft_deposited;not null;default:0"`
	// MaticNftDeposited counts NFT deposits credited on Polygon
	MaticNftDeposited int64 `gorm:"column:matic_nft_deposited;not null;default:0"`
	// EthNftWithdrawn counts confirmed NFT withdrawals on Ethereum
	EthNftWithdrawn int64 `gorm:"column:eth_nft_withdrawn;not null;default:0"`
	// MaticNftWithdrawn counts confirmed NFT withdrawals on Polygon
	MaticNftWithdrawn int64 `gorm:"column:matic_nft_withdrawn;not null;default:0"`
	// Frozen blocks all outbound operations when set
	Frozen bool `gorm:"column:frozen;not null;default:false"`
	// CreatedAt is the timestamp of the account's first interaction
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last balance mutation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}

// Ref returns the account's platform reference
func (a *Account) Ref() domain.AccountRef {
	return domain.AccountRef{UserID: a.UserID, PlatformID: a.PlatformID}
}

// GasBalance returns the balance for the given chain
func (a *Account) GasBalance(chain domain.Chain) decimal.Decimal {
	if chain == domain.ChainPolygon {
		return a.MaticGas
	}
	return a.EthGas
}
