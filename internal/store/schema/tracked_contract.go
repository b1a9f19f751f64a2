package schema

import (
	"time"

	"github.com/chainfund/custodian/internal/domain"
)

// TrackedContract represents the tracked_contracts table - NFT collections
// registered for deposit crediting and token discovery.
type TrackedContract struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the network the contract is deployed on
	Chain domain.Chain `gorm:"column:chain;not null;type:text;uniqueIndex:idx_tracked_contracts_chain_address,priority:1"`
	// Address is the contract address (lowercased)
	Address string `gorm:"column:address;not null;type:text;uniqueIndex:idx_tracked_contracts_chain_address,priority:2"`
	// ContractType is the token standard (erc721, erc1155)
	ContractType domain.ContractType `gorm:"column:contract_type;not null;type:text"`
	// Name is the collection display name
	Name string `gorm:"column:name;not null;type:text"`
	// Description is an optional collection description
	Description *string `gorm:"column:description;type:text"`
	// Enabled gates deposit crediting for this contract
	Enabled bool `gorm:"column:enabled;not null;default:true"`
	// FetchEnabled gates token discovery for this contract
	FetchEnabled bool `gorm:"column:fetch_enabled;not null;default:true"`
	// LastTokenIDHex is the discovery high-water mark; fetching resumes from here
	LastTokenIDHex *string `gorm:"column:last_token_id_hex;type:text"`
	// LastFetchedAt orders discovery scheduling (least recently fetched first)
	LastFetchedAt *time.Time `gorm:"column:last_fetched_at;type:timestamptz;index"`
	// SupplyHint is the expected collection size, when known
	SupplyHint *int64 `gorm:"column:supply_hint"`
	// MaxItems caps discovery for this contract; 0 means unlimited
	MaxItems int64 `gorm:"column:max_items;not null;default:0"`
	// CreatedAt is the timestamp the contract was registered
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	Tokens []Token `gorm:"foreignKey:TrackedContractID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the TrackedContract model
func (TrackedContract) TableName() string {
	return "tracked_contracts"
}
