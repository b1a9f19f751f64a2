package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/chainfund/custodian/internal/domain"
)

// Token represents the tokens table - items discovered inside a tracked
// collection. Rows are append-mostly; re-ingesting the same page is a no-op
// thanks to the (tracked_contract_id, token_id_hex) uniqueness.
type Token struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TrackedContractID references the collection this token belongs to
	TrackedContractID int64 `gorm:"column:tracked_contract_id;not null;uniqueIndex:idx_tokens_contract_token,priority:1"`
	// TokenIDHex is the normalized hex token ID within the contract
	TokenIDHex string `gorm:"column:token_id_hex;not null;type:text;uniqueIndex:idx_tokens_contract_token,priority:2"`
	// TokenIDInt is the decimal form of the token ID; nil when it exceeds int64
	TokenIDInt *int64 `gorm:"column:token_id_int"`
	// TokenType is the token standard reported by the indexer
	TokenType domain.ContractType `gorm:"column:token_type;not null;type:text"`
	// Title is the token display title from metadata
	Title *string `gorm:"column:title;type:text"`
	// ImageURI is the raw media reference from metadata (data URI, ipfs:// or http)
	ImageURI *string `gorm:"column:image_uri;type:text"`
	// Metadata is the raw metadata document as returned by the indexer
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// StoredAs is the content-hash filename of the cached media; nil until resolved
	StoredAs *string `gorm:"column:stored_as;type:text;index"`
	// MimeType is the detected media type of the cached file
	MimeType *string `gorm:"column:mime_type;type:text"`
	// CreatedAt is the timestamp the token was discovered
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	TrackedContract TrackedContract `gorm:"foreignKey:TrackedContractID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}
