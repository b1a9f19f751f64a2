package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Chain identifies a supported blockchain network
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
)

// Chains lists every supported chain
func Chains() []Chain {
	return []Chain{ChainEthereum, ChainPolygon}
}

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereum || chain == ChainPolygon
}

// GasTicker returns the native gas currency symbol for the chain
func (c Chain) GasTicker() string {
	switch c {
	case ChainPolygon:
		return "MATIC"
	default:
		return "ETH"
	}
}

// ContractType represents the token contract standard
type ContractType string

const (
	ContractTypeERC721  ContractType = "erc721"
	ContractTypeERC1155 ContractType = "erc1155"
)

// AccountRef identifies a custodial account by platform user
type AccountRef struct {
	UserID     string `json:"user_id"`
	PlatformID string `json:"platform_id"`
}

// String returns a loggable representation of the account reference
func (a AccountRef) String() string {
	return fmt.Sprintf("%s@%s", a.UserID, a.PlatformID)
}

// IsZero reports whether the reference is empty
func (a AccountRef) IsZero() bool {
	return a.UserID == "" && a.PlatformID == ""
}

// AssetKey identifies a custodial NFT asset
type AssetKey struct {
	Chain        Chain  `json:"chain"`
	TokenAddress string `json:"token_address"`
	TokenIDHex   string `json:"token_id_hex"`
}

// String returns the canonical asset key: chain/contract/tokenIdHex
func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Chain, strings.ToLower(k.TokenAddress), k.TokenIDHex)
}

// NormalizeTokenIDHex lowercases a hex token ID and ensures the 0x prefix
func NormalizeTokenIDHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// TokenIDHexToInt converts a hex token ID to a decimal integer.
// Returns nil when the value does not fit int64; some generative
// collections use 256-bit token IDs and those keep the hex form only.
func TokenIDHexToInt(hex string) *int64 {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(NormalizeTokenIDHex(hex), "0x"), 16)
	if !ok {
		return nil
	}
	if !n.IsInt64() {
		return nil
	}
	v := n.Int64()
	return &v
}
