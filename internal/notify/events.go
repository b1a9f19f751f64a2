// Package notify publishes confirmation events to NATS JetStream so the
// platform frontends can message users. Delivery is at-least-once: an event
// is marked notified only after a successful publish, so a crash in between
// re-publishes rather than drops.
package notify

import (
	"time"
)

// Kind identifies the type of a confirmation event
type Kind string

const (
	// KindDepositConfirmed is published after a gas deposit was credited
	KindDepositConfirmed Kind = "deposit_confirmed"
	// KindNftDepositConfirmed is published after an NFT deposit was credited
	KindNftDepositConfirmed Kind = "nft_deposit_confirmed"
	// KindWithdrawalConfirmed is published after a withdrawal settled on chain
	KindWithdrawalConfirmed Kind = "withdrawal_confirmed"
	// KindWithdrawalFailed is published after a withdrawal failed on chain
	KindWithdrawalFailed Kind = "withdrawal_failed"
)

// Event is the confirmation message published to the platform
type Event struct {
	Kind       Kind   `json:"kind"`
	PlatformID string `json:"platform_id"`
	UserID     string `json:"user_id"`
	Chain      string `json:"chain"`
	TxHash     string `json:"tx_hash"`
	// Amount is the gas amount in whole units, empty for NFT events
	Amount string `json:"amount,omitempty"`
	// TokenAddress and TokenIDHex identify the asset for NFT events
	TokenAddress string `json:"token_address,omitempty"`
	TokenIDHex   string `json:"token_id_hex,omitempty"`
	// Editions is the edition count for NFT events
	Editions int64 `json:"editions,omitempty"`
	// WithdrawalID references the withdrawal intent for withdrawal events
	WithdrawalID string    `json:"withdrawal_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
