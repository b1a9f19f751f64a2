package domain

import "errors"

var (
	// ErrAccountNotFound is returned when a custodial account does not exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountFrozen is returned when an outbound operation is attempted on a frozen account
	ErrAccountFrozen = errors.New("account is frozen")

	// ErrInsufficientBalance is returned when a debit would take a balance below zero
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSelfTransfer is returned when the sender and recipient are the same account
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrAmountNotPositive is returned when a transfer or withdrawal amount is zero or negative
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrAmountTooLarge is returned when a tip exceeds the configured cap
	ErrAmountTooLarge = errors.New("amount exceeds maximum allowed")

	// ErrAssetNotOwned is returned when a withdrawal references an asset the account does not hold
	ErrAssetNotOwned = errors.New("asset not owned by account")

	// ErrInvalidAddress is returned when a destination address fails validation
	ErrInvalidAddress = errors.New("invalid address")

	// ErrWithdrawalInFlight is returned when another withdrawal is still pending
	ErrWithdrawalInFlight = errors.New("withdrawal already in flight")

	// ErrGasReserveTooLow is returned when the gas balance is below the withdrawal reserve
	ErrGasReserveTooLow = errors.New("gas balance below withdrawal reserve")

	// ErrContractNotTracked is returned when a transfer references an unregistered contract
	ErrContractNotTracked = errors.New("contract not tracked")

	// ErrContractExists is returned when registering a contract that is already tracked
	ErrContractExists = errors.New("contract already tracked")

	// ErrMaintenance is returned when the system is paused for maintenance
	ErrMaintenance = errors.New("maintenance mode enabled")

	// ErrUnsupportedMedia is returned when a media reference resolves to a disallowed format
	ErrUnsupportedMedia = errors.New("unsupported media format")
)
