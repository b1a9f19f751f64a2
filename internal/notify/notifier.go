package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// drainBatchSize caps the rows handled per source per cycle
const drainBatchSize = 50

// NotifierConfig holds configuration for the notification runner
type NotifierConfig struct {
	Interval time.Duration
}

// Notifier drains credited deposits and settled withdrawals that have no
// published confirmation yet
type Notifier struct {
	config    NotifierConfig
	store     store.Store
	publisher Publisher
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewNotifier creates the notification runner
func NewNotifier(config NotifierConfig, st store.Store, publisher Publisher, clock adapter.Clock) *Notifier {
	return &Notifier{
		config:    config,
		store:     st,
		publisher: publisher,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the runner's name
func (n *Notifier) Name() string {
	return "notifier"
}

// Start begins the notifier's main loop
func (n *Notifier) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return fmt.Errorf("notifier already running")
	}
	defer func() {
		n.running.Store(false)
		close(n.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting notifier", zap.Duration("interval", n.config.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Notifier stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-n.stopChan:
			logger.InfoCtx(ctx, "Notifier stop requested")
			return nil
		default:
		}

		if err := n.cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err)
		}

		select {
		case <-n.clock.After(n.config.Interval):
		case <-ctx.Done():
			return nil
		case <-n.stopChan:
			return nil
		}
	}
}

// Stop gracefully stops the notifier
func (n *Notifier) Stop(ctx context.Context) error {
	if !n.running.CompareAndSwap(true, false) {
		return nil
	}

	close(n.stopChan)

	select {
	case <-n.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) cycle(ctx context.Context) error {
	paused, err := n.store.MaintenanceEnabled(ctx)
	if err != nil {
		return err
	}
	if paused {
		logger.DebugCtx(ctx, "Maintenance enabled, skipping notify cycle")
		return nil
	}

	n.drainDeposits(ctx)
	n.drainNftDeposits(ctx)
	n.drainWithdrawals(ctx)
	return nil
}

func (n *Notifier) drainDeposits(ctx context.Context) {
	deposits, err := n.store.ListUnnotifiedDeposits(ctx, drainBatchSize)
	if err != nil {
		logger.ErrorCtx(ctx, err)
		return
	}

	for _, deposit := range deposits {
		event := depositEvent(deposit, n.clock.Now().UTC())
		if event == nil {
			continue
		}
		if err := n.publisher.Publish(ctx, event); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("tx_hash", deposit.TxHash))
			continue
		}
		if err := n.store.MarkWalletTxNotified(ctx, deposit.ID, n.clock.Now()); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("tx_hash", deposit.TxHash))
		}
	}
}

func (n *Notifier) drainNftDeposits(ctx context.Context) {
	deposits, err := n.store.ListUnnotifiedNftDeposits(ctx, drainBatchSize)
	if err != nil {
		logger.ErrorCtx(ctx, err)
		return
	}

	for _, deposit := range deposits {
		event := nftDepositEvent(deposit, n.clock.Now().UTC())
		if event == nil {
			continue
		}
		if err := n.publisher.Publish(ctx, event); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("tx_hash", deposit.TxHash))
			continue
		}
		if err := n.store.MarkWalletNftTxNotified(ctx, deposit.ID, n.clock.Now()); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("tx_hash", deposit.TxHash))
		}
	}
}

func (n *Notifier) drainWithdrawals(ctx context.Context) {
	withdrawals, err := n.store.ListUnnotifiedWithdrawals(ctx, drainBatchSize)
	if err != nil {
		logger.ErrorCtx(ctx, err)
		return
	}

	for _, withdrawal := range withdrawals {
		event := withdrawalEvent(withdrawal, n.clock.Now().UTC())
		if event == nil {
			continue
		}
		if err := n.publisher.Publish(ctx, event); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("withdrawal_id", withdrawal.ID))
			continue
		}
		if err := n.store.MarkWithdrawalNotified(ctx, withdrawal.ID, n.clock.Now()); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("withdrawal_id", withdrawal.ID))
		}
	}
}

// depositEvent builds the confirmation event for a credited gas deposit.
// Returns nil for rows missing crediting info, which should not happen.
func depositEvent(deposit schema.WalletTx, now time.Time) *Event {
	if deposit.CreditedUserID == nil || deposit.CreditedPlatformID == nil {
		return nil
	}
	wei, err := decimal.NewFromString(deposit.ValueWei)
	if err != nil {
		return nil
	}
	return &Event{
		Kind:       KindDepositConfirmed,
		PlatformID: *deposit.CreditedPlatformID,
		UserID:     *deposit.CreditedUserID,
		Chain:      string(deposit.Chain),
		TxHash:     deposit.TxHash,
		Amount:     wei.Shift(-18).String(),
		Timestamp:  now,
	}
}

func nftDepositEvent(deposit schema.WalletNftTx, now time.Time) *Event {
	if deposit.CreditedUserID == nil || deposit.CreditedPlatformID == nil {
		return nil
	}
	return &Event{
		Kind:         KindNftDepositConfirmed,
		PlatformID:   *deposit.CreditedPlatformID,
		UserID:       *deposit.CreditedUserID,
		Chain:        string(deposit.Chain),
		TxHash:       deposit.TxHash,
		TokenAddress: deposit.TokenAddress,
		TokenIDHex:   deposit.TokenIDHex,
		Editions:     deposit.Amount,
		Timestamp:    now,
	}
}

func withdrawalEvent(withdrawal schema.Withdrawal, now time.Time) *Event {
	kind := KindWithdrawalConfirmed
	if withdrawal.Status == schema.WithdrawalStatusFailed {
		kind = KindWithdrawalFailed
	}
	event := &Event{
		Kind:         kind,
		PlatformID:   withdrawal.PlatformID,
		UserID:       withdrawal.UserID,
		Chain:        string(withdrawal.Chain),
		TxHash:       withdrawal.TxHash,
		WithdrawalID: withdrawal.ID,
		Amount:       withdrawal.Amount.String(),
		Timestamp:    now,
	}
	if !withdrawal.IsGas() {
		event.TokenAddress = *withdrawal.TokenAddress
		event.TokenIDHex = *withdrawal.TokenIDHex
		event.Editions = withdrawal.Amount.IntPart()
	}
	return event
}
