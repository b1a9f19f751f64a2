package withdraw

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// weiPerGas converts wei amounts to whole gas units
var weiPerGas = decimal.New(1, 18)

// ConfirmerConfig holds configuration for the withdrawal confirmer
type ConfirmerConfig struct {
	// Interval is how long to wait between polling rounds
	Interval time.Duration
}

// Confirmer polls receipts for pending withdrawals and settles them. A
// successful receipt confirms the intent and debits the realized network
// fee; a failed receipt is terminal.
type Confirmer struct {
	config ConfirmerConfig
	store  store.Store
	rpc    *ethrpc.Clients
	clock  adapter.Clock

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewConfirmer creates a withdrawal confirmer
func NewConfirmer(config ConfirmerConfig, st store.Store, rpc *ethrpc.Clients, clock adapter.Clock) *Confirmer {
	return &Confirmer{
		config:    config,
		store:     st,
		rpc:       rpc,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the confirmer's name
func (c *Confirmer) Name() string {
	return "withdrawal-confirmer"
}

// Start begins the confirmer's main loop. It blocks until the context is
// canceled or Stop is called.
func (c *Confirmer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("withdrawal confirmer already running")
	}
	defer func() {
		c.running.Store(false)
		close(c.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting withdrawal confirmer", zap.Duration("interval", c.config.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Withdrawal confirmer stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-c.stopChan:
			logger.InfoCtx(ctx, "Withdrawal confirmer stop requested")
			return nil
		default:
		}

		paused, err := c.store.MaintenanceEnabled(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, err)
		} else if !paused {
			if err := c.cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err)
			}
		}

		if !c.sleep(ctx, c.config.Interval) {
			return nil
		}
	}
}

// Stop gracefully stops the confirmer
func (c *Confirmer) Stop(ctx context.Context) error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping withdrawal confirmer")
	close(c.stopChan)

	select {
	case <-c.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cycle settles pending withdrawals on every chain
func (c *Confirmer) cycle(ctx context.Context) error {
	for _, chain := range domain.Chains() {
		pending, err := c.store.ListPendingWithdrawals(ctx, chain)
		if err != nil {
			return fmt.Errorf("failed to list pending withdrawals on %s: %w", chain, err)
		}
		for _, withdrawal := range pending {
			if err := c.settle(ctx, withdrawal); err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("withdrawal_id", withdrawal.ID),
					zap.String("tx_hash", withdrawal.TxHash),
				)
			}
		}
	}
	return nil
}

// settle checks one withdrawal's receipt and records the outcome
func (c *Confirmer) settle(ctx context.Context, withdrawal schema.Withdrawal) error {
	receipt, err := c.rpc.TransactionReceipt(ctx, withdrawal.Chain, withdrawal.TxHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Still in the mempool; check again next round
			return nil
		}
		return fmt.Errorf("failed to fetch receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WarnCtx(ctx, "Withdrawal transaction failed on chain",
			zap.String("withdrawal_id", withdrawal.ID),
			zap.String("tx_hash", withdrawal.TxHash),
		)
		return c.store.FailWithdrawal(ctx, withdrawal.ID)
	}

	effectiveGasPrice := decimal.NewFromBigInt(receipt.EffectiveGasPrice, 0)
	fee := effectiveGasPrice.Mul(decimal.NewFromInt(int64(receipt.GasUsed))).Div(weiPerGas)

	if err := c.store.ConfirmWithdrawal(ctx, withdrawal.ID, effectiveGasPrice.String(), receipt.GasUsed, fee); err != nil {
		return fmt.Errorf("failed to confirm withdrawal: %w", err)
	}

	logger.InfoCtx(ctx, "Withdrawal confirmed",
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("chain", string(withdrawal.Chain)),
		zap.String("fee", fee.String()),
	)
	return nil
}

// sleep waits for the given duration unless interrupted
func (c *Confirmer) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-c.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	}
}
