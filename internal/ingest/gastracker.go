package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/store"
)

// GasPriceSnapshot is the stored per-chain gas price document
type GasPriceSnapshot struct {
	Wei       string    `json:"wei"`
	Gwei      string    `json:"gwei"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GasTrackerConfig holds configuration for the gas price tracker
type GasTrackerConfig struct {
	Interval time.Duration
}

// gasTracker periodically snapshots suggested gas prices into the settings table
type gasTracker struct {
	baseRunner
	rpc *ethrpc.Clients
}

// NewGasTracker creates the gas price tracking runner
func NewGasTracker(config GasTrackerConfig, st store.Store, rpc *ethrpc.Clients, clock adapter.Clock) Runner {
	return &gasTracker{
		baseRunner: newBaseRunner("gas-tracker", config.Interval, clock, st),
		rpc:        rpc,
	}
}

func (t *gasTracker) Start(ctx context.Context) error {
	return t.run(ctx, t.cycle)
}

func (t *gasTracker) cycle(ctx context.Context) error {
	for _, chain := range domain.Chains() {
		if err := t.snapshot(ctx, chain); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("chain", string(chain)))
		}
	}
	return nil
}

func (t *gasTracker) snapshot(ctx context.Context, chain domain.Chain) error {
	price, err := t.rpc.SuggestGasPrice(ctx, chain)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	wei := decimal.NewFromBigInt(price, 0)
	snapshot := GasPriceSnapshot{
		Wei:       wei.String(),
		Gwei:      wei.Shift(-9).String(),
		UpdatedAt: t.clock.Now().UTC(),
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal gas price snapshot: %w", err)
	}

	return t.store.SetSetting(ctx, store.SettingGasPricesPrefix+string(chain), string(payload))
}
