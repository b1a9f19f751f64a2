package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/providers/moralis"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// confirmBatchSize caps the deposits checked for receipts per cycle
const confirmBatchSize = 50

// weiPerGas converts wei amounts into 18-decimal gas units
var weiPerGas = decimal.New(1, 18)

// DepositPollerConfig holds configuration for the gas deposit poller
type DepositPollerConfig struct {
	Interval time.Duration
	// RecencyWindow is the number of recent rows compared against the
	// indexer response to avoid re-inserting known transfers. The unique
	// transaction hash index remains the correctness guard.
	RecencyWindow int
	// Wallets maps each chain to its custodial wallet address
	Wallets map[domain.Chain]string
}

// depositPoller pulls native transfers into the custodial wallets from the indexer
type depositPoller struct {
	baseRunner
	config  DepositPollerConfig
	moralis moralis.Client
}

// NewDepositPoller creates the gas deposit polling runner
func NewDepositPoller(config DepositPollerConfig, st store.Store, m moralis.Client, clock adapter.Clock) Runner {
	return &depositPoller{
		baseRunner: newBaseRunner("deposit-poller", config.Interval, clock, st),
		config:     config,
		moralis:    m,
	}
}

func (p *depositPoller) Start(ctx context.Context) error {
	return p.run(ctx, p.cycle)
}

func (p *depositPoller) cycle(ctx context.Context) error {
	for chain, wallet := range p.config.Wallets {
		if wallet == "" {
			continue
		}
		if err := p.pollChain(ctx, chain, wallet); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("chain", string(chain)))
		}
	}
	return nil
}

func (p *depositPoller) pollChain(ctx context.Context, chain domain.Chain, wallet string) error {
	transfers, err := p.moralis.WalletTransfers(ctx, chain, wallet, p.config.RecencyWindow)
	if err != nil {
		return fmt.Errorf("failed to poll transfers: %w", err)
	}

	known, err := p.store.RecentWalletTxHashes(ctx, chain, p.config.RecencyWindow)
	if err != nil {
		return fmt.Errorf("failed to load recent tx hashes: %w", err)
	}

	var rows []schema.WalletTx
	for _, transfer := range transfers {
		// Only inbound transfers with value count as deposits
		if !strings.EqualFold(transfer.ToAddress, wallet) {
			continue
		}
		if transfer.Value == "" || transfer.Value == "0" {
			continue
		}
		hash := strings.ToLower(transfer.Hash)
		if _, ok := known[hash]; ok {
			continue
		}

		blockNumber, _ := strconv.ParseUint(transfer.BlockNumber, 10, 64)
		rows = append(rows, schema.WalletTx{
			Chain:          chain,
			TxHash:         hash,
			FromAddress:    strings.ToLower(transfer.FromAddress),
			ToAddress:      strings.ToLower(transfer.ToAddress),
			ValueWei:       transfer.Value,
			BlockNumber:    blockNumber,
			BlockTimestamp: parseBlockTimestamp(transfer.BlockTimestamp, p.clock),
		})
	}

	if len(rows) == 0 {
		return nil
	}

	inserted, err := p.store.InsertWalletTxs(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to insert wallet txs: %w", err)
	}
	if inserted > 0 {
		logger.InfoCtx(ctx, "Ingested new deposits",
			zap.String("chain", string(chain)),
			zap.Int64("inserted", inserted),
		)
	}
	return nil
}

// parseBlockTimestamp parses the indexer's timestamp, falling back to now
func parseBlockTimestamp(value string, clock adapter.Clock) time.Time {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return clock.Now()
}

// DepositConfirmerConfig holds configuration for the gas deposit confirmer
type DepositConfirmerConfig struct {
	Interval time.Duration
}

// depositConfirmer checks receipts of ingested deposits and credits confirmed ones
type depositConfirmer struct {
	baseRunner
	config DepositConfirmerConfig
	rpc    *ethrpc.Clients
}

// NewDepositConfirmer creates the gas deposit confirmation runner
func NewDepositConfirmer(config DepositConfirmerConfig, st store.Store, rpc *ethrpc.Clients, clock adapter.Clock) Runner {
	return &depositConfirmer{
		baseRunner: newBaseRunner("deposit-confirmer", config.Interval, clock, st),
		config:     config,
		rpc:        rpc,
	}
}

func (c *depositConfirmer) Start(ctx context.Context) error {
	return c.run(ctx, c.cycle)
}

func (c *depositConfirmer) cycle(ctx context.Context) error {
	for _, chain := range domain.Chains() {
		deposits, err := c.store.ListUncreditedWalletTxs(ctx, chain, confirmBatchSize)
		if err != nil {
			logger.ErrorCtx(ctx, err, zap.String("chain", string(chain)))
			continue
		}

		for _, deposit := range deposits {
			if err := c.confirm(ctx, chain, deposit); err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("chain", string(chain)),
					zap.String("tx_hash", deposit.Tx.TxHash),
				)
			}
		}
	}
	return nil
}

func (c *depositConfirmer) confirm(ctx context.Context, chain domain.Chain, deposit store.UncreditedDeposit) error {
	receipt, err := c.rpc.TransactionReceipt(ctx, chain, deposit.Tx.TxHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Still pending, retry next cycle
			return nil
		}
		return fmt.Errorf("failed to fetch receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WarnCtx(ctx, "Deposit transaction failed on chain",
			zap.String("tx_hash", deposit.Tx.TxHash))
		return c.store.MarkWalletTxFailed(ctx, deposit.Tx.ID)
	}

	wei, err := decimal.NewFromString(deposit.Tx.ValueWei)
	if err != nil {
		return fmt.Errorf("invalid wei value %q: %w", deposit.Tx.ValueWei, err)
	}
	amount := wei.Div(weiPerGas)

	if err := c.store.CreditWalletDeposit(ctx, deposit.Tx.ID, deposit.Owner, chain, amount); err != nil {
		return fmt.Errorf("failed to credit deposit: %w", err)
	}

	logger.InfoCtx(ctx, "Credited gas deposit",
		zap.String("chain", string(chain)),
		zap.String("tx_hash", deposit.Tx.TxHash),
		zap.String("account", deposit.Owner.String()),
		zap.String("amount", amount.String()),
	)
	return nil
}
