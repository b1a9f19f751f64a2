package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/providers/moralis"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// NftDepositPollerConfig holds configuration for the NFT deposit poller
type NftDepositPollerConfig struct {
	Interval      time.Duration
	RecencyWindow int
	Wallets       map[domain.Chain]string
}

// nftDepositPoller pulls NFT transfers into the custodial wallets from the indexer
type nftDepositPoller struct {
	baseRunner
	config  NftDepositPollerConfig
	moralis moralis.Client
}

// NewNftDepositPoller creates the NFT deposit polling runner
func NewNftDepositPoller(config NftDepositPollerConfig, st store.Store, m moralis.Client, clock adapter.Clock) Runner {
	return &nftDepositPoller{
		baseRunner: newBaseRunner("nft-deposit-poller", config.Interval, clock, st),
		config:     config,
		moralis:    m,
	}
}

func (p *nftDepositPoller) Start(ctx context.Context) error {
	return p.run(ctx, p.cycle)
}

func (p *nftDepositPoller) cycle(ctx context.Context) error {
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

func (p *nftDepositPoller) pollChain(ctx context.Context, chain domain.Chain, wallet string) error {
	transfers, err := p.moralis.WalletNFTTransfers(ctx, chain, wallet, p.config.RecencyWindow)
	if err != nil {
		return fmt.Errorf("failed to poll NFT transfers: %w", err)
	}

	known, err := p.store.RecentWalletNftTxKeys(ctx, chain, p.config.RecencyWindow)
	if err != nil {
		return fmt.Errorf("failed to load recent NFT tx keys: %w", err)
	}

	var rows []schema.WalletNftTx
	for _, transfer := range transfers {
		if !strings.EqualFold(transfer.ToAddress, wallet) {
			continue
		}

		tokenIDHex, err := decimalTokenIDToHex(transfer.TokenID)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping transfer with unparseable token ID",
				zap.String("tx_hash", transfer.TransactionHash),
				zap.String("token_id", transfer.TokenID),
			)
			continue
		}

		row := schema.WalletNftTx{
			Chain:        chain,
			TxHash:       strings.ToLower(transfer.TransactionHash),
			TokenAddress: strings.ToLower(transfer.TokenAddress),
			TokenIDHex:   tokenIDHex,
			LogIndex:     uint64(transfer.LogIndex), //nolint:gosec,G115
			ContractType: parseContractType(transfer.ContractType),
			FromAddress:  strings.ToLower(transfer.FromAddress),
			Amount:       parseAmount(transfer.Amount),
		}
		if _, ok := known[row.EventKey()]; ok {
			continue
		}
		row.BlockNumber, _ = strconv.ParseUint(transfer.BlockNumber, 10, 64)
		row.BlockTimestamp = parseBlockTimestamp(transfer.BlockTimestamp, p.clock)
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil
	}

	inserted, err := p.store.InsertWalletNftTxs(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to insert NFT wallet txs: %w", err)
	}
	if inserted > 0 {
		logger.InfoCtx(ctx, "Ingested new NFT deposits",
			zap.String("chain", string(chain)),
			zap.Int64("inserted", inserted),
		)
	}
	return nil
}

// decimalTokenIDToHex converts the indexer's decimal token ID into the
// normalized hex form used as a storage key
func decimalTokenIDToHex(tokenID string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid token ID: %q", tokenID)
	}
	return domain.NormalizeTokenIDHex("0x" + n.Text(16)), nil
}

func parseContractType(value string) domain.ContractType {
	if strings.EqualFold(value, "ERC1155") {
		return domain.ContractTypeERC1155
	}
	return domain.ContractTypeERC721
}

func parseAmount(value string) int64 {
	amount, err := strconv.ParseInt(value, 10, 64)
	if err != nil || amount < 1 {
		return 1
	}
	return amount
}

// NftDepositConfirmerConfig holds configuration for the NFT deposit confirmer
type NftDepositConfirmerConfig struct {
	Interval time.Duration
	// MaxBatchAmount marks ERC-1155 transfers above this edition count as
	// anomalous; they are skipped instead of credited
	MaxBatchAmount int64
}

// nftDepositConfirmer checks receipts of ingested NFT deposits and credits confirmed ones
type nftDepositConfirmer struct {
	baseRunner
	config NftDepositConfirmerConfig
	rpc    *ethrpc.Clients
}

// NewNftDepositConfirmer creates the NFT deposit confirmation runner
func NewNftDepositConfirmer(config NftDepositConfirmerConfig, st store.Store, rpc *ethrpc.Clients, clock adapter.Clock) Runner {
	return &nftDepositConfirmer{
		baseRunner: newBaseRunner("nft-deposit-confirmer", config.Interval, clock, st),
		config:     config,
		rpc:        rpc,
	}
}

func (c *nftDepositConfirmer) Start(ctx context.Context) error {
	return c.run(ctx, c.cycle)
}

func (c *nftDepositConfirmer) cycle(ctx context.Context) error {
	for _, chain := range domain.Chains() {
		deposits, err := c.store.ListUncreditedWalletNftTxs(ctx, chain, confirmBatchSize)
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

func (c *nftDepositConfirmer) confirm(ctx context.Context, chain domain.Chain, deposit store.UncreditedNftDeposit) error {
	if c.config.MaxBatchAmount > 0 && deposit.Tx.Amount > c.config.MaxBatchAmount {
		logger.WarnCtx(ctx, "Skipping anomalous NFT deposit",
			zap.String("tx_hash", deposit.Tx.TxHash),
			zap.Int64("amount", deposit.Tx.Amount),
		)
		return c.store.SkipWalletNftTx(ctx, deposit.Tx.ID, "anomalous edition count")
	}

	receipt, err := c.rpc.TransactionReceipt(ctx, chain, deposit.Tx.TxHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Still pending, retry next cycle
			return nil
		}
		return fmt.Errorf("failed to fetch receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WarnCtx(ctx, "NFT deposit transaction failed on chain",
			zap.String("tx_hash", deposit.Tx.TxHash))
		return c.store.SkipWalletNftTx(ctx, deposit.Tx.ID, "transaction failed")
	}

	key := domain.AssetKey{
		Chain:        chain,
		TokenAddress: deposit.Tx.TokenAddress,
		TokenIDHex:   deposit.Tx.TokenIDHex,
	}
	if err := c.store.CreditNftDeposit(ctx, deposit.Tx.ID, deposit.Owner, key, deposit.Tx.Amount); err != nil {
		return fmt.Errorf("failed to credit NFT deposit: %w", err)
	}

	logger.InfoCtx(ctx, "Credited NFT deposit",
		zap.String("chain", string(chain)),
		zap.String("tx_hash", deposit.Tx.TxHash),
		zap.String("account", deposit.Owner.String()),
		zap.String("asset", key.String()),
		zap.Int64("amount", deposit.Tx.Amount),
	)
	return nil
}
