// Package ethrpc wraps per-chain JSON-RPC clients behind a small surface
// for receipt polling, balance reads and gas price lookups.
package ethrpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
)

// callTimeout caps individual RPC round trips
const callTimeout = 8 * time.Second

// Clients holds one connected client per supported chain
type Clients struct {
	clients map[domain.Chain]adapter.EthClient
}

// Dial connects to every chain in rpcURLs and returns the aggregate
func Dial(ctx context.Context, dialer adapter.EthClientDialer, rpcURLs map[domain.Chain]string) (*Clients, error) {
	clients := make(map[domain.Chain]adapter.EthClient, len(rpcURLs))
	for chain, rawurl := range rpcURLs {
		client, err := dialer.Dial(ctx, rawurl)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to dial %s rpc: %w", chain, err)
		}
		clients[chain] = client
	}
	return &Clients{clients: clients}, nil
}

// NewClients wraps pre-connected clients, used by tests
func NewClients(clients map[domain.Chain]adapter.EthClient) *Clients {
	return &Clients{clients: clients}
}

func (c *Clients) client(chain domain.Chain) (adapter.EthClient, error) {
	client, ok := c.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no rpc client for chain: %s", chain)
	}
	return client, nil
}

// TransactionReceipt fetches the receipt of a transaction on the given chain.
// Returns ethereum.NotFound while the transaction is still pending.
func (c *Clients) TransactionReceipt(ctx context.Context, chain domain.Chain, txHash string) (*types.Receipt, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return client.TransactionReceipt(callCtx, common.HexToHash(txHash))
}

// WalletBalance returns the current wei balance of an address
func (c *Clients) WalletBalance(ctx context.Context, chain domain.Chain, address string) (*big.Int, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return client.BalanceAt(callCtx, common.HexToAddress(address), nil)
}

// BlockNumber returns the most recent block number on the given chain
func (c *Clients) BlockNumber(ctx context.Context, chain domain.Chain) (uint64, error) {
	client, err := c.client(chain)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return client.BlockNumber(callCtx)
}

// SuggestGasPrice returns the suggested gas price in wei on the given chain
func (c *Clients) SuggestGasPrice(ctx context.Context, chain domain.Chain) (*big.Int, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return client.SuggestGasPrice(callCtx)
}

// Close closes all underlying connections
func (c *Clients) Close() {
	for _, client := range c.clients {
		client.Close()
	}
}
