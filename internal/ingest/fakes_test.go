package ingest

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// fakeClock returns a fixed time and never blocks on After
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                  { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeStore implements the subset of store.Store the runners touch.
// Unimplemented methods panic via the embedded nil interface.
type fakeStore struct {
	store.Store

	recentHashes map[string]struct{}
	recentKeys   map[string]struct{}
	insertedTxs  []schema.WalletTx
	insertedNfts []schema.WalletNftTx

	uncredited    []store.UncreditedDeposit
	uncreditedNft []store.UncreditedNftDeposit

	failedIDs  []int64
	skipped    map[int64]string
	creditedTx []creditedDeposit

	contracts    []schema.TrackedContract
	tokenCount   int64
	tokensByHex  map[string]struct{}
	upserted     [][]schema.Token
	fetchCursors []string

	settings map[string]string
}

type creditedDeposit struct {
	id     int64
	owner  domain.AccountRef
	chain  domain.Chain
	amount decimal.Decimal
}

func newIngestFakeStore() *fakeStore {
	return &fakeStore{
		recentHashes: make(map[string]struct{}),
		recentKeys:   make(map[string]struct{}),
		skipped:      make(map[int64]string),
		tokensByHex:  make(map[string]struct{}),
		settings:     make(map[string]string),
	}
}

func (f *fakeStore) MaintenanceEnabled(context.Context) (bool, error) { return false, nil }

func (f *fakeStore) RecentWalletTxHashes(context.Context, domain.Chain, int) (map[string]struct{}, error) {
	return f.recentHashes, nil
}

func (f *fakeStore) InsertWalletTxs(_ context.Context, txs []schema.WalletTx) (int64, error) {
	f.insertedTxs = append(f.insertedTxs, txs...)
	return int64(len(txs)), nil
}

func (f *fakeStore) ListUncreditedWalletTxs(_ context.Context, chain domain.Chain, _ int) ([]store.UncreditedDeposit, error) {
	var out []store.UncreditedDeposit
	for _, d := range f.uncredited {
		if d.Tx.Chain == chain {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkWalletTxFailed(_ context.Context, id int64) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

func (f *fakeStore) CreditWalletDeposit(_ context.Context, id int64, ref domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	f.creditedTx = append(f.creditedTx, creditedDeposit{id, ref, chain, amount})
	return nil
}

func (f *fakeStore) RecentWalletNftTxKeys(context.Context, domain.Chain, int) (map[string]struct{}, error) {
	return f.recentKeys, nil
}

func (f *fakeStore) InsertWalletNftTxs(_ context.Context, txs []schema.WalletNftTx) (int64, error) {
	f.insertedNfts = append(f.insertedNfts, txs...)
	return int64(len(txs)), nil
}

func (f *fakeStore) ListUncreditedWalletNftTxs(_ context.Context, chain domain.Chain, _ int) ([]store.UncreditedNftDeposit, error) {
	var out []store.UncreditedNftDeposit
	for _, d := range f.uncreditedNft {
		if d.Tx.Chain == chain {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) SkipWalletNftTx(_ context.Context, id int64, reason string) error {
	f.skipped[id] = reason
	return nil
}

func (f *fakeStore) CreditNftDeposit(_ context.Context, id int64, ref domain.AccountRef, _ domain.AssetKey, _ int64) error {
	f.creditedTx = append(f.creditedTx, creditedDeposit{id: id, owner: ref})
	return nil
}

func (f *fakeStore) ListContractsDueForFetch(context.Context, int) ([]schema.TrackedContract, error) {
	return f.contracts, nil
}

func (f *fakeStore) CountTokens(context.Context, int64) (int64, error) {
	return f.tokenCount, nil
}

func (f *fakeStore) ExistingTokenIDHexes(_ context.Context, _ int64, hexes []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, hex := range hexes {
		if _, ok := f.tokensByHex[hex]; ok {
			out[hex] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertTokens(_ context.Context, tokens []schema.Token) (int64, error) {
	f.upserted = append(f.upserted, tokens)
	for _, token := range tokens {
		f.tokensByHex[token.TokenIDHex] = struct{}{}
	}
	f.tokenCount += int64(len(tokens))
	return int64(len(tokens)), nil
}

func (f *fakeStore) UpdateContractFetchState(_ context.Context, _ int64, lastTokenIDHex *string, _ time.Time) error {
	cursor := "<unchanged>"
	if lastTokenIDHex != nil {
		cursor = *lastTokenIDHex
	}
	f.fetchCursors = append(f.fetchCursors, cursor)
	return nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}

func big30Gwei() *big.Int {
	return new(big.Int).Mul(big.NewInt(30), big.NewInt(1_000_000_000))
}

// fakeEthClient implements adapter.EthClient for receipt polling tests
type fakeEthClient struct {
	receipts map[string]*types.Receipt
	gasPrice *big.Int
}

func (c *fakeEthClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := c.receipts[txHash.Hex()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeEthClient) BlockNumber(context.Context) (uint64, error) { return 0, nil }

func (c *fakeEthClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *fakeEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return c.gasPrice, nil
}

func (c *fakeEthClient) Close() {}
