package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/providers/moralis"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

const custodialWallet = "0xCAFE000000000000000000000000000000000001"

// fakeMoralis serves canned transfer lists
type fakeMoralis struct {
	transfers    []moralis.Transfer
	nftTransfers []moralis.NFTTransfer
}

func (f *fakeMoralis) WalletTransfers(context.Context, domain.Chain, string, int) ([]moralis.Transfer, error) {
	return f.transfers, nil
}

func (f *fakeMoralis) WalletNFTTransfers(context.Context, domain.Chain, string, int) ([]moralis.NFTTransfer, error) {
	return f.nftTransfers, nil
}

func (f *fakeMoralis) NFTOwners(context.Context, domain.Chain, string, string) ([]moralis.NFTOwner, error) {
	return nil, nil
}

func testRPC(receipts map[string]*types.Receipt) *ethrpc.Clients {
	client := &fakeEthClient{receipts: receipts}
	return ethrpc.NewClients(map[domain.Chain]adapter.EthClient{
		domain.ChainEthereum: client,
		domain.ChainPolygon:  client,
	})
}

func TestDepositPollerFiltersTransfers(t *testing.T) {
	st := newIngestFakeStore()
	st.recentHashes["0xknown"] = struct{}{}

	m := &fakeMoralis{transfers: []moralis.Transfer{
		{
			// New inbound deposit, should be ingested
			Hash:           "0xNEW",
			FromAddress:    "0xSender",
			ToAddress:      custodialWallet,
			Value:          "1500000000000000000",
			BlockNumber:    "100",
			BlockTimestamp: "2026-08-01T10:00:00Z",
		},
		{
			// Already stored
			Hash:      "0xKNOWN",
			ToAddress: custodialWallet,
			Value:     "1",
		},
		{
			// Outbound, not a deposit
			Hash:        "0xout",
			FromAddress: custodialWallet,
			ToAddress:   "0xsomeone",
			Value:       "1",
		},
		{
			// Zero value
			Hash:      "0xzero",
			ToAddress: custodialWallet,
			Value:     "0",
		},
	}}

	poller := NewDepositPoller(DepositPollerConfig{
		Interval:      time.Second,
		RecencyWindow: 200,
		Wallets:       map[domain.Chain]string{domain.ChainEthereum: custodialWallet},
	}, st, m, &fakeClock{now: time.Now()}).(*depositPoller)

	require.NoError(t, poller.cycle(context.Background()))

	require.Len(t, st.insertedTxs, 1)
	tx := st.insertedTxs[0]
	assert.Equal(t, "0xnew", tx.TxHash)
	assert.Equal(t, "0xsender", tx.FromAddress)
	assert.Equal(t, "1500000000000000000", tx.ValueWei)
	assert.Equal(t, uint64(100), tx.BlockNumber)
	assert.Equal(t, domain.ChainEthereum, tx.Chain)
}

func TestDepositConfirmer(t *testing.T) {
	owner := domain.AccountRef{UserID: "alice", PlatformID: "discord"}

	pendingHash := common.HexToHash("0x01")
	failedHash := common.HexToHash("0x02")
	confirmedHash := common.HexToHash("0x03")

	st := newIngestFakeStore()
	st.uncredited = []store.UncreditedDeposit{
		{Tx: schema.WalletTx{ID: 1, Chain: domain.ChainEthereum, TxHash: pendingHash.Hex(), ValueWei: "1000000000000000000"}, Owner: owner},
		{Tx: schema.WalletTx{ID: 2, Chain: domain.ChainEthereum, TxHash: failedHash.Hex(), ValueWei: "1000000000000000000"}, Owner: owner},
		{Tx: schema.WalletTx{ID: 3, Chain: domain.ChainEthereum, TxHash: confirmedHash.Hex(), ValueWei: "2500000000000000000"}, Owner: owner},
	}

	rpc := testRPC(map[string]*types.Receipt{
		failedHash.Hex():    {Status: types.ReceiptStatusFailed},
		confirmedHash.Hex(): {Status: types.ReceiptStatusSuccessful},
	})

	confirmer := NewDepositConfirmer(DepositConfirmerConfig{Interval: time.Second},
		st, rpc, &fakeClock{now: time.Now()}).(*depositConfirmer)

	require.NoError(t, confirmer.cycle(context.Background()))

	// Pending deposit untouched, failed one marked, confirmed one credited
	assert.Equal(t, []int64{2}, st.failedIDs)
	require.Len(t, st.creditedTx, 1)
	assert.Equal(t, int64(3), st.creditedTx[0].id)
	assert.Equal(t, owner, st.creditedTx[0].owner)
	assert.True(t, st.creditedTx[0].amount.Equal(decimal.RequireFromString("2.5")),
		"got %s", st.creditedTx[0].amount)
}

func TestNftDepositPollerNormalizesTokenIDs(t *testing.T) {
	st := newIngestFakeStore()

	m := &fakeMoralis{nftTransfers: []moralis.NFTTransfer{
		{
			TransactionHash: "0xAAA",
			LogIndex:        7,
			TokenAddress:    "0xContract",
			TokenID:         "255",
			FromAddress:     "0xSender",
			ToAddress:       custodialWallet,
			Amount:          "3",
			ContractType:    "ERC1155",
			BlockNumber:     "42",
		},
		{
			// Unparseable token ID is dropped
			TransactionHash: "0xbbb",
			TokenID:         "not-a-number",
			ToAddress:       custodialWallet,
		},
	}}

	poller := NewNftDepositPoller(NftDepositPollerConfig{
		Interval:      time.Second,
		RecencyWindow: 200,
		Wallets:       map[domain.Chain]string{domain.ChainPolygon: custodialWallet},
	}, st, m, &fakeClock{now: time.Now()}).(*nftDepositPoller)

	require.NoError(t, poller.cycle(context.Background()))

	require.Len(t, st.insertedNfts, 1)
	row := st.insertedNfts[0]
	assert.Equal(t, "0xaaa", row.TxHash)
	assert.Equal(t, "0xcontract", row.TokenAddress)
	assert.Equal(t, "0xff", row.TokenIDHex)
	assert.Equal(t, uint64(7), row.LogIndex)
	assert.Equal(t, domain.ContractTypeERC1155, row.ContractType)
	assert.Equal(t, int64(3), row.Amount)
}

func TestNftDepositPollerKeepsDistinctLogIndexes(t *testing.T) {
	st := newIngestFakeStore()
	// The first transfer of this token is already stored; a second transfer
	// of the same token in the same transaction differs only by log index
	stored := schema.WalletNftTx{
		TxHash: "0xaaa", TokenAddress: "0xcontract", TokenIDHex: "0x1", LogIndex: 1,
	}
	st.recentKeys = map[string]struct{}{stored.EventKey(): {}}

	m := &fakeMoralis{nftTransfers: []moralis.NFTTransfer{
		{
			TransactionHash: "0xaaa", LogIndex: 1, TokenAddress: "0xcontract",
			TokenID: "1", ToAddress: custodialWallet, Amount: "1", ContractType: "ERC1155",
		},
		{
			TransactionHash: "0xaaa", LogIndex: 2, TokenAddress: "0xcontract",
			TokenID: "1", ToAddress: custodialWallet, Amount: "1", ContractType: "ERC1155",
		},
	}}

	poller := NewNftDepositPoller(NftDepositPollerConfig{
		Interval:      time.Second,
		RecencyWindow: 200,
		Wallets:       map[domain.Chain]string{domain.ChainEthereum: custodialWallet},
	}, st, m, &fakeClock{now: time.Now()}).(*nftDepositPoller)

	require.NoError(t, poller.cycle(context.Background()))

	// Log index 1 is filtered as known, log index 2 still goes in
	require.Len(t, st.insertedNfts, 1)
	assert.Equal(t, uint64(2), st.insertedNfts[0].LogIndex)
}

func TestNftDepositConfirmerSkipsAnomalousAmount(t *testing.T) {
	owner := domain.AccountRef{UserID: "bob", PlatformID: "discord"}
	hash := common.HexToHash("0x04")

	st := newIngestFakeStore()
	st.uncreditedNft = []store.UncreditedNftDeposit{
		{
			Tx: schema.WalletNftTx{
				ID: 9, Chain: domain.ChainEthereum, TxHash: hash.Hex(),
				TokenAddress: "0xc", TokenIDHex: "0x1", Amount: 5000,
			},
			Owner: owner,
		},
	}

	rpc := testRPC(map[string]*types.Receipt{
		hash.Hex(): {Status: types.ReceiptStatusSuccessful},
	})

	confirmer := NewNftDepositConfirmer(NftDepositConfirmerConfig{
		Interval:       time.Second,
		MaxBatchAmount: 1000,
	}, st, rpc, &fakeClock{now: time.Now()}).(*nftDepositConfirmer)

	require.NoError(t, confirmer.cycle(context.Background()))

	assert.Empty(t, st.creditedTx)
	assert.Equal(t, "anomalous edition count", st.skipped[9])
}

func TestNftDepositConfirmerCreditsConfirmed(t *testing.T) {
	owner := domain.AccountRef{UserID: "bob", PlatformID: "discord"}
	hash := common.HexToHash("0x05")

	st := newIngestFakeStore()
	st.uncreditedNft = []store.UncreditedNftDeposit{
		{
			Tx: schema.WalletNftTx{
				ID: 10, Chain: domain.ChainEthereum, TxHash: hash.Hex(),
				TokenAddress: "0xc", TokenIDHex: "0x1", Amount: 1,
			},
			Owner: owner,
		},
	}

	rpc := testRPC(map[string]*types.Receipt{
		hash.Hex(): {Status: types.ReceiptStatusSuccessful},
	})

	confirmer := NewNftDepositConfirmer(NftDepositConfirmerConfig{
		Interval:       time.Second,
		MaxBatchAmount: 1000,
	}, st, rpc, &fakeClock{now: time.Now()}).(*nftDepositConfirmer)

	require.NoError(t, confirmer.cycle(context.Background()))

	require.Len(t, st.creditedTx, 1)
	assert.Equal(t, int64(10), st.creditedTx[0].id)
	assert.Empty(t, st.skipped)
}

func TestGasTrackerStoresSnapshot(t *testing.T) {
	st := newIngestFakeStore()
	client := &fakeEthClient{gasPrice: big30Gwei()}
	rpc := ethrpc.NewClients(map[domain.Chain]adapter.EthClient{
		domain.ChainEthereum: client,
		domain.ChainPolygon:  client,
	})

	tracker := NewGasTracker(GasTrackerConfig{Interval: time.Minute},
		st, rpc, &fakeClock{now: time.Now()}).(*gasTracker)

	require.NoError(t, tracker.cycle(context.Background()))

	for _, chain := range domain.Chains() {
		payload := st.settings[store.SettingGasPricesPrefix+string(chain)]
		assert.Contains(t, payload, `"wei":"30000000000"`)
		assert.Contains(t, payload, `"gwei":"30"`)
	}
}
