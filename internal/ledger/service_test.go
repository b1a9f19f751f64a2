package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// fakeStore implements the subset of store.Store the ledger touches.
// Unimplemented methods panic via the embedded nil interface.
type fakeStore struct {
	store.Store

	accounts map[string]*schema.Account

	transferGasCalls []transferGasCall
	transferAssetErr error
	transferGasErr   error
}

type transferGasCall struct {
	from, to domain.AccountRef
	chain    domain.Chain
	amount   decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]*schema.Account)}
}

func (f *fakeStore) addAccount(ref domain.AccountRef, frozen bool) {
	f.accounts[ref.String()] = &schema.Account{
		UserID:     ref.UserID,
		PlatformID: ref.PlatformID,
		Frozen:     frozen,
	}
}

func (f *fakeStore) GetAccount(_ context.Context, ref domain.AccountRef) (*schema.Account, error) {
	return f.accounts[ref.String()], nil
}

func (f *fakeStore) TransferGas(_ context.Context, from, to domain.AccountRef, chain domain.Chain, amount decimal.Decimal) error {
	if f.transferGasErr != nil {
		return f.transferGasErr
	}
	f.transferGasCalls = append(f.transferGasCalls, transferGasCall{from, to, chain, amount})
	return nil
}

func (f *fakeStore) TransferAsset(_ context.Context, _ domain.AssetKey, _, _ domain.AccountRef, _ int64) error {
	return f.transferAssetErr
}

var (
	alice = domain.AccountRef{UserID: "alice", PlatformID: "discord"}
	bob   = domain.AccountRef{UserID: "bob", PlatformID: "discord"}
)

func TestTip(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeStore)
		from, to  domain.AccountRef
		chain     domain.Chain
		amount    string
		maxTip    string
		wantErr   error
		wantCalls int
	}{
		{
			name:      "valid tip",
			setup:     func(f *fakeStore) { f.addAccount(alice, false) },
			from:      alice,
			to:        bob,
			chain:     domain.ChainEthereum,
			amount:    "0.5",
			wantCalls: 1,
		},
		{
			name:    "self transfer rejected",
			setup:   func(f *fakeStore) { f.addAccount(alice, false) },
			from:    alice,
			to:      alice,
			chain:   domain.ChainEthereum,
			amount:  "0.5",
			wantErr: domain.ErrSelfTransfer,
		},
		{
			name:    "zero amount rejected",
			setup:   func(f *fakeStore) { f.addAccount(alice, false) },
			from:    alice,
			to:      bob,
			chain:   domain.ChainEthereum,
			amount:  "0",
			wantErr: domain.ErrAmountNotPositive,
		},
		{
			name:    "negative amount rejected",
			setup:   func(f *fakeStore) { f.addAccount(alice, false) },
			from:    alice,
			to:      bob,
			chain:   domain.ChainPolygon,
			amount:  "-1",
			wantErr: domain.ErrAmountNotPositive,
		},
		{
			name:    "dust below scale truncates to zero",
			setup:   func(f *fakeStore) { f.addAccount(alice, false) },
			from:    alice,
			to:      bob,
			chain:   domain.ChainEthereum,
			amount:  "0.00009",
			wantErr: domain.ErrAmountNotPositive,
		},
		{
			name:    "over cap rejected",
			setup:   func(f *fakeStore) { f.addAccount(alice, false) },
			from:    alice,
			to:      bob,
			chain:   domain.ChainEthereum,
			amount:  "11",
			maxTip:  "10",
			wantErr: domain.ErrAmountTooLarge,
		},
		{
			name:    "unknown sender",
			setup:   func(_ *fakeStore) {},
			from:    alice,
			to:      bob,
			chain:   domain.ChainEthereum,
			amount:  "1",
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:    "frozen sender",
			setup:   func(f *fakeStore) { f.addAccount(alice, true) },
			from:    alice,
			to:      bob,
			chain:   domain.ChainEthereum,
			amount:  "1",
			wantErr: domain.ErrAccountFrozen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore()
			tt.setup(f)

			maxTip := decimal.Zero
			if tt.maxTip != "" {
				maxTip = decimal.RequireFromString(tt.maxTip)
			}
			svc := NewService(f, maxTip)

			err := svc.Tip(context.Background(), tt.from, tt.to, tt.chain, decimal.RequireFromString(tt.amount))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, f.transferGasCalls, tt.wantCalls)
		})
	}
}

func TestTipInvalidChain(t *testing.T) {
	f := newFakeStore()
	f.addAccount(alice, false)
	svc := NewService(f, decimal.Zero)

	err := svc.Tip(context.Background(), alice, bob, domain.Chain("solana"), decimal.NewFromInt(1))
	assert.Error(t, err)
	assert.Empty(t, f.transferGasCalls)
}

func TestTipTruncatesAmount(t *testing.T) {
	f := newFakeStore()
	f.addAccount(alice, false)
	svc := NewService(f, decimal.Zero)

	err := svc.Tip(context.Background(), alice, bob, domain.ChainEthereum, decimal.RequireFromString("0.123456789"))
	require.NoError(t, err)
	require.Len(t, f.transferGasCalls, 1)
	assert.True(t, f.transferGasCalls[0].amount.Equal(decimal.RequireFromString("0.1234")))
}

func TestTipInsufficientBalancePassesThrough(t *testing.T) {
	f := newFakeStore()
	f.addAccount(alice, false)
	f.transferGasErr = domain.ErrInsufficientBalance
	svc := NewService(f, decimal.Zero)

	err := svc.Tip(context.Background(), alice, bob, domain.ChainEthereum, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestTipAsset(t *testing.T) {
	key := domain.AssetKey{
		Chain:        domain.ChainEthereum,
		TokenAddress: "0xabc",
		TokenIDHex:   "0x1",
	}

	t.Run("valid transfer", func(t *testing.T) {
		f := newFakeStore()
		f.addAccount(alice, false)
		svc := NewService(f, decimal.Zero)

		assert.NoError(t, svc.TipAsset(context.Background(), key, alice, bob, 1))
	})

	t.Run("not owned maps from insufficient balance", func(t *testing.T) {
		f := newFakeStore()
		f.addAccount(alice, false)
		f.transferAssetErr = domain.ErrInsufficientBalance
		svc := NewService(f, decimal.Zero)

		err := svc.TipAsset(context.Background(), key, alice, bob, 1)
		assert.ErrorIs(t, err, domain.ErrAssetNotOwned)
	})

	t.Run("frozen sender", func(t *testing.T) {
		f := newFakeStore()
		f.addAccount(alice, true)
		svc := NewService(f, decimal.Zero)

		err := svc.TipAsset(context.Background(), key, alice, bob, 1)
		assert.ErrorIs(t, err, domain.ErrAccountFrozen)
	})

	t.Run("zero amount", func(t *testing.T) {
		f := newFakeStore()
		f.addAccount(alice, false)
		svc := NewService(f, decimal.Zero)

		err := svc.TipAsset(context.Background(), key, alice, bob, 0)
		assert.ErrorIs(t, err, domain.ErrAmountNotPositive)
	})
}

func TestBalance(t *testing.T) {
	f := newFakeStore()
	f.addAccount(alice, false)
	svc := NewService(f, decimal.Zero)

	account, err := svc.Balance(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.UserID)

	_, err = svc.Balance(context.Background(), bob)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
