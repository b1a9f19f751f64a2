package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/store/schema"
)

// fakeAlchemy pages through a fixed token list the way the real API does:
// startToken selects the page, pageKey points at the next one.
type fakeAlchemy struct {
	pages    map[string]*alchemy.NFTPage
	calls    int
	stallKey string
}

func (f *fakeAlchemy) CollectionNFTs(_ context.Context, _ domain.Chain, _ string, startToken string, _ int) (*alchemy.NFTPage, error) {
	f.calls++
	if f.calls > 100 {
		return nil, fmt.Errorf("runaway pagination")
	}
	if f.stallKey != "" && startToken == f.stallKey {
		// Provider returns the same page and cursor forever
		return &alchemy.NFTPage{
			NFTs:    []alchemy.NFT{{TokenID: "999999", TokenType: "ERC721"}},
			PageKey: f.stallKey,
		}, nil
	}
	page, ok := f.pages[startToken]
	if !ok {
		return &alchemy.NFTPage{}, nil
	}
	return page, nil
}

func (f *fakeAlchemy) GetContractMetadata(context.Context, domain.Chain, string) (*alchemy.ContractMetadata, error) {
	return &alchemy.ContractMetadata{}, nil
}

// makePages builds a contiguous token enumeration split into pages
func makePages(total, perPage int) map[string]*alchemy.NFTPage {
	pages := make(map[string]*alchemy.NFTPage)
	cursor := ""
	for start := 0; start < total; start += perPage {
		end := start + perPage
		if end > total {
			end = total
		}
		page := &alchemy.NFTPage{}
		for i := start; i < end; i++ {
			page.NFTs = append(page.NFTs, alchemy.NFT{
				TokenID:   fmt.Sprintf("%d", i),
				TokenType: "ERC721",
				Name:      fmt.Sprintf("Token %d", i),
				Image:     alchemy.Image{OriginalURL: fmt.Sprintf("ipfs://Qm%d", i)},
			})
		}
		if end < total {
			page.PageKey = fmt.Sprintf("0x%x", end)
		}
		pages[cursor] = page
		cursor = page.PageKey
	}
	return pages
}

func trackedContract() schema.TrackedContract {
	return schema.TrackedContract{
		ID:           1,
		Chain:        domain.ChainEthereum,
		Address:      "0xcollection",
		ContractType: domain.ContractTypeERC721,
		Name:         "Test Collection",
		FetchEnabled: true,
	}
}

func newTestIngestor(st *fakeStore, a alchemy.Client, maxPerCycle int) *collectionIngestor {
	return NewCollectionIngestor(CollectionIngestorConfig{
		Interval:          time.Minute,
		MaxTokensPerCycle: maxPerCycle,
	}, st, a, &fakeClock{now: time.Now()}).(*collectionIngestor)
}

func TestCollectionIngestorFullEnumeration(t *testing.T) {
	st := newIngestFakeStore()
	st.contracts = []schema.TrackedContract{trackedContract()}
	a := &fakeAlchemy{pages: makePages(250, 100)}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	// 250 tokens over 3 pages, all inserted; the cursor lands on the last
	// token so later cycles only ask for newer mints
	assert.Equal(t, int64(250), st.tokenCount)
	assert.Equal(t, 3, a.calls)
	require.Len(t, st.fetchCursors, 1)
	assert.Equal(t, "0xf9", st.fetchCursors[0])
}

func TestCollectionIngestorDoesNotRewalkSyncedCollection(t *testing.T) {
	st := newIngestFakeStore()
	st.contracts = []schema.TrackedContract{trackedContract()}
	a := &fakeAlchemy{pages: makePages(250, 100)}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))
	require.Equal(t, int64(250), st.tokenCount)

	// Resume from the persisted cursor the way the scheduler would
	contract := trackedContract()
	cursor := st.fetchCursors[len(st.fetchCursors)-1]
	contract.LastTokenIDHex = &cursor
	st.contracts = []schema.TrackedContract{contract}

	require.NoError(t, ing.cycle(context.Background()))

	// One request past the high-water mark comes back empty; the full
	// three-page walk does not happen again and the cursor holds
	assert.Equal(t, 4, a.calls)
	assert.Equal(t, int64(250), st.tokenCount)
	assert.Equal(t, cursor, st.fetchCursors[len(st.fetchCursors)-1])
}

func TestCollectionIngestorPerCycleCap(t *testing.T) {
	st := newIngestFakeStore()
	st.contracts = []schema.TrackedContract{trackedContract()}
	a := &fakeAlchemy{pages: makePages(250, 100)}

	ing := newTestIngestor(st, a, 100)
	require.NoError(t, ing.cycle(context.Background()))

	// Cap reached after the first page; cursor points at page two
	assert.Equal(t, int64(100), st.tokenCount)
	require.Len(t, st.fetchCursors, 1)
	assert.Equal(t, "0x64", st.fetchCursors[0])

	// Next cycle resumes from the stored cursor
	contract := trackedContract()
	cursor := st.fetchCursors[0]
	contract.LastTokenIDHex = &cursor
	st.contracts = []schema.TrackedContract{contract}

	require.NoError(t, ing.cycle(context.Background()))
	assert.Equal(t, int64(200), st.tokenCount)
}

func TestCollectionIngestorStallDetection(t *testing.T) {
	st := newIngestFakeStore()
	contract := trackedContract()
	stall := "0xdead"
	contract.LastTokenIDHex = &stall
	st.contracts = []schema.TrackedContract{contract}

	a := &fakeAlchemy{stallKey: stall}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	// One page fetched, then the repeated cursor stops the loop
	assert.Equal(t, 1, a.calls)
	require.Len(t, st.fetchCursors, 1)
	assert.Equal(t, stall, st.fetchCursors[0])
}

func TestCollectionIngestorSkipsKnownTokens(t *testing.T) {
	st := newIngestFakeStore()
	st.contracts = []schema.TrackedContract{trackedContract()}
	st.tokensByHex["0x0"] = struct{}{}
	st.tokensByHex["0x1"] = struct{}{}

	a := &fakeAlchemy{pages: makePages(10, 10)}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	require.Len(t, st.upserted, 1)
	assert.Len(t, st.upserted[0], 8)
}

func TestCollectionIngestorMaxItems(t *testing.T) {
	st := newIngestFakeStore()
	contract := trackedContract()
	contract.MaxItems = 120
	st.contracts = []schema.TrackedContract{contract}

	a := &fakeAlchemy{pages: makePages(250, 100)}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	assert.Equal(t, int64(120), st.tokenCount)
}

func TestCollectionIngestorMaxItemsAlreadyReached(t *testing.T) {
	st := newIngestFakeStore()
	contract := trackedContract()
	contract.MaxItems = 50
	st.contracts = []schema.TrackedContract{contract}
	st.tokenCount = 50

	a := &fakeAlchemy{pages: makePages(250, 100)}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	// No provider calls, fetch time still advanced
	assert.Equal(t, 0, a.calls)
	require.Len(t, st.fetchCursors, 1)
	assert.Equal(t, "<unchanged>", st.fetchCursors[0])
}

func TestCollectionIngestorDedupsWithinPage(t *testing.T) {
	st := newIngestFakeStore()
	st.contracts = []schema.TrackedContract{trackedContract()}

	a := &fakeAlchemy{pages: map[string]*alchemy.NFTPage{
		"": {NFTs: []alchemy.NFT{
			{TokenID: "1", TokenType: "ERC721"},
			{TokenID: "1", TokenType: "ERC721"},
			{TokenID: "0x1", TokenType: "ERC721"},
			{TokenID: "2", TokenType: "ERC721"},
		}},
	}}

	ing := newTestIngestor(st, a, 0)
	require.NoError(t, ing.cycle(context.Background()))

	// "1", "0x1" and the duplicate all normalize to 0x1
	assert.Equal(t, int64(2), st.tokenCount)
}
