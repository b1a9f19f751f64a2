package media

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time                  { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type fakeMediaStore struct {
	store.Store

	maintenance bool
	tokens      []schema.Token
	listCalls   int
	media       map[int64][2]string
}

func (f *fakeMediaStore) MaintenanceEnabled(context.Context) (bool, error) {
	return f.maintenance, nil
}

func (f *fakeMediaStore) ListTokensNeedingMedia(context.Context, int) ([]schema.Token, error) {
	f.listCalls++
	return f.tokens, nil
}

func (f *fakeMediaStore) SetTokenMedia(_ context.Context, tokenID int64, storedAs, mimeType string) error {
	if f.media == nil {
		f.media = make(map[int64][2]string)
	}
	f.media[tokenID] = [2]string{storedAs, mimeType}
	return nil
}

func newTestFetcher(st *fakeMediaStore, cache *Cache) *Fetcher {
	return NewFetcher(FetcherConfig{
		Interval:  time.Second,
		BatchSize: 10,
		PoolSize:  2,
		QueueSize: 10,
	}, cache, st, &fakeClock{now: time.Now()})
}

func TestFetcherSkipsCycleDuringMaintenance(t *testing.T) {
	st := &fakeMediaStore{
		maintenance: true,
		tokens:      []schema.Token{{ID: 1, ImageURI: strPtr("https://example.com/a.png")}},
	}
	f := newTestFetcher(st, newTestCache(&fakeHTTPClient{}, newFakeFileSystem()))

	require.NoError(t, f.runCycle(context.Background()))

	// The batch is never claimed while the flag is set
	assert.Equal(t, 0, st.listCalls)
	assert.Empty(t, st.media)
}

func TestFetcherMarksUnsupportedMedia(t *testing.T) {
	httpClient := &fakeHTTPClient{
		bytesByURL: map[string][]byte{"https://example.com/doc.pdf": []byte("%PDF-1.4 not artwork")},
	}
	st := &fakeMediaStore{}
	f := newTestFetcher(st, newTestCache(httpClient, newFakeFileSystem()))

	var cached, unsupported, failed atomic.Int32
	token := schema.Token{ID: 7, ImageURI: strPtr("https://example.com/doc.pdf")}
	f.cacheToken(context.Background(), token, &cached, &unsupported, &failed)

	// Marked so the next batch query no longer returns it
	assert.Equal(t, int32(1), unsupported.Load())
	assert.Equal(t, [2]string{"", "unsupported"}, st.media[7])
}

func strPtr(s string) *string { return &s }
