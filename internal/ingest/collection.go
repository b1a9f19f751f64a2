package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

const (
	// pageSize is the number of tokens requested per enumeration page
	pageSize = 100
	// contractsPerCycle caps how many contracts one cycle touches
	contractsPerCycle = 5
)

// CollectionIngestorConfig holds configuration for the collection ingestor
type CollectionIngestorConfig struct {
	Interval time.Duration
	// MaxTokensPerCycle caps tokens pulled for a single contract per cycle;
	// the cursor is persisted so the next cycle resumes where this one stopped
	MaxTokensPerCycle int
}

// collectionIngestor enumerates the tokens of tracked contracts page by page
type collectionIngestor struct {
	baseRunner
	config  CollectionIngestorConfig
	alchemy alchemy.Client
}

// NewCollectionIngestor creates the collection discovery runner
func NewCollectionIngestor(config CollectionIngestorConfig, st store.Store, a alchemy.Client, clock adapter.Clock) Runner {
	return &collectionIngestor{
		baseRunner: newBaseRunner("collection-ingestor", config.Interval, clock, st),
		config:     config,
		alchemy:    a,
	}
}

func (c *collectionIngestor) Start(ctx context.Context) error {
	return c.run(ctx, c.cycle)
}

func (c *collectionIngestor) cycle(ctx context.Context) error {
	contracts, err := c.store.ListContractsDueForFetch(ctx, contractsPerCycle)
	if err != nil {
		return fmt.Errorf("failed to list contracts due for fetch: %w", err)
	}

	for _, contract := range contracts {
		if err := c.fetchContract(ctx, contract); err != nil {
			logger.ErrorCtx(ctx, err,
				zap.String("chain", string(contract.Chain)),
				zap.String("contract", contract.Address),
			)
		}
	}
	return nil
}

// fetchContract pulls token pages for one contract until the enumeration
// completes, stalls, or the per-cycle cap is reached. Progress is flushed
// page by page so a failure mid-enumeration loses at most one page.
func (c *collectionIngestor) fetchContract(ctx context.Context, contract schema.TrackedContract) error {
	remaining := int64(-1)
	if contract.MaxItems > 0 {
		count, err := c.store.CountTokens(ctx, contract.ID)
		if err != nil {
			return fmt.Errorf("failed to count tokens: %w", err)
		}
		remaining = contract.MaxItems - count
		if remaining <= 0 {
			logger.DebugCtx(ctx, "Contract at max items, skipping fetch",
				zap.String("contract", contract.Address))
			return c.store.UpdateContractFetchState(ctx, contract.ID, nil, c.clock.Now())
		}
	}

	cursor := ""
	if contract.LastTokenIDHex != nil {
		cursor = *contract.LastTokenIDHex
	}

	var fetched, inserted int64
	highWater := cursor
	for {
		page, err := c.alchemy.CollectionNFTs(ctx, contract.Chain, contract.Address, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch collection page: %w", err)
		}
		if len(page.NFTs) == 0 {
			// Nothing beyond the stored high-water mark; keep the cursor so
			// the next cycle asks only for tokens minted after it
			cursor = highWater
			break
		}

		n, err := c.storePage(ctx, &contract, page.NFTs, remaining)
		if err != nil {
			return err
		}
		inserted += n
		fetched += int64(len(page.NFTs))
		if hw := pageHighWater(page.NFTs); hw != "" {
			highWater = hw
		}
		if remaining > 0 {
			remaining -= n
			if remaining <= 0 {
				cursor = page.PageKey
				if cursor == "" {
					cursor = highWater
				}
				break
			}
		}

		if page.PageKey == "" {
			// Enumeration complete; resume from the newest stored token next
			// cycle instead of re-walking the whole collection
			cursor = highWater
			break
		}
		if page.PageKey == cursor {
			// A repeated cursor means the provider stopped advancing;
			// bail out instead of spinning on the same page
			logger.WarnCtx(ctx, "Collection enumeration stalled",
				zap.String("contract", contract.Address),
				zap.String("cursor", cursor),
			)
			break
		}
		cursor = page.PageKey

		if c.config.MaxTokensPerCycle > 0 && fetched >= int64(c.config.MaxTokensPerCycle) {
			break
		}
	}

	if err := c.store.UpdateContractFetchState(ctx, contract.ID, &cursor, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to update fetch state: %w", err)
	}

	if inserted > 0 {
		logger.InfoCtx(ctx, "Discovered collection tokens",
			zap.String("chain", string(contract.Chain)),
			zap.String("contract", contract.Address),
			zap.Int64("fetched", fetched),
			zap.Int64("inserted", inserted),
		)
	}
	return nil
}

// pageHighWater returns the normalized hex ID of the last parseable token on
// a page. Pages arrive in ascending token order, so that is the page's
// high-water mark.
func pageHighWater(nfts []alchemy.NFT) string {
	for i := len(nfts) - 1; i >= 0; i-- {
		if strings.HasPrefix(nfts[i].TokenID, "0x") {
			return domain.NormalizeTokenIDHex(nfts[i].TokenID)
		}
		if hex, err := decimalTokenIDToHex(nfts[i].TokenID); err == nil {
			return hex
		}
	}
	return ""
}

// storePage converts one provider page into token rows and inserts the new
// ones. limit < 0 means unlimited.
func (c *collectionIngestor) storePage(ctx context.Context, contract *schema.TrackedContract, nfts []alchemy.NFT, limit int64) (int64, error) {
	seen := make(map[string]struct{}, len(nfts))
	hexes := make([]string, 0, len(nfts))
	byHex := make(map[string]alchemy.NFT, len(nfts))

	for _, nft := range nfts {
		var hex string
		if strings.HasPrefix(nft.TokenID, "0x") {
			hex = domain.NormalizeTokenIDHex(nft.TokenID)
		} else {
			converted, err := decimalTokenIDToHex(nft.TokenID)
			if err != nil {
				logger.WarnCtx(ctx, "Skipping token with unparseable ID",
					zap.String("contract", contract.Address),
					zap.String("token_id", nft.TokenID),
				)
				continue
			}
			hex = converted
		}
		// Providers occasionally repeat a token within one page
		if _, dup := seen[hex]; dup {
			continue
		}
		seen[hex] = struct{}{}
		hexes = append(hexes, hex)
		byHex[hex] = nft
	}

	if len(hexes) == 0 {
		return 0, nil
	}

	existing, err := c.store.ExistingTokenIDHexes(ctx, contract.ID, hexes)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing tokens: %w", err)
	}

	var rows []schema.Token
	for _, hex := range hexes {
		if _, ok := existing[hex]; ok {
			continue
		}
		if limit >= 0 && int64(len(rows)) >= limit {
			break
		}
		nft := byHex[hex]
		row := schema.Token{
			TrackedContractID: contract.ID,
			TokenIDHex:        hex,
			TokenIDInt:        domain.TokenIDHexToInt(hex),
			TokenType:         parseContractType(nft.TokenType),
			Metadata:          nft.Raw.Metadata,
		}
		if nft.Name != "" {
			row.Title = &nft.Name
		}
		if uri := mediaURI(nft); uri != "" {
			row.ImageURI = &uri
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return 0, nil
	}
	return c.store.UpsertTokens(ctx, rows)
}

// mediaURI picks the original media reference, falling back to the provider cache
func mediaURI(nft alchemy.NFT) string {
	if nft.Image.OriginalURL != "" {
		return nft.Image.OriginalURL
	}
	return nft.Image.CachedURL
}
