// Package alchemy wraps the Alchemy NFT API used to enumerate the tokens
// of tracked contracts.
package alchemy

import (
	"context"
	"fmt"
	"net/url"

	"gorm.io/datatypes"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
)

// NFT represents a single token from the getNFTsForContract response
type NFT struct {
	TokenID   string         `json:"tokenId"`
	TokenType string         `json:"tokenType"`
	Name      string         `json:"name"`
	Image     Image          `json:"image"`
	Raw       RawMetadata    `json:"raw"`
	Contract  ContractDetail `json:"contract"`
}

// Image holds the media references of a token
type Image struct {
	CachedURL   string `json:"cachedUrl"`
	OriginalURL string `json:"originalUrl"`
}

// RawMetadata holds the unparsed token metadata
type RawMetadata struct {
	TokenURI string         `json:"tokenUri"`
	Metadata datatypes.JSON `json:"metadata"`
}

// ContractDetail holds the contract fields embedded in token responses
type ContractDetail struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	TokenType   string `json:"tokenType"`
	TotalSupply string `json:"totalSupply"`
}

// ContractMetadata is the getContractMetadata response
type ContractMetadata struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	TokenType   string `json:"tokenType"`
	TotalSupply string `json:"totalSupply"`
}

// NFTPage is one page of a contract enumeration. PageKey is empty on the
// last page; otherwise it is the startToken of the next page.
type NFTPage struct {
	NFTs    []NFT  `json:"nfts"`
	PageKey string `json:"pageKey"`
}

// Client defines the Alchemy operations used by the collection ingestor
type Client interface {
	// CollectionNFTs returns one page of tokens for a contract. startToken
	// empty starts from the beginning.
	CollectionNFTs(ctx context.Context, chain domain.Chain, contractAddress, startToken string, pageSize int) (*NFTPage, error)
	// GetContractMetadata returns the on-chain metadata of a contract
	GetContractMetadata(ctx context.Context, chain domain.Chain, contractAddress string) (*ContractMetadata, error)
}

type client struct {
	baseURLs   map[domain.Chain]string
	apiKey     string
	httpClient adapter.HTTPClient
}

// NewClient creates an Alchemy NFT API client. baseURLs maps each chain to
// its network endpoint root.
func NewClient(baseURLs map[domain.Chain]string, apiKey string, httpClient adapter.HTTPClient) Client {
	return &client{
		baseURLs:   baseURLs,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *client) endpoint(chain domain.Chain, method string) (string, error) {
	base, ok := c.baseURLs[chain]
	if !ok || base == "" {
		return "", fmt.Errorf("no alchemy endpoint configured for chain: %s", chain)
	}
	return fmt.Sprintf("%s/%s/%s", base, c.apiKey, method), nil
}

// CollectionNFTs retrieves one page of tokens for a contract
func (c *client) CollectionNFTs(ctx context.Context, chain domain.Chain, contractAddress, startToken string, pageSize int) (*NFTPage, error) {
	endpoint, err := c.endpoint(chain, "getNFTsForContract")
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("contractAddress", contractAddress)
	query.Set("withMetadata", "true")
	query.Set("limit", fmt.Sprintf("%d", pageSize))
	if startToken != "" {
		query.Set("startToken", startToken)
	}

	var page NFTPage
	if err := c.httpClient.Get(ctx, endpoint+"?"+query.Encode(), nil, &page); err != nil {
		return nil, fmt.Errorf("failed to get collection NFTs: %w", err)
	}

	return &page, nil
}

// GetContractMetadata retrieves the on-chain metadata of a contract
func (c *client) GetContractMetadata(ctx context.Context, chain domain.Chain, contractAddress string) (*ContractMetadata, error) {
	endpoint, err := c.endpoint(chain, "getContractMetadata")
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("contractAddress", contractAddress)

	var meta ContractMetadata
	if err := c.httpClient.Get(ctx, endpoint+"?"+query.Encode(), nil, &meta); err != nil {
		return nil, fmt.Errorf("failed to get contract metadata: %w", err)
	}

	return &meta, nil
}
