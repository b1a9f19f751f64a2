// Package moralis wraps the Moralis deep-index API used to watch the
// custodial wallets for incoming transfers.
package moralis

import (
	"context"
	"fmt"
	"net/url"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
)

// chainSlugs maps internal chain names to Moralis chain query values
var chainSlugs = map[domain.Chain]string{
	domain.ChainEthereum: "eth",
	domain.ChainPolygon:  "polygon",
}

// Transfer represents a native-currency transaction from the Moralis API
type Transfer struct {
	Hash           string `json:"hash"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	Value          string `json:"value"`
	BlockNumber    string `json:"block_number"`
	BlockTimestamp string `json:"block_timestamp"`
	ReceiptStatus  string `json:"receipt_status"`
}

// NFTTransfer represents an NFT transfer event from the Moralis API
type NFTTransfer struct {
	TransactionHash string `json:"transaction_hash"`
	LogIndex        int64  `json:"log_index"`
	TokenAddress    string `json:"token_address"`
	TokenID         string `json:"token_id"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	Amount          string `json:"amount"`
	ContractType    string `json:"contract_type"`
	BlockNumber     string `json:"block_number"`
	BlockTimestamp  string `json:"block_timestamp"`
}

// NFTOwner represents a current holder of a token from the Moralis API
type NFTOwner struct {
	TokenAddress string `json:"token_address"`
	TokenID      string `json:"token_id"`
	OwnerOf      string `json:"owner_of"`
	Amount       string `json:"amount"`
	ContractType string `json:"contract_type"`
}

type transfersResponse struct {
	Result []Transfer `json:"result"`
}

type nftTransfersResponse struct {
	Result []NFTTransfer `json:"result"`
}

type nftOwnersResponse struct {
	Result []NFTOwner `json:"result"`
}

// Client defines the Moralis operations used by the deposit ingestors
type Client interface {
	// WalletTransfers returns the most recent native transactions touching the address
	WalletTransfers(ctx context.Context, chain domain.Chain, address string, limit int) ([]Transfer, error)
	// WalletNFTTransfers returns the most recent NFT transfers touching the address
	WalletNFTTransfers(ctx context.Context, chain domain.Chain, address string, limit int) ([]NFTTransfer, error)
	// NFTOwners returns the current holders of a token for reconciliation
	// against the recorded holdings
	NFTOwners(ctx context.Context, chain domain.Chain, tokenAddress, tokenIDHex string) ([]NFTOwner, error)
}

type client struct {
	baseURL    string
	apiKey     string
	httpClient adapter.HTTPClient
}

// NewClient creates a Moralis API client
func NewClient(baseURL, apiKey string, httpClient adapter.HTTPClient) Client {
	return &client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *client) headers() map[string]string {
	return map[string]string{
		"X-API-Key": c.apiKey,
		"Accept":    "application/json",
	}
}

func (c *client) chainSlug(chain domain.Chain) (string, error) {
	slug, ok := chainSlugs[chain]
	if !ok {
		return "", fmt.Errorf("unsupported chain: %s", chain)
	}
	return slug, nil
}

// WalletTransfers retrieves native transactions for a wallet, newest first
func (c *client) WalletTransfers(ctx context.Context, chain domain.Chain, address string, limit int) ([]Transfer, error) {
	slug, err := c.chainSlug(chain)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?chain=%s&order=DESC&limit=%d",
		c.baseURL, url.PathEscape(address), slug, limit)

	var resp transfersResponse
	if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get wallet transfers: %w", err)
	}

	return resp.Result, nil
}

// WalletNFTTransfers retrieves NFT transfers for a wallet, newest first
func (c *client) WalletNFTTransfers(ctx context.Context, chain domain.Chain, address string, limit int) ([]NFTTransfer, error) {
	slug, err := c.chainSlug(chain)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/nft/transfers?chain=%s&format=decimal&order=DESC&limit=%d",
		c.baseURL, url.PathEscape(address), slug, limit)

	var resp nftTransfersResponse
	if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get wallet NFT transfers: %w", err)
	}

	return resp.Result, nil
}

// NFTOwners retrieves the current holders of a token
func (c *client) NFTOwners(ctx context.Context, chain domain.Chain, tokenAddress, tokenIDHex string) ([]NFTOwner, error) {
	slug, err := c.chainSlug(chain)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/nft/%s/%s/owners?chain=%s&format=decimal",
		c.baseURL, url.PathEscape(tokenAddress), url.PathEscape(tokenIDHex), slug)

	var resp nftOwnersResponse
	if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get NFT owners: %w", err)
	}

	return resp.Result, nil
}
