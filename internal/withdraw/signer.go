package withdraw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
)

// signerRequest is the payload sent to the signer service
type signerRequest struct {
	Chain        string `json:"chain"`
	Kind         string `json:"kind"`
	ContractType string `json:"contract_type,omitempty"`
	TokenAddress string `json:"token_address,omitempty"`
	TokenIDHex   string `json:"token_id_hex,omitempty"`
	Destination  string `json:"destination"`
	Amount       string `json:"amount"`
}

// signerResponse is the signer service's reply
type signerResponse struct {
	TxHash string `json:"tx_hash"`
}

// SignerClient implements Submitter against the signer sidecar, the only
// process holding the custodial wallet keys. It signs and broadcasts the
// transaction and returns its hash.
type SignerClient struct {
	baseURL    string
	httpClient adapter.HTTPClient
}

// NewSignerClient creates a signer service client
func NewSignerClient(baseURL string, httpClient adapter.HTTPClient) *SignerClient {
	return &SignerClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// SubmitGas sends native currency to the destination and returns the tx hash
func (c *SignerClient) SubmitGas(ctx context.Context, chain domain.Chain, destination string, amount decimal.Decimal) (string, error) {
	return c.submit(ctx, signerRequest{
		Chain:       string(chain),
		Kind:        "gas",
		Destination: destination,
		Amount:      amount.String(),
	})
}

// SubmitAsset sends NFT editions to the destination and returns the tx hash
func (c *SignerClient) SubmitAsset(ctx context.Context, chain domain.Chain, contractType domain.ContractType, key domain.AssetKey, destination string, amount int64) (string, error) {
	return c.submit(ctx, signerRequest{
		Chain:        string(chain),
		Kind:         "asset",
		ContractType: string(contractType),
		TokenAddress: key.TokenAddress,
		TokenIDHex:   key.TokenIDHex,
		Destination:  destination,
		Amount:       fmt.Sprintf("%d", amount),
	})
}

func (c *SignerClient) submit(ctx context.Context, req signerRequest) (string, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal signer request: %w", err)
	}

	responseBody, err := c.httpClient.Post(ctx, c.baseURL+"/v1/transactions", "application/json", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("signer request failed: %w", err)
	}

	var resp signerResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode signer response: %w", err)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("signer returned no transaction hash")
	}
	return resp.TxHash, nil
}
