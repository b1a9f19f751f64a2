package rest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/ledger"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
	"github.com/chainfund/custodian/internal/withdraw"
)

// Handler defines the REST API handlers
type Handler interface {
	// GetBalance returns an account's gas balances
	// GET /v1/accounts/:platform/:user/balance
	GetBalance(c *gin.Context)

	// GetAssets returns an account's custodial NFT holdings
	// GET /v1/accounts/:platform/:user/assets
	GetAssets(c *gin.Context)

	// CreateTip moves gas or editions between two accounts
	// POST /v1/tips
	CreateTip(c *gin.Context)

	// CreateWithdrawal submits an outbound transfer
	// POST /v1/withdrawals
	CreateWithdrawal(c *gin.Context)

	// GetGasPrices returns the latest gas price snapshot per chain
	// GET /v1/gas-prices
	GetGasPrices(c *gin.Context)

	// RegisterContract registers an NFT collection for crediting and discovery
	// POST /v1/contracts
	RegisterContract(c *gin.Context)

	// UpsertVerifiedAddress links an external wallet address to a platform user
	// POST /v1/verified-addresses
	UpsertVerifiedAddress(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	ledger      *ledger.Service
	coordinator *withdraw.Coordinator
	store       store.Store
	alchemy     alchemy.Client
}

// NewHandler creates a new REST API handler
func NewHandler(ledgerSvc *ledger.Service, coordinator *withdraw.Coordinator, st store.Store, alchemyClient alchemy.Client) Handler {
	return &handler{
		ledger:      ledgerSvc,
		coordinator: coordinator,
		store:       st,
		alchemy:     alchemyClient,
	}
}

func accountRefFromPath(c *gin.Context) (domain.AccountRef, bool) {
	ref := domain.AccountRef{
		UserID:     c.Param("user"),
		PlatformID: c.Param("platform"),
	}
	if ref.UserID == "" || ref.PlatformID == "" {
		respondBadRequest(c, "platform and user are required")
		return domain.AccountRef{}, false
	}
	return ref, true
}

// balanceResponse is the GET balance payload
type balanceResponse struct {
	UserID     string            `json:"user_id"`
	PlatformID string            `json:"platform_id"`
	Balances   map[string]string `json:"balances"`
	Frozen     bool              `json:"frozen"`
}

// GetBalance returns an account's gas balances
func (h *handler) GetBalance(c *gin.Context) {
	ref, ok := accountRefFromPath(c)
	if !ok {
		return
	}

	account, err := h.ledger.Balance(c.Request.Context(), ref)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	balances := make(map[string]string, 2)
	for _, chain := range domain.Chains() {
		balances[string(chain)] = account.GasBalance(chain).String()
	}
	c.JSON(http.StatusOK, balanceResponse{
		UserID:     account.UserID,
		PlatformID: account.PlatformID,
		Balances:   balances,
		Frozen:     account.Frozen,
	})
}

// assetResponse is one custodial holding in the GET assets payload
type assetResponse struct {
	Chain        string `json:"chain"`
	TokenAddress string `json:"token_address"`
	TokenIDHex   string `json:"token_id_hex"`
	Amount       int64  `json:"amount"`
}

// GetAssets returns an account's custodial NFT holdings
func (h *handler) GetAssets(c *gin.Context) {
	ref, ok := accountRefFromPath(c)
	if !ok {
		return
	}

	credits, err := h.ledger.AssetsOf(c.Request.Context(), ref)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	assets := make([]assetResponse, 0, len(credits))
	for _, credit := range credits {
		assets = append(assets, assetResponse{
			Chain:        string(credit.Chain),
			TokenAddress: credit.TokenAddress,
			TokenIDHex:   credit.TokenIDHex,
			Amount:       credit.Amount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

// tipRequest is the POST tips payload. TokenAddress empty means a gas tip;
// otherwise Editions of the asset move between the accounts.
type tipRequest struct {
	PlatformID   string `json:"platform_id" binding:"required"`
	FromUserID   string `json:"from_user_id" binding:"required"`
	ToUserID     string `json:"to_user_id" binding:"required"`
	Chain        string `json:"chain" binding:"required"`
	Amount       string `json:"amount"`
	TokenAddress string `json:"token_address"`
	TokenIDHex   string `json:"token_id_hex"`
	Editions     int64  `json:"editions"`
}

// CreateTip moves gas or editions between two accounts
func (h *handler) CreateTip(c *gin.Context) {
	var req tipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	from := domain.AccountRef{UserID: req.FromUserID, PlatformID: req.PlatformID}
	to := domain.AccountRef{UserID: req.ToUserID, PlatformID: req.PlatformID}
	chain := domain.Chain(strings.ToLower(req.Chain))

	if req.TokenAddress != "" {
		key := domain.AssetKey{
			Chain:        chain,
			TokenAddress: strings.ToLower(req.TokenAddress),
			TokenIDHex:   domain.NormalizeTokenIDHex(req.TokenIDHex),
		}
		if err := h.ledger.TipAsset(c.Request.Context(), key, from, to, req.Editions); err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "ok"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondValidationError(c, "amount must be a decimal number")
		return
	}
	if err := h.ledger.Tip(c.Request.Context(), from, to, chain, amount); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// withdrawalRequest is the POST withdrawals payload. TokenAddress empty
// means a native gas withdrawal.
type withdrawalRequest struct {
	PlatformID   string `json:"platform_id" binding:"required"`
	UserID       string `json:"user_id" binding:"required"`
	Chain        string `json:"chain" binding:"required"`
	Destination  string `json:"destination" binding:"required"`
	Amount       string `json:"amount"`
	TokenAddress string `json:"token_address"`
	TokenIDHex   string `json:"token_id_hex"`
	Editions     int64  `json:"editions"`
}

// withdrawalResponse identifies the accepted withdrawal
type withdrawalResponse struct {
	ID     string `json:"id"`
	TxHash string `json:"tx_hash"`
}

// CreateWithdrawal submits an outbound transfer
func (h *handler) CreateWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ref := domain.AccountRef{UserID: req.UserID, PlatformID: req.PlatformID}
	chain := domain.Chain(strings.ToLower(req.Chain))

	var receipt *withdraw.Receipt
	var err error
	if req.TokenAddress != "" {
		receipt, err = h.coordinator.RequestAsset(c.Request.Context(), withdraw.AssetRequest{
			Account: ref,
			Asset: domain.AssetKey{
				Chain:        chain,
				TokenAddress: strings.ToLower(req.TokenAddress),
				TokenIDHex:   domain.NormalizeTokenIDHex(req.TokenIDHex),
			},
			Amount:      req.Editions,
			Destination: req.Destination,
		})
	} else {
		var amount decimal.Decimal
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			respondValidationError(c, "amount must be a decimal number")
			return
		}
		receipt, err = h.coordinator.RequestGas(c.Request.Context(), withdraw.GasRequest{
			Account:     ref,
			Chain:       chain,
			Amount:      amount,
			Destination: req.Destination,
		})
	}
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, withdrawalResponse{ID: receipt.ID, TxHash: receipt.TxHash})
}

// GetGasPrices returns the latest gas price snapshot per chain
func (h *handler) GetGasPrices(c *gin.Context) {
	prices := make(map[string]json.RawMessage, 2)
	for _, chain := range domain.Chains() {
		value, err := h.store.GetSetting(c.Request.Context(), store.SettingGasPricesPrefix+string(chain))
		if err != nil {
			respondInternalError(c, err, zap.String("chain", string(chain)))
			return
		}
		if value == "" {
			continue
		}
		prices[string(chain)] = json.RawMessage(value)
	}
	c.JSON(http.StatusOK, gin.H{"gas_prices": prices})
}

// registerContractRequest is the POST contracts payload
type registerContractRequest struct {
	Chain        string `json:"chain" binding:"required"`
	Address      string `json:"address" binding:"required"`
	ContractType string `json:"contract_type"`
	Name         string `json:"name"`
	MaxItems     int64  `json:"max_items"`
	FetchEnabled *bool  `json:"fetch_enabled"`
}

// RegisterContract registers an NFT collection for crediting and discovery.
// Missing name or contract type is filled from the chain's metadata.
func (h *handler) RegisterContract(c *gin.Context) {
	var req registerContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	chain := domain.Chain(strings.ToLower(req.Chain))
	if !domain.IsValidChain(chain) {
		respondBadRequest(c, "unsupported chain")
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondBadRequest(c, "invalid contract address")
		return
	}

	name := req.Name
	contractType := domain.ContractType(strings.ToLower(req.ContractType))
	if name == "" || contractType == "" {
		metadata, err := h.alchemy.GetContractMetadata(c.Request.Context(), chain, req.Address)
		if err != nil {
			respondInternalError(c, err, zap.String("address", req.Address))
			return
		}
		if name == "" {
			name = metadata.Name
		}
		if contractType == "" {
			contractType = domain.ContractType(strings.ToLower(metadata.TokenType))
		}
	}
	if contractType != domain.ContractTypeERC721 && contractType != domain.ContractTypeERC1155 {
		respondBadRequest(c, "contract_type must be erc721 or erc1155")
		return
	}

	fetchEnabled := true
	if req.FetchEnabled != nil {
		fetchEnabled = *req.FetchEnabled
	}
	contract := &schema.TrackedContract{
		Chain:        chain,
		Address:      strings.ToLower(req.Address),
		ContractType: contractType,
		Name:         name,
		Enabled:      true,
		FetchEnabled: fetchEnabled,
		MaxItems:     req.MaxItems,
	}
	if err := h.store.RegisterContract(c.Request.Context(), contract); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            contract.ID,
		"chain":         contract.Chain,
		"address":       contract.Address,
		"contract_type": contract.ContractType,
		"name":          contract.Name,
	})
}

// verifiedAddressRequest is the POST verified-addresses payload
type verifiedAddressRequest struct {
	Address    string `json:"address" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	PlatformID string `json:"platform_id" binding:"required"`
	Verified   bool   `json:"verified"`
}

// UpsertVerifiedAddress links an external wallet address to a platform user
func (h *handler) UpsertVerifiedAddress(c *gin.Context) {
	var req verifiedAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondBadRequest(c, "invalid address")
		return
	}

	err := h.store.UpsertVerifiedAddress(c.Request.Context(), schema.VerifiedAddress{
		Address:    strings.ToLower(req.Address),
		UserID:     req.UserID,
		PlatformID: req.PlatformID,
		Verified:   req.Verified,
	})
	if err != nil {
		respondInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
