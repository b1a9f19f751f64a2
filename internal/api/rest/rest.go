package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/v1")
	{
		// Account read endpoints
		v1.GET("/accounts/:platform/:user/balance", handler.GetBalance)
		v1.GET("/accounts/:platform/:user/assets", handler.GetAssets)

		// Ledger operations
		v1.POST("/tips", handler.CreateTip)
		v1.POST("/withdrawals", handler.CreateWithdrawal)

		// Gas price snapshots for the deposit embed
		v1.GET("/gas-prices", handler.GetGasPrices)

		// Admin surface
		v1.POST("/contracts", handler.RegisterContract)
		v1.POST("/verified-addresses", handler.UpsertVerifiedAddress)
	}
}
