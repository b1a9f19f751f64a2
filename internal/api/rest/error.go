package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeForbidden        ErrorCode = "forbidden"
	errCodeConflict         ErrorCode = "conflict"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeUnavailable      ErrorCode = "unavailable"

	// Server errors (5xx)
	errCodeInternalError ErrorCode = "internal_error"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string) {
	c.JSON(statusCode, errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message)
}

// respondValidationError sends a 400 Bad Request with validation detail
func respondValidationError(c *gin.Context, message string) {
	respondWithError(c, http.StatusBadRequest, errCodeValidationFailed, message)
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message)
}

// respondInternalError sends a generic 500 response and logs the cause
func respondInternalError(c *gin.Context, err error, fields ...zap.Field) {
	logger.Error(err, fields...)
	respondWithError(c, http.StatusInternalServerError, errCodeInternalError, "internal error")
}

// respondLedgerError maps business-rule errors to specific client responses;
// anything unrecognized is treated as internal.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		respondNotFound(c, err.Error())
	case errors.Is(err, domain.ErrAccountFrozen):
		respondWithError(c, http.StatusForbidden, errCodeForbidden, err.Error())
	case errors.Is(err, domain.ErrWithdrawalInFlight),
		errors.Is(err, domain.ErrContractExists):
		respondWithError(c, http.StatusConflict, errCodeConflict, err.Error())
	case errors.Is(err, domain.ErrMaintenance):
		respondWithError(c, http.StatusServiceUnavailable, errCodeUnavailable, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrAmountNotPositive),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrAssetNotOwned),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrGasReserveTooLow),
		errors.Is(err, domain.ErrContractNotTracked):
		respondBadRequest(c, err.Error())
	default:
		respondInternalError(c, err)
	}
}
