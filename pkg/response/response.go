package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"assetledger/pkg/registry"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	resp := APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	c.JSON(code, resp)
}

// SendRegistryError writes the failure envelope for an error returned by the
// asset registry, choosing the status from its kind.
func SendRegistryError(c *gin.Context, err error) {
	code, message := StatusFor(err)
	SendAPIResponse(c, code, false, message, nil)
}

func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "asset not found"
	case errors.Is(err, registry.ErrNotOwner):
		return http.StatusForbidden, "requester is not the asset owner"
	case errors.Is(err, registry.ErrInvalidPrice):
		return http.StatusBadRequest, "price must be greater than zero"
	case errors.Is(err, registry.ErrInvalidIdentity):
		return http.StatusBadRequest, "invalid requester identity"
	case errors.Is(err, registry.ErrNotForSale):
		return http.StatusConflict, "asset is not for sale"
	case errors.Is(err, registry.ErrNotListed):
		return http.StatusConflict, "asset is not listed"
	case errors.Is(err, registry.ErrSelfPurchase):
		return http.StatusConflict, "owner cannot purchase their own asset"
	case errors.Is(err, registry.ErrInsufficientPayment):
		return http.StatusPaymentRequired, "tendered amount is below the asking price"
	case errors.Is(err, registry.ErrSettlementFailure):
		return http.StatusBadGateway, "settlement failed"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
