package buy

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"assetledger/pkg/caller"
	"assetledger/pkg/response"
)

type BuyHandler struct {
	service BuyService
}

func NewBuyHandler(service BuyService) *BuyHandler {
	return &BuyHandler{service: service}
}

func (h *BuyHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/assets/:id/purchase", h.purchaseAsset)
	router.PATCH("/assets/:id/unlist", h.unlistAsset)
	router.GET("/assets/:id/sales", h.listSales)
}

type purchaseRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset id", nil)
		return 0, false
	}
	return id, true
}

// @Summary      Purchase an asset
// @Description  Buys a listed asset. The seller is credited the asking price and any excess over it is refunded to the buyer in the same settlement. Ownership moves and the listing is cleared.
// @Tags         buy
// @Accept       json
// @Produce      json
// @Param        X-Account-ID  header  string  true  "Buyer account UUID"
// @Param        id   path      int  true  "Asset ID"
// @Param        request body purchaseRequest true "Tendered amount"
// @Success      200  {object}  response.APIResponse{data=registry.Settlement} "Asset purchased"
// @Failure      400  {object}  response.APIResponse "Invalid asset ID or payload"
// @Failure      402  {object}  response.APIResponse "Tendered amount below asking price"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Failure      409  {object}  response.APIResponse "Asset not for sale or buyer already owns it"
// @Failure      502  {object}  response.APIResponse "Settlement failed; nothing changed"
// @Router       /assets/{id}/purchase [post]
func (h *BuyHandler) purchaseAsset(c *gin.Context) {
	buyer, err := caller.FromContext(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	if req.Amount.IsNegative() {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "amount cannot be negative", nil)
		return
	}

	settlement, err := h.service.PurchaseAsset(c.Request.Context(), buyer, id, req.Amount)
	if err != nil {
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset purchased", settlement)
}

// @Summary      Unlist an asset
// @Description  Withdraws an owned asset from sale and clears its price.
// @Tags         buy
// @Produce      json
// @Param        X-Account-ID  header  string  true  "Owner account UUID"
// @Param        id   path      int  true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=registry.Asset} "Asset unlisted successfully"
// @Failure      400  {object}  response.APIResponse "Invalid asset ID"
// @Failure      403  {object}  response.APIResponse "Requester is not the owner"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Failure      409  {object}  response.APIResponse "Asset is not listed"
// @Router       /assets/{id}/unlist [patch]
func (h *BuyHandler) unlistAsset(c *gin.Context) {
	owner, err := caller.FromContext(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	asset, err := h.service.UnlistAsset(c.Request.Context(), owner, id)
	if err != nil {
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset unlisted", asset)
}

// @Summary      Sales history
// @Description  Most recent sales of an asset, newest first. Requires a database.
// @Tags         buy
// @Produce      json
// @Param        id     path      int  true   "Asset ID"
// @Param        limit  query     int  false  "Maximum number of sales" default(20)
// @Success      200  {object}  response.APIResponse{data=[]Sale} "Sales listed"
// @Failure      400  {object}  response.APIResponse "Invalid asset ID"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Failure      503  {object}  response.APIResponse "History not configured"
// @Router       /assets/{id}/sales [get]
func (h *BuyHandler) listSales(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	sales, err := h.service.SalesHistory(c.Request.Context(), id, limit)
	if err != nil {
		if errors.Is(err, ErrHistoryUnavailable) {
			response.SendAPIResponse(c, http.StatusServiceUnavailable, false, err.Error(), nil)
			return
		}
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "sales listed", sales)
}
