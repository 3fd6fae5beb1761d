package assets

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"assetledger/pkg/caller"
	"assetledger/pkg/response"
)

type AssetHandler struct {
	service AssetService
}

func NewAssetHandler(service AssetService) *AssetHandler {
	return &AssetHandler{service: service}
}

func (h *AssetHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/assets", h.createAsset)
	router.GET("/assets", h.listAssets)
	router.GET("/assets/:id", h.getAssetByID)
	router.PATCH("/assets/:id/list", h.listForSale)
	router.GET("/registry/count", h.countAssets)
}

type createAssetRequest struct {
	Metadata string `json:"metadata"`
}

type listForSaleRequest struct {
	Price decimal.Decimal `json:"price" swaggertype:"string" example:"100.00"`
}

// ParseAssetID reads the :id path parameter. Identifiers start at 1.
func ParseAssetID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset id", nil)
		return 0, false
	}
	return id, true
}

// @Summary      Create a new asset
// @Description  Mints an asset owned by its creator. The asset starts unlisted.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        X-Account-ID  header  string  true  "Creator account UUID"
// @Param        request body createAssetRequest true "Asset creation request"
// @Success      201  {object}  response.APIResponse{data=registry.Asset} "Asset created successfully"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Router       /assets [post]
func (h *AssetHandler) createAsset(c *gin.Context) {
	creator, err := caller.FromContext(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	asset, err := h.service.CreateAsset(c.Request.Context(), creator, req.Metadata)
	if err != nil {
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "asset created", asset)
}

// @Summary      List an asset for sale
// @Description  Marks an owned asset for sale at a positive price. Listing an already listed asset replaces its price.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        X-Account-ID  header  string  true  "Owner account UUID"
// @Param        id   path      int  true  "Asset ID"
// @Param        request body listForSaleRequest true "Asking price"
// @Success      200  {object}  response.APIResponse{data=registry.Asset} "Asset listed"
// @Failure      400  {object}  response.APIResponse "Invalid asset ID, payload or price"
// @Failure      403  {object}  response.APIResponse "Requester is not the owner"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Router       /assets/{id}/list [patch]
func (h *AssetHandler) listForSale(c *gin.Context) {
	owner, err := caller.FromContext(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	id, ok := ParseAssetID(c)
	if !ok {
		return
	}

	var req listForSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	asset, err := h.service.ListForSale(c.Request.Context(), owner, id, req.Price)
	if err != nil {
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset listed", asset)
}

// @Summary      Get asset by ID
// @Description  Retrieves a snapshot of a single asset
// @Tags         assets
// @Produce      json
// @Param        id   path      int  true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=registry.Asset} "Asset retrieved successfully"
// @Failure      400  {object}  response.APIResponse "Invalid asset ID"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Router       /assets/{id} [get]
func (h *AssetHandler) getAssetByID(c *gin.Context) {
	id, ok := ParseAssetID(c)
	if !ok {
		return
	}

	asset, err := h.service.GetAssetByID(c.Request.Context(), id)
	if err != nil {
		response.SendRegistryError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset fetched", asset)
}

// @Summary      List all assets
// @Description  Retrieves a paginated list of assets in identifier order with optional filters
// @Tags         assets
// @Produce      json
// @Param        page      query     int     false  "Page number" default(1)
// @Param        limit     query     int     false  "Items per page" default(10)
// @Param        owner     query     string  false  "Filter by owner account UUID"
// @Param        for_sale  query     bool    false  "Filter by listing status"
// @Success      200  {object}  response.APIResponse{data=AssetList} "Assets retrieved successfully"
// @Failure      400  {object}  response.APIResponse "Invalid owner filter"
// @Router       /assets [get]
func (h *AssetHandler) listAssets(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	filters := AssetFilters{}

	if raw := c.Query("owner"); raw != "" {
		owner, err := caller.ParseIdentity(raw)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid owner filter", nil)
			return
		}
		filters.Owner = &owner
	}

	if raw := c.Query("for_sale"); raw != "" {
		forSale, err := strconv.ParseBool(raw)
		if err == nil {
			filters.ForSale = &forSale
		}
	}

	items, total, err := h.service.ListAssets(c.Request.Context(), filters, page, limit)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	data := AssetList{Items: items, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "assets listed", data)
}

// @Summary      Count assets
// @Description  Number of assets ever created. Identifiers run from 1 to this value.
// @Tags         assets
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=CountSummary} "Asset count"
// @Router       /registry/count [get]
func (h *AssetHandler) countAssets(c *gin.Context) {
	count := h.service.CountAssets(c.Request.Context())
	response.SendAPIResponse(c, http.StatusOK, true, "asset count", CountSummary{Count: count})
}
