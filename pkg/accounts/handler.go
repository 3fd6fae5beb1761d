package accounts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assetledger/pkg/response"
)

type AccountHandler struct {
	service AccountService
}

func NewAccountHandler(service AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

func (h *AccountHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/accounts", h.createAccount)
	router.GET("/accounts", h.listAccounts)
	router.GET("/accounts/:uuid", h.getAccountByUUID)
}

type createAccountRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// @Summary      Create account
// @Description  Registers a name and email and issues the UUID used as the account's identity
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request body createAccountRequest true "Create account request"
// @Success      201 {object} response.APIResponse{data=Account}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /accounts [post]
func (h *AccountHandler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	a, err := h.service.CreateAccount(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
		case errors.Is(err, ErrInvalidInput):
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "account created", a)
}

// @Summary      Get account by UUID
// @Tags         accounts
// @Produce      json
// @Param        uuid path string true "Account UUID"
// @Success      200 {object} response.APIResponse{data=Account}
// @Failure      404 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /accounts/{uuid} [get]
func (h *AccountHandler) getAccountByUUID(c *gin.Context) {
	a, err := h.service.GetAccountByUUID(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			response.SendAPIResponse(c, http.StatusNotFound, false, "account not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account fetched", a)
}

// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=AccountList}
// @Failure      500 {object} response.APIResponse
// @Router       /accounts [get]
func (h *AccountHandler) listAccounts(c *gin.Context) {
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

	items, total, err := h.service.ListAccounts(c.Request.Context(), page, limit)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	data := AccountList{Items: items, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "accounts listed", data)
}
