package settlement

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"assetledger/pkg/caller"
	"assetledger/pkg/registry"
	"assetledger/pkg/response"
)

// BalanceReader reports the total value credited to an identity by settlements.
type BalanceReader interface {
	Balance(ctx context.Context, id registry.Identity) (decimal.Decimal, error)
}

type BalanceHandler struct {
	reader BalanceReader
}

func NewBalanceHandler(reader BalanceReader) *BalanceHandler {
	return &BalanceHandler{reader: reader}
}

func (h *BalanceHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/balances/:identity", h.getBalance)
}

type balanceResponse struct {
	Identity registry.Identity `json:"identity"`
	Balance  decimal.Decimal   `json:"balance" swaggertype:"string"`
}

// @Summary      Get settled balance
// @Description  Returns the total amount credited to an account by purchase settlements (sale proceeds and refunds)
// @Tags         settlement
// @Produce      json
// @Param        identity  path  string  true  "Account UUID"
// @Success      200  {object}  response.APIResponse{data=balanceResponse}
// @Failure      400  {object}  response.APIResponse "Invalid account id"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /balances/{identity} [get]
func (h *BalanceHandler) getBalance(c *gin.Context) {
	id, err := caller.ParseIdentity(c.Param("identity"))
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid account id", nil)
		return
	}

	balance, err := h.reader.Balance(c.Request.Context(), id)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "balance fetched", balanceResponse{Identity: id, Balance: balance})
}
