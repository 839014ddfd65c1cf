package ledger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/talabin/api/handlers"
	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/pkg/models"
)

// Handler serves the wallet endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Balance is the wallet as shown to its owner.
type Balance struct {
	BalanceIRR        decimal.Decimal `json:"balance_irr"`
	FrozenBalanceIRR  decimal.Decimal `json:"frozen_balance_irr"`
	AvailableIRR      decimal.Decimal `json:"available_irr"`
	GoldBalance       decimal.Decimal `json:"gold_balance"`
	FrozenGoldBalance decimal.Decimal `json:"frozen_gold_balance"`
	AvailableGold     decimal.Decimal `json:"available_gold"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func newBalance(w *models.Wallet) Balance {
	return Balance{
		BalanceIRR:        w.BalanceIRR,
		FrozenBalanceIRR:  w.FrozenBalanceIRR,
		AvailableIRR:      w.AvailableIRR(),
		GoldBalance:       w.GoldBalance,
		FrozenGoldBalance: w.FrozenGoldBalance,
		AvailableGold:     w.AvailableGold(),
		UpdatedAt:         w.UpdatedAt,
	}
}

// Routes registers the wallet endpoints.
func Routes(user *gin.RouterGroup, handler *Handler) {
	wallet := user.Group("/wallet")
	{
		wallet.GET("", handler.Balance)
		wallet.GET("/transactions", handler.Transactions)
	}
}

// Balance godoc
// @Summary Wallet balances
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} responses.StandardResponse
// @Router /api/v1/wallet [get]
func (h *Handler) Balance(c *gin.Context) {
	w, err := h.service.GetWallet(c.Request.Context(), userauth.UserID(c))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, newBalance(w))
}

// Transactions godoc
// @Summary Wallet journal
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param type query string false "Transaction type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} responses.PaginatedResponse
// @Router /api/v1/wallet/transactions [get]
func (h *Handler) Transactions(c *gin.Context) {
	filter := TransactionFilter{
		Type: models.TransactionType(c.Query("type")),
		Page: handlers.Page(c),
	}
	entries, total, err := h.service.ListTransactions(c.Request.Context(), userauth.UserID(c), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, entries, filter.Page, total)
}
