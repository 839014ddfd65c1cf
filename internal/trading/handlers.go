package trading

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/api/handlers"
	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Handler serves the order endpoints
type Handler struct {
	engine    *Engine
	validator *validation.Validator
}

func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, validator: validation.NewValidator(logger)}
}

// OrderRequest is the body of order preview and placement.
type OrderRequest struct {
	OrderType models.OrderType `json:"order_type" validate:"required,oneof=buy sell"`
	AmountIRR decimal.Decimal  `json:"amount_irr"`
}

// Routes registers the order endpoints.
func Routes(user *gin.RouterGroup, handler *Handler) {
	orders := user.Group("/orders")
	{
		orders.POST("/preview", handler.Preview)
		orders.POST("", handler.Place)
		orders.POST("/submit", handler.Submit)
		orders.GET("", handler.List)
		orders.GET("/:order_number", handler.Get)
		orders.POST("/:order_number/settle", handler.Settle)
		orders.POST("/:order_number/cancel", handler.Cancel)
	}
}

// Preview godoc
// @Summary Price an order without placing it
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OrderRequest true "Order"
// @Success 200 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 503 {object} errors.ProblemDetails
// @Router /api/v1/orders/preview [post]
func (h *Handler) Preview(c *gin.Context) {
	var req OrderRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	quote, err := h.engine.Preview(c.Request.Context(), req.OrderType, req.AmountIRR)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, quote)
}

// Place godoc
// @Summary Buy or sell gold at the active price
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OrderRequest true "Order"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 422 {object} errors.ProblemDetails
// @Failure 503 {object} errors.ProblemDetails
// @Router /api/v1/orders [post]
func (h *Handler) Place(c *gin.Context) {
	var req OrderRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	order, err := h.engine.Place(c.Request.Context(), userauth.UserID(c), req.OrderType, req.AmountIRR)
	if err != nil {
		failed(c, order, err)
		return
	}
	responses.Created(c, order)
}

func (h *Handler) Submit(c *gin.Context) {
	var req OrderRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	order, err := h.engine.Submit(c.Request.Context(), userauth.UserID(c), req.OrderType, req.AmountIRR)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, order)
}

func (h *Handler) Settle(c *gin.Context) {
	order, err := h.engine.Settle(c.Request.Context(), userauth.UserID(c), c.Param("order_number"))
	if err != nil {
		failed(c, order, err)
		return
	}
	responses.Success(c, order)
}

func (h *Handler) Cancel(c *gin.Context) {
	order, err := h.engine.Cancel(c.Request.Context(), userauth.UserID(c), c.Param("order_number"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, order)
}

func (h *Handler) Get(c *gin.Context) {
	order, err := h.engine.Get(c.Request.Context(), userauth.UserID(c), c.Param("order_number"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, order)
}

func (h *Handler) List(c *gin.Context) {
	filter := OrderFilter{
		Type:   models.OrderType(c.Query("type")),
		Status: models.OrderStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	orders, total, err := h.engine.List(c.Request.Context(), userauth.UserID(c), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, orders, filter.Page, total)
}

// failed reports a settlement error. An order committed as failed is named
// in the problem so the client can look it up.
func failed(c *gin.Context, order *models.Order, err error) {
	if order == nil {
		responses.Error(c, err)
		return
	}
	p := errors.ToProblem(err, c.Request.URL.Path).
		WithExtra("order_number", order.OrderNumber).
		WithExtra("order_status", string(order.Status))
	responses.Problem(c, p)
	c.Abort()
}
