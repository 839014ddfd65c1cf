package pricing

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/api/handlers"
	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/internal/ws"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Handler serves price reads, the live price stream and admin publishing.
type Handler struct {
	oracle    *Oracle
	hub       *ws.Hub
	validator *validation.Validator
	logger    *zap.Logger
}

func NewHandler(oracle *Oracle, hub *ws.Hub, logger *zap.Logger) *Handler {
	return &Handler{oracle: oracle, hub: hub, validator: validation.NewValidator(logger), logger: logger}
}

// PublishRequest is the body of POST /admin/prices.
type PublishRequest struct {
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Source    string          `json:"source" validate:"max=100"`
}

// Routes registers the price endpoints. public needs no authentication.
func Routes(public, admin *gin.RouterGroup, handler *Handler) {
	prices := public.Group("/prices")
	{
		prices.GET("/current", handler.Current)
		prices.GET("/history", handler.History)
		prices.GET("/stream", handler.Stream)
	}

	admin.POST("/prices", handler.Publish)
}

// Current godoc
// @Summary Active gold price
// @Tags Prices
// @Produce json
// @Success 200 {object} responses.StandardResponse
// @Failure 503 {object} errors.ProblemDetails
// @Router /api/v1/prices/current [get]
func (h *Handler) Current(c *gin.Context) {
	price, err := h.oracle.Current(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, price)
}

// History godoc
// @Summary Price history
// @Tags Prices
// @Produce json
// @Param timeframe query string false "1h, 24h, 7d or 30d" default(24h)
// @Success 200 {object} responses.StandardResponse
// @Router /api/v1/prices/history [get]
func (h *Handler) History(c *gin.Context) {
	points, err := h.oracle.History(c.Request.Context(), ParseTimeframe(c.Query("timeframe")))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, points)
}

// Stream upgrades to a websocket subscribed to price updates. New
// subscribers first receive the most recent buffered updates.
func (h *Handler) Stream(c *gin.Context) {
	if h.hub == nil {
		responses.NotFound(c, "price stream is disabled")
		return
	}
	h.hub.ServeWS(c.Writer, c.Request, uuid.NewString(), Topic)
}

// Publish godoc
// @Summary Publish a new gold price
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PublishRequest true "Price"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Router /api/v1/admin/prices [post]
func (h *Handler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	price, err := h.oracle.Publish(c.Request.Context(), req.BuyPrice, req.SellPrice, req.Source)
	if err != nil {
		responses.Error(c, err)
		return
	}
	h.logger.Info("price published by staff", zap.String("user_id", userauth.UserID(c).String()))
	responses.Created(c, price)
}
