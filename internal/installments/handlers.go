package installments

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/api/handlers"
	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Handler serves the installment endpoints
type Handler struct {
	service   *Service
	validator *validation.Validator
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, validator: validation.NewValidator(logger)}
}

// SubscribeRequest is the body of POST /installments.
type SubscribeRequest struct {
	PlanID      string          `json:"plan_id" validate:"required,uuid"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ListPlans godoc
// @Summary List active installment plans
// @Tags Installments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} responses.StandardResponse
// @Router /api/v1/installment-plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, plans)
}

func (h *Handler) GetPlan(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	plan, err := h.service.GetPlan(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, plan)
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req PlanInput
	if err := handlers.Bind(c, nil, &req); err != nil {
		responses.Error(c, err)
		return
	}
	plan, err := h.service.CreatePlan(c.Request.Context(), req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, plan)
}

// Subscribe godoc
// @Summary Buy gold on an installment plan
// @Tags Installments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubscribeRequest true "Subscription"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /api/v1/installments [post]
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	planID, err := handlers.ParseUUID(req.PlanID, "plan_id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	installment, err := h.service.Subscribe(c.Request.Context(), userauth.UserID(c), planID, req.TotalAmount)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, installment)
}

func (h *Handler) List(c *gin.Context) {
	filter := Filter{
		Status: models.InstallmentStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	installments, total, err := h.service.List(c.Request.Context(), userauth.UserID(c), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, installments, filter.Page, total)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	installment, err := h.service.Get(c.Request.Context(), userauth.UserID(c), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, installment)
}

// Pay godoc
// @Summary Pay one installment payment from the wallet
// @Tags Installments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Installment ID"
// @Param payment_id path string true "Payment ID"
// @Success 200 {object} responses.StandardResponse
// @Failure 404 {object} errors.ProblemDetails
// @Failure 409 {object} errors.ProblemDetails
// @Failure 422 {object} errors.ProblemDetails
// @Router /api/v1/installments/{id}/payments/{payment_id}/pay [post]
func (h *Handler) Pay(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	paymentID, err := handlers.UUIDParam(c, "payment_id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	payment, err := h.service.Pay(c.Request.Context(), userauth.UserID(c), id, paymentID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, payment)
}
