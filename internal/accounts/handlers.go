package accounts

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/api/handlers"
	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/pkg/validation"
)

type Handler struct {
	service   *Service
	validator *validation.Validator
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, validator: validation.NewValidator(logger)}
}

type ProfileRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type RegisterRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
}

type StaffRequest struct {
	IsStaff bool `json:"is_staff"`
}

// Me godoc
// @Summary Current user profile
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} responses.StandardResponse
// @Router /api/v1/me [get]
func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), userauth.UserID(c))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, user)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), userauth.UserID(c), req.FirstName, req.LastName)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, user)
}

// Register godoc
// @Summary Register a user with an empty wallet
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterRequest true "User"
// @Success 201 {object} responses.StandardResponse
// @Failure 409 {object} errors.ProblemDetails
// @Router /api/v1/admin/users [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	user, err := h.service.Register(c.Request.Context(), req.PhoneNumber, req.FirstName, req.LastName)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	user, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, user)
}

func (h *Handler) SetStaff(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	var req StaffRequest
	if err := handlers.Bind(c, nil, &req); err != nil {
		responses.Error(c, err)
		return
	}
	user, err := h.service.SetStaff(c.Request.Context(), id, req.IsStaff)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, user)
}
