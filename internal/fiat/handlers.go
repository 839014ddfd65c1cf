package fiat

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

// Handler provides HTTP handlers for fiat operations
type Handler struct {
	service   *Service
	validator *validation.Validator
	logger    *zap.Logger
}

// NewHandler creates a new fiat handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validation.NewValidator(logger),
		logger:    logger,
	}
}

// CreateDepositRequest is the body of POST /deposits.
type CreateDepositRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
}

// CreateWithdrawalRequest is the body of POST /withdrawals.
type CreateWithdrawalRequest struct {
	BankAccountID string          `json:"bank_account_id" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
}

// ReasonRequest carries a staff decision reason.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CompleteWithdrawalRequest is the optional body of the complete action.
type CompleteWithdrawalRequest struct {
	TrackingCode string `json:"tracking_code" validate:"max=100"`
}

// ListBankAccounts godoc
// @Summary List bank accounts
// @Tags Bank Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} responses.StandardResponse
// @Router /api/v1/bank-accounts [get]
func (h *Handler) ListBankAccounts(c *gin.Context) {
	accounts, err := h.service.ListBankAccounts(c.Request.Context(), userauth.UserID(c))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, accounts)
}

// AddBankAccount godoc
// @Summary Add a bank account
// @Tags Bank Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BankAccountInput true "Bank account"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Router /api/v1/bank-accounts [post]
func (h *Handler) AddBankAccount(c *gin.Context) {
	var req BankAccountInput
	if err := handlers.Bind(c, nil, &req); err != nil {
		responses.Error(c, err)
		return
	}
	account, err := h.service.AddBankAccount(c.Request.Context(), userauth.UserID(c), req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, account)
}

func (h *Handler) UpdateBankAccount(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	var req BankAccountInput
	if err := handlers.Bind(c, nil, &req); err != nil {
		responses.Error(c, err)
		return
	}
	account, err := h.service.UpdateBankAccount(c.Request.Context(), userauth.UserID(c), id, req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, account)
}

func (h *Handler) DeleteBankAccount(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	if err := h.service.DeleteBankAccount(c.Request.Context(), userauth.UserID(c), id); err != nil {
		responses.Error(c, err)
		return
	}
	responses.NoContent(c)
}

func (h *Handler) VerifyBankAccount(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	account, err := h.service.VerifyBankAccount(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, account)
}

// CreateDeposit godoc
// @Summary Request a deposit
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateDepositRequest true "Deposit"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Router /api/v1/deposits [post]
func (h *Handler) CreateDeposit(c *gin.Context) {
	var req CreateDepositRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	deposit, err := h.service.CreateDeposit(c.Request.Context(), userauth.UserID(c), req.Amount, req.PaymentMethod)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, deposit)
}

// UploadReceipt godoc
// @Summary Attach a payment receipt to a deposit
// @Tags Deposits
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Deposit ID"
// @Param receipt formData file true "Receipt image (jpg, jpeg, png)"
// @Success 200 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 409 {object} errors.ProblemDetails
// @Router /api/v1/deposits/{id}/receipt [post]
func (h *Handler) UploadReceipt(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	fh, err := c.FormFile("receipt")
	if err != nil {
		responses.Error(c, errors.Invalid.Explain("receipt file is required").WithField("required", "receipt", "missing file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		responses.Error(c, errors.Invalid.Explain("failed to read receipt").Wrap(err))
		return
	}
	defer f.Close()

	deposit, err := h.service.AttachReceipt(c.Request.Context(), userauth.UserID(c), id, fh.Filename, fh.Size, f)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, deposit)
}

func (h *Handler) ListDeposits(c *gin.Context) {
	filter := DepositFilter{
		UserID: userauth.UserID(c),
		Status: models.DepositStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	deposits, total, err := h.service.ListDeposits(c.Request.Context(), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, deposits, filter.Page, total)
}

func (h *Handler) GetDeposit(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	deposit, err := h.service.GetDeposit(c.Request.Context(), userauth.UserID(c), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, deposit)
}

func (h *Handler) CancelDeposit(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	deposit, err := h.service.CancelDeposit(c.Request.Context(), userauth.UserID(c), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, deposit)
}

// CreateWithdrawal godoc
// @Summary Request a withdrawal
// @Description Freezes the amount until staff complete or reject the request
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateWithdrawalRequest true "Withdrawal"
// @Success 201 {object} responses.StandardResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Failure 422 {object} errors.ProblemDetails
// @Router /api/v1/withdrawals [post]
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	accountID, err := handlers.ParseUUID(req.BankAccountID, "bank_account_id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.CreateWithdrawal(c.Request.Context(), userauth.UserID(c), accountID, req.Amount)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, withdrawal)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	filter := WithdrawalFilter{
		UserID: userauth.UserID(c),
		Status: models.WithdrawalStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	withdrawals, total, err := h.service.ListWithdrawals(c.Request.Context(), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, withdrawals, filter.Page, total)
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.GetWithdrawal(c.Request.Context(), userauth.UserID(c), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}

func (h *Handler) CancelWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.CancelWithdrawal(c.Request.Context(), userauth.UserID(c), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}

// Staff handlers

func (h *Handler) AdminListDeposits(c *gin.Context) {
	filter := DepositFilter{
		Status: models.DepositStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	deposits, total, err := h.service.ListDeposits(c.Request.Context(), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, deposits, filter.Page, total)
}

// VerifyDeposit godoc
// @Summary Verify a paid deposit and credit the wallet
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Deposit ID"
// @Success 200 {object} responses.StandardResponse
// @Failure 409 {object} errors.ProblemDetails
// @Router /api/v1/admin/deposits/{id}/verify [post]
func (h *Handler) VerifyDeposit(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	deposit, err := h.service.VerifyDeposit(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	h.logger.Info("deposit verified by staff",
		zap.String("deposit_id", id.String()),
		zap.String("staff_id", userauth.UserID(c).String()),
	)
	responses.Success(c, deposit)
}

func (h *Handler) RejectDeposit(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	var req ReasonRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	deposit, err := h.service.RejectDeposit(c.Request.Context(), id, req.Reason)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, deposit)
}

func (h *Handler) AdminListWithdrawals(c *gin.Context) {
	filter := WithdrawalFilter{
		Status: models.WithdrawalStatus(c.Query("status")),
		Page:   handlers.Page(c),
	}
	withdrawals, total, err := h.service.ListWithdrawals(c.Request.Context(), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Paginated(c, withdrawals, filter.Page, total)
}

func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.ApproveWithdrawal(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}

func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.ProcessWithdrawal(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}

func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	var req CompleteWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := handlers.Bind(c, h.validator, &req); err != nil {
			responses.Error(c, err)
			return
		}
	}
	withdrawal, err := h.service.CompleteWithdrawal(c.Request.Context(), id, req.TrackingCode)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	id, err := handlers.UUIDParam(c, "id")
	if err != nil {
		responses.Error(c, err)
		return
	}
	var req ReasonRequest
	if err := handlers.Bind(c, h.validator, &req); err != nil {
		responses.Error(c, err)
		return
	}
	withdrawal, err := h.service.RejectWithdrawal(c.Request.Context(), id, req.Reason)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, withdrawal)
}
