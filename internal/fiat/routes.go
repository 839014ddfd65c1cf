package fiat

import "github.com/gin-gonic/gin"

// Routes registers the fiat endpoints. user must already require an
// authenticated caller and admin a staff caller.
func Routes(user, admin *gin.RouterGroup, handler *Handler) {
	accounts := user.Group("/bank-accounts")
	{
		accounts.GET("", handler.ListBankAccounts)
		accounts.POST("", handler.AddBankAccount)
		accounts.PUT("/:id", handler.UpdateBankAccount)
		accounts.DELETE("/:id", handler.DeleteBankAccount)
	}

	deposits := user.Group("/deposits")
	{
		deposits.POST("", handler.CreateDeposit)
		deposits.GET("", handler.ListDeposits)
		deposits.GET("/:id", handler.GetDeposit)
		deposits.POST("/:id/receipt", handler.UploadReceipt)
		deposits.POST("/:id/cancel", handler.CancelDeposit)
	}

	withdrawals := user.Group("/withdrawals")
	{
		withdrawals.POST("", handler.CreateWithdrawal)
		withdrawals.GET("", handler.ListWithdrawals)
		withdrawals.GET("/:id", handler.GetWithdrawal)
		withdrawals.POST("/:id/cancel", handler.CancelWithdrawal)
	}

	admin.POST("/bank-accounts/:id/verify", handler.VerifyBankAccount)

	adminDeposits := admin.Group("/deposits")
	{
		adminDeposits.GET("", handler.AdminListDeposits)
		adminDeposits.POST("/:id/verify", handler.VerifyDeposit)
		adminDeposits.POST("/:id/reject", handler.RejectDeposit)
	}

	adminWithdrawals := admin.Group("/withdrawals")
	{
		adminWithdrawals.GET("", handler.AdminListWithdrawals)
		adminWithdrawals.POST("/:id/approve", handler.ApproveWithdrawal)
		adminWithdrawals.POST("/:id/process", handler.ProcessWithdrawal)
		adminWithdrawals.POST("/:id/complete", handler.CompleteWithdrawal)
		adminWithdrawals.POST("/:id/reject", handler.RejectWithdrawal)
	}
}
