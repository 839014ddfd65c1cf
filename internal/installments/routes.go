package installments

import "github.com/gin-gonic/gin"

// Routes registers the installment endpoints.
func Routes(user, admin *gin.RouterGroup, handler *Handler) {
	user.GET("/installment-plans", handler.ListPlans)
	user.GET("/installment-plans/:id", handler.GetPlan)

	installments := user.Group("/installments")
	{
		installments.GET("", handler.List)
		installments.POST("", handler.Subscribe)
		installments.GET("/:id", handler.Get)
		installments.POST("/:id/payments/:payment_id/pay", handler.Pay)
	}

	admin.POST("/installment-plans", handler.CreatePlan)
}
