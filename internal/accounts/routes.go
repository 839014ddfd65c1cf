package accounts

import "github.com/gin-gonic/gin"

// Routes registers the profile and user administration endpoints.
func Routes(user, admin *gin.RouterGroup, handler *Handler) {
	user.GET("/me", handler.Me)
	user.PUT("/me", handler.UpdateProfile)

	users := admin.Group("/users")
	{
		users.POST("", handler.Register)
		users.GET("/:id", handler.GetUser)
		users.PUT("/:id/staff", handler.SetStaff)
	}
}
