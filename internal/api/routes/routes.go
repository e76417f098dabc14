package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscreen/internal/api/handlers"
	"github.com/yoockh/yoscreen/internal/api/middleware"
)

type Deps struct {
	Flow     *handlers.FlowHandler
	Session  *handlers.SessionHandler
	Checkout *handlers.CheckoutHandler
	Admin    *handlers.AdminHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Flow: guests allowed until register
	flow := r.Group("/flow")
	flow.Use(middleware.OptionalJWTAuth())

	flow.POST("", d.Flow.Create)
	flow.GET("/resume", d.Flow.Resume)
	flow.POST("/guest/resume", d.Flow.ResumeGuest)
	flow.GET("/:flow_id", d.Flow.Get)
	flow.POST("/:flow_id/start", d.Flow.Start)
	flow.POST("/:flow_id/profile", d.Flow.SubmitProfile)
	flow.POST("/:flow_id/phase1", d.Flow.SubmitPhase1)
	flow.POST("/:flow_id/teaser/continue", d.Flow.ContinueFromTeaser)
	flow.POST("/:flow_id/register", d.Flow.Register)
	flow.POST("/:flow_id/opt-out", d.Flow.OptOut)
	flow.POST("/:flow_id/restart", d.Flow.Restart)
	flow.POST("/:flow_id/checkout", d.Flow.Checkout)
	flow.POST("/:flow_id/phase2/begin", d.Flow.BeginPhase2)
	flow.POST("/:flow_id/phase2", d.Flow.SubmitPhase2)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.GET("/screening/sessions", d.Session.List)
	auth.GET("/screening/sessions/:session_id", d.Session.Get)
	auth.PATCH("/screening/sessions/:session_id", d.Session.Patch)

	auth.POST("/checkout/test-premium", d.Checkout.CreateTestPremium)
	auth.GET("/checkout/test-premium/verify", d.Checkout.VerifyTestPremium)
	auth.GET("/checkout/screening/verify", d.Checkout.VerifyScreening)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/payments/events", d.Admin.PaymentEvents)
}
