package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/tazhibayda/authflow/internal/metrics"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	if h.TraceService != "" {
		r.Use(Trace(h.TraceService))
	}
	r.Use(AccessLog(), metrics.Middleware())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/.well-known/jwks.json", h.JWKS)

	api := r.Group("/api/auth")
	api.POST("/signup", h.Signup)
	api.POST("/verify-email", h.VerifyEmail)
	api.POST("/login", h.Login)
	api.POST("/logout", h.Logout)
	api.POST("/forgot-password", h.ForgotPassword)
	api.POST("/reset-password/:token", h.ResetPassword)
	api.GET("/check-auth", RequireAuth(h.Sessions), h.CheckAuth)

	return r
}
