package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	claimh "github.com/riverguard/parametric-api/internal/handler/claim"
	healthh "github.com/riverguard/parametric-api/internal/handler/health"
	notificationh "github.com/riverguard/parametric-api/internal/handler/notification"
	policyh "github.com/riverguard/parametric-api/internal/handler/policy"
	readingh "github.com/riverguard/parametric-api/internal/handler/reading"
	"github.com/riverguard/parametric-api/internal/middleware"
)

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	healthH       *healthh.Handler
	claimH        *claimh.Handler
	policyH       *policyh.Handler
	readingH      *readingh.Handler
	notificationH *notificationh.Handler
}

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *healthh.Handler,
	claimH *claimh.Handler,
	policyH *policyh.Handler,
	readingH *readingh.Handler,
	notificationH *notificationh.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidators()
	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return &Router{
		engine:        engine,
		auth:          auth,
		healthH:       healthH,
		claimH:        claimH,
		policyH:       policyH,
		readingH:      readingH,
		notificationH: notificationH,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	health := api.Group("/health")
	{
		health.GET("/live", r.healthH.Live)
		health.GET("/ready", r.healthH.Ready)
		health.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	policies := api.Group("/policies")
	{
		policies.POST("", r.policyH.Create)
		policies.GET("", r.policyH.List)
		policies.GET("/:id", r.policyH.Get)
	}

	claims := api.Group("/claims")
	{
		claims.POST("", r.claimH.Submit)
		claims.GET("", r.claimH.List)
		claims.GET("/pool/status", r.claimH.PoolStatus)
		claims.GET("/:id", r.claimH.Get)
	}

	readings := api.Group("/readings")
	{
		readings.GET("/:station", r.readingH.List)
		readings.GET("/:station/latest", r.readingH.Latest)
		readings.GET("/:station/status", r.readingH.Status)
	}

	api.GET("/thresholds/:station", r.readingH.GetThreshold)

	notifications := api.Group("/notifications")
	{
		notifications.GET("/logs/:user_id", r.notificationH.ListLogs)
		notifications.GET("/in-app/:user_id", r.notificationH.ListInApp)
		notifications.PUT("/in-app/:id/read", r.notificationH.MarkInAppRead)
		notifications.GET("/preferences/:user_id", r.notificationH.GetPreferences)
		notifications.PUT("/preferences/:user_id", r.notificationH.UpdatePreferences)
	}

	webhooks := api.Group("/webhooks/subscriptions")
	{
		webhooks.POST("", r.notificationH.CreateSubscription)
		webhooks.GET("/:user_id", r.notificationH.ListSubscriptions)
		webhooks.DELETE("/:id", r.notificationH.DeleteSubscription)
	}

	// Operator surface: pool funding, claim review, threshold admin,
	// and manual dispatch.
	operator := api.Group("")
	operator.Use(r.auth.Authenticate(), r.auth.RequireOperator())
	{
		operator.POST("/claims/:id/review", r.claimH.Review)
		operator.POST("/claims/pool/fund", r.claimH.FundPool)
		operator.PUT("/thresholds/:station", r.readingH.UpdateThreshold)
		operator.POST("/notifications/send", r.notificationH.Send)
		operator.POST("/notifications/trigger", r.notificationH.Trigger)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
