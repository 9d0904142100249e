package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mazda-bridge-backend/config"
	"mazda-bridge-backend/internal/coordinator"
	"mazda-bridge-backend/internal/metrics"
	"mazda-bridge-backend/internal/mw"
	"mazda-bridge-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(coord *coordinator.Coordinator, s store.Store, serverCfg *config.ServerConfig, webpushOptions *webpush.Options, logger zerolog.Logger) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(coord, s, webpushOptions, logger)

	rateLimiter := mw.RateLimiter(rate.Limit(serverCfg.RateLimitPerSec), 5, serverCfg.RequestIPHeader)

	// Snapshot reads are cached briefly; command routes bypass the cache
	// because their responses must reflect every request.
	snapshots := mw.NewSnapshotCache(time.Duration(serverCfg.CacheTTLSeconds) * time.Second)
	caching := snapshots.Middleware()

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vehicles", caching, handler.GetVehicles)
		api.GET("/vehicles/:vehicle_id/status", caching, handler.GetVehicleStatus)
		api.GET("/vehicles/:vehicle_id/health", caching, handler.GetVehicleHealth)
		api.GET("/vehicles/:vehicle_id/ev", caching, handler.GetVehicleEV)

		api.POST("/vehicles/:vehicle_id/commands/:kind", handler.PostCommand)
		api.GET("/vehicles/:vehicle_id/commands/:visit_no", handler.GetCommandStatus)
		api.GET("/commands", handler.ListCommands)

		api.POST("/refresh", snapshots.FlushOnSuccess(), handler.PostRefresh)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
