package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go_pipeline_project/config"
	"go_pipeline_project/controllers"
	"go_pipeline_project/middleware"
	"go_pipeline_project/scheduler"
	"go_pipeline_project/services"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, db *gorm.DB,
	core *scheduler.SchedulerCore, tracker *services.BatchStateTracker,
	journal *services.JournalService, events *services.EventHub,
	monitor *services.MonitoringService) {

	authController := controllers.NewAuthController(db, cfg.JWTSecret)
	statusController := controllers.NewStatusController(core, tracker, journal, events, monitor)

	// Readiness probe, unauthenticated. Liveness is registered in main before
	// the database comes up.
	router.GET("/ready", statusController.Ready)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", middleware.LoginRateLimitMiddleware(), authController.Login)
			auth.GET("/me", middleware.JWTAuthMiddleware(cfg.JWTSecret), authController.Me)
		}

		protected := api.Group("")
		protected.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			protected.GET("/scheduler/status", statusController.SchedulerStatus)
			protected.GET("/batches/status", statusController.BatchStatus)
			protected.GET("/journal", statusController.JournalRecent)
			protected.GET("/events/ws", statusController.Events)

			admin := protected.Group("")
			admin.Use(middleware.AdminRoleMiddleware())
			{
				admin.POST("/scheduler/trigger", statusController.TriggerPhase)
			}
		}
	}
}
