package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"polygon_data_monitor/controllers"
	"polygon_data_monitor/scheduler"
	"polygon_data_monitor/services/fetcher"
)

// SetupRoutes sets up the operational API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, audit *fetcher.AuditLog, monitor *scheduler.Monitor) {
	statusController := controllers.NewStatusController(db, audit, monitor)

	router.GET("/health", statusController.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/stats", statusController.Stats)
		api.GET("/fetches", statusController.RecentFetches)
		api.GET("/scheduler/status", statusController.SchedulerStatus)
	}
}
