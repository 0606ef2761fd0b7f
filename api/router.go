// api/router.go
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/handlers"
	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
	"github.com/Annany2002/nebula-migrate/internal/pgdirect"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "nebula_migrate"

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(metaDB *sql.DB, cfg *config.Config) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
	}
	router.Use(cors.New(corsCfg))
	router.Use(middleware.ErrorHandler())

	// Migration wiring
	metrics := migration.NewMetrics(MetricsNamespace)
	client := neonapi.NewClient(cfg)
	var inspector migration.Inspector = migration.RemoteInspector{Client: client}
	if cfg.InspectMode == config.InspectDirect {
		inspector = pgdirect.NewInspector()
	}
	sessions := migration.NewSessions(migration.PanelDeps{
		Backend:   client,
		Inspector: inspector,
		Metrics:   metrics,
	})
	workspace := handlers.NewWorkspace(metaDB, sessions)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(metaDB, cfg)
	apiKeyHandler := handlers.NewAPIKeyHandler(metaDB)
	configHandler := handlers.NewConfigHandler(workspace)
	migrationHandler := handlers.NewMigrationHandler(workspace)
	cleanupHandler := handlers.NewCleanupHandler(workspace, pgdirect.NewCleaner())

	// --- Public Routes ---
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authRoutes := router.Group("/auth")
	authRoutes.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)))
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
	}

	// --- Key management: interactive sessions only ---
	keyRoutes := router.Group("/api/v1/api-keys")
	keyRoutes.Use(middleware.AuthMiddleware(cfg))
	{
		keyRoutes.POST("", apiKeyHandler.CreateAPIKey)
		keyRoutes.GET("", apiKeyHandler.ListAPIKeys)
		keyRoutes.DELETE("/:key_id", apiKeyHandler.DeleteAPIKey)
	}

	// --- Protected Routes ---
	apiRoutes := router.Group("/api/v1")
	apiRoutes.Use(middleware.CombinedAuthMiddleware(metaDB, cfg))
	{
		apiRoutes.GET("/me", authHandler.Me)

		apiRoutes.GET("/migration-configs", configHandler.ListConfigs)
		apiRoutes.POST("/migration-configs", configHandler.CreateConfig)
		apiRoutes.GET("/migration-configs/:config_id", configHandler.GetConfig)
		apiRoutes.PUT("/migration-configs/:config_id", configHandler.UpdateConfig)
		apiRoutes.DELETE("/migration-configs/:config_id", configHandler.DeleteConfig)
		apiRoutes.POST("/migration-configs/:config_id/default", configHandler.SetDefaultConfig)
		apiRoutes.POST("/migration-configs/:config_id/activate", configHandler.ActivateConfig)

		apiRoutes.GET("/migration/state", migrationHandler.GetState)
		apiRoutes.GET("/migration/tables", migrationHandler.BrowseTables)
		apiRoutes.POST("/migration/tables", migrationHandler.LoadTables)
		apiRoutes.POST("/migration/compare", migrationHandler.CompareSchemas)
		apiRoutes.PUT("/migration/type", migrationHandler.SetType)
		apiRoutes.PUT("/migration/filter", migrationHandler.SetView)
		apiRoutes.POST("/migration/tables/toggle-all", migrationHandler.ToggleAll)
		apiRoutes.POST("/migration/tables/:table_name/toggle", migrationHandler.ToggleTable)
		apiRoutes.POST("/migration/select-missing", migrationHandler.SelectMissing)
		apiRoutes.GET("/migration/plan", migrationHandler.GetPlan)
		apiRoutes.POST("/migration/start", migrationHandler.StartMigration)
		apiRoutes.POST("/migration/verify", migrationHandler.Verify)
		apiRoutes.GET("/migration/branches", migrationHandler.ListBranches)
		apiRoutes.DELETE("/migration/branches/:branch_id", migrationHandler.DeleteBranch)
		apiRoutes.POST("/migration/export-schema", migrationHandler.ExportSchema)

		apiRoutes.POST("/cleanup/scan", cleanupHandler.Scan)
		apiRoutes.POST("/cleanup/delete", cleanupHandler.Delete)
	}

	return router
}
