// api/handlers/config_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

// ConfigHandler serves the saved migration configurations.
type ConfigHandler struct {
	*Workspace
}

func NewConfigHandler(w *Workspace) *ConfigHandler {
	return &ConfigHandler{Workspace: w}
}

// ListConfigs returns the caller's configurations, default first, with
// secrets masked.
func (h *ConfigHandler) ListConfigs(c *gin.Context) {
	configs, err := storage.ListMigrationConfigs(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	for i := range configs {
		configs[i] = redacted(configs[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"configs":          configs,
		"active_config_id": h.session(c).Panel.ActiveConfigID(),
	})
}

// GetConfig returns one configuration in full, for editing.
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	cfg, err := storage.FindMigrationConfig(c.Request.Context(), h.DB, userID(c), c.Param("config_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *ConfigHandler) CreateConfig(c *gin.Context) {
	cfg, err := bindConfig(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cfg.UserID = userID(c)

	if err := storage.CreateMigrationConfig(c.Request.Context(), h.DB, cfg); err != nil {
		_ = c.Error(err)
		return
	}

	sess := h.session(c)
	if sess.Panel.ActiveConfigID() == "" || cfg.IsDefault {
		sess.Panel.UseConfig(cfg)
	}

	customLog.Printf("Handler: User %s saved migration config '%s'", cfg.UserID, cfg.ConfigName)
	c.JSON(http.StatusCreated, gin.H{"message": "Configuration saved", "config": redacted(*cfg)})
}

func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := storage.FindMigrationConfig(ctx, h.DB, userID(c), c.Param("config_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	cfg, err := bindConfig(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cfg.ID = existing.ID
	cfg.UserID = existing.UserID
	cfg.CreatedAt = existing.CreatedAt

	if err := storage.UpdateMigrationConfig(ctx, h.DB, cfg); err != nil {
		_ = c.Error(err)
		return
	}

	if sess := h.session(c); sess.Panel.ActiveConfigID() == cfg.ID {
		sess.Panel.UseConfig(cfg)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated", "config": redacted(*cfg)})
}

// DeleteConfig removes a configuration. If it was the active one the panel
// moves to another configuration or the empty state.
func (h *ConfigHandler) DeleteConfig(c *gin.Context) {
	configID := c.Param("config_id")
	if err := storage.DeleteMigrationConfig(c.Request.Context(), h.DB, userID(c), configID); err != nil {
		_ = c.Error(err)
		return
	}

	sess := h.session(c)
	if sess.Panel.ActiveConfigID() == configID {
		h.fallback(c, sess)
	}

	customLog.Printf("Handler: User %s deleted migration config %s", userID(c), configID)
	c.JSON(http.StatusOK, gin.H{
		"message":          "Configuration deleted",
		"active_config_id": sess.Panel.ActiveConfigID(),
	})
}

func (h *ConfigHandler) SetDefaultConfig(c *gin.Context) {
	if err := storage.SetDefaultMigrationConfig(c.Request.Context(), h.DB, userID(c), c.Param("config_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Default configuration updated"})
}

// ActivateConfig loads a configuration into the caller's panel.
func (h *ConfigHandler) ActivateConfig(c *gin.Context) {
	cfg, err := storage.FindMigrationConfig(c.Request.Context(), h.DB, userID(c), c.Param("config_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	sess := h.session(c)
	sess.Panel.UseConfig(cfg)
	c.JSON(http.StatusOK, panelResponse(sess, fmt.Sprintf("Loaded configuration '%s'", cfg.ConfigName)))
}

// bindConfig validates the request body into a config. Both sides must be
// addressable in the chosen connection mode.
func bindConfig(c *gin.Context) (*domain.MigrationConfig, error) {
	var req models.ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if !core.IsValidConfigName(req.ConfigName) {
		return nil, fmt.Errorf("%w: invalid configuration name", middleware.ErrInvalidRequest)
	}

	cfg := &domain.MigrationConfig{
		ConfigName:             strings.TrimSpace(req.ConfigName),
		UseDirectConnection:    req.UseDirectConnection,
		SourceConnectionString: core.CleanConnectionString(req.SourceConnectionString),
		TargetConnectionString: core.CleanConnectionString(req.TargetConnectionString),
		SourceBranchName:       strings.TrimSpace(req.SourceBranchName),
		TargetBranchName:       strings.TrimSpace(req.TargetBranchName),
		SourceBranchID:         strings.TrimSpace(req.SourceBranchID),
		TargetBranchID:         strings.TrimSpace(req.TargetBranchID),
		NeonAPIKey:             strings.TrimSpace(req.NeonAPIKey),
		NeonProjectID:          strings.TrimSpace(req.NeonProjectID),
		IsDefault:              req.IsDefault,
	}

	if !cfg.Source().Configured() || !cfg.Target().Configured() {
		if cfg.UseDirectConnection {
			return nil, fmt.Errorf("%w: source and target connection strings are required", middleware.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: neon api key, project id and both branch ids are required", middleware.ErrInvalidRequest)
	}
	return cfg, nil
}

// redacted masks the secrets of a configuration for listings.
func redacted(cfg domain.MigrationConfig) domain.MigrationConfig {
	if cfg.SourceConnectionString != "" {
		cfg.SourceConnectionString = core.RedactConnectionString(cfg.SourceConnectionString)
	}
	if cfg.TargetConnectionString != "" {
		cfg.TargetConnectionString = core.RedactConnectionString(cfg.TargetConnectionString)
	}
	if n := len(cfg.NeonAPIKey); n > 4 {
		cfg.NeonAPIKey = "****" + cfg.NeonAPIKey[n-4:]
	} else if n > 0 {
		cfg.NeonAPIKey = "****"
	}
	return cfg
}
