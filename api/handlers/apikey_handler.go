// api/handlers/apikey_handler.go
package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

// APIKeyHandler manages personal API keys.
type APIKeyHandler struct {
	DB *sql.DB
}

func NewAPIKeyHandler(db *sql.DB) *APIKeyHandler {
	return &APIKeyHandler{DB: db}
}

// CreateAPIKey issues a key. The full key is in this response only.
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	var req models.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	key, meta, err := storage.CreateAPIKey(c.Request.Context(), h.DB, userID(c), req.Label)
	if err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Handler: Issued API key %s for user %s", meta.Prefix, userID(c))
	c.JSON(http.StatusCreated, models.CreateAPIKeyResponse{
		Message: "Store this key now. It will not be shown again.",
		Key:     key,
		APIKey:  *meta,
	})
}

func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	keys, err := storage.ListAPIKeys(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (h *APIKeyHandler) DeleteAPIKey(c *gin.Context) {
	keyID, err := strconv.ParseInt(c.Param("key_id"), 10, 64)
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: key id must be a number", middleware.ErrInvalidRequest))
		return
	}

	if err := storage.DeleteAPIKey(c.Request.Context(), h.DB, userID(c), keyID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
