// api/handlers/cleanup_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/pgdirect"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

// CleanupHandler scans and empties tables on one side of the active
// configuration over a direct connection.
type CleanupHandler struct {
	*Workspace
	Cleaner *pgdirect.Cleaner
}

func NewCleanupHandler(w *Workspace, cleaner *pgdirect.Cleaner) *CleanupHandler {
	return &CleanupHandler{Workspace: w, Cleaner: cleaner}
}

func (h *CleanupHandler) endpoint(c *gin.Context, sess *migration.Session, side string) (domain.Endpoint, error) {
	id := sess.Panel.ActiveConfigID()
	if id == "" {
		return domain.Endpoint{}, migration.ErrNoConfig
	}
	cfg, err := storage.FindMigrationConfig(c.Request.Context(), h.DB, userID(c), id)
	if err != nil {
		return domain.Endpoint{}, err
	}
	if side == "target" {
		return cfg.Target(), nil
	}
	return cfg.Source(), nil
}

func (h *CleanupHandler) Scan(c *gin.Context) {
	sess := h.session(c)
	var req models.CleanupScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, sess, err)
		return
	}
	ep, err := h.endpoint(c, sess, req.Side)
	if err != nil {
		fail(c, sess, err)
		return
	}

	res, err := h.Cleaner.Scan(c.Request.Context(), ep, req.Search, req.Category)
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Delete empties the requested tables after checking the typed phrase.
func (h *CleanupHandler) Delete(c *gin.Context) {
	sess := h.session(c)
	var req models.CleanupDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, sess, err)
		return
	}
	ep, err := h.endpoint(c, sess, req.Side)
	if err != nil {
		fail(c, sess, err)
		return
	}

	report, err := h.Cleaner.DeleteData(c.Request.Context(), ep, req.Tables, req.Confirmation)
	if err != nil {
		fail(c, sess, err)
		return
	}

	customLog.Printf("Handler: User %s cleaned %d table(s) on %s", userID(c), report.Succeeded, req.Side)
	c.JSON(http.StatusOK, report)
}
