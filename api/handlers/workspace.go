// api/handlers/workspace.go
package handlers

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

// Workspace is what the configuration, migration and cleanup handlers share:
// the metadata DB and one migration panel per user.
type Workspace struct {
	DB       *sql.DB
	Sessions *migration.Sessions
}

func NewWorkspace(db *sql.DB, sessions *migration.Sessions) *Workspace {
	return &Workspace{DB: db, Sessions: sessions}
}

// session returns the caller's panel. A new panel starts on the user's
// default configuration when one exists.
func (w *Workspace) session(c *gin.Context) *migration.Session {
	uid := userID(c)
	sess, created := w.Sessions.Get(uid)
	if created {
		cfg, err := storage.FindDefaultMigrationConfig(c.Request.Context(), w.DB, uid)
		switch {
		case err == nil:
			sess.Panel.UseConfig(cfg)
		case !errors.Is(err, storage.ErrConfigNotFound):
			customLog.Warnf("Handler: Loading default config for user %s failed: %v", uid, err)
		}
	}
	return sess
}

// fallback re-points the panel after its active config was deleted: the
// default config, else the first remaining one, else the empty state.
func (w *Workspace) fallback(c *gin.Context, sess *migration.Session) {
	ctx := c.Request.Context()
	uid := userID(c)

	if cfg, err := storage.FindDefaultMigrationConfig(ctx, w.DB, uid); err == nil {
		sess.Panel.UseConfig(cfg)
		return
	}
	configs, err := storage.ListMigrationConfigs(ctx, w.DB, uid)
	if err == nil && len(configs) > 0 {
		sess.Panel.UseConfig(&configs[0])
		return
	}
	sess.Panel.ClearConfig()
}

// panelResponse drains the session feed into a state response.
func panelResponse(sess *migration.Session, message string) models.PanelResponse {
	return models.PanelResponse{
		Message:       message,
		State:         sess.Panel.Snapshot(),
		Notifications: sess.Feed.Drain(),
	}
}

// fail attaches err and the pending notifications for the ErrorHandler.
func fail(c *gin.Context, sess *migration.Session, err error) {
	c.Set(middleware.NotificationsKey, sess.Feed.Drain())
	_ = c.Error(err)
}
