// api/handlers/migration_handler.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/migration"
)

// MigrationHandler exposes the caller's migration panel.
type MigrationHandler struct {
	*Workspace
}

func NewMigrationHandler(w *Workspace) *MigrationHandler {
	return &MigrationHandler{Workspace: w}
}

func (h *MigrationHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, panelResponse(h.session(c), ""))
}

// BrowseTables pages through the loaded inventory using query parameters
// (limit, offset, sort, order, filter, q).
func (h *MigrationHandler) BrowseTables(c *gin.Context) {
	sess := h.session(c)
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		fail(c, sess, fmt.Errorf("%w: %v", middleware.ErrInvalidRequest, err))
		return
	}
	page, total := sess.Panel.Browse(opts)
	c.JSON(http.StatusOK, gin.H{
		"tables": page,
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// LoadTables refreshes the inventory from the source.
func (h *MigrationHandler) LoadTables(c *gin.Context) {
	sess := h.session(c)
	n, err := sess.Panel.LoadTables(c.Request.Context())
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, fmt.Sprintf("Loaded %d tables", n)))
}

func (h *MigrationHandler) CompareSchemas(c *gin.Context) {
	sess := h.session(c)
	if _, err := sess.Panel.CompareSchemas(c.Request.Context()); err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, "Schema comparison complete"))
}

func (h *MigrationHandler) SetType(c *gin.Context) {
	sess := h.session(c)
	var req models.SetTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, sess, err)
		return
	}
	if _, err := sess.Panel.SetType(migration.Type(req.MigrationType)); err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, ""))
}

// SetView updates filter, search and sort. Omitted fields are unchanged.
func (h *MigrationHandler) SetView(c *gin.Context) {
	sess := h.session(c)
	var req models.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, sess, err)
		return
	}
	if req.Filter != nil {
		if err := sess.Panel.SetFilter(migration.Filter(*req.Filter)); err != nil {
			fail(c, sess, err)
			return
		}
	}
	if req.Search != nil {
		sess.Panel.SetSearch(*req.Search)
	}
	if req.SortField != nil {
		if err := sess.Panel.SetSort(*req.SortField, req.SortDesc); err != nil {
			fail(c, sess, err)
			return
		}
	}
	c.JSON(http.StatusOK, panelResponse(sess, ""))
}

func (h *MigrationHandler) ToggleTable(c *gin.Context) {
	sess := h.session(c)
	if err := sess.Panel.Toggle(c.Param("table_name")); err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, ""))
}

func (h *MigrationHandler) ToggleAll(c *gin.Context) {
	sess := h.session(c)
	sess.Panel.ToggleAll()
	c.JSON(http.StatusOK, panelResponse(sess, ""))
}

func (h *MigrationHandler) SelectMissing(c *gin.Context) {
	sess := h.session(c)
	if _, err := sess.Panel.SelectOnlyMissing(); err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, ""))
}

// GetPlan returns the confirmation summary of the pending run.
func (h *MigrationHandler) GetPlan(c *gin.Context) {
	sess := h.session(c)
	plan, err := sess.Panel.Plan()
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type runOutcome struct {
	result *migration.Result
	err    error
}

// StartMigration runs the pending migration and streams every update as a
// server-sent event. Errors raised before the first update are answered with
// a plain JSON error. The run itself is detached from the request, so a
// client that goes away can pick up the outcome from the state endpoint.
func (h *MigrationHandler) StartMigration(c *gin.Context) {
	sess := h.session(c)
	var req models.StartMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, sess, err)
		return
	}
	if err := sess.Panel.ConfirmMigration(req.Confirmation); err != nil {
		fail(c, sess, err)
		return
	}
	if req.MigrationType != "" {
		if _, err := sess.Panel.SetType(migration.Type(req.MigrationType)); err != nil {
			fail(c, sess, err)
			return
		}
	}
	if len(req.Tables) > 0 {
		if err := sess.Panel.SelectTables(req.Tables); err != nil {
			fail(c, sess, err)
			return
		}
	}

	updates := make(chan migration.Update, 16)
	done := make(chan runOutcome, 1)
	gone := make(chan struct{})
	defer close(gone)

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		result, err := sess.Panel.StartMigration(ctx, req.Confirmation, func(u migration.Update) {
			select {
			case updates <- u:
			case <-gone:
			}
		})
		close(updates)
		done <- runOutcome{result: result, err: err}
	}()

	first, ok := <-updates
	if !ok {
		out := <-done
		if out.err != nil {
			fail(c, sess, out.err)
			return
		}
		c.JSON(http.StatusOK, panelResponse(sess, "Migration completed!"))
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("update", first)
	c.Writer.Flush()

	clientGone := c.Stream(func(w io.Writer) bool {
		u, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("update", u)
		return true
	})
	if clientGone {
		customLog.Printf("Handler: Client of user %s left during migration; run continues", userID(c))
		return
	}

	out := <-done
	if out.err != nil {
		c.SSEvent("error", gin.H{"error": out.err.Error()})
	}
	c.SSEvent("done", gin.H{"notifications": sess.Feed.Drain()})
	c.Writer.Flush()
}

// Verify re-checks the last result against the target.
func (h *MigrationHandler) Verify(c *gin.Context) {
	sess := h.session(c)
	if _, err := sess.Panel.Verify(c.Request.Context()); err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, "Verification complete"))
}

func (h *MigrationHandler) ListBranches(c *gin.Context) {
	sess := h.session(c)
	branches, err := sess.Panel.ListBranches(c.Request.Context())
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches, "notifications": sess.Feed.Drain()})
}

// DeleteBranch takes the typed phrase from the JSON body or the
// confirmation query parameter.
func (h *MigrationHandler) DeleteBranch(c *gin.Context) {
	sess := h.session(c)
	var req models.ConfirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, sess, err)
			return
		}
	}
	if req.Confirmation == "" {
		req.Confirmation = c.Query("confirmation")
	}

	msg, err := sess.Panel.DeleteBranch(c.Request.Context(), c.Param("branch_id"), req.Confirmation)
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, panelResponse(sess, msg))
}

// ExportSchema answers with the SQL script as an attachment.
func (h *MigrationHandler) ExportSchema(c *gin.Context) {
	sess := h.session(c)
	var req models.ExportSchemaRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, sess, err)
			return
		}
	}

	script, err := sess.Panel.ExportSchema(c.Request.Context(), req.OnlySelected)
	if err != nil {
		fail(c, sess, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="schema.sql"`)
	c.Data(http.StatusOK, "application/sql; charset=utf-8", []byte(script))
}
