// api/handlers/migration_handler_integration_test.go
package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/domain"
)

const (
	devConn  = "postgresql://u:p@dev/db"
	prodConn = "postgresql://u:p@prod/db"
)

// fakeMigrationBackend mimics the migration backend's HTTP surface.
type fakeMigrationBackend struct {
	mu         sync.Mutex
	migrations []map[string]any
}

func (f *fakeMigrationBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/neon/tables", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["connectionString"] {
		case devConn:
			writeJSON(w, http.StatusOK, map[string]any{"tables": []domain.TableInfo{
				{TableName: "users", RowCount: 10, Size: "16 kB"},
				{TableName: "orders", RowCount: 5, Size: "8 kB"},
			}})
		case prodConn:
			writeJSON(w, http.StatusOK, map[string]any{"tables": []domain.TableInfo{
				{TableName: "users", RowCount: 10, Size: "16 kB"},
			}})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "password authentication failed"})
		}
	})
	mux.HandleFunc("/api/neon/compare-schemas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"diff": domain.SchemaDiff{
			TablesOnlyInSource: []string{"orders"},
			TablesOnlyInTarget: []string{},
			TablesInBoth:       []string{"users"},
			ColumnsDiff:        map[string]domain.ColumnDiff{},
		}})
	})
	mux.HandleFunc("/api/neon/migrate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.migrations = append(f.migrations, body)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, msg := range []string{
			"Processing table: orders",
			"✓ Table orders created",
			"✓ Completed migration for orders",
			"🎉 Migration completed successfully!",
		} {
			raw, _ := json.Marshal(map[string]string{"message": msg})
			fmt.Fprintf(w, "data: %s\n\n", raw)
		}
	})
	mux.HandleFunc("/api/neon/verify-table", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"exists": true, "rowCount": 5})
	})
	return mux
}

func (f *fakeMigrationBackend) runs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.migrations...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func createConfig(t *testing.T, serverURL, authz, name, source string, isDefault bool) string {
	t.Helper()
	res, body := call(t, http.MethodPost, serverURL+"/api/v1/migration-configs", authz, models.ConfigRequest{
		ConfigName:             name,
		UseDirectConnection:    true,
		SourceConnectionString: source,
		TargetConnectionString: prodConn,
		IsDefault:              isDefault,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var out struct {
		Config domain.MigrationConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Config.ID
}

func decodePanel(t *testing.T, body []byte) models.PanelResponse {
	t.Helper()
	var out models.PanelResponse
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestMigrationFlow(t *testing.T) {
	backend := &fakeMigrationBackend{}
	fake := httptest.NewServer(backend.handler())
	t.Cleanup(fake.Close)

	server, _ := setupTestServer(t, fake.URL)
	authz := signupAndLogin(t, server.URL, "migrator@example.com")

	configID := createConfig(t, server.URL, authz, "dev-to-prod", devConn, true)

	t.Run("Listing redacts connection strings", func(t *testing.T) {
		res, body := call(t, http.MethodGet, server.URL+"/api/v1/migration-configs", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.NotContains(t, string(body), "u:p@dev")
		assert.Contains(t, string(body), configID)
	})

	t.Run("Load and compare", func(t *testing.T) {
		res, body := call(t, http.MethodPost, server.URL+"/api/v1/migration/tables", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))
		panel := decodePanel(t, body)
		assert.Equal(t, configID, panel.State.ConfigID)
		assert.Len(t, panel.State.Tables, 2)
		assert.NotEmpty(t, panel.Notifications)

		res, body = call(t, http.MethodPost, server.URL+"/api/v1/migration/compare", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))
		panel = decodePanel(t, body)
		require.NotNil(t, panel.State.Diff)
		assert.Equal(t, []string{"orders"}, panel.State.Diff.TablesOnlyInSource)

		res, body = call(t, http.MethodGet, server.URL+"/api/v1/migration/tables?filter=all&sort=rows&order=desc&limit=1", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))
		var page struct {
			Tables []domain.TableInfo `json:"tables"`
			Total  int                `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &page))
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Tables, 1)
		assert.Equal(t, "users", page.Tables[0].TableName)

		res, _ = call(t, http.MethodGet, server.URL+"/api/v1/migration/tables?limit=zero", authz, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("Schema-missing selects new tables", func(t *testing.T) {
		res, body := call(t, http.MethodPut, server.URL+"/api/v1/migration/type", authz, models.SetTypeRequest{MigrationType: "schema-missing"})
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))

		res, body = call(t, http.MethodGet, server.URL+"/api/v1/migration/plan", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var plan struct {
			Tables []string `json:"tables"`
			Phrase string   `json:"confirmation_phrase"`
		}
		require.NoError(t, json.Unmarshal(body, &plan))
		assert.Equal(t, []string{"orders"}, plan.Tables)
		assert.Equal(t, "MIGRATE", plan.Phrase)
	})

	t.Run("Wrong confirmation is rejected", func(t *testing.T) {
		res, body := call(t, http.MethodPost, server.URL+"/api/v1/migration/start", authz, models.StartMigrationRequest{
			Confirmation:  "migrate please",
			MigrationType: "both",
			Tables:        []string{"users"},
		})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Contains(t, string(body), "notifications")
		assert.Empty(t, backend.runs())

		res, body = call(t, http.MethodGet, server.URL+"/api/v1/migration/plan", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var plan struct {
			Type   string   `json:"type"`
			Tables []string `json:"tables"`
		}
		require.NoError(t, json.Unmarshal(body, &plan))
		assert.Equal(t, "schema-missing", plan.Type, "rejected start leaves the type alone")
		assert.Equal(t, []string{"orders"}, plan.Tables)
	})

	t.Run("Start streams progress", func(t *testing.T) {
		res, body := call(t, http.MethodPost, server.URL+"/api/v1/migration/start", authz, models.StartMigrationRequest{Confirmation: "MIGRATE"})
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))
		assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

		stream := string(body)
		assert.Contains(t, stream, "event:update")
		assert.Contains(t, stream, "Processing table: orders")
		assert.Contains(t, stream, "event:done")
		assert.NotContains(t, stream, "event:error")

		runs := backend.runs()
		require.Len(t, runs, 1)
		assert.Equal(t, "schema-missing", runs[0]["migrationType"])
		assert.Equal(t, []any{"orders"}, runs[0]["tables"])

		res, body = call(t, http.MethodGet, server.URL+"/api/v1/migration/state", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		panel := decodePanel(t, body)
		assert.Equal(t, "Migration completed!", panel.State.Progress)
		require.NotNil(t, panel.State.Result)
		assert.False(t, panel.State.Busy["migrating"])
	})

	t.Run("Unknown table toggle", func(t *testing.T) {
		res, _ := call(t, http.MethodPost, server.URL+"/api/v1/migration/tables/ghost/toggle", authz, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("Backend error message passes through", func(t *testing.T) {
		brokenID := createConfig(t, server.URL, authz, "broken", "postgresql://u:p@elsewhere/db", false)
		res, _ := call(t, http.MethodPost, server.URL+"/api/v1/migration-configs/"+brokenID+"/activate", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res, body := call(t, http.MethodPost, server.URL+"/api/v1/migration/tables", authz, nil)
		assert.Equal(t, http.StatusBadGateway, res.StatusCode)
		assert.Contains(t, string(body), "password authentication failed")

		res, body = call(t, http.MethodGet, server.URL+"/api/v1/migration/state", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		state := decodePanel(t, body).State
		assert.Equal(t, brokenID, state.ConfigID)
		assert.Empty(t, state.Tables)

		res, body = call(t, http.MethodDelete, server.URL+"/api/v1/migration-configs/"+brokenID, authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, string(body), configID, "falls back to the default config")
	})

	t.Run("Deleting the last config empties the panel", func(t *testing.T) {
		res, _ := call(t, http.MethodDelete, server.URL+"/api/v1/migration-configs/"+configID, authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res, body := call(t, http.MethodGet, server.URL+"/api/v1/migration/state", authz, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Empty(t, decodePanel(t, body).State.ConfigID)

		res, _ = call(t, http.MethodGet, server.URL+"/api/v1/migration-configs/"+configID, authz, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestMigrationBackendUnavailable(t *testing.T) {
	fake := httptest.NewServer(http.NotFoundHandler())
	fake.Close()

	server, _ := setupTestServer(t, fake.URL)
	authz := signupAndLogin(t, server.URL, "offline@example.com")
	createConfig(t, server.URL, authz, "offline", devConn, true)

	res, body := call(t, http.MethodPost, server.URL+"/api/v1/migration/tables", authz, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.True(t, strings.Contains(string(body), "not reachable"), string(body))
}

func TestConfigValidation(t *testing.T) {
	server, _ := setupTestServer(t, "http://127.0.0.1:1")
	authz := signupAndLogin(t, server.URL, "configs@example.com")

	tests := []struct {
		name string
		req  models.ConfigRequest
	}{
		{"missing name", models.ConfigRequest{UseDirectConnection: true, SourceConnectionString: devConn, TargetConnectionString: prodConn}},
		{"missing target", models.ConfigRequest{ConfigName: "half", UseDirectConnection: true, SourceConnectionString: devConn}},
		{"branch mode without credentials", models.ConfigRequest{ConfigName: "branches", SourceBranchID: "br-1", TargetBranchID: "br-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := call(t, http.MethodPost, server.URL+"/api/v1/migration-configs", authz, tt.req)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}

	createConfig(t, server.URL, authz, "dup", devConn, false)
	res, _ := call(t, http.MethodPost, server.URL+"/api/v1/migration-configs", authz, models.ConfigRequest{
		ConfigName: "dup", UseDirectConnection: true, SourceConnectionString: devConn, TargetConnectionString: prodConn,
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}
