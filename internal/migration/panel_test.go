package migration

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
)

// fakeDB is an in-memory pair of databases keyed by connection string.
type fakeDB struct {
	tables map[string][]domain.TableInfo
	direct bool
}

func (f *fakeDB) NeedsBackend() bool { return !f.direct }

func (f *fakeDB) ListTables(ctx context.Context, ep domain.Endpoint) ([]domain.TableInfo, error) {
	tables, ok := f.tables[ep.ConnectionString]
	if !ok {
		return nil, &neonapi.APIError{StatusCode: 500, Message: "password authentication failed"}
	}
	return tables, nil
}

func (f *fakeDB) CompareSchemas(ctx context.Context, source, target domain.Endpoint) (*domain.SchemaDiff, error) {
	src, _ := f.ListTables(ctx, source)
	dst, _ := f.ListTables(ctx, target)
	inTarget := map[string]bool{}
	for _, t := range dst {
		inTarget[t.TableName] = true
	}
	diff := &domain.SchemaDiff{TablesOnlyInSource: []string{}, TablesOnlyInTarget: []string{}, TablesInBoth: []string{}, ColumnsDiff: map[string]domain.ColumnDiff{}}
	for _, t := range src {
		if inTarget[t.TableName] {
			diff.TablesInBoth = append(diff.TablesInBoth, t.TableName)
		} else {
			diff.TablesOnlyInSource = append(diff.TablesOnlyInSource, t.TableName)
		}
	}
	return diff, nil
}

func (f *fakeDB) Target(ep domain.Endpoint) TargetInspector {
	return &fakeTarget{names: names(f.tables[ep.ConnectionString]), counts: map[string]int64{"orders": 5}}
}

type fakeBackend struct {
	mu        sync.Mutex
	stream    string
	migrateFn func() (io.ReadCloser, error)
	requests  []neonapi.MigrateRequest
	deleted   []string
	down      bool
	gate      chan struct{}
}

func (b *fakeBackend) EnsureRunning(ctx context.Context, progress func(string)) error {
	if b.down {
		progress("Starting backend server automatically...")
		return neonapi.ErrBackendUnavailable
	}
	return nil
}

func (b *fakeBackend) Migrate(ctx context.Context, req neonapi.MigrateRequest) (io.ReadCloser, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	if b.gate != nil {
		<-b.gate
	}
	if b.migrateFn != nil {
		return b.migrateFn()
	}
	return io.NopCloser(strings.NewReader(b.stream)), nil
}

func (b *fakeBackend) ListBranches(ctx context.Context, apiKey, projectID string) ([]domain.Branch, error) {
	return []domain.Branch{{ID: "br-1", Name: "main"}, {ID: "br-2", Name: "dev"}}, nil
}

func (b *fakeBackend) DeleteBranch(ctx context.Context, apiKey, projectID, branchID string) (string, error) {
	b.deleted = append(b.deleted, branchID)
	return "Branch deleted", nil
}

func (b *fakeBackend) ExportSchema(ctx context.Context, ep domain.Endpoint, tables []string) (string, error) {
	return "-- Table: " + strings.Join(tables, ","), nil
}

const (
	srcConn = "postgresql://u:p@dev/db"
	dstConn = "postgresql://u:p@prod/db"

	timeoutWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)

func newTestPanel(backend *fakeBackend) (*Panel, *Feed) {
	db := &fakeDB{tables: map[string][]domain.TableInfo{
		srcConn: {{TableName: "users", RowCount: 10, Size: "24 kB"}, {TableName: "orders", RowCount: 0, Size: "8192 bytes"}},
		dstConn: {{TableName: "users", RowCount: 10, Size: "24 kB"}},
	}}
	feed := NewFeed()
	p := NewPanel("user-1", PanelDeps{Backend: backend, Inspector: db, Notifier: feed, Metrics: NewMetrics("test")})
	p.UseConfig(&domain.MigrationConfig{
		ID: "cfg-1", ConfigName: "staging", UseDirectConnection: true,
		SourceConnectionString: srcConn, TargetConnectionString: dstConn,
		NeonAPIKey: "napi", NeonProjectID: "proj",
	})
	return p, feed
}

func TestPanelSchemaMissingScenario(t *testing.T) {
	p, _ := newTestPanel(&fakeBackend{})
	ctx := context.Background()

	n, err := p.LoadTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	diff, err := p.CompareSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, diff.TablesOnlyInSource)
	assert.Equal(t, []string{"users"}, diff.TablesInBoth)

	_, err = p.SetType(TypeSchemaMissing)
	require.NoError(t, err)

	state := p.Snapshot()
	assert.Equal(t, FilterNew, state.Filter)
	assert.Equal(t, []string{"orders"}, selectedNames(state.Tables))
	assert.Equal(t, []string{"orders"}, names(state.Visible))
}

func TestPanelLoadFailureKeepsInventory(t *testing.T) {
	p, feed := newTestPanel(&fakeBackend{})
	ctx := context.Background()
	_, err := p.LoadTables(ctx)
	require.NoError(t, err)
	feed.Drain()

	cfg := domain.MigrationConfig{ID: "cfg-2", UseDirectConnection: true, SourceConnectionString: "postgresql://bad", TargetConnectionString: dstConn}
	p.mu.Lock()
	p.config = &cfg
	p.mu.Unlock()

	_, err = p.LoadTables(ctx)
	require.Error(t, err)
	assert.Len(t, p.Snapshot().Tables, 2)

	notes := feed.Drain()
	require.NotEmpty(t, notes)
	assert.Equal(t, LevelError, notes[len(notes)-1].Level)
	assert.Contains(t, notes[len(notes)-1].Message, "password authentication failed")
}

func TestPanelValidationBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{}
	p, _ := newTestPanel(backend)
	ctx := context.Background()

	_, err := p.StartMigration(ctx, core.PhraseMigrate, nil)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = p.LoadTables(ctx)
	require.NoError(t, err)

	for _, phrase := range []string{"", "migrate", "MIGRATE ", "MIGRAT"} {
		_, err = p.StartMigration(ctx, phrase, nil)
		assert.ErrorIs(t, err, core.ErrConfirmationMismatch, phrase)
	}
	assert.Empty(t, backend.requests)

	_, err = p.DeleteBranch(ctx, "br-1", "delete")
	assert.ErrorIs(t, err, core.ErrConfirmationMismatch)
	assert.Empty(t, backend.deleted)

	_, err = p.SelectOnlyMissing()
	assert.ErrorIs(t, err, ErrDiffRequired)

	p.ClearConfig()
	_, err = p.LoadTables(ctx)
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestPanelStartMigration(t *testing.T) {
	backend := &fakeBackend{stream: sse(
		"Connecting to branches...",
		"Processing table: orders",
		"✓ Table orders created",
		"✓ data migration complete for orders (5 rows migrated, 1 skipped, 0 errors)",
		"✓ Completed migration for orders",
		"🎉 Migration completed successfully!",
	)}
	p, _ := newTestPanel(backend)
	ctx := context.Background()

	_, err := p.LoadTables(ctx)
	require.NoError(t, err)
	_, err = p.CompareSchemas(ctx)
	require.NoError(t, err)

	plan, err := p.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, plan.Tables)

	var updates []Update
	result, err := p.StartMigration(ctx, core.PhraseMigrate, func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, []string{"orders"}, backend.requests[0].Tables)
	assert.Equal(t, string(TypeBoth), backend.requests[0].MigrationType)

	require.Len(t, result.TablesMigrated, 1)
	orders := result.TablesMigrated[0]
	assert.EqualValues(t, 5, orders.RowsMigrated)
	assert.Equal(t, StatusSuccess, orders.Status)
	assert.NotNil(t, result.CompletedAt)

	// verification ran automatically; the fake target has no orders table
	require.NotNil(t, orders.Verified)
	assert.False(t, orders.Verified.Exists)

	require.Len(t, updates, 7)
	assert.NotNil(t, updates[len(updates)-1].Result)

	state := p.Snapshot()
	assert.False(t, state.Busy[OpMigrating])
	assert.Equal(t, "Migration completed!", state.Progress)
}

func TestPanelMigrationRejectedByBackend(t *testing.T) {
	backend := &fakeBackend{migrateFn: func() (io.ReadCloser, error) {
		return nil, &neonapi.APIError{StatusCode: 400, Message: "Missing connection strings"}
	}}
	p, feed := newTestPanel(backend)
	_, err := p.LoadTables(context.Background())
	require.NoError(t, err)

	_, err = p.StartMigration(context.Background(), core.PhraseMigrate, nil)
	var apiErr *neonapi.APIError
	require.True(t, errors.As(err, &apiErr))

	notes := feed.Drain()
	assert.Equal(t, "Missing connection strings", notes[len(notes)-1].Message)
	assert.Nil(t, p.Snapshot().Result)
}

func TestPanelRejectsRedundantTrigger(t *testing.T) {
	backend := &fakeBackend{stream: sse("Processing table: users"), gate: make(chan struct{})}
	p, _ := newTestPanel(backend)
	ctx := context.Background()
	_, err := p.LoadTables(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.StartMigration(ctx, core.PhraseMigrate, nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.requests) == 1
	}, timeoutWait, tick)

	_, err = p.StartMigration(ctx, core.PhraseMigrate, nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, p.Snapshot().Busy[OpMigrating])

	close(backend.gate)
	require.NoError(t, <-done)
}

func TestPanelBackendUnavailable(t *testing.T) {
	p, feed := newTestPanel(&fakeBackend{down: true})
	_, err := p.LoadTables(context.Background())
	assert.ErrorIs(t, err, neonapi.ErrBackendUnavailable)

	notes := feed.Drain()
	require.Len(t, notes, 2)
	assert.Equal(t, LevelInfo, notes[0].Level)
	assert.Equal(t, LevelError, notes[1].Level)
}

func TestPanelDirectInspectionSkipsBackend(t *testing.T) {
	p, feed := newTestPanel(&fakeBackend{down: true})
	p.inspector.(*fakeDB).direct = true
	ctx := context.Background()

	n, err := p.LoadTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	diff, err := p.CompareSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, diff.TablesOnlyInSource)

	for _, n := range feed.Drain() {
		assert.NotEqual(t, LevelError, n.Level, n.Message)
		assert.NotContains(t, n.Message, "Starting backend")
	}

	_, err = p.ExportSchema(ctx, false)
	assert.ErrorIs(t, err, neonapi.ErrBackendUnavailable)
}

func TestPanelBranches(t *testing.T) {
	backend := &fakeBackend{}
	p, _ := newTestPanel(backend)
	ctx := context.Background()

	branches, err := p.ListBranches(ctx)
	require.NoError(t, err)
	assert.Len(t, branches, 2)

	_, err = p.DeleteBranch(ctx, "br-1", core.PhraseDelete)
	require.NoError(t, err)
	assert.Equal(t, []string{"br-1"}, backend.deleted)

	state := p.Snapshot()
	require.Len(t, state.Branches, 1)
	assert.Equal(t, "br-2", state.Branches[0].ID)
}

func TestSessions(t *testing.T) {
	s := NewSessions(PanelDeps{Backend: &fakeBackend{}})
	a, created := s.Get("a")
	assert.True(t, created)
	again, created := s.Get("a")
	assert.False(t, created)
	assert.Same(t, a, again)

	b, _ := s.Get("b")
	assert.NotSame(t, a.Panel, b.Panel)

	s.Drop("a")
	_, created = s.Get("a")
	assert.True(t, created)
}

func TestPanelBrowse(t *testing.T) {
	p, _ := newTestPanel(&fakeBackend{})
	_, err := p.LoadTables(context.Background())
	require.NoError(t, err)

	page, total := p.Browse(&core.ListQueryOptions{Limit: 1, SortBy: "rows", SortOrder: "desc"})
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"users"}, names(page))

	page, total = p.Browse(&core.ListQueryOptions{Limit: 10, Search: "ord"})
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"orders"}, names(page))

	page, _ = p.Browse(&core.ListQueryOptions{Limit: 10, Offset: 5})
	assert.Empty(t, page)

	assert.Equal(t, Sort{Field: "name"}, p.Snapshot().Sort, "browsing leaves the panel view alone")
}
