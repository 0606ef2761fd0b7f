// internal/migration/panel.go
package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/logger"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
)

var (
	customLog = logger.NewLogger()
)

// Errors returned by panel operations before any network call is made.
var (
	ErrBusy                = errors.New("operation already in progress")
	ErrNoConfig            = errors.New("no migration configuration selected")
	ErrSourceRequired      = errors.New("source connection is not configured")
	ErrEndpointsRequired   = errors.New("both source and target connections must be configured")
	ErrEmptySelection      = errors.New("select at least one table to migrate")
	ErrDiffRequired        = errors.New("compare schemas first")
	ErrCredentialsRequired = errors.New("neon api key and project id are required")
	ErrNoResult            = errors.New("no migration result to verify")
)

// Backend is the part of the migration backend the panel drives directly.
type Backend interface {
	EnsureRunning(ctx context.Context, progress func(string)) error
	Migrate(ctx context.Context, req neonapi.MigrateRequest) (io.ReadCloser, error)
	ListBranches(ctx context.Context, apiKey, projectID string) ([]domain.Branch, error)
	DeleteBranch(ctx context.Context, apiKey, projectID, branchID string) (string, error)
	ExportSchema(ctx context.Context, ep domain.Endpoint, tables []string) (string, error)
}

// Operation names double as busy flags.
const (
	OpLoading   = "loading"
	OpMigrating = "migrating"
	OpVerifying = "verifying"
	OpDeleting  = "deleting"
)

// DefaultType is the migration type a fresh panel starts with.
const DefaultType = TypeBoth

// Panel is the migration workspace of one user. All state changes happen
// under mu; network calls run without it, guarded by the busy flags, so a
// redundant trigger fails with ErrBusy instead of queueing.
type Panel struct {
	mu sync.Mutex

	userID    string
	backend   Backend
	inspector Inspector
	notifier  Notifier
	metrics   *Metrics

	config    *domain.MigrationConfig
	inventory *Inventory
	diff      *domain.SchemaDiff
	migType   Type
	busy      map[string]bool

	progress    string
	rowProgress string
	activity    []string
	result      *Result
	branches    []domain.Branch
}

// PanelDeps are the collaborators a panel is built from.
type PanelDeps struct {
	Backend   Backend
	Inspector Inspector
	Notifier  Notifier
	Metrics   *Metrics
}

// NewPanel returns an empty panel for userID.
func NewPanel(userID string, deps PanelDeps) *Panel {
	n := deps.Notifier
	if n == nil {
		n = NotifierFunc(func(Notification) {})
	}
	return &Panel{
		userID:    userID,
		backend:   deps.Backend,
		inspector: deps.Inspector,
		notifier:  n,
		metrics:   deps.Metrics,
		inventory: NewInventory(),
		migType:   DefaultType,
		busy:      map[string]bool{},
		activity:  []string{},
	}
}

func (p *Panel) notify(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.notifier.Notify(Notification{Level: level, Message: msg, At: time.Now().UTC()})
}

// begin marks op busy. Caller must hold mu.
func (p *Panel) begin(op string) error {
	if p.busy[op] {
		return fmt.Errorf("%w: %s", ErrBusy, op)
	}
	p.busy[op] = true
	return nil
}

func (p *Panel) end(op string) {
	p.mu.Lock()
	delete(p.busy, op)
	p.mu.Unlock()
}

// --- Configuration ---

// UseConfig makes cfg the active configuration and resets everything loaded
// for the previous one.
func (p *Panel) UseConfig(cfg *domain.MigrationConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := *cfg
	p.config = &c
	p.inventory = NewInventory()
	p.diff = nil
	p.result = nil
	p.branches = nil
	p.progress, p.rowProgress = "", ""
	p.activity = []string{}
}

// ClearConfig returns the panel to its empty state.
func (p *Panel) ClearConfig() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.config = nil
	p.inventory = NewInventory()
	p.diff = nil
	p.result = nil
	p.branches = nil
}

// ActiveConfigID returns the id of the active configuration, or "".
func (p *Panel) ActiveConfigID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config == nil {
		return ""
	}
	return p.config.ID
}

func (p *Panel) endpoints() (domain.Endpoint, domain.Endpoint, error) {
	if p.config == nil {
		return domain.Endpoint{}, domain.Endpoint{}, ErrNoConfig
	}
	return p.config.Source(), p.config.Target(), nil
}

// ensureBackend runs the auto-recovery probe, relaying its progress lines.
func (p *Panel) ensureBackend(ctx context.Context) error {
	started := false
	err := p.backend.EnsureRunning(ctx, func(line string) {
		started = true
		p.notify(LevelInfo, "%s", line)
	})
	if started {
		if err != nil {
			p.metrics.backendStart("failed")
		} else {
			p.metrics.backendStart("started")
		}
	}
	if err != nil {
		p.notify(LevelError, "Backend server is required: %v", err)
	}
	return err
}

// backendBound is implemented by inspectors that read through the migration
// backend.
type backendBound interface {
	NeedsBackend() bool
}

// ensureInspector checks the backend only when the inspector depends on it.
func (p *Panel) ensureInspector(ctx context.Context) error {
	if b, ok := p.inspector.(backendBound); ok && b.NeedsBackend() {
		return p.ensureBackend(ctx)
	}
	return nil
}

// --- Inventory ---

// LoadTables replaces the inventory with the source's tables. On failure the
// previous inventory is kept.
func (p *Panel) LoadTables(ctx context.Context) (int, error) {
	p.mu.Lock()
	source, _, err := p.endpoints()
	if err == nil && !source.Configured() {
		err = ErrSourceRequired
	}
	if err == nil {
		err = p.begin(OpLoading)
	}
	p.mu.Unlock()
	if err != nil {
		if !errors.Is(err, ErrBusy) {
			p.notify(LevelError, "%s", err.Error())
		}
		return 0, err
	}
	defer p.end(OpLoading)

	if err := p.ensureInspector(ctx); err != nil {
		return 0, err
	}

	tables, err := p.inspector.ListTables(ctx, source)
	if err != nil {
		customLog.Warnf("Panel: Loading tables for user %s failed: %v", p.userID, err)
		p.notify(LevelError, "Failed to load tables from source: %s", remoteMessage(err))
		return 0, err
	}

	p.mu.Lock()
	p.inventory.Replace(tables)
	loaded := len(p.inventory.Tables)
	changed := 0
	if p.diff != nil {
		p.inventory.ApplyDiff(p.diff)
		changed = p.inventory.DiffCounts(p.diff)
	}
	hasDiff := p.diff != nil
	p.mu.Unlock()

	if hasDiff {
		p.notify(LevelSuccess, "Loaded %d tables (%d with differences)", loaded, changed)
	} else {
		p.notify(LevelSuccess, "Loaded %d tables", loaded)
	}
	return loaded, nil
}

// CompareSchemas diffs source against target and re-applies the diff-driven
// selection to the loaded tables. On failure the previous diff is kept.
func (p *Panel) CompareSchemas(ctx context.Context) (*domain.SchemaDiff, error) {
	p.mu.Lock()
	source, target, err := p.endpoints()
	if err == nil && (!source.Configured() || !target.Configured()) {
		err = ErrEndpointsRequired
	}
	if err == nil {
		err = p.begin(OpLoading)
	}
	p.mu.Unlock()
	if err != nil {
		if !errors.Is(err, ErrBusy) {
			p.notify(LevelError, "%s", err.Error())
		}
		return nil, err
	}
	defer p.end(OpLoading)

	if err := p.ensureInspector(ctx); err != nil {
		return nil, err
	}

	diff, err := p.inspector.CompareSchemas(ctx, source, target)
	if err != nil {
		customLog.Warnf("Panel: Schema comparison for user %s failed: %v", p.userID, err)
		p.notify(LevelError, "Failed to compare schemas: %s", remoteMessage(err))
		return nil, err
	}

	p.mu.Lock()
	p.diff = diff
	p.inventory.ApplyDiff(diff)
	p.mu.Unlock()

	if diff.HasDifferences() {
		p.notify(LevelSuccess, "Schema comparison complete: %d table(s) with differences", diff.ChangedTables())
	} else {
		p.notify(LevelSuccess, "Schema comparison complete: no differences found")
	}
	return diff, nil
}

// SetType changes the migration type and applies its filter and selection rule.
func (p *Panel) SetType(t Type) (Outcome, error) {
	if _, err := ParseType(string(t)); err != nil {
		return Outcome{}, err
	}

	p.mu.Lock()
	out := Transition(t, p.diff, p.inventory.Filter, p.inventory.Tables)
	p.migType = t
	p.inventory.Filter = out.Filter
	p.inventory.Tables = out.Tables
	p.mu.Unlock()

	if out.NeedsDiff {
		p.notify(LevelWarning, "Compare schemas first to select only missing tables")
	} else if t == TypeSchemaMissing {
		p.notify(LevelInfo, "Selected %d missing table(s)", out.Selectable)
	}
	return out, nil
}

// SetFilter sets the table view filter.
func (p *Panel) SetFilter(f Filter) error {
	if _, err := ParseFilter(string(f)); err != nil {
		return err
	}
	p.mu.Lock()
	p.inventory.Filter = f
	p.mu.Unlock()
	return nil
}

// SetSearch sets the table name search text.
func (p *Panel) SetSearch(q string) {
	p.mu.Lock()
	p.inventory.Search = q
	p.mu.Unlock()
}

// SetSort sets the table view ordering.
func (p *Panel) SetSort(field string, desc bool) error {
	if !core.SortFields[field] {
		return ErrInvalidSort
	}
	p.mu.Lock()
	p.inventory.Sort = Sort{Field: field, Desc: desc}
	p.mu.Unlock()
	return nil
}

// Browse returns one page of the inventory under opts without touching the
// panel's own view. Empty filter, search and sort fall back to the panel's.
func (p *Panel) Browse(opts *core.ListQueryOptions) (page []domain.TableInfo, total int) {
	p.mu.Lock()
	view := Inventory{
		Tables: p.inventory.Tables,
		Filter: p.inventory.Filter,
		Search: p.inventory.Search,
		Sort:   p.inventory.Sort,
	}
	if opts.Filter != "" {
		view.Filter = Filter(opts.Filter)
	}
	if opts.Search != "" {
		view.Search = opts.Search
	}
	if opts.SortBy != "" {
		view.Sort = Sort{Field: opts.SortBy, Desc: opts.SortOrder == "desc"}
	}
	visible := view.Visible(p.diff)
	p.mu.Unlock()

	total = len(visible)
	if opts.Offset >= total {
		return []domain.TableInfo{}, total
	}
	end := min(opts.Offset+opts.Limit, total)
	return visible[opts.Offset:end], total
}

// Toggle flips one table's selection.
func (p *Panel) Toggle(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.Toggle(name)
}

// SelectTables replaces the selection with exactly names.
func (p *Panel) SelectTables(names []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.SelectExactly(names)
}

// ToggleAll selects all tables, or clears the selection if all are selected.
func (p *Panel) ToggleAll() {
	p.mu.Lock()
	p.inventory.ToggleAll()
	p.mu.Unlock()
}

// SelectOnlyMissing selects exactly the tables that exist only in the source.
func (p *Panel) SelectOnlyMissing() (int, error) {
	p.mu.Lock()
	if p.diff == nil {
		p.mu.Unlock()
		p.notify(LevelError, "Please compare schemas first")
		return 0, ErrDiffRequired
	}
	p.inventory.SelectOnlyMissing(p.diff)
	n := len(p.diff.TablesOnlyInSource)
	p.mu.Unlock()

	p.notify(LevelSuccess, "Selected %d missing table(s)", n)
	return n, nil
}

// --- Migration ---

// MigrationPlan is what the operator confirms before a run.
type MigrationPlan struct {
	Type   Type     `json:"type"`
	Tables []string `json:"tables"`
	Lines  []string `json:"lines"`
	Phrase string   `json:"confirmation_phrase"`
}

// Plan validates the pending run and renders its confirmation summary.
func (p *Panel) Plan() (*MigrationPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.planLocked()
}

func (p *Panel) planLocked() (*MigrationPlan, error) {
	source, target, err := p.endpoints()
	if err != nil {
		return nil, err
	}
	if !source.Configured() || !target.Configured() {
		return nil, ErrEndpointsRequired
	}
	tables := p.inventory.Selected()
	if len(tables) == 0 {
		return nil, ErrEmptySelection
	}
	return &MigrationPlan{
		Type:   p.migType,
		Tables: tables,
		Lines:  Plan(p.migType, len(tables), source.Label, target.Label),
		Phrase: core.PhraseMigrate,
	}, nil
}

// ConfirmMigration checks the typed phrase without starting a run or
// changing any panel state.
func (p *Panel) ConfirmMigration(phrase string) error {
	if err := core.CheckConfirmation(core.PhraseMigrate, phrase); err != nil {
		p.notify(LevelError, "%s", err.Error())
		return err
	}
	return nil
}

// Update is one streamed change of a running migration.
type Update struct {
	Event       *Event  `json:"event,omitempty"`
	Progress    string  `json:"progress"`
	RowProgress string  `json:"row_progress,omitempty"`
	Failure     string  `json:"failure,omitempty"`
	Result      *Result `json:"result,omitempty"`
}

// StartMigration runs the planned migration after checking the typed phrase.
// Events are applied strictly in arrival order; onUpdate (optional) sees each
// one. A failed initial request aborts with the backend's message. A broken
// stream keeps the partial result. Verification runs automatically at the end.
func (p *Panel) StartMigration(ctx context.Context, phrase string, onUpdate func(Update)) (*Result, error) {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}

	p.mu.Lock()
	plan, err := p.planLocked()
	if err == nil {
		err = core.CheckConfirmation(core.PhraseMigrate, phrase)
	}
	if err == nil {
		err = p.begin(OpMigrating)
	}
	var source, target domain.Endpoint
	if err == nil {
		source, target, _ = p.endpoints()
		p.result = nil
		p.activity = []string{}
		p.progress, p.rowProgress = "Starting migration...", ""
	}
	p.mu.Unlock()
	if err != nil {
		if !errors.Is(err, ErrBusy) {
			p.notify(LevelError, "%s", err.Error())
		}
		return nil, err
	}
	defer p.end(OpMigrating)

	if err := p.ensureBackend(ctx); err != nil {
		p.setProgress("")
		return nil, err
	}

	started := time.Now()
	p.metrics.startedMigration(plan.Type)
	customLog.Printf("Panel: User %s starting %s migration of %d table(s)", p.userID, plan.Type, len(plan.Tables))

	stream, err := p.backend.Migrate(ctx, neonapi.MigrateRequest{
		Source:        source,
		Target:        target,
		Tables:        plan.Tables,
		MigrationType: string(plan.Type),
	})
	if err != nil {
		msg := remoteMessage(err)
		p.setProgress("Error: " + msg)
		p.notify(LevelError, "%s", msg)
		p.metrics.RecordMigration(plan.Type, "rejected", started, nil)
		return nil, err
	}
	defer stream.Close()

	tracker := NewTracker()
	dec := NewDecoder(stream)
	var streamErr error
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformedEvent) {
			customLog.Debugf("Panel: Skipping malformed progress line: %v", err)
			tracker.Debug(err.Error())
			continue
		}
		if err != nil {
			streamErr = err
			break
		}

		failure := tracker.Apply(ev)
		if failure != "" {
			p.notify(LevelError, "%s", failure)
		}
		msg, rows := tracker.Progress()
		p.mu.Lock()
		p.progress, p.rowProgress = msg, rows
		p.activity = tracker.Activity()
		p.result = tracker.Result()
		p.mu.Unlock()

		evCopy := ev
		onUpdate(Update{Event: &evCopy, Progress: msg, RowProgress: rows, Failure: failure})
	}

	tracker.Finish(time.Now())
	outcome := "completed"
	if streamErr != nil {
		outcome = "interrupted"
		customLog.Warnf("Panel: Migration stream for user %s broke: %v", p.userID, streamErr)
		tracker.Debug("stream error: " + streamErr.Error())
		p.notify(LevelError, "Migration stream interrupted: %v", streamErr)
	} else if len(tracker.Failures()) > 0 {
		outcome = "completed_with_errors"
		p.notify(LevelWarning, "Migration finished with %d error(s)", len(tracker.Failures()))
	} else {
		p.notify(LevelSuccess, "Migration completed successfully!")
	}

	result := tracker.Result()
	p.mu.Lock()
	p.result = result
	p.progress = "Migration completed!"
	if streamErr != nil {
		p.progress = "Error: " + streamErr.Error()
	}
	p.activity = tracker.Activity()
	p.mu.Unlock()
	p.metrics.RecordMigration(plan.Type, outcome, started, result)

	verified, verr := p.verify(ctx, target)
	if verr == nil {
		result = verified
	}

	onUpdate(Update{Progress: p.currentProgress(), Result: result.Clone()})
	if streamErr != nil {
		return result, fmt.Errorf("migration stream interrupted: %w", streamErr)
	}
	return result, nil
}

// Verify re-checks the last migration result against the target.
func (p *Panel) Verify(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	_, target, err := p.endpoints()
	if err == nil && p.result == nil {
		err = ErrNoResult
	}
	if err == nil && !target.Configured() {
		err = ErrEndpointsRequired
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.verify(ctx, target)
}

func (p *Panel) verify(ctx context.Context, target domain.Endpoint) (*Result, error) {
	p.mu.Lock()
	if err := p.begin(OpVerifying); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.result == nil {
		p.mu.Unlock()
		p.end(OpVerifying)
		return nil, ErrNoResult
	}
	tables := append([]TableResult(nil), p.result.TablesMigrated...)
	p.mu.Unlock()
	defer p.end(OpVerifying)

	p.notify(LevelInfo, "Verifying %d migrated table(s)...", len(tables))
	verified, err := Verify(ctx, p.inspector.Target(target), tables, func(level Level, msg string) {
		p.appendActivity(msg)
		if level == LevelWarning {
			p.notify(level, "%s", msg)
		}
	})
	if err != nil {
		customLog.Warnf("Panel: Verification for user %s skipped: %v", p.userID, err)
		return nil, err
	}

	missing := 0
	for _, t := range verified {
		switch {
		case !t.Verified.Exists:
			missing++
			p.metrics.verified("missing")
		case t.Verified.RowCount == nil:
			p.metrics.verified("count_unavailable")
		default:
			p.metrics.verified("verified")
		}
	}

	p.mu.Lock()
	if p.result == nil {
		p.mu.Unlock()
		return nil, ErrNoResult
	}
	p.result.TablesMigrated = verified
	result := p.result.Clone()
	p.mu.Unlock()

	if missing > 0 {
		p.notify(LevelWarning, "Verification: %d table(s) missing in target", missing)
	} else {
		p.notify(LevelSuccess, "Verification complete: all %d table(s) present in target", len(verified))
	}
	return result, nil
}

func (p *Panel) setProgress(s string) {
	p.mu.Lock()
	p.progress = s
	p.mu.Unlock()
}

func (p *Panel) currentProgress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Panel) appendActivity(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activity = append(p.activity, line)
	if len(p.activity) > ActivityLogSize {
		p.activity = p.activity[len(p.activity)-ActivityLogSize:]
	}
}

// --- Branches ---

func (p *Panel) credentials() (apiKey, projectID string, err error) {
	if p.config == nil {
		return "", "", ErrNoConfig
	}
	if p.config.NeonAPIKey == "" || p.config.NeonProjectID == "" {
		return "", "", ErrCredentialsRequired
	}
	return p.config.NeonAPIKey, p.config.NeonProjectID, nil
}

// ListBranches fetches the project's branches using the active config's credentials.
func (p *Panel) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	p.mu.Lock()
	apiKey, projectID, err := p.credentials()
	if err == nil {
		err = p.begin(OpLoading)
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer p.end(OpLoading)

	branches, err := p.backend.ListBranches(ctx, apiKey, projectID)
	if err != nil {
		p.notify(LevelError, "Failed to load branches: %s", remoteMessage(err))
		return nil, err
	}

	p.mu.Lock()
	p.branches = branches
	p.mu.Unlock()
	return branches, nil
}

// DeleteBranch deletes a branch after checking the typed phrase.
func (p *Panel) DeleteBranch(ctx context.Context, branchID, phrase string) (string, error) {
	p.mu.Lock()
	apiKey, projectID, err := p.credentials()
	if err == nil {
		err = core.CheckConfirmation(core.PhraseDelete, phrase)
	}
	if err == nil {
		err = p.begin(OpDeleting)
	}
	p.mu.Unlock()
	if err != nil {
		if !errors.Is(err, ErrBusy) {
			p.notify(LevelError, "%s", err.Error())
		}
		return "", err
	}
	defer p.end(OpDeleting)

	msg, err := p.backend.DeleteBranch(ctx, apiKey, projectID, branchID)
	if err != nil {
		p.notify(LevelError, "%s", remoteMessage(err))
		return "", err
	}

	p.mu.Lock()
	kept := p.branches[:0:0]
	for _, b := range p.branches {
		if b.ID != branchID {
			kept = append(kept, b)
		}
	}
	p.branches = kept
	p.mu.Unlock()

	customLog.Printf("Panel: User %s deleted branch %s", p.userID, branchID)
	p.notify(LevelSuccess, "%s", msg)
	return msg, nil
}

// ExportSchema returns a CREATE TABLE script for the source's tables
// (the selected ones, or all when onlySelected is false).
func (p *Panel) ExportSchema(ctx context.Context, onlySelected bool) (string, error) {
	p.mu.Lock()
	source, _, err := p.endpoints()
	var tables []string
	if onlySelected {
		tables = p.inventory.Selected()
	}
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	if onlySelected && len(tables) == 0 {
		return "", ErrEmptySelection
	}

	if err := p.ensureBackend(ctx); err != nil {
		return "", err
	}
	script, err := p.backend.ExportSchema(ctx, source, tables)
	if err != nil {
		p.notify(LevelError, "Failed to export schema: %s", remoteMessage(err))
		return "", err
	}
	return script, nil
}

// --- State ---

// State is a read-only snapshot of a panel.
type State struct {
	ConfigID            string             `json:"config_id,omitempty"`
	ConfigName          string             `json:"config_name,omitempty"`
	UseDirectConnection bool               `json:"use_direct_connection"`
	SourceLabel         string             `json:"source_label,omitempty"`
	TargetLabel         string             `json:"target_label,omitempty"`
	Type                Type               `json:"migration_type"`
	Filter              Filter             `json:"filter"`
	Search              string             `json:"search"`
	Sort                Sort               `json:"sort"`
	Tables              []domain.TableInfo `json:"tables"`
	Visible             []domain.TableInfo `json:"visible"`
	SelectedCount       int                `json:"selected_count"`
	Diff                *domain.SchemaDiff `json:"schema_diff"`
	Busy                map[string]bool    `json:"busy"`
	Progress            string             `json:"progress"`
	RowProgress         string             `json:"row_progress,omitempty"`
	Activity            []string           `json:"activity"`
	Result              *Result            `json:"result,omitempty"`
	Branches            []domain.Branch    `json:"branches,omitempty"`
}

// Snapshot copies the panel state.
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := State{
		Type:        p.migType,
		Filter:      p.inventory.Filter,
		Search:      p.inventory.Search,
		Sort:        p.inventory.Sort,
		Tables:      append([]domain.TableInfo{}, p.inventory.Tables...),
		Visible:     p.inventory.Visible(p.diff),
		Diff:        p.diff,
		Busy:        map[string]bool{OpLoading: false, OpMigrating: false, OpVerifying: false, OpDeleting: false},
		Progress:    p.progress,
		RowProgress: p.rowProgress,
		Activity:    append([]string{}, p.activity...),
		Result:      p.result.Clone(),
		Branches:    append([]domain.Branch(nil), p.branches...),
	}
	s.SelectedCount = len(p.inventory.Selected())
	for op := range p.busy {
		s.Busy[op] = true
	}
	if p.config != nil {
		s.ConfigID = p.config.ID
		s.ConfigName = p.config.ConfigName
		s.UseDirectConnection = p.config.UseDirectConnection
		s.SourceLabel = p.config.Source().Label
		s.TargetLabel = p.config.Target().Label
	}
	return s
}

// remoteMessage returns the backend's own message for remote failures.
func remoteMessage(err error) string {
	var apiErr *neonapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
