// internal/migration/tracker.go
package migration

import (
	"fmt"
	"time"
)

// Status of one migrated table.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Verification is the post-migration check of one table. RowCount is nil
// when the table exists but its count could not be read.
type Verification struct {
	Exists     bool      `json:"exists"`
	RowCount   *int64    `json:"rowCount,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// TableResult accumulates everything reported for one table.
type TableResult struct {
	TableName    string        `json:"tableName"`
	RowsMigrated int64         `json:"rowsMigrated"`
	RowsSkipped  int64         `json:"rowsSkipped"`
	Errors       int64         `json:"errors"`
	Status       Status        `json:"status"`
	Verified     *Verification `json:"verified,omitempty"`
}

// SchemaChange lists the structural changes made to one table.
type SchemaChange struct {
	TableName string   `json:"tableName"`
	Changes   []string `json:"changes"`
}

// Result is the summary of one migration run. The totals are only ever
// changed together with the matching table entry.
type Result struct {
	TablesMigrated    []TableResult  `json:"tablesMigrated"`
	TotalRowsMigrated int64          `json:"totalRowsMigrated"`
	TotalRowsSkipped  int64          `json:"totalRowsSkipped"`
	TotalErrors       int64          `json:"totalErrors"`
	SchemaChanges     []SchemaChange `json:"schemaChanges"`
	CompletedTables   int            `json:"completedTables"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	DebugInfo         []string       `json:"debugInfo,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.TablesMigrated = make([]TableResult, len(r.TablesMigrated))
	for i, t := range r.TablesMigrated {
		if t.Verified != nil {
			v := *t.Verified
			if v.RowCount != nil {
				n := *v.RowCount
				v.RowCount = &n
			}
			t.Verified = &v
		}
		c.TablesMigrated[i] = t
	}
	c.SchemaChanges = make([]SchemaChange, len(r.SchemaChanges))
	for i, s := range r.SchemaChanges {
		s.Changes = append([]string(nil), s.Changes...)
		c.SchemaChanges[i] = s
	}
	c.DebugInfo = append([]string(nil), r.DebugInfo...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// ActivityLogSize caps the activity log.
const ActivityLogSize = 20

// Tracker folds events into a Result in arrival order. A Tracker belongs to
// one run; replaying a stream into a fresh Tracker gives the same Result.
type Tracker struct {
	result      Result
	index       map[string]int
	changeIndex map[string]int
	activity    []string
	progress    string
	rowProgress string
	failures    []string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		result:      Result{TablesMigrated: []TableResult{}, SchemaChanges: []SchemaChange{}},
		index:       map[string]int{},
		changeIndex: map[string]int{},
	}
}

// Apply folds one event into the result. It returns a failure message when
// the event should be surfaced to the operator, otherwise "".
func (t *Tracker) Apply(ev Event) string {
	if ev.Message != "" {
		t.progress = ev.Message
		t.activity = append(t.activity, ev.Message)
		if len(t.activity) > ActivityLogSize {
			t.activity = t.activity[len(t.activity)-ActivityLogSize:]
		}
	}

	switch ev.Kind {
	case KindTableStarted:
		t.entry(ev.Table)
		t.rowProgress = ""
	case KindTableCompleted:
		t.complete(ev)
	case KindRowProgress:
		t.rowProgress = fmt.Sprintf("%d/%d rows", ev.Done, ev.Total)
	case KindSchemaChange:
		t.recordChange(ev.Table, ev.Change)
	case KindTableFailed:
		e := t.entry(ev.Table)
		e.Status = StatusError
		e.Errors++
		t.result.TotalErrors++
	}

	if ev.Error {
		msg := ev.Message
		if msg == "" {
			msg = fmt.Sprintf("error migrating %s: %s", ev.Table, ev.Reason)
		}
		t.failures = append(t.failures, msg)
		return msg
	}
	return ""
}

func (t *Tracker) entry(table string) *TableResult {
	if i, ok := t.index[table]; ok {
		return &t.result.TablesMigrated[i]
	}
	t.result.TablesMigrated = append(t.result.TablesMigrated, TableResult{TableName: table, Status: StatusPending})
	t.index[table] = len(t.result.TablesMigrated) - 1
	return &t.result.TablesMigrated[len(t.result.TablesMigrated)-1]
}

// complete accumulates counts. A table that reports two count lines is
// counted twice.
func (t *Tracker) complete(ev Event) {
	e := t.entry(ev.Table)
	if c := ev.Counts; c != nil {
		e.RowsMigrated += c.Migrated
		e.RowsSkipped += c.Skipped
		e.Errors += c.Errors
		t.result.TotalRowsMigrated += c.Migrated
		t.result.TotalRowsSkipped += c.Skipped
		t.result.TotalErrors += c.Errors
		if e.Status != StatusError {
			if e.Errors > 0 {
				e.Status = StatusPartial
			} else {
				e.Status = StatusSuccess
			}
		}
	}
	if ev.Finished {
		t.result.CompletedTables++
		if e.Status == StatusPending {
			e.Status = StatusSuccess
		}
	}
}

func (t *Tracker) recordChange(table, change string) {
	if table == "" || change == "" {
		return
	}
	i, ok := t.changeIndex[table]
	if !ok {
		t.result.SchemaChanges = append(t.result.SchemaChanges, SchemaChange{TableName: table})
		i = len(t.result.SchemaChanges) - 1
		t.changeIndex[table] = i
	}
	sc := &t.result.SchemaChanges[i]
	if change == ChangeTableCreated {
		for _, c := range sc.Changes {
			if c == ChangeTableCreated {
				return
			}
		}
	}
	sc.Changes = append(sc.Changes, change)
}

// Finish stamps the completion time.
func (t *Tracker) Finish(at time.Time) {
	at = at.UTC()
	t.result.CompletedAt = &at
}

// Debug appends a diagnostic line to the result.
func (t *Tracker) Debug(line string) {
	t.result.DebugInfo = append(t.result.DebugInfo, line)
}

// Result returns a copy of the accumulated result.
func (t *Tracker) Result() *Result { return t.result.Clone() }

// Activity returns the most recent messages, oldest first.
func (t *Tracker) Activity() []string { return append([]string(nil), t.activity...) }

// Progress returns the latest raw message and the active table's row progress.
func (t *Tracker) Progress() (message, rows string) { return t.progress, t.rowProgress }

// Failures returns every error-flagged message seen so far.
func (t *Tracker) Failures() []string { return append([]string(nil), t.failures...) }
