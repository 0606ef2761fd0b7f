// internal/migration/events.go
package migration

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags a progress Event.
type Kind string

const (
	KindTableStarted   Kind = "table_started"
	KindTableCompleted Kind = "table_completed"
	KindRowProgress    Kind = "row_progress"
	KindSchemaChange   Kind = "schema_change"
	KindTableFailed    Kind = "table_failed"
	KindMigrationDone  Kind = "migration_done"
	KindInfo           Kind = "info"
)

// RowCounts are the per-table totals reported when a table's data copy ends.
type RowCounts struct {
	Migrated int64 `json:"rows_migrated"`
	Skipped  int64 `json:"rows_skipped"`
	Errors   int64 `json:"errors"`
}

// Event is one progress update from a migration stream.
//
// A table_completed event with Counts carries row totals; one with Finished
// closes the table. The free-text backend reports these on separate lines, a
// typed backend may set both on one event.
type Event struct {
	Kind     Kind       `json:"kind"`
	Table    string     `json:"table,omitempty"`
	Message  string     `json:"message"`
	Error    bool       `json:"error,omitempty"`
	Counts   *RowCounts `json:"counts,omitempty"`
	Finished bool       `json:"finished,omitempty"`
	Done     int64      `json:"done,omitempty"`  // row_progress
	Total    int64      `json:"total,omitempty"` // row_progress
	Change   string     `json:"change,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

var ErrMalformedEvent = errors.New("malformed progress event")

const dataPrefix = "data: "

// Decoder reads "data: {json}" lines from a migration stream in arrival
// order. Lines without the prefix are skipped.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r. Lines up to 1 MiB are accepted.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &Decoder{scanner: s}
}

// Next returns the next event, io.EOF at the end of the stream, or an error
// wrapping ErrMalformedEvent for a data line that is not JSON. Callers may
// keep reading after a malformed line.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		line := strings.TrimRight(d.scanner.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		return DecodeLine(strings.TrimPrefix(line, dataPrefix))
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// DecodeLine turns one JSON payload into an Event. A payload with a "kind"
// is taken as typed; anything else is classified from its message text.
func DecodeLine(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Kind != "" {
		return ev, nil
	}
	return Classify(ev.Message, ev.Error), nil
}

// Patterns of the free-text progress vocabulary.
var (
	reProcessing = regexp.MustCompile(`Processing table:\s*(\S+)`)
	reCompleted  = regexp.MustCompile(`Completed migration for\s+(\w+)`)
	reRows       = regexp.MustCompile(`Migrated\s+(\d+)/(\d+)\s+rows`)
	reCounts     = regexp.MustCompile(`for\s+(\w+)\s+\((\d+)\s+rows\s+migrated(?:,\s*(\d+)\s+skipped(?:\s+\(duplicates\))?)?(?:,\s*(\d+)\s+errors)?\)`)
	reCreated    = regexp.MustCompile(`(?i)\btable\s+(\w+)\s+created`)
	reColumns    = regexp.MustCompile(`Added\s+(\d+)\s+(?:missing\s+)?column\(s\)\s+to\s+(\w+)`)
	reFailed     = regexp.MustCompile(`Error migrating\s+(\w+):\s*(.*)`)
	reDone       = regexp.MustCompile(`(?i)migration completed successfully`)
)

// Classify maps a free-text progress message onto an Event. Unmatched text
// becomes an info event.
func Classify(message string, isError bool) Event {
	ev := Event{Kind: KindInfo, Message: message, Error: isError}

	// Order matters: the counts line also contains "for X".
	switch {
	case reFailed.MatchString(message):
		m := reFailed.FindStringSubmatch(message)
		ev.Kind, ev.Table, ev.Reason = KindTableFailed, m[1], strings.TrimSpace(m[2])
	case reProcessing.MatchString(message):
		ev.Kind, ev.Table = KindTableStarted, reProcessing.FindStringSubmatch(message)[1]
	case reCounts.MatchString(message):
		m := reCounts.FindStringSubmatch(message)
		ev.Kind, ev.Table = KindTableCompleted, m[1]
		ev.Counts = &RowCounts{Migrated: atoi(m[2]), Skipped: atoi(m[3]), Errors: atoi(m[4])}
	case reCompleted.MatchString(message):
		ev.Kind, ev.Table, ev.Finished = KindTableCompleted, reCompleted.FindStringSubmatch(message)[1], true
	case reRows.MatchString(message):
		m := reRows.FindStringSubmatch(message)
		ev.Kind, ev.Done, ev.Total = KindRowProgress, atoi(m[1]), atoi(m[2])
	case reColumns.MatchString(message):
		m := reColumns.FindStringSubmatch(message)
		ev.Kind, ev.Table, ev.Change = KindSchemaChange, m[2], fmt.Sprintf("Added %s column(s)", m[1])
	case reCreated.MatchString(message):
		ev.Kind, ev.Table, ev.Change = KindSchemaChange, reCreated.FindStringSubmatch(message)[1], ChangeTableCreated
	case reDone.MatchString(message):
		ev.Kind = KindMigrationDone
	}
	return ev
}

// ChangeTableCreated is the schema change recorded when a table is created on the target.
const ChangeTableCreated = "Table created"

func atoi(s string) int64 {
	if s == "" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
