package migration

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Event
	}{
		{"Processing table: orders", Event{Kind: KindTableStarted, Table: "orders"}},
		{"✓ Completed migration for orders", Event{Kind: KindTableCompleted, Table: "orders", Finished: true}},
		{"Migrated 100/250 rows", Event{Kind: KindRowProgress, Done: 100, Total: 250}},
		{
			"✓ data migration complete for orders (5 rows migrated, 1 skipped, 0 errors)",
			Event{Kind: KindTableCompleted, Table: "orders", Counts: &RowCounts{Migrated: 5, Skipped: 1}},
		},
		{
			"✓ selective data migration complete for users (7 rows migrated, 3 skipped (duplicates), 2 errors)",
			Event{Kind: KindTableCompleted, Table: "users", Counts: &RowCounts{Migrated: 7, Skipped: 3, Errors: 2}},
		},
		{
			"✓ data migration complete for items (12 rows migrated)",
			Event{Kind: KindTableCompleted, Table: "items", Counts: &RowCounts{Migrated: 12}},
		},
		{"✓ Table orders created", Event{Kind: KindSchemaChange, Table: "orders", Change: ChangeTableCreated}},
		{"✓ Missing table orders created", Event{Kind: KindSchemaChange, Table: "orders", Change: ChangeTableCreated}},
		{"✓ Added 2 column(s) to users", Event{Kind: KindSchemaChange, Table: "users", Change: "Added 2 column(s)"}},
		{"✓ Added 1 missing column(s) to users", Event{Kind: KindSchemaChange, Table: "users", Change: "Added 1 column(s)"}},
		{"✗ Error migrating orders: relation does not exist", Event{Kind: KindTableFailed, Table: "orders", Reason: "relation does not exist"}},
		{"🎉 Migration completed successfully!", Event{Kind: KindMigrationDone}},
		{"Connecting to branches...", Event{Kind: KindInfo}},
		{"Creating table orders in target...", Event{Kind: KindInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Classify(tt.message, false)
			tt.want.Message = tt.message
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecoder(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"message":"Processing table: orders","error":false}`,
		``,
		`: keep-alive comment`,
		`data: {"kind":"table_completed","table":"orders","message":"done","counts":{"rows_migrated":4},"finished":true}`,
		`data: not json`,
		`data: {"message":"✗ Error migrating users: boom","error":true}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(stream))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, KindTableStarted, ev.Kind)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, KindTableCompleted, ev.Kind)
	assert.True(t, ev.Finished)
	assert.EqualValues(t, 4, ev.Counts.Migrated)

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrMalformedEvent)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, KindTableFailed, ev.Kind)
	assert.True(t, ev.Error)

	_, err = dec.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func sse(messages ...string) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "data: {\"message\":%q,\"error\":%t}\n\n", m, strings.HasPrefix(m, "✗"))
	}
	return b.String()
}

func replay(t *testing.T, stream string) *Tracker {
	t.Helper()
	tr := NewTracker()
	dec := NewDecoder(strings.NewReader(stream))
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return tr
		}
		require.NoError(t, err)
		tr.Apply(ev)
	}
}

func TestTrackerSingleTableScenario(t *testing.T) {
	stream := sse(
		"Processing table: orders",
		"✓ data migration complete for orders (5 rows migrated, 1 skipped, 0 errors)",
		"Completed migration for orders",
	)

	result := replay(t, stream).Result()
	require.Len(t, result.TablesMigrated, 1)
	assert.Equal(t, TableResult{TableName: "orders", RowsMigrated: 5, RowsSkipped: 1, Errors: 0, Status: StatusSuccess}, result.TablesMigrated[0])
	assert.EqualValues(t, 5, result.TotalRowsMigrated)
	assert.Equal(t, 1, result.CompletedTables)
}

func TestTrackerTotalsAndReplay(t *testing.T) {
	stream := sse(
		"Connecting to branches...",
		"Processing table: users",
		"Processing table: users",
		"✓ Table users created",
		"✓ Table users created",
		"✓ Added 2 column(s) to users",
		"Migrated 100/120 rows",
		"✓ data migration complete for users (120 rows migrated)",
		"✓ Completed migration for users",
		"Processing table: orders",
		"✓ data migration complete for orders (3 rows migrated, 2 errors)",
		"✓ Completed migration for orders",
		"Processing table: items",
		"✗ Error migrating items: duplicate key",
		"✓ data migration complete for items (1 rows migrated)",
		"🎉 Migration completed successfully!",
	)

	first := replay(t, stream).Result()
	second := replay(t, stream).Result()
	assert.Equal(t, first, second)

	require.Len(t, first.TablesMigrated, 3)
	var sum int64
	for _, tr := range first.TablesMigrated {
		sum += tr.RowsMigrated
	}
	assert.Equal(t, sum, first.TotalRowsMigrated)
	assert.EqualValues(t, 124, first.TotalRowsMigrated)
	assert.EqualValues(t, 3, first.TotalErrors)

	assert.Equal(t, StatusSuccess, first.TablesMigrated[0].Status)
	assert.Equal(t, StatusPartial, first.TablesMigrated[1].Status)
	assert.Equal(t, StatusError, first.TablesMigrated[2].Status, "error status is not cleared by a later count line")

	require.Len(t, first.SchemaChanges, 1)
	assert.Equal(t, []string{"Table created", "Added 2 column(s)"}, first.SchemaChanges[0].Changes)
}

func TestTrackerActivityLogCap(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 30; i++ {
		tr.Apply(Classify(fmt.Sprintf("line %d", i), false))
	}
	log := tr.Activity()
	require.Len(t, log, ActivityLogSize)
	assert.Equal(t, "line 10", log[0])
	assert.Equal(t, "line 29", log[ActivityLogSize-1])
}

func TestTrackerFailuresDoNotAbort(t *testing.T) {
	tr := NewTracker()
	msg := tr.Apply(Classify("Migration failed: connection reset", true))
	assert.Equal(t, "Migration failed: connection reset", msg)

	tr.Apply(Classify("Processing table: orders", false))
	tr.Finish(time.Now())
	r := tr.Result()
	assert.Len(t, r.TablesMigrated, 1)
	assert.NotNil(t, r.CompletedAt)
	assert.Len(t, tr.Failures(), 1)
}
