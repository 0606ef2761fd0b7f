// internal/pgdirect/cleanup.go
package pgdirect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
)

var (
	ErrNoTables     = errors.New("no tables selected")
	ErrInvalidTable = errors.New("invalid table name")
)

// foreignKeyViolation is the Postgres SQLSTATE for a rejected delete of a
// referenced row.
const foreignKeyViolation = "23503"

const fkMessage = "Cannot delete: Referenced by other tables. Delete dependent tables first or use SQL with CASCADE."

// CleanupTable is one scanned table.
type CleanupTable struct {
	TableName string `json:"table_name"`
	RowCount  int64  `json:"row_count"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	Category  string `json:"category"`
}

// CategoryGroup is the scanned tables of one category, largest first.
type CategoryGroup struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tables      []CleanupTable `json:"tables"`
	TotalRows   int64          `json:"total_rows"`
}

// ScanResult is the grouped cleanup inventory of a database.
type ScanResult struct {
	Groups      []CategoryGroup `json:"groups"`
	TotalTables int             `json:"total_tables"`
	TotalRows   int64           `json:"total_rows"`
	Summary     string          `json:"summary"`
}

// DeleteResult is the outcome of clearing one table.
type DeleteResult struct {
	Table       string `json:"table"`
	Success     bool   `json:"success"`
	DeletedRows int64  `json:"deleted_rows,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DeleteReport sums up a cleanup run.
type DeleteReport struct {
	Results      []DeleteResult `json:"results"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	TotalDeleted int64          `json:"total_deleted"`
	Messages     []string       `json:"messages"`
}

// Cleaner scans and empties tables over a direct connection.
type Cleaner struct{}

// NewCleaner returns a Cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Scan lists every public table with its row count and size, grouped by
// category. search and category narrow the groups; empty means no filter.
func (c *Cleaner) Scan(ctx context.Context, ep domain.Endpoint, search, category string) (*ScanResult, error) {
	var tables []CleanupTable
	err := withConn(ctx, ep, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT table_name,
				pg_total_relation_size(quote_ident(table_schema) || '.' || quote_ident(table_name))
			FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`, schemaName)
		if err != nil {
			return fmt.Errorf("scanning tables: %w", err)
		}
		scanned, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CleanupTable, error) {
			var t CleanupTable
			err := row.Scan(&t.TableName, &t.SizeBytes)
			return t, err
		})
		if err != nil {
			return err
		}

		for _, t := range scanned {
			n, err := countRows(ctx, conn, schemaName, t.TableName)
			if err != nil {
				customLog.Warnf("PgDirect: Counting rows for %s failed: %v", t.TableName, err)
			}
			t.RowCount = n
			t.Size = humanize.Bytes(uint64(t.SizeBytes))
			t.Category = CategoryFor(t.TableName)
			tables = append(tables, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	customLog.Printf("PgDirect: Scanned %d tables for cleanup", len(tables))
	return Group(tables, search, category), nil
}

// Group arranges tables into categories in display order with the
// uncategorised ones last. Empty groups are dropped.
func Group(tables []CleanupTable, search, category string) *ScanResult {
	search = strings.ToLower(strings.TrimSpace(search))
	byCategory := map[string][]CleanupTable{}
	for _, t := range tables {
		if t.Category == "" {
			t.Category = CategoryFor(t.TableName)
		}
		if search != "" && !strings.Contains(strings.ToLower(t.TableName), search) {
			continue
		}
		if category != "" && category != "all" && t.Category != category {
			continue
		}
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}

	res := &ScanResult{Groups: []CategoryGroup{}}
	add := func(name, description string) {
		members := byCategory[name]
		if len(members) == 0 {
			return
		}
		sort.SliceStable(members, func(i, j int) bool { return members[i].RowCount > members[j].RowCount })
		g := CategoryGroup{Name: name, Description: description, Tables: members}
		for _, t := range members {
			g.TotalRows += t.RowCount
		}
		res.Groups = append(res.Groups, g)
		res.TotalTables += len(members)
		res.TotalRows += g.TotalRows
	}
	for _, c := range Categories {
		add(c.Name, c.Description)
	}
	add(OtherCategory, "Uncategorized tables")

	res.Summary = fmt.Sprintf("Scanned %d tables (%s rows)", res.TotalTables, humanize.Comma(res.TotalRows))
	return res
}

// DeleteData removes every row of the given tables, one table at a time.
// The typed phrase must be exactly DELETE. A failure on one table does not
// stop the others.
func (c *Cleaner) DeleteData(ctx context.Context, ep domain.Endpoint, tables []string, phrase string) (*DeleteReport, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	if err := core.CheckConfirmation(core.PhraseDelete, phrase); err != nil {
		return nil, err
	}
	for _, t := range tables {
		if !core.IsValidIdentifier(t) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTable, t)
		}
	}

	report := &DeleteReport{Results: make([]DeleteResult, 0, len(tables))}
	err := withConn(ctx, ep, func(conn *pgx.Conn) error {
		for _, table := range tables {
			report.Results = append(report.Results, deleteTable(ctx, conn, table))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.summarize()
	customLog.Printf("PgDirect: Cleanup removed %d rows from %d table(s), %d failed", report.TotalDeleted, report.Succeeded, report.Failed)
	return report, nil
}

func deleteTable(ctx context.Context, conn *pgx.Conn, table string) DeleteResult {
	before, err := countRows(ctx, conn, schemaName, table)
	if err != nil {
		return DeleteResult{Table: table, Error: friendlyMessage(err)}
	}
	ident := pgx.Identifier{schemaName, table}.Sanitize()
	if _, err := conn.Exec(ctx, "DELETE FROM "+ident); err != nil {
		customLog.Warnf("PgDirect: Deleting data from %s failed: %v", table, err)
		return DeleteResult{Table: table, Error: friendlyMessage(err)}
	}
	return DeleteResult{Table: table, Success: true, DeletedRows: before}
}

// friendlyMessage rewrites foreign-key rejections into operator guidance.
func friendlyMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fkMessage
	}
	if strings.Contains(err.Error(), "foreign key constraint") {
		return fkMessage
	}
	return err.Error()
}

func (r *DeleteReport) summarize() {
	r.Succeeded, r.Failed, r.TotalDeleted = 0, 0, 0
	for _, res := range r.Results {
		if res.Success {
			r.Succeeded++
			r.TotalDeleted += res.DeletedRows
		} else {
			r.Failed++
		}
	}
	r.Messages = []string{}
	if r.Succeeded > 0 {
		r.Messages = append(r.Messages, fmt.Sprintf("Successfully deleted %s rows from %d table(s)", humanize.Comma(r.TotalDeleted), r.Succeeded))
	}
	if r.Failed > 0 {
		r.Messages = append(r.Messages, fmt.Sprintf("Failed to delete data from %d table(s)", r.Failed))
	}
}
