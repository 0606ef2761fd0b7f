// internal/pgdirect/inspector.go
package pgdirect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/migration"
)

// Inspector reads table inventories and schemas straight from Postgres.
// It only serves endpoints that carry a connection string.
type Inspector struct{}

// NewInspector returns a direct Postgres inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

var _ migration.Inspector = (*Inspector)(nil)

type column struct {
	Name     string
	DataType string
}

// ListTables returns every table in the public schema with its row count
// and pretty size.
// A table whose count fails is reported with zero rows.
func (i *Inspector) ListTables(ctx context.Context, ep domain.Endpoint) ([]domain.TableInfo, error) {
	var tables []domain.TableInfo
	err := withConn(ctx, ep, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT schemaname, tablename,
				pg_size_pretty(pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename)))
			FROM pg_tables
			WHERE schemaname = $1
			ORDER BY tablename
		`, schemaName)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}

		type entry struct{ schema, table, size string }
		var entries []entry
		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.schema, &e.table, &e.size); err != nil {
				rows.Close()
				return err
			}
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		tables = make([]domain.TableInfo, 0, len(entries))
		for _, e := range entries {
			n, err := countRows(ctx, conn, e.schema, e.table)
			if err != nil {
				customLog.Warnf("PgDirect: Counting rows for %s failed: %v", e.table, err)
				n = 0
			}
			tables = append(tables, domain.TableInfo{TableName: e.table, RowCount: n, Size: e.size})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// CompareSchemas diffs the public schemas of source and target. Tables whose
// columns cannot be read are left out of the column diff.
func (i *Inspector) CompareSchemas(ctx context.Context, source, target domain.Endpoint) (*domain.SchemaDiff, error) {
	srcConn, err := connect(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer srcConn.Close(ctx)

	dstConn, err := connect(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	defer dstConn.Close(ctx)

	srcTables, err := tableNames(ctx, srcConn)
	if err != nil {
		return nil, fmt.Errorf("source tables: %w", err)
	}
	dstTables, err := tableNames(ctx, dstConn)
	if err != nil {
		return nil, fmt.Errorf("target tables: %w", err)
	}

	srcCols := map[string][]column{}
	dstCols := map[string][]column{}
	for _, table := range intersect(srcTables, dstTables) {
		s, err := columns(ctx, srcConn, table)
		if err != nil {
			customLog.Warnf("PgDirect: Reading source columns of %s failed: %v", table, err)
			continue
		}
		d, err := columns(ctx, dstConn, table)
		if err != nil {
			customLog.Warnf("PgDirect: Reading target columns of %s failed: %v", table, err)
			continue
		}
		srcCols[table], dstCols[table] = s, d
	}

	return diffSchemas(srcTables, dstTables, srcCols, dstCols), nil
}

// Target returns a verification view of ep.
func (i *Inspector) Target(ep domain.Endpoint) migration.TargetInspector {
	return target{ep: ep}
}

type target struct {
	ep domain.Endpoint
}

func (t target) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := withConn(ctx, t.ep, func(conn *pgx.Conn) error {
		var err error
		names, err = tableNames(ctx, conn)
		return err
	})
	return names, err
}

func (t target) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := withConn(ctx, t.ep, func(conn *pgx.Conn) error {
		var err error
		n, err = countRows(ctx, conn, schemaName, table)
		return err
	})
	return n, err
}

func columns(ctx context.Context, conn *pgx.Conn, table string) ([]column, error) {
	rows, err := conn.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schemaName, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (column, error) {
		var c column
		err := row.Scan(&c.Name, &c.DataType)
		return c, err
	})
}

// diffSchemas builds the diff from table lists and the columns of tables
// present on both sides. Only tables with a column difference get an entry.
func diffSchemas(srcTables, dstTables []string, srcCols, dstCols map[string][]column) *domain.SchemaDiff {
	diff := &domain.SchemaDiff{
		TablesOnlyInSource: minus(srcTables, dstTables),
		TablesOnlyInTarget: minus(dstTables, srcTables),
		TablesInBoth:       intersect(srcTables, dstTables),
		ColumnsDiff:        map[string]domain.ColumnDiff{},
	}

	for _, table := range diff.TablesInBoth {
		src, ok := srcCols[table]
		if !ok {
			continue
		}
		dst := dstCols[table]

		dstTypes := make(map[string]string, len(dst))
		for _, c := range dst {
			dstTypes[c.Name] = c.DataType
		}
		srcNames := make([]string, len(src))
		dstNames := make([]string, len(dst))
		for i, c := range src {
			srcNames[i] = c.Name
		}
		for i, c := range dst {
			dstNames[i] = c.Name
		}

		cd := domain.ColumnDiff{
			OnlyInSource: minus(srcNames, dstNames),
			OnlyInTarget: minus(dstNames, srcNames),
			TypeChanges:  []domain.TypeChange{},
		}
		for _, c := range src {
			if t, ok := dstTypes[c.Name]; ok && t != c.DataType {
				cd.TypeChanges = append(cd.TypeChanges, domain.TypeChange{Column: c.Name, SourceType: c.DataType, TargetType: t})
			}
		}
		if len(cd.OnlyInSource) > 0 || len(cd.OnlyInTarget) > 0 || len(cd.TypeChanges) > 0 {
			diff.ColumnsDiff[table] = cd
		}
	}
	return diff
}

// minus returns the items of a not in b, keeping a's order.
func minus(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	out := []string{}
	for _, s := range a {
		if !set[s] {
			out = append(out, s)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	out := []string{}
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
