// internal/pgdirect/conn.go
package pgdirect

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

var (
	ErrBranchEndpoint = errors.New("direct inspection needs a connection string, not a branch id")
	ErrConnect        = errors.New("failed to connect to database")
)

// schemaName is the only schema compared and verified.
const schemaName = "public"

// connect opens a single connection to a direct endpoint and pings it.
func connect(ctx context.Context, ep domain.Endpoint) (*pgx.Conn, error) {
	if !ep.Direct || ep.ConnectionString == "" {
		return nil, ErrBranchEndpoint
	}
	dsn := core.CleanConnectionString(ep.ConnectionString)

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		customLog.Warnf("PgDirect: Connecting to %s failed: %v", core.RedactConnectionString(dsn), err)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("%w: ping: %v", ErrConnect, err)
	}
	return conn, nil
}

// withConn runs fn on a fresh connection to ep and closes it afterwards.
func withConn(ctx context.Context, ep domain.Endpoint, fn func(*pgx.Conn) error) error {
	conn, err := connect(ctx, ep)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return fn(conn)
}

func tableNames(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schemaName)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func countRows(ctx context.Context, conn *pgx.Conn, schema, table string) (int64, error) {
	var n int64
	ident := pgx.Identifier{schema, table}.Sanitize()
	err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&n)
	return n, err
}
