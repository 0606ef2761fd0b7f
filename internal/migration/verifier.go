// internal/migration/verifier.go
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
)

// TargetInspector answers the two questions verification asks of a target.
type TargetInspector interface {
	TableNames(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

// Inspector lists and compares tables. The remote backend and a direct
// Postgres connection both provide one.
type Inspector interface {
	ListTables(ctx context.Context, ep domain.Endpoint) ([]domain.TableInfo, error)
	CompareSchemas(ctx context.Context, source, target domain.Endpoint) (*domain.SchemaDiff, error)
	Target(ep domain.Endpoint) TargetInspector
}

// RemoteInspector inspects through the migration backend.
type RemoteInspector struct {
	Client *neonapi.Client
}

// NeedsBackend reports that every call goes through the backend.
func (r RemoteInspector) NeedsBackend() bool { return true }

func (r RemoteInspector) ListTables(ctx context.Context, ep domain.Endpoint) ([]domain.TableInfo, error) {
	return r.Client.ListTables(ctx, ep)
}

func (r RemoteInspector) CompareSchemas(ctx context.Context, source, target domain.Endpoint) (*domain.SchemaDiff, error) {
	return r.Client.CompareSchemas(ctx, source, target)
}

func (r RemoteInspector) Target(ep domain.Endpoint) TargetInspector {
	return remoteTarget{client: r.Client, ep: ep}
}

type remoteTarget struct {
	client *neonapi.Client
	ep     domain.Endpoint
}

var errCountUnavailable = errors.New("row count unavailable")

func (t remoteTarget) TableNames(ctx context.Context) ([]string, error) {
	tables, err := t.client.ListTables(ctx, t.ep)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.TableName
	}
	return names, nil
}

func (t remoteTarget) CountRows(ctx context.Context, table string) (int64, error) {
	check, err := t.client.VerifyTable(ctx, t.ep, table)
	if err != nil {
		return 0, err
	}
	if check.Error != "" {
		return 0, fmt.Errorf("%w: %s", errCountUnavailable, check.Error)
	}
	if !check.Exists {
		return 0, fmt.Errorf("%w: table not found during count", errCountUnavailable)
	}
	return check.RowCount, nil
}

// Verify annotates each table result with a post-migration check, one table
// at a time in result order. If the target's table list cannot be fetched the
// entries are left unverified and a warning is returned. A failed count keeps
// exists=true with no row count. exists=false is never turned into success.
func Verify(ctx context.Context, target TargetInspector, tables []TableResult, log func(Level, string)) ([]TableResult, error) {
	if log == nil {
		log = func(Level, string) {}
	}
	out := append([]TableResult(nil), tables...)

	names, err := target.TableNames(ctx)
	if err != nil {
		log(LevelWarning, "Could not verify migration: failed to fetch target tables")
		return out, fmt.Errorf("verification skipped: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	for i := range out {
		name := out[i].TableName
		v := &Verification{Exists: present[name], VerifiedAt: time.Now().UTC()}
		if !v.Exists {
			log(LevelWarning, fmt.Sprintf("Table %s not found in target", name))
			out[i].Verified = v
			continue
		}

		count, err := target.CountRows(ctx, name)
		if err != nil {
			customLog.Debugf("Verifier: Row count for %s failed: %v", name, err)
			log(LevelInfo, fmt.Sprintf("Verified %s exists (row count unavailable)", name))
		} else {
			v.RowCount = &count
			log(LevelInfo, fmt.Sprintf("Verified %s: %d rows", name, count))
		}
		out[i].Verified = v
	}
	return out, nil
}
