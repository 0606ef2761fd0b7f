// internal/domain/models.go
package domain

import "time"

// UserMetadata defines the structure for user data in the DB
type UserMetadata struct {
	UserId       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey is a personal access key. The full key is only ever returned at creation.
type APIKey struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrationConfig is a named pair of migration endpoints owned by a user.
// At most one config per user has IsDefault set.
type MigrationConfig struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	ConfigName             string    `json:"config_name"`
	UseDirectConnection    bool      `json:"use_direct_connection"`
	SourceConnectionString string    `json:"source_connection_string,omitempty"`
	TargetConnectionString string    `json:"target_connection_string,omitempty"`
	SourceBranchName       string    `json:"source_branch_name,omitempty"`
	TargetBranchName       string    `json:"target_branch_name,omitempty"`
	SourceBranchID         string    `json:"source_branch_id,omitempty"`
	TargetBranchID         string    `json:"target_branch_id,omitempty"`
	NeonAPIKey             string    `json:"neon_api_key,omitempty"`
	NeonProjectID          string    `json:"neon_project_id,omitempty"`
	IsDefault              bool      `json:"is_default"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Source returns the source side of the config as an Endpoint.
func (c *MigrationConfig) Source() Endpoint {
	return Endpoint{
		Direct:           c.UseDirectConnection,
		ConnectionString: c.SourceConnectionString,
		BranchID:         c.SourceBranchID,
		APIKey:           c.NeonAPIKey,
		ProjectID:        c.NeonProjectID,
		Label:            labelOr(c.SourceBranchName, "Development"),
	}
}

// Target returns the target side of the config as an Endpoint.
func (c *MigrationConfig) Target() Endpoint {
	return Endpoint{
		Direct:           c.UseDirectConnection,
		ConnectionString: c.TargetConnectionString,
		BranchID:         c.TargetBranchID,
		APIKey:           c.NeonAPIKey,
		ProjectID:        c.NeonProjectID,
		Label:            labelOr(c.TargetBranchName, "Production"),
	}
}

func labelOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Endpoint describes one side of a migration: either a direct connection
// string or a branch id reachable through the Neon API credentials.
type Endpoint struct {
	Direct           bool
	ConnectionString string
	BranchID         string
	APIKey           string
	ProjectID        string
	Label            string
}

// Configured reports whether the endpoint carries enough to be addressed.
func (e Endpoint) Configured() bool {
	if e.Direct {
		return e.ConnectionString != ""
	}
	return e.BranchID != "" && e.APIKey != "" && e.ProjectID != ""
}

// Branch is a Neon branch as reported by the backend.
type Branch struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DatabaseName string `json:"database_name,omitempty"`
	Host         string `json:"host,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	CurrentState string `json:"current_state,omitempty"`
}

// TableInfo is one row of a table inventory. Selected is local panel state.
type TableInfo struct {
	TableName string `json:"table_name"`
	RowCount  int64  `json:"row_count"`
	Size      string `json:"size"`
	Selected  bool   `json:"selected"`
}

// TypeChange is a column whose type differs between source and target.
type TypeChange struct {
	Column     string `json:"column"`
	SourceType string `json:"source_type"`
	TargetType string `json:"target_type"`
}

// ColumnDiff lists the column differences of a table present on both sides.
type ColumnDiff struct {
	OnlyInSource []string     `json:"only_in_source"`
	OnlyInTarget []string     `json:"only_in_target"`
	TypeChanges  []TypeChange `json:"type_changes"`
}

// SchemaDiff is the result of one schema comparison. It is not modified
// after it is produced.
type SchemaDiff struct {
	TablesOnlyInSource []string              `json:"tables_only_in_source"`
	TablesOnlyInTarget []string              `json:"tables_only_in_target"`
	TablesInBoth       []string              `json:"tables_in_both"`
	ColumnsDiff        map[string]ColumnDiff `json:"columns_diff"`
}

// HasDifferences reports whether the diff found any table or column change
// relevant to a source-to-target migration.
func (d *SchemaDiff) HasDifferences() bool {
	return d != nil && (len(d.TablesOnlyInSource) > 0 || len(d.ColumnsDiff) > 0)
}

// IsNew reports whether table exists only in the source.
func (d *SchemaDiff) IsNew(table string) bool {
	return d != nil && contains(d.TablesOnlyInSource, table)
}

// IsModified reports whether table has column differences.
func (d *SchemaDiff) IsModified(table string) bool {
	if d == nil {
		return false
	}
	_, ok := d.ColumnsDiff[table]
	return ok
}

// InBoth reports whether table exists on both sides.
func (d *SchemaDiff) InBoth(table string) bool {
	return d != nil && contains(d.TablesInBoth, table)
}

// ChangedTables returns the number of tables that are new or modified.
func (d *SchemaDiff) ChangedTables() int {
	if d == nil {
		return 0
	}
	n := len(d.TablesOnlyInSource)
	for table := range d.ColumnsDiff {
		if !contains(d.TablesOnlyInSource, table) {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
