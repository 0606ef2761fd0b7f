// api/models/migration_models.go
package models

import (
	"github.com/Annany2002/nebula-migrate/internal/migration"
)

// --- Migration Configuration Structs ---

// ConfigRequest is the body for creating or replacing a migration configuration.
type ConfigRequest struct {
	ConfigName             string `json:"config_name" binding:"required,max=64"`
	UseDirectConnection    bool   `json:"use_direct_connection"`
	SourceConnectionString string `json:"source_connection_string"`
	TargetConnectionString string `json:"target_connection_string"`
	SourceBranchName       string `json:"source_branch_name" binding:"max=64"`
	TargetBranchName       string `json:"target_branch_name" binding:"max=64"`
	SourceBranchID         string `json:"source_branch_id"`
	TargetBranchID         string `json:"target_branch_id"`
	NeonAPIKey             string `json:"neon_api_key"`
	NeonProjectID          string `json:"neon_project_id"`
	IsDefault              bool   `json:"is_default"`
}

// --- Migration Panel Structs ---

// SetTypeRequest selects the migration type.
type SetTypeRequest struct {
	MigrationType string `json:"migration_type" binding:"required"`
}

// ViewRequest updates the table view. Omitted fields keep their value.
type ViewRequest struct {
	Filter    *string `json:"filter"`
	Search    *string `json:"search"`
	SortField *string `json:"sort_field"`
	SortDesc  bool    `json:"sort_desc"`
}

// ConfirmRequest carries the typed confirmation phrase.
type ConfirmRequest struct {
	Confirmation string `json:"confirmation"`
}

// StartMigrationRequest starts a run. MigrationType and Tables, when given,
// are applied to the panel first.
type StartMigrationRequest struct {
	Confirmation  string   `json:"confirmation"`
	MigrationType string   `json:"migration_type"`
	Tables        []string `json:"tables"`
}

// ExportSchemaRequest asks for a CREATE TABLE script of the source.
type ExportSchemaRequest struct {
	OnlySelected bool `json:"only_selected"`
}

// PanelResponse is the panel state plus the notifications raised since the
// last response.
type PanelResponse struct {
	Message       string                   `json:"message,omitempty"`
	State         migration.State          `json:"state"`
	Notifications []migration.Notification `json:"notifications"`
}

// --- Cleanup Structs ---

// CleanupScanRequest scans one side of the active configuration.
type CleanupScanRequest struct {
	Side     string `json:"side" binding:"required,oneof=source target"`
	Search   string `json:"search"`
	Category string `json:"category"`
}

// CleanupDeleteRequest empties the given tables on one side.
type CleanupDeleteRequest struct {
	Side         string   `json:"side" binding:"required,oneof=source target"`
	Tables       []string `json:"tables" binding:"required,min=1,dive,required"`
	Confirmation string   `json:"confirmation"`
}
