// internal/storage/config_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Annany2002/nebula-migrate/internal/domain"
)

// Specific errors for migration configuration operations
var (
	ErrConfigNotFound   = errors.New("migration configuration not found")
	ErrConfigNameExists = errors.New("a migration configuration with this name already exists")
)

const configColumns = `id, user_id, config_name, use_direct_connection,
	source_connection_string, target_connection_string,
	source_branch_name, target_branch_name, source_branch_id, target_branch_id,
	neon_api_key, neon_project_id, is_default, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*domain.MigrationConfig, error) {
	var c domain.MigrationConfig
	err := row.Scan(&c.ID, &c.UserID, &c.ConfigName, &c.UseDirectConnection,
		&c.SourceConnectionString, &c.TargetConnectionString,
		&c.SourceBranchName, &c.TargetBranchName, &c.SourceBranchID, &c.TargetBranchID,
		&c.NeonAPIKey, &c.NeonProjectID, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateMigrationConfig inserts cfg, assigning its ID and timestamps. When cfg
// is the new default, the user's other defaults are cleared in the same transaction.
func CreateMigrationConfig(ctx context.Context, db *sql.DB, cfg *domain.MigrationConfig) error {
	now := time.Now().UTC()
	cfg.ID = uuid.New().String()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	return withTx(ctx, db, func(tx *sql.Tx) error {
		if cfg.IsDefault {
			if err := clearDefaults(ctx, tx, cfg.UserID); err != nil {
				return err
			}
		}

		insertSQL := `INSERT INTO migration_configurations (` + configColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, insertSQL, cfg.ID, cfg.UserID, cfg.ConfigName, cfg.UseDirectConnection,
			cfg.SourceConnectionString, cfg.TargetConnectionString,
			cfg.SourceBranchName, cfg.TargetBranchName, cfg.SourceBranchID, cfg.TargetBranchID,
			cfg.NeonAPIKey, cfg.NeonProjectID, cfg.IsDefault, cfg.CreatedAt, cfg.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, "config_name") {
				return ErrConfigNameExists
			}
			customLog.Warnf("Storage: Failed to insert migration config '%s' for UserID %s: %v", cfg.ConfigName, cfg.UserID, err)
			return fmt.Errorf("database error creating migration config: %w", err)
		}
		return nil
	})
}

// UpdateMigrationConfig overwrites every editable field of an existing config.
func UpdateMigrationConfig(ctx context.Context, db *sql.DB, cfg *domain.MigrationConfig) error {
	cfg.UpdatedAt = time.Now().UTC()

	return withTx(ctx, db, func(tx *sql.Tx) error {
		if cfg.IsDefault {
			if err := clearDefaults(ctx, tx, cfg.UserID); err != nil {
				return err
			}
		}

		updateSQL := `UPDATE migration_configurations SET
			config_name = ?, use_direct_connection = ?,
			source_connection_string = ?, target_connection_string = ?,
			source_branch_name = ?, target_branch_name = ?, source_branch_id = ?, target_branch_id = ?,
			neon_api_key = ?, neon_project_id = ?, is_default = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`
		result, err := tx.ExecContext(ctx, updateSQL, cfg.ConfigName, cfg.UseDirectConnection,
			cfg.SourceConnectionString, cfg.TargetConnectionString,
			cfg.SourceBranchName, cfg.TargetBranchName, cfg.SourceBranchID, cfg.TargetBranchID,
			cfg.NeonAPIKey, cfg.NeonProjectID, cfg.IsDefault, cfg.UpdatedAt,
			cfg.ID, cfg.UserID)
		if err != nil {
			if isUniqueViolation(err, "config_name") {
				return ErrConfigNameExists
			}
			customLog.Warnf("Storage: Failed to update migration config %s: %v", cfg.ID, err)
			return fmt.Errorf("database error updating migration config: %w", err)
		}
		return requireRows(result, ErrConfigNotFound)
	})
}

// DeleteMigrationConfig removes one of the user's configs.
func DeleteMigrationConfig(ctx context.Context, db *sql.DB, userId, configId string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM migration_configurations WHERE id = ? AND user_id = ?`, configId, userId)
	if err != nil {
		customLog.Warnf("Storage: Error deleting migration config %s for UserID %s: %v", configId, userId, err)
		return fmt.Errorf("database error deleting migration config: %w", err)
	}
	return requireRows(result, ErrConfigNotFound)
}

// FindMigrationConfig loads one config owned by the user.
func FindMigrationConfig(ctx context.Context, db *sql.DB, userId, configId string) (*domain.MigrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM migration_configurations WHERE id = ? AND user_id = ? LIMIT 1`
	cfg, err := scanConfig(db.QueryRowContext(ctx, query, configId, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		customLog.Warnf("Storage: Error finding migration config %s: %v", configId, err)
		return nil, fmt.Errorf("database error finding migration config: %w", err)
	}
	return cfg, nil
}

// FindDefaultMigrationConfig returns the user's default config or ErrConfigNotFound.
func FindDefaultMigrationConfig(ctx context.Context, db *sql.DB, userId string) (*domain.MigrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM migration_configurations
		WHERE user_id = ? AND is_default = 1 ORDER BY updated_at DESC LIMIT 1`
	cfg, err := scanConfig(db.QueryRowContext(ctx, query, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		customLog.Warnf("Storage: Error finding default migration config for UserID %s: %v", userId, err)
		return nil, fmt.Errorf("database error finding default migration config: %w", err)
	}
	return cfg, nil
}

// ListMigrationConfigs lists the user's configs, default first, then by name.
func ListMigrationConfigs(ctx context.Context, db *sql.DB, userId string) ([]domain.MigrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM migration_configurations
		WHERE user_id = ? ORDER BY is_default DESC, config_name ASC`
	rows, err := db.QueryContext(ctx, query, userId)
	if err != nil {
		customLog.Warnf("Storage: Error listing migration configs for UserID %s: %v", userId, err)
		return nil, fmt.Errorf("database error listing migration configs: %w", err)
	}
	defer rows.Close()

	configs := make([]domain.MigrationConfig, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			customLog.Warnf("Storage: Error scanning migration config for UserID %s: %v", userId, err)
			return nil, fmt.Errorf("failed processing migration config list: %w", err)
		}
		configs = append(configs, *cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading migration config list: %w", err)
	}
	return configs, nil
}

// SetDefaultMigrationConfig makes configId the user's only default in a single
// conditional UPDATE, so there is no window in which two defaults (or none) exist.
func SetDefaultMigrationConfig(ctx context.Context, db *sql.DB, userId, configId string) error {
	updateSQL := `UPDATE migration_configurations
		SET is_default = CASE WHEN id = ? THEN 1 ELSE 0 END
		WHERE user_id = ?
		  AND EXISTS (SELECT 1 FROM migration_configurations WHERE id = ? AND user_id = ?)`
	result, err := db.ExecContext(ctx, updateSQL, configId, userId, configId, userId)
	if err != nil {
		customLog.Warnf("Storage: Error setting default migration config %s for UserID %s: %v", configId, userId, err)
		return fmt.Errorf("database error setting default migration config: %w", err)
	}
	return requireRows(result, ErrConfigNotFound)
}

func clearDefaults(ctx context.Context, tx *sql.Tx, userId string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE migration_configurations SET is_default = 0 WHERE user_id = ?`, userId); err != nil {
		return fmt.Errorf("database error clearing default migration config: %w", err)
	}
	return nil
}

func requireRows(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
