// internal/storage/database.go
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Driver registration

	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ConnectMetadataDB initializes the connection pool for the metadata SQLite database
// and ensures the required tables ('users', 'api_keys', 'migration_configurations') exist.
func ConnectMetadataDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
	customLog.Printf("Storage: Initializing metadata database: %s", dbPath)

	if err := os.MkdirAll(cfg.MetadataDbDir, 0o750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Foreign keys on, WAL mode and a 5s busy timeout if the db is locked
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		customLog.Warnf("Storage: Failed to open metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to connect to metadata db: %w", err)
	}
	customLog.Println("Storage: Metadata database connection successful.")

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sql.DB) error {
	createUsersTableSQL := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY UNIQUE NOT NULL,
		username TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createUsersTableSQL); err != nil {
		customLog.Warnf("Storage: Failed to create users table: %v", err)
		return fmt.Errorf("failed to ensure users table: %w", err)
	}
	customLog.Println("Storage: Users table ensured.")

	// nolint:gosec // G101 false positive - this is table schema, not hardcoded credentials
	createAPIKeysTableSQL := `
	CREATE TABLE IF NOT EXISTS api_keys (
		api_key_id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_owner_id TEXT NOT NULL,
		label TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (api_owner_id, label),
		FOREIGN KEY (api_owner_id) REFERENCES users(user_id) ON DELETE CASCADE
	);`
	if _, err := db.Exec(createAPIKeysTableSQL); err != nil {
		customLog.Warnf("Storage: Failed to create api_keys table: %v", err)
		return fmt.Errorf("failed to ensure api_keys table: %w", err)
	}
	customLog.Println("Storage: API Keys table ensured.")

	// is_default is unique per user by convention only; SetDefaultMigrationConfig keeps it that way.
	createConfigsTableSQL := `
	CREATE TABLE IF NOT EXISTS migration_configurations (
		id TEXT PRIMARY KEY NOT NULL,
		user_id TEXT NOT NULL,
		config_name TEXT NOT NULL,
		use_direct_connection INTEGER NOT NULL DEFAULT 1,
		source_connection_string TEXT NOT NULL DEFAULT '',
		target_connection_string TEXT NOT NULL DEFAULT '',
		source_branch_name TEXT NOT NULL DEFAULT '',
		target_branch_name TEXT NOT NULL DEFAULT '',
		source_branch_id TEXT NOT NULL DEFAULT '',
		target_branch_id TEXT NOT NULL DEFAULT '',
		neon_api_key TEXT NOT NULL DEFAULT '',
		neon_project_id TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, config_name),
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
	);`
	if _, err := db.Exec(createConfigsTableSQL); err != nil {
		customLog.Warnf("Storage: Failed to create migration_configurations table: %v", err)
		return fmt.Errorf("failed to ensure migration_configurations table: %w", err)
	}
	customLog.Println("Storage: Migration configurations table ensured.")

	return nil
}
