// internal/storage/metadata_repo.go
package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/Annany2002/nebula-migrate/internal/domain"
)

// Specific errors for metadata operations
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAPIKeyExists       = errors.New("an api key with this label already exists")
	ErrAPIKeyGeneration   = errors.New("failed to generate api key components")
	ErrAPIKeyNotFound     = errors.New("api key not found")
)

// APIKeyPrefix marks personal access keys issued by this service.
const APIKeyPrefix = "nmk_" // nolint:gosec // API key prefix identifier, not a secret
const apiKeySecretLength = 32

// --- User Operations ---

// CreateUser inserts a new user into the metadata database.
func CreateUser(ctx context.Context, db *sql.DB, userId, username, email, passwordHash string) (string, error) {
	sqlStatement := `INSERT INTO users (user_id, username, email, password_hash) VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement, userId, username, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return "", ErrEmailExists
		}
		customLog.Warnf("Storage: Failed to insert user %s: %v", email, err)
		return "", fmt.Errorf("database error during user creation: %w", err)
	}

	return userId, nil
}

// FindUserByEmail retrieves a user by their email address.
func FindUserByEmail(ctx context.Context, db *sql.DB, email string) (*domain.UserMetadata, error) {
	sqlStatement := `SELECT user_id, username, email, password_hash, created_at FROM users WHERE email = ? LIMIT 1`
	return scanUser(db.QueryRowContext(ctx, sqlStatement, email), email)
}

// FindUserByID finds a user with user_id
func FindUserByID(ctx context.Context, db *sql.DB, userId string) (*domain.UserMetadata, error) {
	sqlStatement := `SELECT user_id, username, email, password_hash, created_at FROM users WHERE user_id = ? LIMIT 1`
	return scanUser(db.QueryRowContext(ctx, sqlStatement, userId), userId)
}

func scanUser(row *sql.Row, lookup string) (*domain.UserMetadata, error) {
	var user domain.UserMetadata
	err := row.Scan(&user.UserId, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user %s: %v", lookup, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return &user, nil
}

// --- API Key Operations ---

// CreateAPIKey generates and stores a new personal key for the user.
// It returns the *full* key (prefix + secret) ONCE; only its digest is stored.
func CreateAPIKey(ctx context.Context, db *sql.DB, userId, label string) (string, *domain.APIKey, error) {
	randomBytes := make([]byte, apiKeySecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		customLog.Warnf("Storage: Failed to generate random bytes for API key: %v", err)
		return "", nil, ErrAPIKeyGeneration
	}

	key := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	displayPrefix := key[:len(APIKeyPrefix)+6]

	insertSQL := `INSERT INTO api_keys (api_owner_id, label, key_prefix, key_hash) VALUES (?, ?, ?, ?);`
	result, err := db.ExecContext(ctx, insertSQL, userId, label, displayPrefix, hashAPIKey(key))
	if err != nil {
		customLog.Warnf("Storage: Failed to store API key '%s' for UserID %s: %v", label, userId, err)
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return "", nil, ErrAPIKeyExists
		}
		return "", nil, fmt.Errorf("database error storing API key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read API key id: %w", err)
	}

	return key, &domain.APIKey{ID: id, UserID: userId, Label: label, Prefix: displayPrefix}, nil
}

// FindUserIDByAPIKey resolves a full key to its owner.
func FindUserIDByAPIKey(ctx context.Context, db *sql.DB, key string) (string, error) {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return "", ErrAPIKeyNotFound
	}

	var userId string
	query := `SELECT api_owner_id FROM api_keys WHERE key_hash = ? LIMIT 1;`
	err := db.QueryRowContext(ctx, query, hashAPIKey(key)).Scan(&userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAPIKeyNotFound
		}
		customLog.Warnf("Storage: Error looking up API key: %v", err)
		return "", fmt.Errorf("database error finding API key: %w", err)
	}
	return userId, nil
}

// ListAPIKeys returns the user's keys without their secrets.
func ListAPIKeys(ctx context.Context, db *sql.DB, userId string) ([]domain.APIKey, error) {
	query := `SELECT api_key_id, api_owner_id, label, key_prefix, created_at FROM api_keys WHERE api_owner_id = ? ORDER BY label;`
	rows, err := db.QueryContext(ctx, query, userId)
	if err != nil {
		customLog.Warnf("Storage: Error listing API keys for UserID %s: %v", userId, err)
		return nil, fmt.Errorf("database error listing API keys: %w", err)
	}
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		var k domain.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Label, &k.Prefix, &k.CreatedAt); err != nil {
			customLog.Warnf("Storage: Error scanning API key for UserID %s: %v", userId, err)
			return nil, fmt.Errorf("failed processing API key data: %w", err)
		}
		keys = append(keys, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading API key data: %w", err)
	}
	return keys, nil
}

// DeleteAPIKey deletes one of the user's keys.
func DeleteAPIKey(ctx context.Context, db *sql.DB, userId string, keyId int64) error {
	deleteSQL := `DELETE FROM api_keys WHERE api_key_id = ? AND api_owner_id = ?`

	result, err := db.ExecContext(ctx, deleteSQL, keyId, userId)
	if err != nil {
		customLog.Warnf("Storage: Error deleting API key %d for UserID %s: %v", keyId, userId, err)
		return fmt.Errorf("database error deleting API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming API key deletion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		sqliteErr.Code == sqlite3.ErrConstraint &&
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqliteErr.Error(), column)
}
