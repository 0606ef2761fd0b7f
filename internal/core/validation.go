// internal/core/validation.go
package core

import (
	"errors"
	"regexp"
	"strings"
)

// Typed confirmation phrases for irreversible actions.
const (
	PhraseDelete  = "DELETE"
	PhraseMigrate = "MIGRATE"
)

var ErrConfirmationMismatch = errors.New("confirmation text does not match")

// Regular expression for valid table names (alphanumeric + underscore)
var nameValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// IsValidIdentifier checks if a string is a valid identifier (e.g. a table name).
// Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) > 0 && len(name) <= 63
}

// IsValidConfigName accepts free-form labels but rejects blank or oversized ones.
func IsValidConfigName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= 100 && !strings.ContainsAny(trimmed, "\n\r\t")
}

// CleanConnectionString strips what people paste from the Neon console:
// a leading `psql ` and one level of surrounding quotes.
func CleanConnectionString(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "psql ") {
		s = strings.TrimSpace(s[len("psql "):])
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}

// RedactConnectionString hides the password of a postgres URL for logging.
func RedactConnectionString(conn string) string {
	at := strings.LastIndex(conn, "@")
	scheme := strings.Index(conn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		if len(conn) > 20 {
			return conn[:20] + "..."
		}
		return conn
	}
	creds := conn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":****"
	}
	return conn[:scheme+3] + creds + conn[at:]
}

// CheckConfirmation requires an exact, case-sensitive match. Partial or
// padded input is rejected.
func CheckConfirmation(required, typed string) error {
	if required == "" || typed != required {
		return ErrConfirmationMismatch
	}
	return nil
}
