// api/middleware/error_handler.go
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors

	"github.com/Annany2002/nebula-migrate/internal/auth"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
	"github.com/Annany2002/nebula-migrate/internal/pgdirect"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

// NotificationsKey is the context key under which handlers leave the panel
// notifications that must accompany an error response.
const NotificationsKey = "notifications"

// ErrInvalidRequest marks malformed request bodies and parameters.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorHandler creates a Gin middleware for centralized error handling.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// Only the last error decides the response.
		err := c.Errors.Last().Err
		customLog.Printf("ErrorHandler: Detected error: %v | Type: %T", err, err)

		statusCode, userMessage := classify(err)
		if statusCode == http.StatusInternalServerError {
			customLog.Errorf("ErrorHandler: Unhandled error type: %T, Error: %v", err, err)
		}

		if c.Writer.Written() {
			customLog.Warnf("ErrorHandler: Response already written before handling error.")
			return
		}

		body := gin.H{"error": userMessage}
		if notes, ok := c.Get(NotificationsKey); ok {
			body[NotificationsKey] = notes
		}
		c.AbortWithStatusJSON(statusCode, body)
	}
}

// classify maps an error to an HTTP status and the message shown to the caller.
func classify(err error) (int, string) {
	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var apiErr *neonapi.APIError

	switch {
	case errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrConfigNotFound),
		errors.Is(err, storage.ErrAPIKeyNotFound),
		errors.Is(err, migration.ErrTableNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, storage.ErrEmailExists),
		errors.Is(err, storage.ErrConfigNameExists),
		errors.Is(err, storage.ErrAPIKeyExists),
		errors.Is(err, migration.ErrBusy):
		return http.StatusConflict, err.Error()

	case errors.Is(err, storage.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Authentication token has expired."
	case errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenClaimsInvalid),
		errors.Is(err, auth.ErrUnexpectedSigningMethod),
		errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrForbidden):
		return http.StatusUnauthorized, "Invalid or malformed authentication credentials."

	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			customLog.Printf("ErrorHandler: Validation Error: Field %s failed on %s", fe.Field(), fe.Tag())
		}
		return http.StatusBadRequest, "Validation failed. Please check your input."
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return http.StatusBadRequest, "Invalid request body."

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, core.ErrConfirmationMismatch),
		errors.Is(err, migration.ErrNoConfig),
		errors.Is(err, migration.ErrSourceRequired),
		errors.Is(err, migration.ErrEndpointsRequired),
		errors.Is(err, migration.ErrEmptySelection),
		errors.Is(err, migration.ErrDiffRequired),
		errors.Is(err, migration.ErrCredentialsRequired),
		errors.Is(err, migration.ErrNoResult),
		errors.Is(err, migration.ErrInvalidType),
		errors.Is(err, migration.ErrInvalidFilter),
		errors.Is(err, migration.ErrInvalidSort),
		errors.Is(err, neonapi.ErrEndpointIncomplete),
		errors.Is(err, neonapi.ErrMissingCredentials),
		errors.Is(err, pgdirect.ErrNoTables),
		errors.Is(err, pgdirect.ErrInvalidTable),
		errors.Is(err, pgdirect.ErrBranchEndpoint):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, neonapi.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, apiErr.Message
	case errors.Is(err, neonapi.ErrInvalidBackendReply),
		errors.Is(err, pgdirect.ErrConnect):
		return http.StatusBadGateway, err.Error()
	}

	return http.StatusInternalServerError, "An unexpected internal server error occurred."
}
