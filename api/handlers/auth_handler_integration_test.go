// api/handlers/auth_handler_integration_test.go
package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-migrate/api"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/auth"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

const testSecret = "test_secret_key_for_integration_tests_1234567890"

// testDBSetup creates a temporary SQLite DB and a config pointing the
// migration backend at backendURL.
func testDBSetup(t *testing.T, backendURL string) (*sql.DB, *config.Config) {
	t.Helper()

	tempDir := t.TempDir()
	testCfg := &config.Config{
		ServerPort:         "0",
		JWTSecret:          testSecret,
		JWTExpiration:      time.Minute * 5,
		MetadataDbDir:      tempDir,
		MetadataDbFile:     "test_metadata.db",
		NeonAPIURL:         backendURL,
		BackendAutostart:   false,
		HealthTimeout:      time.Second,
		InspectMode:        config.InspectRemote,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		AuthRateLimit:      100,
	}

	db, err := storage.ConnectMetadataDB(testCfg)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	return db, testCfg
}

// setupTestServer creates a test server over a fresh metadata DB.
func setupTestServer(t *testing.T, backendURL string) (*httptest.Server, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cfg := testDBSetup(t, backendURL)
	server := httptest.NewServer(api.SetupRouter(db, cfg))
	t.Cleanup(server.Close)

	return server, db
}

// call sends a JSON request with an optional Authorization header.
func call(t *testing.T, method, url, authz string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

// signupAndLogin registers a user and returns a Bearer header value.
func signupAndLogin(t *testing.T, serverURL, email string) string {
	t.Helper()
	res, _ := call(t, http.MethodPost, serverURL+"/auth/signup", "", models.SignupRequest{Username: "tester", Email: email, Password: "StrongPassword123!"})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body := call(t, http.MethodPost, serverURL+"/auth/login", "", models.LoginRequest{Email: email, Password: "StrongPassword123!"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var login models.LoginResponse
	require.NoError(t, json.Unmarshal(body, &login))
	return "Bearer " + login.Token
}

// TestAuthEndpoints performs integration tests on /auth/signup and /auth/login.
func TestAuthEndpoints(t *testing.T) {
	server, db := setupTestServer(t, "http://127.0.0.1:1")

	testEmail := "test.user@integration.com"
	testPassword := "StrongPassword123!"

	t.Run("Signup Success", func(t *testing.T) {
		res, body := call(t, http.MethodPost, server.URL+"/auth/signup", "", models.SignupRequest{Username: "tester", Email: testEmail, Password: testPassword})
		assert.Equal(t, http.StatusCreated, res.StatusCode)

		var resBody map[string]string
		require.NoError(t, json.Unmarshal(body, &resBody))
		assert.Equal(t, "User registered successfully", resBody["message"])

		user, err := storage.FindUserByEmail(context.Background(), db, testEmail)
		require.NoError(t, err)
		assert.Equal(t, testEmail, user.Email)
		assert.True(t, auth.CheckPasswordHash(testPassword, user.PasswordHash))
	})

	t.Run("Signup Conflict (Duplicate Email)", func(t *testing.T) {
		res, _ := call(t, http.MethodPost, server.URL+"/auth/signup", "", models.SignupRequest{Username: "again", Email: testEmail, Password: "anotherPassword"})
		assert.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("Signup Bad Request", func(t *testing.T) {
		tests := []struct {
			name string
			req  models.SignupRequest
		}{
			{"invalid email", models.SignupRequest{Username: "x1", Email: "invalid-email-format", Password: testPassword}},
			{"short password", models.SignupRequest{Username: "x1", Email: "shortpass@example.com", Password: "short"}},
			{"missing username", models.SignupRequest{Email: "nouser@example.com", Password: testPassword}},
		}
		for _, tt := range tests {
			res, _ := call(t, http.MethodPost, server.URL+"/auth/signup", "", tt.req)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, tt.name)
		}
	})

	t.Run("Login Success", func(t *testing.T) {
		res, body := call(t, http.MethodPost, server.URL+"/auth/login", "", models.LoginRequest{Email: testEmail, Password: testPassword})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var resBody models.LoginResponse
		require.NoError(t, json.Unmarshal(body, &resBody))
		assert.Equal(t, "Logged in successfully", resBody.Message)

		userID, err := auth.ValidateJWT(resBody.Token, testSecret)
		assert.NoError(t, err)
		assert.Equal(t, resBody.User.UserId, userID)
	})

	t.Run("Login Unauthorized", func(t *testing.T) {
		res, _ := call(t, http.MethodPost, server.URL+"/auth/login", "", models.LoginRequest{Email: testEmail, Password: "IncorrectPassword"})
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

		res, _ = call(t, http.MethodPost, server.URL+"/auth/login", "", models.LoginRequest{Email: "nosuchuser@example.com", Password: "anyPassword"})
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "unknown email looks like a wrong password")
	})
}

func TestAPIKeys(t *testing.T) {
	server, _ := setupTestServer(t, "http://127.0.0.1:1")
	bearer := signupAndLogin(t, server.URL, "keys@example.com")

	res, body := call(t, http.MethodPost, server.URL+"/api/v1/api-keys", bearer, models.CreateAPIKeyRequest{Label: "laptop"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created models.CreateAPIKeyResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Contains(t, created.Key, storage.APIKeyPrefix)

	res, _ = call(t, http.MethodPost, server.URL+"/api/v1/api-keys", bearer, models.CreateAPIKeyRequest{Label: "laptop"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	apiKey := "ApiKey " + created.Key
	res, body = call(t, http.MethodGet, server.URL+"/api/v1/me", apiKey, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "keys@example.com")

	res, _ = call(t, http.MethodGet, server.URL+"/api/v1/api-keys", apiKey, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "keys cannot manage keys")

	res, _ = call(t, http.MethodGet, server.URL+"/api/v1/me", "ApiKey nmk_not-a-real-key", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = call(t, http.MethodDelete, server.URL+"/api/v1/api-keys/"+jsonNumber(created.APIKey.ID), bearer, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = call(t, http.MethodGet, server.URL+"/api/v1/me", apiKey, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "revoked key")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	server, _ := setupTestServer(t, "http://127.0.0.1:1")

	for _, path := range []string{"/api/v1/me", "/api/v1/migration/state", "/api/v1/migration-configs"} {
		res, _ := call(t, http.MethodGet, server.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
	}

	res, _ := call(t, http.MethodGet, server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func jsonNumber(n int64) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
