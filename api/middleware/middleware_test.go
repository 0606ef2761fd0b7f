package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Annany2002/nebula-migrate/internal/auth"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/neonapi"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	ok, _ := rl.Allow("1.1.1.1")
	assert.True(t, ok)
	clock = clock.Add(20 * time.Second)
	ok, _ = rl.Allow("1.1.1.1")
	assert.True(t, ok)

	ok, wait := rl.Allow("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	ok, _ = rl.Allow("2.2.2.2")
	assert.True(t, ok, "limits are per client")
	assert.Len(t, rl.hits, 2)

	clock = clock.Add(41 * time.Second)
	ok, _ = rl.Allow("1.1.1.1")
	assert.True(t, ok, "oldest hit aged out")

	clock = clock.Add(2 * time.Minute)
	ok, _ = rl.Allow("1.1.1.1")
	assert.True(t, ok)
	rl.sweep(clock)
	assert.Len(t, rl.hits, 1, "idle clients are forgotten")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(NewRateLimiter(1, time.Minute)))
	router.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.7:5123"
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("find: %w", storage.ErrConfigNotFound), http.StatusNotFound},
		{storage.ErrConfigNameExists, http.StatusConflict},
		{fmt.Errorf("%w: migrating", migration.ErrBusy), http.StatusConflict},
		{storage.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{core.ErrConfirmationMismatch, http.StatusBadRequest},
		{auth.ErrPasswordTooLong, http.StatusBadRequest},
		{migration.ErrEmptySelection, http.StatusBadRequest},
		{fmt.Errorf("%w: bad id", ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", neonapi.ErrBackendUnavailable), http.StatusServiceUnavailable},
		{&neonapi.APIError{StatusCode: 500, Message: "relation does not exist"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, _ := classify(tt.err)
			assert.Equal(t, tt.code, code)
		})
	}

	_, msg := classify(&neonapi.APIError{StatusCode: 400, Message: "Missing connection strings"})
	assert.Equal(t, "Missing connection strings", msg, "backend message is passed through verbatim")
}
