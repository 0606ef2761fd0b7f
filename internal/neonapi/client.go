// internal/neonapi/client.go
package neonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Errors returned by the backend client
var (
	ErrBackendUnavailable  = errors.New("migration backend is not reachable")
	ErrEndpointIncomplete  = errors.New("endpoint is missing connection details")
	ErrMissingCredentials  = errors.New("neon api key and project id are required")
	ErrInvalidBackendReply = errors.New("invalid response from migration backend")
)

// APIError is a non-2xx reply from the migration backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("migration backend returned %d: %s", e.StatusCode, e.Message)
}

const (
	basePath          = "/api/neon"
	starterProbe      = 2 * time.Second
	startPollInterval = time.Second
	startPollAttempts = 15
)

// Client talks to the migration backend that performs introspection,
// diffing and row copying.
type Client struct {
	baseURL       string
	starterURL    string
	autostart     bool
	healthTimeout time.Duration
	httpClient    *http.Client

	// pollInterval is overridden in tests.
	pollInterval time.Duration
}

// NewClient builds a client from the service configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.NeonAPIURL, "/"),
		starterURL:    strings.TrimRight(cfg.ServerStarterURL, "/"),
		autostart:     cfg.BackendAutostart,
		healthTimeout: timeout,
		httpClient:    &http.Client{},
		pollInterval:  startPollInterval,
	}
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Health probes GET /health with the configured timeout.
func (c *Client) Health(ctx context.Context) error {
	return c.probe(ctx, c.baseURL+"/health", c.healthTimeout)
}

func (c *Client) probe(ctx context.Context, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("health probe %s returned %d", target, res.StatusCode)
	}
	return nil
}

// EnsureRunning checks backend health and, when autostart is enabled, asks the
// local starter service to launch the backend before polling until it answers.
// progress receives operator-facing status lines and may be nil.
func (c *Client) EnsureRunning(ctx context.Context, progress func(string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	err := c.Health(ctx)
	if err == nil {
		return nil
	}
	customLog.Debugf("NeonAPI: Health check failed: %v", err)

	if !c.autostart || c.starterURL == "" {
		return unavailable("")
	}

	progress("Starting backend server automatically...")
	if err := c.probe(ctx, c.starterURL+"/health", starterProbe); err != nil {
		customLog.Warnf("NeonAPI: Server starter not reachable at %s: %v", c.starterURL, err)
		return unavailable("server starter service not running")
	}

	var started struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.starterURL+"/start-server", nil, nil, &started); err != nil {
		customLog.Warnf("NeonAPI: start-server request failed: %v", err)
		return unavailable("failed to start server automatically")
	}
	if !started.Success {
		return unavailable("failed to start server: " + started.Message)
	}

	progress("Server starting... please wait")
	for attempt := 1; attempt <= startPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		if err := c.Health(ctx); err == nil {
			progress("Server started successfully")
			return nil
		}
		if attempt%3 == 0 {
			progress(fmt.Sprintf("Still starting server... (%ds)", attempt))
		}
	}

	return unavailable("server process started but not responding")
}

func unavailable(reason string) error {
	msg := "start it manually with: cd server && npm run dev"
	if reason != "" {
		msg = reason + "; " + msg
	}
	return fmt.Errorf("%w: %s", ErrBackendUnavailable, msg)
}

// --- Branches ---

// ListBranches lists the project's branches.
func (c *Client) ListBranches(ctx context.Context, apiKey, projectID string) ([]domain.Branch, error) {
	if apiKey == "" || projectID == "" {
		return nil, ErrMissingCredentials
	}

	var out struct {
		Branches []domain.Branch `json:"branches"`
	}
	target := c.baseURL + basePath + "/branches?projectId=" + url.QueryEscape(projectID)
	if err := c.doJSON(ctx, http.MethodGet, target, bearer(apiKey), nil, &out); err != nil {
		return nil, err
	}
	if out.Branches == nil {
		out.Branches = []domain.Branch{}
	}
	return out.Branches, nil
}

// DeleteBranch deletes a branch and returns the backend's confirmation message.
func (c *Client) DeleteBranch(ctx context.Context, apiKey, projectID, branchID string) (string, error) {
	if apiKey == "" || projectID == "" {
		return "", ErrMissingCredentials
	}

	var out struct {
		Message string `json:"message"`
	}
	target := fmt.Sprintf("%s%s/branches/%s?projectId=%s", c.baseURL, basePath, url.PathEscape(branchID), url.QueryEscape(projectID))
	if err := c.doJSON(ctx, http.MethodDelete, target, bearer(apiKey), nil, &out); err != nil {
		return "", err
	}
	if out.Message == "" {
		out.Message = "Branch deleted successfully"
	}
	return out.Message, nil
}

// --- Introspection ---

// ListTables returns the endpoint's table inventory.
func (c *Client) ListTables(ctx context.Context, ep domain.Endpoint) ([]domain.TableInfo, error) {
	body, err := endpointBody(ep)
	if err != nil {
		return nil, err
	}

	var out struct {
		Tables []domain.TableInfo `json:"tables"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+basePath+"/tables", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Tables == nil {
		out.Tables = []domain.TableInfo{}
	}
	return out.Tables, nil
}

// CompareSchemas requests a structural diff of source against target.
func (c *Client) CompareSchemas(ctx context.Context, source, target domain.Endpoint) (*domain.SchemaDiff, error) {
	body, err := pairBody(source, target)
	if err != nil {
		return nil, err
	}

	var out struct {
		Diff *domain.SchemaDiff `json:"diff"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+basePath+"/compare-schemas", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Diff == nil {
		return nil, fmt.Errorf("%w: compare-schemas reply has no diff", ErrInvalidBackendReply)
	}
	if out.Diff.ColumnsDiff == nil {
		out.Diff.ColumnsDiff = map[string]domain.ColumnDiff{}
	}
	return out.Diff, nil
}

// TableCheck is the backend's answer to a verify-table request.
type TableCheck struct {
	Exists   bool   `json:"exists"`
	RowCount int64  `json:"rowCount"`
	Error    string `json:"error,omitempty"`
}

// VerifyTable asks whether table exists on ep and how many rows it holds.
func (c *Client) VerifyTable(ctx context.Context, ep domain.Endpoint, table string) (*TableCheck, error) {
	body, err := endpointBody(ep)
	if err != nil {
		return nil, err
	}
	body["tableName"] = table

	var out TableCheck
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+basePath+"/verify-table", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportSchema returns a CREATE TABLE script for tables on ep (all public
// tables when tables is empty). Only branch endpoints are supported by the backend.
func (c *Client) ExportSchema(ctx context.Context, ep domain.Endpoint, tables []string) (string, error) {
	if ep.BranchID == "" || ep.APIKey == "" || ep.ProjectID == "" {
		return "", ErrEndpointIncomplete
	}
	body := map[string]any{
		"branchId":  ep.BranchID,
		"apiKey":    ep.APIKey,
		"projectId": ep.ProjectID,
	}
	if len(tables) > 0 {
		body["tables"] = tables
	}

	res, err := c.send(ctx, http.MethodPost, c.baseURL+basePath+"/export-schema", nil, body)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	script, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed reading schema export: %w", err)
	}
	return string(script), nil
}

// --- Migration ---

// MigrateRequest is the body of a migration run.
type MigrateRequest struct {
	Source        domain.Endpoint
	Target        domain.Endpoint
	Tables        []string
	MigrationType string
}

// Migrate starts a migration and returns the streamed progress body. A non-2xx
// initial response is returned as *APIError before any line is read. The
// caller must close the returned reader.
func (c *Client) Migrate(ctx context.Context, req MigrateRequest) (io.ReadCloser, error) {
	body, err := pairBody(req.Source, req.Target)
	if err != nil {
		return nil, err
	}
	body["tables"] = req.Tables
	body["migrationType"] = req.MigrationType

	res, err := c.send(ctx, http.MethodPost, c.baseURL+basePath+"/migrate", nil, body)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// --- Request bodies ---

func endpointBody(ep domain.Endpoint) (map[string]any, error) {
	if !ep.Configured() {
		return nil, ErrEndpointIncomplete
	}
	if ep.Direct {
		return map[string]any{
			"connectionString":    core.CleanConnectionString(ep.ConnectionString),
			"useDirectConnection": true,
		}, nil
	}
	return map[string]any{
		"branchId":            ep.BranchID,
		"apiKey":              ep.APIKey,
		"projectId":           ep.ProjectID,
		"useDirectConnection": false,
	}, nil
}

func pairBody(source, target domain.Endpoint) (map[string]any, error) {
	if !source.Configured() || !target.Configured() {
		return nil, ErrEndpointIncomplete
	}
	if source.Direct {
		return map[string]any{
			"sourceConnectionString": core.CleanConnectionString(source.ConnectionString),
			"targetConnectionString": core.CleanConnectionString(target.ConnectionString),
			"useDirectConnection":    true,
		}, nil
	}
	return map[string]any{
		"sourceBranchId":      source.BranchID,
		"targetBranchId":      target.BranchID,
		"apiKey":              source.APIKey,
		"projectId":           source.ProjectID,
		"useDirectConnection": false,
	}, nil
}

func bearer(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// --- Transport ---

func (c *Client) doJSON(ctx context.Context, method, target string, headers map[string]string, body any, out any) error {
	res, err := c.send(ctx, method, target, headers, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackendReply, err)
	}
	return nil
}

// send performs the request and converts any non-2xx reply into *APIError.
func (c *Client) send(ctx context.Context, method, target string, headers map[string]string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		customLog.Warnf("NeonAPI: %s %s failed: %v", method, redactURL(target), err)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		apiErr := &APIError{StatusCode: res.StatusCode, Message: readErrorMessage(res.Body)}
		customLog.Warnf("NeonAPI: %s %s returned %d: %s", method, redactURL(target), res.StatusCode, apiErr.Message)
		return nil, apiErr
	}
	return res, nil
}

// readErrorMessage prefers the body's "message" field, then "error", then a generic fallback.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return "request to migration backend failed"
}

func redactURL(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
