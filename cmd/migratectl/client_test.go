// cmd/migratectl/client_test.go
package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-migrate/internal/core"
)

func collect(t *testing.T, raw string) []sseEvent {
	t.Helper()
	var events []sseEvent
	err := readEvents(strings.NewReader(raw), func(ev sseEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []sseEvent
	}{
		{
			name: "gin framing without space",
			raw:  "event:update\ndata:{\"progress\":\"a\"}\n\nevent:done\ndata:{}\n\n",
			want: []sseEvent{{Name: "update", Data: `{"progress":"a"}`}, {Name: "done", Data: "{}"}},
		},
		{
			name: "space after colon",
			raw:  "event: update\ndata: {\"progress\":\"b\"}\n\n",
			want: []sseEvent{{Name: "update", Data: `{"progress":"b"}`}},
		},
		{
			name: "unnamed event and CRLF",
			raw:  "data: hello\r\n\r\n",
			want: []sseEvent{{Name: "message", Data: "hello"}},
		},
		{
			name: "multi-line data and no trailing blank line",
			raw:  "event:update\ndata:one\ndata:two",
			want: []sseEvent{{Name: "update", Data: "one\ntwo"}},
		},
		{
			name: "comments ignored",
			raw:  ": keep-alive\n\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(t, tt.raw))
		})
	}
}

func TestFollowMigration(t *testing.T) {
	raw := "event:update\ndata:{\"progress\":\"Processing table: orders\"}\n\n" +
		"event:update\ndata:{\"progress\":\"Processing table: orders\",\"row_progress\":\"5/10 rows\"}\n\n" +
		"event:update\ndata:{\"progress\":\"Migration completed!\",\"result\":{\"tablesMigrated\":[{\"tableName\":\"orders\",\"rowsMigrated\":1500,\"status\":\"success\",\"verified\":{\"exists\":true,\"rowCount\":1500}}],\"totalRowsMigrated\":1500,\"completedTables\":1}}\n\n" +
		"event:done\ndata:{\"notifications\":[{\"level\":\"success\",\"message\":\"Migration completed successfully!\"}]}\n\n"

	var out bytes.Buffer
	err := followMigration(&out, func(fn func(sseEvent) error) error {
		return readEvents(strings.NewReader(raw), fn)
	})
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "Processing table: orders\n"))
	assert.Contains(t, text, "Processing table: orders (5/10 rows)")
	assert.Contains(t, text, "[ok] Migration completed successfully!")
	assert.Contains(t, text, "Migrated 1,500 rows across 1 table(s)")
	assert.Contains(t, text, "1,500 rows")
}

func TestFollowMigrationStreamError(t *testing.T) {
	raw := "event:update\ndata:{\"progress\":\"Starting migration...\"}\n\n" +
		"event:error\ndata:{\"error\":\"migration stream interrupted: unexpected EOF\"}\n\n" +
		"event:done\ndata:{\"notifications\":[]}\n\n"

	var out bytes.Buffer
	err := followMigration(&out, func(fn func(sseEvent) error) error {
		return readEvents(strings.NewReader(raw), fn)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/migration/verify":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"No migration result to verify","notifications":[{"level":"error","message":"nothing to verify"}]}`)
		case "/api/v1/migration/start":
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event:update\ndata:{}\n\n")
		default:
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "not json")
		}
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, "")
	assert.ErrorIs(t, err, errNoAPIKey)

	c, err := newClient(srv.URL+"/", "nmk_test")
	require.NoError(t, err)
	ctx := context.Background()

	err = c.do(ctx, http.MethodPost, "/api/v1/migration/verify", nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "No migration result to verify", apiErr.Message)
	require.Len(t, apiErr.Notifications, 1)
	assert.Equal(t, "ApiKey nmk_test", gotAuth)

	err = c.do(ctx, http.MethodGet, "/elsewhere", nil, nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Message)

	var names []string
	err = c.stream(ctx, "/api/v1/migration/start", map[string]string{}, func(ev sseEvent) error {
		names = append(names, ev.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"update"}, names)
}

func TestConfirmation(t *testing.T) {
	cmd := &cobra.Command{}

	got, err := confirmation(cmd, core.PhraseMigrate, "", true)
	require.NoError(t, err)
	assert.Equal(t, core.PhraseMigrate, got)

	got, err = confirmation(cmd, core.PhraseMigrate, "migrate", false)
	require.NoError(t, err)
	assert.Equal(t, "migrate", got, "explicit phrase is sent as typed")

	cmd.SetIn(strings.NewReader("DELETE\n"))
	cmd.SetOut(&bytes.Buffer{})
	got, err = confirmation(cmd, core.PhraseDelete, "", false)
	require.NoError(t, err)
	assert.Equal(t, core.PhraseDelete, got)

	var prompt bytes.Buffer
	_, err = promptPhrase(strings.NewReader("delete\n"), &prompt, core.PhraseDelete)
	assert.ErrorIs(t, err, core.ErrConfirmationMismatch)
	assert.Contains(t, prompt.String(), "Type DELETE to confirm")
}
