// cmd/migratectl/client.go
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Annany2002/nebula-migrate/internal/migration"
)

var errNoAPIKey = errors.New("no API key: set MIGRATECTL_API_KEY or pass --api-key")

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status        int
	Message       string
	Notifications []migration.Notification
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// sseEvent is one server-sent event.
type sseEvent struct {
	Name string
	Data string
}

// client calls the nebula-migrate HTTP API with a personal API key.
type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newClient(baseURL, apiKey string) (*client, error) {
	if apiKey == "" {
		return nil, errNoAPIKey
	}
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}, nil
}

func (c *client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		return nil, decodeError(res)
	}
	return res, nil
}

func decodeError(res *http.Response) error {
	var body struct {
		Error         string                   `json:"error"`
		Notifications []migration.Notification `json:"notifications"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(res.StatusCode)
	}
	return &apiError{Status: res.StatusCode, Message: body.Error, Notifications: body.Notifications}
}

// do sends a JSON request and decodes the reply into out when it is non-nil.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	res, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

// stream posts body and hands every server-sent event to fn. A reply that is
// not an event stream is passed to fn as a single event named "json".
func (c *client) stream(ctx context.Context, path string, body any, fn func(sseEvent) error) error {
	res, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream") {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		return fn(sseEvent{Name: "json", Data: string(raw)})
	}
	return readEvents(res.Body, fn)
}

// readEvents splits r into events. Field values may or may not have a space
// after the colon; multi-line data is joined with newlines.
func readEvents(r io.Reader, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var ev sseEvent
	var data []string
	flush := func() error {
		if ev.Name == "" && len(data) == 0 {
			return nil
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Name == "" {
			ev.Name = "message"
		}
		err := fn(ev)
		ev, data = sseEvent{}, nil
		return err
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
