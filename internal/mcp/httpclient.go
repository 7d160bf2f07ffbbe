package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/storage"
)

// HTTPClient implements Backend by calling the GymRats REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// sessions live on the remote server (accessed over Tailscale). The server
// derives the scope from the caller's tailnet identity.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies Backend.
var _ Backend = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey
// is sent as X-API-Key when non-empty.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, apiError(data))
	}

	return data, nil
}

// apiError extracts the message from a {"error": "..."} body.
func apiError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func decode[T any](data []byte, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("httpclient: decode %s: %w", what, err)
	}
	return &v, nil
}

func (c *HTTPClient) CurrentSession(ctx context.Context) (*session.View, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[session.View](body, "session")
}

func (c *HTTPClient) StartSession(ctx context.Context, req session.StartRequest) (*models.Session, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/session/start", nil, req)
	if err != nil {
		return nil, err
	}
	return decode[models.Session](body, "session")
}

func (c *HTTPClient) AddExercise(ctx context.Context, req session.AddExerciseRequest) (*session.View, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/session/exercises", nil, req)
	if err != nil {
		return nil, err
	}
	return decode[session.View](body, "session")
}

func (c *HTTPClient) UpdateSet(ctx context.Context, exerciseIndex, setIndex int, update session.SetUpdate) (*session.View, error) {
	path := fmt.Sprintf("/api/v1/session/exercises/%d/sets/%d", exerciseIndex, setIndex)
	body, err := c.do(ctx, http.MethodPut, path, nil, update)
	if err != nil {
		return nil, err
	}
	return decode[session.View](body, "session")
}

func (c *HTTPClient) ToggleRest(ctx context.Context, exerciseIndex, seconds int) (*session.RestToggle, error) {
	var params url.Values
	if seconds != 0 {
		params = url.Values{"seconds": {strconv.Itoa(seconds)}}
	}
	path := fmt.Sprintf("/api/v1/session/exercises/%d/rest", exerciseIndex)
	body, err := c.do(ctx, http.MethodPost, path, params, nil)
	if err != nil {
		return nil, err
	}
	return decode[session.RestToggle](body, "rest toggle")
}

func (c *HTTPClient) FinishSession(ctx context.Context) (*models.Session, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/session/finish", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[models.Session](body, "session")
}

func (c *HTTPClient) CancelSession(ctx context.Context) (*storage.Result, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/session/cancel", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[storage.Result](body, "save result")
}

func (c *HTTPClient) ListTemplates(ctx context.Context) ([]models.Template, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/templates", nil, nil)
	if err != nil {
		return nil, err
	}

	var list []models.Template
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("httpclient: decode templates: %w", err)
	}
	return list, nil
}

func (c *HTTPClient) History(ctx context.Context, month string) (*models.HistoryReport, error) {
	var params url.Values
	if month != "" {
		params = url.Values{"month": {month}}
	}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/history", params, nil)
	if err != nil {
		return nil, err
	}
	return decode[models.HistoryReport](body, "history")
}
