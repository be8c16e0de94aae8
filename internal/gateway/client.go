// Package gateway calls database functions and table reads exposed over the
// Supabase PostgREST HTTP surface.
package gateway

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
	"unicode/utf8"

	"wpmcp/internal/model"
)

const (
	restPrefix = "/rest/v1"

	// maxBodyExcerpt bounds how much of an error response is echoed back.
	maxBodyExcerpt = 512
	redacted       = "[redacted]"
)

// Options configures one gateway. Name labels the project in configuration
// errors; URLSetting and KeySetting name the settings an operator must set.
type Options struct {
	Name       string
	BaseURL    string
	APIKey     string
	URLSetting string
	KeySetting string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	urlSetting string
	keySetting string
	http       *http.Client
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "Supabase RPC"
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		urlSetting: opts.URLSetting,
		keySetting: opts.KeySetting,
		http:       httpClient,
	}
}

// Configured reports whether both the base URL and a key are present.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// Call invokes the database function fn with params serialized as one JSON
// object. A 2xx response yields the raw JSON value (null for an empty body).
// Calls are never retried.
func (c *Client) Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}
	fn = strings.TrimSpace(fn)
	if fn == "" {
		return nil, fmt.Errorf("function name is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", fn, err)
	}

	endpoint := c.baseURL + restPrefix + "/rpc/" + url.PathEscape(fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "count=exact")
	return c.do(req, "Supabase RPC", fn)
}

// Select reads rows from table using PostgREST query parameters.
func (c *Client) Select(ctx context.Context, table string, q Query) (json.RawMessage, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}

	endpoint := c.baseURL + restPrefix + "/" + url.PathEscape(table)
	if encoded := q.values().Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", table, err)
	}
	if q.Single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	return c.do(req, "Supabase select", table)
}

func (c *Client) do(req *http.Request, service, operation string) (json.RawMessage, error) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.UpstreamError{
			Service:   service,
			Operation: operation,
			Cause:     fmt.Errorf("%s", c.scrub(err.Error())),
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.UpstreamError{
			Service:    service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       c.excerpt(payload),
		}
	}
	if readErr != nil {
		return nil, &model.UpstreamError{
			Service:    service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Cause:      fmt.Errorf("read response: %s", c.scrub(readErr.Error())),
		}
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(payload) {
		return nil, &model.UpstreamError{
			Service:    service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       "response is not valid JSON: " + c.excerpt(payload),
		}
	}
	return json.RawMessage(payload), nil
}

func (c *Client) checkConfigured() error {
	if c.Configured() {
		return nil
	}
	var settings []string
	if c == nil || c.baseURL == "" {
		settings = append(settings, nonEmpty(c.setting(true), "a project URL"))
	}
	if c == nil || c.apiKey == "" {
		settings = append(settings, nonEmpty(c.setting(false), "a KEY"))
	}
	component := "Supabase RPC"
	if c != nil {
		component = c.name
	}
	return &model.ConfigurationMissingError{Component: component, Settings: settings}
}

func (c *Client) setting(forURL bool) string {
	if c == nil {
		return ""
	}
	if forURL {
		return c.urlSetting
	}
	return c.keySetting
}

// excerpt scrubs before truncating so a key cut in half cannot survive.
func (c *Client) excerpt(body []byte) string {
	text := c.scrub(strings.TrimSpace(string(body)))
	if len(text) <= maxBodyExcerpt {
		return text
	}
	cut := maxBodyExcerpt
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// scrub removes the API key from text that may be shown to callers.
func (c *Client) scrub(text string) string {
	if c.apiKey == "" {
		return text
	}
	return strings.ReplaceAll(text, c.apiKey, redacted)
}

func statusText(resp *http.Response) string {
	status := strings.TrimSpace(resp.Status)
	if prefix := strconv.Itoa(resp.StatusCode); strings.HasPrefix(status, prefix) {
		status = strings.TrimSpace(strings.TrimPrefix(status, prefix))
	}
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}
	return status
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
