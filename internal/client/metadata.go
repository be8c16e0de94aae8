package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"wpmcp/internal/protocol"
)

// Metadata is the protected-resource document as fetched, kept raw alongside
// the decoded fields so diagnostics can print exactly what came back.
type Metadata struct {
	Status               int      `json:"status"`
	ContentType          string   `json:"content_type"`
	Body                 string   `json:"body"`
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// FetchMetadata reads the OAuth protected-resource document from origin.
func FetchMetadata(ctx context.Context, hc *http.Client, origin string) (*Metadata, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: protocol.ProtectedResourceMetadataPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}
	if resp.StatusCode != http.StatusOK {
		return md, fmt.Errorf("metadata: http status %d", resp.StatusCode)
	}
	var doc struct {
		Resource             string   `json:"resource"`
		AuthorizationServers []string `json:"authorization_servers"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return md, fmt.Errorf("decode metadata: %w", err)
	}
	md.Resource = doc.Resource
	md.AuthorizationServers = doc.AuthorizationServers
	return md, nil
}
