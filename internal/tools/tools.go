// Package tools declares the campaign-finance tool surface and registers it
// under one of the deployment profiles.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"wpmcp/internal/embedding"
	"wpmcp/internal/gateway"
	"wpmcp/internal/search"
	"wpmcp/internal/store"
	"wpmcp/internal/tool"
)

// Profiles select which tool set a server exposes.
const (
	ProfileSearch = "search"
	ProfileDirect = "direct"
	ProfileLegacy = "legacy"
)

// Profiles lists every valid profile name.
var Profiles = []string{ProfileSearch, ProfileDirect, ProfileLegacy}

// Gateway is the slice of the RPC gateway the tools use.
type Gateway interface {
	Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error)
	Select(ctx context.Context, table string, q gateway.Query) (json.RawMessage, error)
}

// SQLRunner executes ad-hoc statements for the sql tool.
type SQLRunner interface {
	Query(ctx context.Context, statement string, args []any) (store.QueryResult, error)
}

// Deps are the collaborators handlers close over. CampaignFinance is the
// project holding every domain function; Primary holds the events data.
type Deps struct {
	CampaignFinance Gateway
	Primary         Gateway
	Embedder        embedding.Embedder
	SQL             SQLRunner
	AllowSQLWrite   bool
	Logger          *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Build registers the tools of profile into a fresh registry.
func Build(profile string, deps Deps) (*tool.Registry, error) {
	var defs []tool.Definition
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileSearch:
		defs = searchTools(deps)
	case ProfileDirect:
		defs = append(searchTools(deps), directTools(deps)...)
	case ProfileLegacy:
		defs = append(legacyTools(deps), searchTools(deps)...)
	default:
		return nil, fmt.Errorf("unknown tool profile %q (want one of %s)", profile, strings.Join(Profiles, ", "))
	}

	reg := tool.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// rpcResult renders a gateway result the way every RPC-backed tool does.
func rpcResult(raw json.RawMessage) (tool.Result, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return tool.JSON(raw)
}
