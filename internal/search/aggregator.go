package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"wpmcp/internal/embedding"
	"wpmcp/internal/gateway"
	"wpmcp/internal/model"
	"wpmcp/internal/resultid"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Filters narrow a composite search. Each kind reads the subset it
// understands and ignores the rest.
type Filters struct {
	Types              []string `json:"types,omitempty"`
	SessionID          *int     `json:"session_id,omitempty"`
	LegislatorID       *int     `json:"legislator_id,omitempty"`
	RecipientEntityIDs []int    `json:"recipient_entity_ids,omitempty"`
	BillID             *int     `json:"bill_id,omitempty"`
	DaysBefore         int      `json:"days_before,omitempty"`
	DaysAfter          int      `json:"days_after,omitempty"`
	From               string   `json:"from,omitempty"`
	To                 string   `json:"to,omitempty"`
	GroupNumbers       []int    `json:"group_numbers,omitempty"`
	MinAmount          float64  `json:"min_amount,omitempty"`
	Limit              int      `json:"limit,omitempty"`
}

// Response always carries both lists, possibly empty.
type Response struct {
	Results []model.SearchResult `json:"results"`
	Errors  []string             `json:"errors"`
}

// provenance is what a result id carries: enough to answer a fetch without
// querying again.
type provenance struct {
	Record  json.RawMessage `json:"record"`
	Query   string          `json:"query,omitempty"`
	Filters Filters         `json:"filters"`
	Source  string          `json:"source"`
	BillID  int64           `json:"bill_id,omitempty"`
}

// Aggregator fans one query out to every requested kind.
type Aggregator struct {
	rpc      Caller
	embedder embedding.Embedder
	logger   *slog.Logger
}

func NewAggregator(rpc Caller, embedder embedding.Embedder, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{rpc: rpc, embedder: embedder, logger: logger}
}

type kindOutcome struct {
	results []model.SearchResult
	errs    []string
}

// Search never fails. Per-kind failures, including the shared embedding
// step, are reported in Response.Errors next to whatever succeeded.
func (a *Aggregator) Search(ctx context.Context, query string, filters Filters) Response {
	resp := Response{Results: []model.SearchResult{}, Errors: []string{}}
	query = strings.TrimSpace(query)

	kinds, explicit, typeErrs := requestedKinds(filters.Types)
	resp.Errors = append(resp.Errors, typeErrs...)

	var vec model.QueryVector
	embedFailed := false
	if query != "" && len(kinds) > 0 {
		v, err := a.embed(ctx, query)
		if err != nil {
			embedFailed = true
			resp.Errors = append(resp.Errors, "embedding: "+err.Error())
			a.logger.Warn("search embedding failed", "error", err)
		} else {
			vec = v
		}
	}

	outcomes := make([]kindOutcome, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		if reason := missingPrerequisite(kind, vec, filters); reason != "" {
			if explicit && !embedFailed {
				outcomes[i].errs = []string{fmt.Sprintf("%s: %s", kind, reason)}
			}
			continue
		}
		g.Go(func() error {
			outcomes[i] = a.searchKind(ctx, kind, query, vec, filters)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		resp.Results = append(resp.Results, out.results...)
		resp.Errors = append(resp.Errors, out.errs...)
	}
	return resp
}

func (a *Aggregator) embed(ctx context.Context, text string) (model.QueryVector, error) {
	if a.embedder == nil {
		return nil, &model.ConfigurationMissingError{Component: "Embedding"}
	}
	return a.embedder.Embed(ctx, text)
}

func (a *Aggregator) searchKind(ctx context.Context, kind Kind, query string, vec model.QueryVector, filters Filters) kindOutcome {
	if a.rpc == nil {
		return kindOutcome{errs: []string{fmt.Sprintf("%s: database gateway is not configured", kind)}}
	}
	raw, err := a.rpc.Call(ctx, kind.Source(), searchParams(kind, vec, filters))
	if err != nil {
		a.logger.Warn("search kind failed", "kind", string(kind), "error", err)
		return kindOutcome{errs: []string{fmt.Sprintf("%s: %v", kind, err)}}
	}
	rows, err := gateway.Rows(raw)
	if err != nil {
		return kindOutcome{errs: []string{fmt.Sprintf("%s: unexpected response shape: %v", kind, err)}}
	}

	var out kindOutcome
	for i, row := range rows {
		result, err := project(kind, row, query, filters)
		if err != nil {
			out.errs = append(out.errs, fmt.Sprintf("%s: row %d: %v", kind, i, err))
			continue
		}
		out.results = append(out.results, result)
	}
	return out
}

// project narrows one row into its kind's shape and builds the summary and
// opaque id for it.
func project(kind Kind, row json.RawMessage, query string, filters Filters) (model.SearchResult, error) {
	prov := provenance{
		Record:  row,
		Query:   query,
		Filters: filters,
		Source:  kind.Source(),
	}
	var title, summary string

	switch kind {
	case KindDonor:
		var r donorRow
		if err := json.Unmarshal(row, &r); err != nil {
			return model.SearchResult{}, err
		}
		title, summary = r.title(), r.summary()
	case KindBill:
		var r billRow
		if err := json.Unmarshal(row, &r); err != nil {
			return model.SearchResult{}, err
		}
		if r.BillID == 0 {
			return model.SearchResult{}, errors.New("missing bill_id")
		}
		prov.BillID = r.BillID
		title, summary = r.title(), r.summary()
	case KindRTS:
		var r rtsRow
		if err := json.Unmarshal(row, &r); err != nil {
			return model.SearchResult{}, err
		}
		title, summary = r.title(), r.summary()
	default:
		return model.SearchResult{}, &model.UnknownResultKindError{Kind: string(kind)}
	}

	id, err := resultid.Encode(string(kind), prov)
	if err != nil {
		return model.SearchResult{}, err
	}
	return model.SearchResult{
		ID:      id,
		Type:    string(kind),
		Title:   title,
		Summary: summary,
		Source:  prov.Source,
	}, nil
}

func searchParams(kind Kind, vec model.QueryVector, f Filters) map[string]any {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	switch kind {
	case KindDonor:
		return map[string]any{
			"p_query_vec":            vectorOrNil(vec),
			"p_recipient_entity_ids": intsOrNil(f.RecipientEntityIDs),
			"p_session_id":           intOrNil(f.SessionID),
			"p_days_before":          f.DaysBefore,
			"p_days_after":           f.DaysAfter,
			"p_from":                 stringOrNil(f.From),
			"p_to":                   stringOrNil(f.To),
			"p_group_numbers":        intsOrNil(f.GroupNumbers),
			"p_min_amount":           f.MinAmount,
			"p_limit":                limit,
		}
	case KindBill:
		return map[string]any{
			"p_query_vec":     vec,
			"p_legislator_id": intOrNil(f.LegislatorID),
			"p_session_id":    intOrNil(f.SessionID),
			"p_mode":          "summary",
			"p_limit":         limit,
		}
	case KindRTS:
		return map[string]any{
			"p_query_vec":  vec,
			"p_bill_id":    intOrNil(f.BillID),
			"p_session_id": intOrNil(f.SessionID),
			"p_limit":      limit,
		}
	default:
		return nil
	}
}

// missingPrerequisite explains why kind cannot run, or returns "".
func missingPrerequisite(kind Kind, vec model.QueryVector, f Filters) string {
	switch kind {
	case KindDonor:
		return ""
	case KindBill:
		if vec == nil {
			return "query text is required for vector-ranked bills"
		}
		if f.LegislatorID == nil || f.SessionID == nil {
			return "legislator_id and session_id filters are required"
		}
		return ""
	case KindRTS:
		if vec == nil {
			return "query text is required for vector-ranked positions"
		}
		return ""
	default:
		return "unsupported kind"
	}
}

// requestedKinds resolves filters.types. With no types every kind is
// searched and explicit is false.
func requestedKinds(types []string) (kinds []Kind, explicit bool, errs []string) {
	if len(types) == 0 {
		return append([]Kind(nil), Kinds...), false, nil
	}
	want := make(map[Kind]bool, len(types))
	for _, t := range types {
		k, ok := ParseKind(t)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown result type %q", t))
			continue
		}
		want[k] = true
	}
	for _, k := range Kinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, true, errs
}

func vectorOrNil(vec model.QueryVector) any {
	if vec == nil {
		return nil
	}
	return vec
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intsOrNil(v []int) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func stringOrNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
