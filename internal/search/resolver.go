package search

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wpmcp/internal/model"
	"wpmcp/internal/resultid"
)

// Detail is the materialized form of one search result.
type Detail struct {
	ID      string          `json:"id"`
	Type    Kind            `json:"type"`
	Source  string          `json:"source"`
	Query   string          `json:"query,omitempty"`
	Filters Filters         `json:"filters"`
	Record  json.RawMessage `json:"record"`
	Text    json.RawMessage `json:"text,omitempty"`
	Votes   json.RawMessage `json:"votes,omitempty"`
	Rollup  json.RawMessage `json:"rollup,omitempty"`
}

// Resolver turns an id produced by Aggregator back into full detail.
type Resolver struct {
	rpc Caller
}

func NewResolver(rpc Caller) *Resolver {
	return &Resolver{rpc: rpc}
}

// Fetch decodes id and dispatches on its kind. Malformed ids yield a
// *model.DecodingError and unrecognized kinds a *model.UnknownResultKindError.
func (r *Resolver) Fetch(ctx context.Context, id string) (Detail, error) {
	var prov provenance
	rawKind, err := resultid.DecodeInto(id, &prov)
	if err != nil {
		return Detail{}, err
	}

	kind, ok := ParseKind(rawKind)
	if !ok || string(kind) != rawKind {
		return Detail{}, &model.UnknownResultKindError{Kind: rawKind}
	}

	detail := Detail{
		ID:      id,
		Type:    kind,
		Source:  prov.Source,
		Query:   prov.Query,
		Filters: prov.Filters,
		Record:  prov.Record,
	}

	switch kind {
	case KindDonor, KindRTS:
		return detail, nil
	case KindBill:
		return r.fetchBill(ctx, detail, prov.BillID)
	default:
		return Detail{}, &model.UnknownResultKindError{Kind: rawKind}
	}
}

// fetchBill runs the bill follow-ups concurrently; any failure fails the
// fetch.
func (r *Resolver) fetchBill(ctx context.Context, detail Detail, billID int64) (Detail, error) {
	if billID == 0 {
		return Detail{}, &model.DecodingError{Reason: "bill result carries no bill_id"}
	}
	if r.rpc == nil {
		return Detail{}, fmt.Errorf("database gateway is not configured")
	}
	params := map[string]any{"p_bill_id": billID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := r.rpc.Call(gctx, FnGetBillText, params)
		if err != nil {
			return fmt.Errorf("bill text: %w", err)
		}
		detail.Text = raw
		return nil
	})
	g.Go(func() error {
		raw, err := r.rpc.Call(gctx, FnGetBillVotes, params)
		if err != nil {
			return fmt.Errorf("bill votes: %w", err)
		}
		detail.Votes = raw
		return nil
	})
	g.Go(func() error {
		raw, err := r.rpc.Call(gctx, FnGetBillVoteRollup, params)
		if err != nil {
			return fmt.Errorf("bill vote rollup: %w", err)
		}
		detail.Rollup = raw
		return nil
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return detail, nil
}
