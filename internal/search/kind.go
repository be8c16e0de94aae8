// Package search implements the composite "search" fan-out across the domain
// search functions and the "fetch" resolver for the opaque ids it hands out.
package search

import (
	"context"
	"encoding/json"
	"strings"
)

// Kind is the closed set of result kinds. Adding a kind means adding a case
// to every switch over Kind in this package.
type Kind string

const (
	KindDonor Kind = "donor"
	KindBill  Kind = "bill"
	KindRTS   Kind = "rts"
)

// Kinds lists every kind in result order.
var Kinds = []Kind{KindDonor, KindBill, KindRTS}

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindDonor, KindBill, KindRTS:
		return k, true
	default:
		return "", false
	}
}

// Database functions behind each kind.
const (
	FnSearchDonorTotalsWindow  = "search_donor_totals_window"
	FnSearchBillsForLegislator = "search_bills_for_legislator"
	FnSearchRTSByVector        = "search_rts_by_vector"
	FnGetBillText              = "get_bill_text"
	FnGetBillVotes             = "get_bill_votes"
	FnGetBillVoteRollup        = "get_bill_vote_rollup"
)

// Source names the database function a kind's rows come from.
func (k Kind) Source() string {
	switch k {
	case KindDonor:
		return FnSearchDonorTotalsWindow
	case KindBill:
		return FnSearchBillsForLegislator
	case KindRTS:
		return FnSearchRTSByVector
	default:
		return ""
	}
}

// Caller invokes one database function.
type Caller interface {
	Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error)
}
