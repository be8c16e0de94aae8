package tools

import (
	"context"

	"wpmcp/internal/protocol"
	"wpmcp/internal/schema"
	"wpmcp/internal/search"
	"wpmcp/internal/tool"
)

func searchInput() schema.Schema {
	return schema.New(
		schema.String("query").Describe("Free-text theme; embedded once and shared by every vector-ranked kind."),
		schema.Object("filters",
			schema.Array("types", schema.String("").Enum(string(search.KindDonor), string(search.KindBill), string(search.KindRTS))).
				Describe("Result kinds to search; all kinds when omitted."),
			schema.Integer("session_id").Nullable(),
			schema.Integer("legislator_id").Nullable().Describe("Required for bill results."),
			schema.Array("recipient_entity_ids", schema.Integer("")),
			schema.Integer("bill_id").Nullable(),
			schema.Integer("days_before").Min(0),
			schema.Integer("days_after").Min(0),
			schema.String("from").Describe("YYYY-MM-DD, used if session_id is null"),
			schema.String("to").Describe("YYYY-MM-DD, exclusive"),
			schema.Array("group_numbers", schema.Integer("")),
			schema.Number("min_amount").Min(0),
			schema.Integer("limit").Min(1).Max(search.MaxLimit).Describe("Maximum results per kind."),
		).Describe("Optional filters narrowing each kind's search."),
	)
}

// searchTools are registered by every profile.
func searchTools(deps Deps) []tool.Definition {
	agg := search.NewAggregator(deps.CampaignFinance, deps.Embedder, deps.logger())
	resolver := search.NewResolver(deps.CampaignFinance)

	return []tool.Definition{
		{
			Name:        protocol.ToolNameSearch,
			Description: "Search donors, bills and stakeholder positions in one call. Returns lightweight results with opaque ids for fetch, plus any per-kind errors.",
			Input:       searchInput(),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				resp := agg.Search(ctx, args.String("query"), filtersFromArgs(args.Object("filters")))
				return tool.JSON(resp)
			},
		},
		{
			Name:        protocol.ToolNameFetch,
			Description: "Fetch the full record behind a search result id.",
			Input: schema.New(
				schema.String("id").Required().Describe("An id returned by search."),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				detail, err := resolver.Fetch(ctx, args.String("id"))
				if err != nil {
					return tool.Result{}, err
				}
				return tool.JSON(detail)
			},
		},
	}
}

func filtersFromArgs(args schema.Args) search.Filters {
	return search.Filters{
		Types:              args.Strings("types"),
		SessionID:          args.IntPtr("session_id"),
		LegislatorID:       args.IntPtr("legislator_id"),
		RecipientEntityIDs: args.Ints("recipient_entity_ids"),
		BillID:             args.IntPtr("bill_id"),
		DaysBefore:         args.Int("days_before"),
		DaysAfter:          args.Int("days_after"),
		From:               args.String("from"),
		To:                 args.String("to"),
		GroupNumbers:       args.Ints("group_numbers"),
		MinAmount:          args.Float("min_amount"),
		Limit:              args.Int("limit"),
	}
}
