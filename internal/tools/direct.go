package tools

import (
	"context"

	"wpmcp/internal/model"
	"wpmcp/internal/protocol"
	"wpmcp/internal/schema"
	"wpmcp/internal/store"
	"wpmcp/internal/tool"
)

func queryVecField() schema.Field {
	return schema.Array("p_query_vec", schema.Number("")).Length(model.EmbeddingDimensions)
}

// directTools map one-to-one onto database functions and fail hard.
func directTools(deps Deps) []tool.Definition {
	return []tool.Definition{
		{
			Name:        protocol.ToolNameSQL,
			Description: "Execute a SQL query against the Postgres database. Default is read-only (SELECT-only). Use for custom, ad-hoc lookups strictly when other tools don't fit.",
			Input: schema.New(
				schema.String("query").Required().Describe("SQL statement. Use SELECT unless writes are explicitly allowed."),
				schema.Array("params", schema.Any("").Nullable()).Describe("Optional positional parameters, e.g. [$1, $2]."),
				schema.Boolean("allowWrite").Describe("Set true only if writes are permitted by env (SQL_TOOL_ALLOW_WRITE)."),
			),
			Handler: sqlHandler(deps),
		},
		{
			Name:        protocol.ToolNameSessionWindow,
			Description: "Compute a date window around a legislative session.",
			Input: schema.New(
				schema.Integer("p_session_id").Required(),
				schema.Integer("p_days_before").Min(0).Required(),
				schema.Integer("p_days_after").Min(0).Required(),
			),
			Handler: passThrough(deps, "session_window"),
		},
		{
			Name:        protocol.ToolNameFindDonorsByName,
			Description: "Fuzzy resolve canonical donors by name.",
			Input: schema.New(
				schema.String("p_name").Required(),
				schema.Integer("p_limit").Min(1).Max(500),
			),
			Handler: passThrough(deps, "find_donors_by_name"),
		},
		{
			Name:        protocol.ToolNameRecipientEntityIDsForLegislator,
			Description: "Map a legislator to recipient committee/entity ids.",
			Input: schema.New(
				schema.Integer("p_legislator_id").Required(),
			),
			Handler: passThrough(deps, "recipient_entity_ids_for_legislator"),
		},
		{
			Name:        protocol.ToolNameSearchDonorTotalsWindow,
			Description: "Donor totals/themes with rich filters. Provide query_text for automatic embedding, or pass p_query_vec.",
			Input: schema.New(
				schema.String("query_text").Describe("Natural language theme to rank by similarity."),
				queryVecField().Nullable(),
				schema.Array("p_recipient_entity_ids", schema.Integer("")).Nullable(),
				schema.Integer("p_session_id").Nullable(),
				schema.Integer("p_days_before").Min(0).Default(0),
				schema.Integer("p_days_after").Min(0).Default(0),
				schema.String("p_from").Nullable().Describe("YYYY-MM-DD, used if session_id is null"),
				schema.String("p_to").Nullable().Describe("YYYY-MM-DD, exclusive, used if session_id is null"),
				schema.Array("p_group_numbers", schema.Integer("")).Nullable(),
				schema.Number("p_min_amount").Default(0.0),
				schema.Integer("p_limit").Min(1).Max(1000).Default(200),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				vec, err := resolveVector(ctx, args, deps.Embedder, false)
				if err != nil {
					return tool.Result{}, err
				}
				raw, err := deps.CampaignFinance.Call(ctx, "search_donor_totals_window", map[string]any{
					"p_query_vec":            nullableVector(vec),
					"p_recipient_entity_ids": args.Value("p_recipient_entity_ids"),
					"p_session_id":           args.Value("p_session_id"),
					"p_days_before":          args.Int("p_days_before"),
					"p_days_after":           args.Int("p_days_after"),
					"p_from":                 args.Value("p_from"),
					"p_to":                   args.Value("p_to"),
					"p_group_numbers":        args.Value("p_group_numbers"),
					"p_min_amount":           args.Float("p_min_amount"),
					"p_limit":                args.Int("p_limit"),
				})
				if err != nil {
					return tool.Result{}, err
				}
				return rpcResult(raw)
			},
		},
		{
			Name:        protocol.ToolNameSearchBillsForLegislator,
			Description: "Find bills a legislator voted on, ranked by vectors. Provide query_text for automatic embedding or pass p_query_vec.",
			Input: schema.New(
				schema.String("query_text").Describe("Natural language theme to embed."),
				queryVecField(),
				schema.Integer("p_legislator_id").Required(),
				schema.Integer("p_session_id").Required(),
				schema.String("p_mode").Enum("summary", "full").Default("summary"),
				schema.Integer("p_limit").Min(1).Max(200).Default(50),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				vec, err := resolveVector(ctx, args, deps.Embedder, true)
				if err != nil {
					return tool.Result{}, err
				}
				raw, err := deps.CampaignFinance.Call(ctx, "search_bills_for_legislator", map[string]any{
					"p_query_vec":     vec,
					"p_legislator_id": args.Int("p_legislator_id"),
					"p_session_id":    args.Int("p_session_id"),
					"p_mode":          args.String("p_mode"),
					"p_limit":         args.Int("p_limit"),
				})
				if err != nil {
					return tool.Result{}, err
				}
				return rpcResult(raw)
			},
		},
		{
			Name:        protocol.ToolNameGetBillText,
			Description: "Fetch a bill's stored summary/title and full text snapshot.",
			Input:       schema.New(schema.Integer("p_bill_id").Required()),
			Handler:     passThrough(deps, "get_bill_text"),
		},
		{
			Name:        protocol.ToolNameGetBillVotes,
			Description: "Detailed roll-call rows for a bill.",
			Input:       schema.New(schema.Integer("p_bill_id").Required()),
			Handler:     passThrough(deps, "get_bill_votes"),
		},
		{
			Name:        protocol.ToolNameGetBillVoteRollup,
			Description: "Quick tally of vote positions for a bill.",
			Input:       schema.New(schema.Integer("p_bill_id").Required()),
			Handler:     passThrough(deps, "get_bill_vote_rollup"),
		},
		{
			Name:        protocol.ToolNameSearchRTSByVector,
			Description: "Vector search stakeholder positions. Provide query_text for automatic embedding or pass p_query_vec.",
			Input: schema.New(
				schema.String("query_text"),
				queryVecField(),
				schema.Integer("p_bill_id").Nullable(),
				schema.Integer("p_session_id").Nullable(),
				schema.Integer("p_limit").Min(1).Max(200).Default(50),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				vec, err := resolveVector(ctx, args, deps.Embedder, true)
				if err != nil {
					return tool.Result{}, err
				}
				raw, err := deps.CampaignFinance.Call(ctx, "search_rts_by_vector", map[string]any{
					"p_query_vec":  vec,
					"p_bill_id":    args.Value("p_bill_id"),
					"p_session_id": args.Value("p_session_id"),
					"p_limit":      args.Int("p_limit"),
				})
				if err != nil {
					return tool.Result{}, err
				}
				return rpcResult(raw)
			},
		},
	}
}

// passThrough forwards validated arguments unchanged as the function's
// parameters.
func passThrough(deps Deps, fn string) tool.Handler {
	return func(ctx context.Context, args schema.Args) (tool.Result, error) {
		params := make(map[string]any, len(args))
		for k, v := range args {
			params[k] = v
		}
		raw, err := deps.CampaignFinance.Call(ctx, fn, params)
		if err != nil {
			return tool.Result{}, err
		}
		return rpcResult(raw)
	}
}

func sqlHandler(deps Deps) tool.Handler {
	return func(ctx context.Context, args schema.Args) (tool.Result, error) {
		if deps.SQL == nil {
			return tool.Result{}, &model.ConfigurationMissingError{Component: "SQL", Settings: []string{"DB_HOST", "DB_NAME", "DB_USER", "DB_PASSWORD"}}
		}
		query := args.String("query")
		if !store.IsReadOnly(query) && !(args.Bool("allowWrite") && deps.AllowSQLWrite) {
			return tool.Result{}, &tool.Error{
				Code:    protocol.ErrorCodeWriteNotAllowed,
				Message: "SQL tool is read-only. Only SELECT is allowed unless SQL_TOOL_ALLOW_WRITE=true and allowWrite=true.",
			}
		}
		res, err := deps.SQL.Query(ctx, query, args.Values("params"))
		if err != nil {
			return tool.Result{}, err
		}
		return tool.JSON(res)
	}
}

func nullableVector(vec model.QueryVector) any {
	if vec == nil {
		return nil
	}
	return vec
}
