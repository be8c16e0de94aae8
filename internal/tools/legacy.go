package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"wpmcp/internal/gateway"
	"wpmcp/internal/schema"
	"wpmcp/internal/tool"
)

// legacyTools is the hyphenated, best-effort surface. Downstream failures
// come back as "Error: ..." text rather than failed invocations.
func legacyTools(deps Deps) []tool.Definition {
	cf := deps.CampaignFinance
	return []tool.Definition{
		{
			Name:        "db-primary-ping",
			Description: "Run a simple query against the primary Supabase database",
			Input:       schema.New(),
			Handler:     pingHandler(deps.Primary, "Primary"),
		},
		{
			Name:        "db-secondary-ping",
			Description: "Run a simple query against the secondary Supabase database",
			Input:       schema.New(),
			Handler:     pingHandler(cf, "Secondary"),
		},
		{
			Name:        "run-sql-query",
			Description: "Execute a read-only SQL query on the primary database",
			Input: schema.New(
				schema.String("query").Required().Describe("SQL query to execute (SELECT/CTE only)"),
				schema.Array("parameters", schema.Any("").Nullable()),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				query := args.String("query")
				normalized := strings.ToUpper(strings.TrimSpace(query))
				if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
					return tool.SoftText("Only SELECT/WITH queries are allowed"), nil
				}
				params := args.Values("parameters")
				if params == nil {
					params = []any{}
				}
				raw, err := call(ctx, deps.Primary, "execute_readonly_query", map[string]any{
					"query_text":   query,
					"query_params": params,
				})
				if err != nil {
					return tool.SoftText("SQL error: " + err.Error()), nil
				}
				return rpcResult(raw)
			},
		},
		{
			Name:        "get-filter-options",
			Description: "Get available filter options from Supabase RPC",
			Input:       schema.New(),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softRPC(ctx, deps.Primary, "get_filter_options_optimized", map[string]any{})
			},
		},
		{
			Name:        "get-schools-involved",
			Description: "List schools involved in education-related events",
			Input: schema.New(
				schema.Object("date_range",
					schema.String("start_date"),
					schema.String("end_date"),
				),
				schema.Boolean("include_events"),
			),
			Handler: schoolsHandler(deps),
		},
		{
			Name:        "session-window",
			Description: "Compute date window around a legislative session",
			Input: schema.New(
				schema.Integer("session_id").Required().Describe("Legislative session ID"),
				schema.Integer("days_before").Default(0),
				schema.Integer("days_after").Default(0),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softRPC(ctx, cf, "session_window", map[string]any{
					"p_session_id":  args.Int("session_id"),
					"p_days_before": args.Int("days_before"),
					"p_days_after":  args.Int("days_after"),
				})
			},
		},
		{
			Name:        "find-donors-by-name",
			Description: "Fuzzy search for donors by name",
			Input: schema.New(
				schema.String("name").Required().Describe("Donor name to search for"),
				schema.Integer("limit").Default(25),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softRPC(ctx, cf, "find_donors_by_name", map[string]any{
					"p_name":  args.String("name"),
					"p_limit": args.Int("limit"),
				})
			},
		},
		{
			Name:        "recipient-entity-ids-for-legislator",
			Description: "Get recipient entity IDs for a legislator",
			Input: schema.New(
				schema.Integer("legislator_id").Required().Describe("Legislator ID"),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softRPC(ctx, cf, "recipient_entity_ids_for_legislator", map[string]any{
					"p_legislator_id": args.Int("legislator_id"),
				})
			},
		},
		{
			Name:        "search-donor-totals-window",
			Description: "Search donor totals within a date/session window with optional vector filtering",
			Input: schema.New(
				schema.String("query_text").Describe("Text to embed for vector search (optional)"),
				schema.Array("recipient_entity_ids", schema.Integer("")).Describe("Target recipient entity IDs"),
				schema.Integer("session_id").Describe("Session ID for window calculation"),
				schema.Integer("days_before").Default(0),
				schema.Integer("days_after").Default(0),
				schema.String("from_date").Describe("Start date (YYYY-MM-DD)"),
				schema.String("to_date").Describe("End date (YYYY-MM-DD, exclusive)"),
				schema.Array("group_numbers", schema.Integer("")).Describe("Transaction group numbers to filter"),
				schema.Number("min_amount").Default(0.0),
				schema.Integer("limit").Default(200),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				var vec any
				if text := strings.TrimSpace(args.String("query_text")); text != "" {
					// Ranking is optional here, so a failed embedding only drops it.
					v, err := embedText(ctx, deps, text)
					if err != nil {
						deps.logger().Warn("embedding skipped", "tool", "search-donor-totals-window", "error", err)
					} else {
						vec = v
					}
				}
				return softRPC(ctx, cf, "search_donor_totals_window", map[string]any{
					"p_query_vec":            vec,
					"p_recipient_entity_ids": intsOrNil(args.Ints("recipient_entity_ids")),
					"p_session_id":           positiveOrNil(args.Int("session_id")),
					"p_days_before":          args.Int("days_before"),
					"p_days_after":           args.Int("days_after"),
					"p_from":                 stringOrNil(args.String("from_date")),
					"p_to":                   stringOrNil(args.String("to_date")),
					"p_group_numbers":        intsOrNil(args.Ints("group_numbers")),
					"p_min_amount":           args.Float("min_amount"),
					"p_limit":                defaultInt(args.Int("limit"), 200),
				})
			},
		},
		{
			Name:        "search-bills-for-legislator",
			Description: "Find bills a legislator voted on, ranked by vector similarity",
			Input: schema.New(
				schema.String("query_text").Required().Describe("Text to embed for bill search"),
				schema.Integer("legislator_id").Required().Describe("Legislator ID"),
				schema.Integer("session_id").Required().Describe("Session ID"),
				schema.String("mode").Enum("summary", "full").Default("summary"),
				schema.Integer("limit").Default(50),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				vec, err := embedText(ctx, deps, args.String("query_text"))
				if err != nil {
					return tool.SoftError("Could not create embedding vector"), nil
				}
				return softRPC(ctx, cf, "search_bills_for_legislator", map[string]any{
					"p_query_vec":     vec,
					"p_legislator_id": args.Int("legislator_id"),
					"p_session_id":    args.Int("session_id"),
					"p_mode":          args.String("mode"),
					"p_limit":         args.Int("limit"),
				})
			},
		},
		billTool(cf, "get-bill-text", "Get bill summary and full text", "get_bill_text"),
		billTool(cf, "get-bill-votes", "Get detailed voting records for a bill", "get_bill_votes"),
		billTool(cf, "get-bill-vote-rollup", "Get vote tally summary for a bill", "get_bill_vote_rollup"),
		{
			Name:        "search-rts-by-vector",
			Description: "Search Request to Speak positions by vector similarity",
			Input: schema.New(
				schema.String("query_text").Required().Describe("Text to embed for RTS search"),
				schema.Integer("bill_id").Describe("Filter by specific bill ID"),
				schema.Integer("session_id").Describe("Filter by session ID"),
				schema.Integer("limit").Default(50),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				vec, err := embedText(ctx, deps, args.String("query_text"))
				if err != nil {
					return tool.SoftError("Could not create embedding vector"), nil
				}
				return softRPC(ctx, cf, "search_rts_by_vector", map[string]any{
					"p_query_vec":  vec,
					"p_bill_id":    positiveOrNil(args.Int("bill_id")),
					"p_session_id": positiveOrNil(args.Int("session_id")),
					"p_limit":      args.Int("limit"),
				})
			},
		},
		{
			Name:        "resolve-legislator-by-name",
			Description: "Resolve legislator name to legislator_id and entity_ids",
			Input: schema.New(
				schema.String("name").Required().Describe("Legislator name to search for"),
			),
			Handler: resolveLegislatorHandler(cf),
		},
		{
			Name:        "get-session-info",
			Description: "Get information about legislative sessions",
			Input: schema.New(
				schema.Integer("session_id").Describe("Specific session ID"),
				schema.Integer("limit").Default(20),
			),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				q := gateway.Query{}
				if id := args.Int("session_id"); id != 0 {
					q.Filters = []gateway.Filter{gateway.Eq("session_id", id)}
				} else {
					q.Order = []gateway.Order{{Column: "session_id", Descending: true}}
					q.Limit = args.Int("limit")
				}
				return softSelect(ctx, cf, "sessions", q)
			},
		},
		{
			Name:        "get-bill-documents",
			Description: "Get bill documents and their processing status",
			Input:       schema.New(schema.Integer("bill_id").Required().Describe("Bill ID")),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softSelect(ctx, cf, "bill_documents", gateway.Query{
					Filters: []gateway.Filter{gateway.Eq("bill_id", args.Int("bill_id"))},
					Order:   []gateway.Order{{Column: "created_at", Descending: true}},
				})
			},
		},
		{
			Name:        "get-bill-sponsors",
			Description: "Get sponsors for a bill",
			Input:       schema.New(schema.Integer("bill_id").Required().Describe("Bill ID")),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softSelect(ctx, cf, "bill_sponsors", gateway.Query{
					Columns: "*,legislators!bill_sponsors_legislator_id_fkey(legislator_id,full_name,party,body,district)",
					Filters: []gateway.Filter{gateway.Eq("bill_id", args.Int("bill_id"))},
					Order:   []gateway.Order{{Column: "display_order"}},
				})
			},
		},
		{
			Name:        "get-transaction-groups",
			Description: "Get transaction group categories",
			Input:       schema.New(),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softSelect(ctx, cf, "cf_transaction_groups", gateway.Query{
					Order: []gateway.Order{{Column: "group_number"}},
				})
			},
		},
		{
			Name:        "get-entity-details",
			Description: "Get detailed information about a campaign finance entity",
			Input:       schema.New(schema.Integer("entity_id").Required().Describe("Entity ID")),
			Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
				return softSelect(ctx, cf, "cf_entities", gateway.Query{
					Columns: "*,cf_entity_records!cf_entities_entity_id_fkey(*)",
					Filters: []gateway.Filter{gateway.Eq("entity_id", args.Int("entity_id"))},
					Single:  true,
				})
			},
		},
	}
}

func billTool(gw Gateway, name, description, fn string) tool.Definition {
	return tool.Definition{
		Name:        name,
		Description: description,
		Input:       schema.New(schema.Integer("bill_id").Required().Describe("Bill ID")),
		Handler: func(ctx context.Context, args schema.Args) (tool.Result, error) {
			return softRPC(ctx, gw, fn, map[string]any{"p_bill_id": args.Int("bill_id")})
		},
	}
}

func pingHandler(gw Gateway, label string) tool.Handler {
	return func(ctx context.Context, args schema.Args) (tool.Result, error) {
		raw, err := selectFrom(ctx, gw, "pg_tables", gateway.Query{Columns: "tablename", Limit: 1})
		if err != nil {
			return tool.SoftText(fmt.Sprintf("%s DB error: %v", label, err)), nil
		}
		return tool.Text(fmt.Sprintf("%s DB ok. Sample: %s", label, compact(raw))), nil
	}
}

type legislatorMatch struct {
	LegislatorID int64   `json:"legislator_id"`
	FullName     string  `json:"full_name"`
	Chamber      string  `json:"chamber"`
	EntityIDs    []int64 `json:"entity_ids"`
}

func resolveLegislatorHandler(gw Gateway) tool.Handler {
	return func(ctx context.Context, args schema.Args) (tool.Result, error) {
		raw, err := selectFrom(ctx, gw, "legislators", gateway.Query{
			Columns: "legislator_id,full_name,chamber",
			Filters: []gateway.Filter{gateway.ILike("full_name", "*"+args.String("name")+"*")},
			Limit:   10,
		})
		if err != nil {
			return tool.SoftError("Error searching legislators: %v", err), nil
		}
		var matches []legislatorMatch
		if err := json.Unmarshal(raw, &matches); err != nil {
			return tool.SoftError("Error searching legislators: unexpected response: %v", err), nil
		}
		if len(matches) == 0 {
			return tool.Text("No legislators found matching that name"), nil
		}

		// Entity lookups are independent; a failed one yields no ids.
		var g errgroup.Group
		for i := range matches {
			g.Go(func() error {
				matches[i].EntityIDs = recipientEntityIDs(ctx, gw, matches[i].LegislatorID)
				return nil
			})
		}
		_ = g.Wait()
		return tool.JSON(matches)
	}
}

func recipientEntityIDs(ctx context.Context, gw Gateway, legislatorID int64) []int64 {
	ids := []int64{}
	raw, err := call(ctx, gw, "recipient_entity_ids_for_legislator", map[string]any{"p_legislator_id": legislatorID})
	if err != nil {
		return ids
	}
	var rows []struct {
		EntityID *int64 `json:"entity_id"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return ids
	}
	for _, row := range rows {
		if row.EntityID != nil {
			ids = append(ids, *row.EntityID)
		}
	}
	return ids
}

func embedText(ctx context.Context, deps Deps, text string) (any, error) {
	args := schema.Args{"query_text": text}
	vec, err := resolveVector(ctx, args, deps.Embedder, true)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func softRPC(ctx context.Context, gw Gateway, fn string, params map[string]any) (tool.Result, error) {
	raw, err := call(ctx, gw, fn, params)
	if err != nil {
		return tool.SoftError("%v", err), nil
	}
	return rpcResult(raw)
}

func softSelect(ctx context.Context, gw Gateway, table string, q gateway.Query) (tool.Result, error) {
	raw, err := selectFrom(ctx, gw, table, q)
	if err != nil {
		return tool.SoftError("%v", err), nil
	}
	return rpcResult(raw)
}

func call(ctx context.Context, gw Gateway, fn string, params map[string]any) (json.RawMessage, error) {
	if gw == nil {
		return nil, fmt.Errorf("database gateway for %s is not configured", fn)
	}
	return gw.Call(ctx, fn, params)
}

func selectFrom(ctx context.Context, gw Gateway, table string, q gateway.Query) (json.RawMessage, error) {
	if gw == nil {
		return nil, fmt.Errorf("database gateway for %s is not configured", table)
	}
	return gw.Select(ctx, table, q)
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func intsOrNil(v []int) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func positiveOrNil(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
