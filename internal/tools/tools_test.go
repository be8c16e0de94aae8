package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpmcp/internal/gateway"
	"wpmcp/internal/model"
	"wpmcp/internal/protocol"
	"wpmcp/internal/store"
	"wpmcp/internal/tool"
)

type rpcCall struct {
	fn     string
	params map[string]any
}

type selectCall struct {
	table string
	query gateway.Query
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []rpcCall
	selects  []selectCall
	rpc      map[string]string
	tables   map[string]string
	failures map[string]error
}

func (f *fakeGateway) Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rpcCall{fn: fn, params: params})
	f.mu.Unlock()
	if err := f.failures[fn]; err != nil {
		return nil, err
	}
	if body, ok := f.rpc[fn]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage("[]"), nil
}

func (f *fakeGateway) Select(ctx context.Context, table string, q gateway.Query) (json.RawMessage, error) {
	f.mu.Lock()
	f.selects = append(f.selects, selectCall{table: table, query: q})
	f.mu.Unlock()
	if err := f.failures[table]; err != nil {
		return nil, err
	}
	if body, ok := f.tables[table]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage("[]"), nil
}

func (f *fakeGateway) callsTo(fn string) []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcCall
	for _, c := range f.calls {
		if c.fn == fn {
			out = append(out, c)
		}
	}
	return out
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (model.QueryVector, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	vec := make(model.QueryVector, model.EmbeddingDimensions)
	vec[1] = 0.5
	return vec, nil
}

func testDeps(cf, primary *fakeGateway, emb *fakeEmbedder) Deps {
	deps := Deps{
		Embedder: emb,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if cf != nil {
		deps.CampaignFinance = cf
	}
	if primary != nil {
		deps.Primary = primary
	}
	return deps
}

func dispatcher(t *testing.T, profile string, deps Deps) *tool.Dispatcher {
	t.Helper()
	reg, err := Build(profile, deps)
	require.NoError(t, err)
	return tool.NewDispatcher(reg, tool.WithLogger(deps.Logger))
}

func decodeArgs(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestBuild_Profiles(t *testing.T) {
	deps := testDeps(&fakeGateway{}, &fakeGateway{}, &fakeEmbedder{})

	reg, err := Build("", deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "fetch"}, reg.Names())

	reg, err = Build(ProfileDirect, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"search", "fetch", "sql", "session_window", "find_donors_by_name",
		"recipient_entity_ids_for_legislator", "search_donor_totals_window",
		"search_bills_for_legislator", "get_bill_text", "get_bill_votes",
		"get_bill_vote_rollup", "search_rts_by_vector",
	}, reg.Names())

	reg, err = Build(ProfileLegacy, deps)
	require.NoError(t, err)
	legacy := reg.Names()
	assert.Len(t, legacy, 22)
	assert.Equal(t, "db-primary-ping", legacy[0])
	assert.Equal(t, []string{"search", "fetch"}, legacy[len(legacy)-2:])

	_, err = Build("everything", deps)
	assert.ErrorContains(t, err, "unknown tool profile")
}

func TestDirect_VectorRequiredWithoutTextOrVector(t *testing.T) {
	cf := &fakeGateway{}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, &fakeEmbedder{}))

	for _, name := range []string{protocol.ToolNameSearchBillsForLegislator, protocol.ToolNameSearchRTSByVector} {
		args := map[string]any{"p_legislator_id": 7, "p_session_id": 57}
		if name == protocol.ToolNameSearchRTSByVector {
			args = map[string]any{}
		}
		_, err := d.Invoke(context.Background(), name, args)
		var invErr *tool.InvocationError
		require.ErrorAs(t, err, &invErr, name)
		assert.Equal(t, tool.KindInvalidArguments, invErr.Kind)
		assert.Contains(t, invErr.Message, "either query_text or p_query_vec is required")
	}
	assert.Empty(t, cf.calls)
}

func TestDirect_DonorWindowSendsCompletePayload(t *testing.T) {
	cf := &fakeGateway{rpc: map[string]string{"search_donor_totals_window": `[{"entity_name":"AEA"}]`}}
	emb := &fakeEmbedder{}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, emb))

	res, err := d.Invoke(context.Background(), protocol.ToolNameSearchDonorTotalsWindow,
		decodeArgs(t, `{"query_text":"teachers","p_recipient_entity_ids":[12345,23456],"p_session_id":57,"p_days_before":100}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"entity_name":"AEA"}]`, res.Content[0].Text)
	assert.Equal(t, []string{"teachers"}, emb.texts)

	calls := cf.callsTo("search_donor_totals_window")
	require.Len(t, calls, 1)
	p := calls[0].params
	assert.Len(t, p["p_query_vec"], model.EmbeddingDimensions)
	assert.Equal(t, []int{12345, 23456}, p["p_recipient_entity_ids"])
	assert.Equal(t, 57, p["p_session_id"])
	assert.Equal(t, 100, p["p_days_before"])
	assert.Equal(t, 0, p["p_days_after"])
	assert.Nil(t, p["p_from"])
	assert.Nil(t, p["p_group_numbers"])
	assert.Equal(t, 0.0, p["p_min_amount"])
	assert.Equal(t, 200, p["p_limit"])
}

func TestDirect_SuppliedVectorSkipsEmbedding(t *testing.T) {
	cf := &fakeGateway{}
	emb := &fakeEmbedder{}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, emb))

	vec := make([]any, model.EmbeddingDimensions)
	for i := range vec {
		vec[i] = 0.01
	}
	_, err := d.Invoke(context.Background(), protocol.ToolNameSearchRTSByVector, map[string]any{
		"query_text":  "ignored",
		"p_query_vec": vec,
		"p_bill_id":   nil,
	})
	require.NoError(t, err)
	assert.Empty(t, emb.texts)

	calls := cf.callsTo("search_rts_by_vector")
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].params["p_bill_id"])
	assert.Equal(t, 50, calls[0].params["p_limit"])
}

func TestDirect_WrongVectorLengthIsRejected(t *testing.T) {
	cf := &fakeGateway{}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, &fakeEmbedder{}))

	_, err := d.Invoke(context.Background(), protocol.ToolNameSearchBillsForLegislator, map[string]any{
		"p_query_vec":     []any{0.1, 0.2},
		"p_legislator_id": 7,
		"p_session_id":    57,
	})
	var invErr *tool.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeInvalidArguments, invErr.Code)
	assert.Empty(t, cf.calls)
}

func TestDirect_PassThroughOmitsAbsentOptionals(t *testing.T) {
	cf := &fakeGateway{}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, &fakeEmbedder{}))

	_, err := d.Invoke(context.Background(), protocol.ToolNameFindDonorsByName, map[string]any{"p_name": "Smith"})
	require.NoError(t, err)

	calls := cf.callsTo("find_donors_by_name")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"p_name": "Smith"}, calls[0].params)
}

func TestDirect_UpstreamFailureIsHardError(t *testing.T) {
	cf := &fakeGateway{failures: map[string]error{
		"get_bill_text": &model.UpstreamError{Service: "Supabase RPC", Operation: "get_bill_text", StatusCode: 404, Status: "Not Found"},
	}}
	d := dispatcher(t, ProfileDirect, testDeps(cf, nil, &fakeEmbedder{}))

	_, err := d.Invoke(context.Background(), protocol.ToolNameGetBillText, map[string]any{"p_bill_id": 9})
	var invErr *tool.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeUpstreamCallFailure, invErr.Code)
	assert.Equal(t, "Supabase RPC get_bill_text failed: 404 Not Found", invErr.Message)
}

func TestSQL_ReadOnlyUnlessBothFlagsAllowWrites(t *testing.T) {
	ctx := context.Background()
	pool := store.NewPool(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "sql.sqlite")})
	t.Cleanup(func() { _ = pool.Close() })

	deps := testDeps(&fakeGateway{}, nil, &fakeEmbedder{})
	deps.SQL = pool
	d := dispatcher(t, ProfileDirect, deps)

	_, err := d.Invoke(ctx, protocol.ToolNameSQL, map[string]any{"query": "CREATE TABLE t (id INTEGER)", "allowWrite": true})
	var invErr *tool.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeWriteNotAllowed, invErr.Code)

	deps.AllowSQLWrite = true
	d = dispatcher(t, ProfileDirect, deps)
	_, err = d.Invoke(ctx, protocol.ToolNameSQL, map[string]any{"query": "CREATE TABLE t (id INTEGER)", "allowWrite": true})
	require.NoError(t, err)
	_, err = d.Invoke(ctx, protocol.ToolNameSQL, map[string]any{"query": "INSERT INTO t(id) VALUES (?)", "params": []any{41}, "allowWrite": true})
	require.NoError(t, err)

	res, err := d.Invoke(ctx, protocol.ToolNameSQL, map[string]any{"query": "SELECT id FROM t"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rowCount":1,"columns":["id"],"rows":[{"id":41}]}`, res.Content[0].Text)
}

func TestSQL_WithoutPoolIsConfigurationMissing(t *testing.T) {
	d := dispatcher(t, ProfileDirect, testDeps(&fakeGateway{}, nil, &fakeEmbedder{}))

	_, err := d.Invoke(context.Background(), protocol.ToolNameSQL, map[string]any{"query": "SELECT 1"})
	var invErr *tool.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeConfigurationMissing, invErr.Code)
}

func TestLegacy_FailuresAreSoftText(t *testing.T) {
	cf := &fakeGateway{failures: map[string]error{
		"session_window": errors.New("Supabase RPC session_window failed: 500 Internal Server Error"),
	}}
	d := dispatcher(t, ProfileLegacy, testDeps(cf, &fakeGateway{}, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "session-window", map[string]any{"session_id": 57})
	require.NoError(t, err)
	assert.Equal(t, "Error: Supabase RPC session_window failed: 500 Internal Server Error", res.Content[0].Text)
	assert.True(t, res.Soft)
	assert.False(t, res.IsError)

	calls := cf.callsTo("session_window")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"p_session_id": 57, "p_days_before": 0, "p_days_after": 0}, calls[0].params)
}

func TestLegacy_EmbeddingFailureIsSoft(t *testing.T) {
	cf := &fakeGateway{}
	d := dispatcher(t, ProfileLegacy, testDeps(cf, &fakeGateway{}, &fakeEmbedder{err: errors.New("down")}))

	res, err := d.Invoke(context.Background(), "search-rts-by-vector", map[string]any{"query_text": "schools"})
	require.NoError(t, err)
	assert.Equal(t, "Error: Could not create embedding vector", res.Content[0].Text)
	assert.True(t, res.Soft)
	assert.Empty(t, cf.calls)

	// Donor totals proceed without ranking.
	_, err = d.Invoke(context.Background(), "search-donor-totals-window", map[string]any{"query_text": "schools"})
	require.NoError(t, err)
	calls := cf.callsTo("search_donor_totals_window")
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].params["p_query_vec"])
	assert.Equal(t, 200, calls[0].params["p_limit"])
}

func TestLegacy_ResolveLegislatorByName(t *testing.T) {
	cf := &fakeGateway{
		tables: map[string]string{"legislators": `[{"legislator_id":7,"full_name":"Jane Smith","chamber":"House"},{"legislator_id":8,"full_name":"Joe Smithers","chamber":"Senate"}]`},
		rpc:    map[string]string{"recipient_entity_ids_for_legislator": `[{"entity_id":100},{"entity_id":101}]`},
	}
	d := dispatcher(t, ProfileLegacy, testDeps(cf, &fakeGateway{}, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "resolve-legislator-by-name", map[string]any{"name": "Smith"})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"legislator_id":7,"full_name":"Jane Smith","chamber":"House","entity_ids":[100,101]},
		{"legislator_id":8,"full_name":"Joe Smithers","chamber":"Senate","entity_ids":[100,101]}
	]`, res.Content[0].Text)

	require.Len(t, cf.selects, 1)
	assert.Equal(t, "legislators", cf.selects[0].table)
	assert.Equal(t, []gateway.Filter{gateway.ILike("full_name", "*Smith*")}, cf.selects[0].query.Filters)
	assert.Equal(t, 10, cf.selects[0].query.Limit)
}

func TestLegacy_ResolveLegislatorNoMatches(t *testing.T) {
	d := dispatcher(t, ProfileLegacy, testDeps(&fakeGateway{}, &fakeGateway{}, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "resolve-legislator-by-name", map[string]any{"name": "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, "No legislators found matching that name", res.Content[0].Text)
	assert.False(t, res.Soft)
}

func TestLegacy_RunSQLQueryGuardsStatements(t *testing.T) {
	primary := &fakeGateway{rpc: map[string]string{"execute_readonly_query": `[{"n":1}]`}}
	d := dispatcher(t, ProfileLegacy, testDeps(&fakeGateway{}, primary, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "run-sql-query", map[string]any{"query": "DROP TABLE v2_events"})
	require.NoError(t, err)
	assert.Equal(t, "Only SELECT/WITH queries are allowed", res.Content[0].Text)
	assert.True(t, res.Soft)
	assert.Empty(t, primary.calls)

	res, err = d.Invoke(context.Background(), "run-sql-query", map[string]any{"query": "with x as (select 1) select * from x"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"n":1}]`, res.Content[0].Text)
	assert.False(t, res.Soft)
	require.Len(t, primary.calls, 1)
	assert.Equal(t, []any{}, primary.calls[0].params["query_params"])
}

func TestLegacy_RunSQLQueryErrorIsSoft(t *testing.T) {
	primary := &fakeGateway{failures: map[string]error{"execute_readonly_query": errors.New("relation \"nope\" does not exist")}}
	d := dispatcher(t, ProfileLegacy, testDeps(&fakeGateway{}, primary, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "run-sql-query", map[string]any{"query": "select * from nope"})
	require.NoError(t, err)
	assert.Equal(t, `SQL error: relation "nope" does not exist`, res.Content[0].Text)
	assert.True(t, res.Soft)
}

func TestLegacy_PingReportsSample(t *testing.T) {
	primary := &fakeGateway{tables: map[string]string{"pg_tables": `[ {"tablename": "v2_events"} ]`}}
	cf := &fakeGateway{failures: map[string]error{"pg_tables": errors.New("permission denied")}}
	d := dispatcher(t, ProfileLegacy, testDeps(cf, primary, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "db-primary-ping", nil)
	require.NoError(t, err)
	assert.Equal(t, `Primary DB ok. Sample: [{"tablename":"v2_events"}]`, res.Content[0].Text)
	assert.False(t, res.Soft)

	res, err = d.Invoke(context.Background(), "db-secondary-ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "Secondary DB error: permission denied", res.Content[0].Text)
	assert.True(t, res.Soft)
}

func TestLegacy_SchoolsInvolved(t *testing.T) {
	primary := &fakeGateway{tables: map[string]string{
		"v2_events": `[
			{"id": 1, "event_name": "Board meeting", "event_date": "2025-02-01", "state": "AZ", "category_tags": ["School Board", "School:Mesa_High"]},
			{"id": 2, "event_name": "Rally", "event_date": "2025-01-15", "state": "NM", "category_tags": ["Education", "School:Mesa_High", "School:Tempe_Prep"]},
			{"id": 3, "event_name": "Forum", "event_date": "2025-01-10", "state": "AZ", "category_tags": ["College"]}
		]`,
		"dynamic_slugs": `[{"full_slug": "School:Mesa_High", "label": "Mesa High", "description": "Public"}]`,
	}}
	d := dispatcher(t, ProfileLegacy, testDeps(&fakeGateway{}, primary, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), "get-schools-involved", map[string]any{
		"date_range": map[string]any{"start_date": "2025-01-01"},
	})
	require.NoError(t, err)

	var out struct {
		Summary struct {
			TotalEducationEvents   int            `json:"total_education_events"`
			UniqueSchoolsInEvents  int            `json:"unique_schools_in_events"`
			TotalSchoolsInDatabase int            `json:"total_schools_in_database"`
			DateRange              map[string]any `json:"date_range"`
		} `json:"summary"`
		Schools []struct {
			Tag        string   `json:"tag"`
			Name       string   `json:"name"`
			EventCount int      `json:"event_count"`
			States     []string `json:"states"`
		} `json:"schools_with_events"`
		Events []any `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, 3, out.Summary.TotalEducationEvents)
	assert.Equal(t, 2, out.Summary.UniqueSchoolsInEvents)
	assert.Equal(t, 1, out.Summary.TotalSchoolsInDatabase)
	assert.Equal(t, "2025-01-01", out.Summary.DateRange["start_date"])
	require.Len(t, out.Schools, 2)
	assert.Equal(t, "Mesa High", out.Schools[0].Name)
	assert.Equal(t, 2, out.Schools[0].EventCount)
	assert.Equal(t, []string{"AZ", "NM"}, out.Schools[0].States)
	assert.Nil(t, out.Events)

	require.NotEmpty(t, primary.selects)
	q := primary.selects[0].query
	assert.Equal(t, 500, q.Limit)
	assert.True(t, strings.Contains(q.Or, `category_tags.cs.["School Board"]`), q.Or)
	assert.Equal(t, []gateway.Filter{gateway.Gte("event_date", "2025-01-01")}, q.Filters)
}

func TestSearchThenFetchRoundTrip(t *testing.T) {
	cf := &fakeGateway{rpc: map[string]string{
		"search_donor_totals_window": `[{"transaction_entity_id": 501, "entity_name": "Arizona Education Association", "total_to_recipient": 1200, "donation_count": 3}]`,
	}}
	d := dispatcher(t, ProfileSearch, testDeps(cf, nil, &fakeEmbedder{}))

	res, err := d.Invoke(context.Background(), protocol.ToolNameSearch, map[string]any{
		"query":   "education",
		"filters": map[string]any{"types": []any{"donor"}},
	})
	require.NoError(t, err)

	var found struct {
		Results []model.SearchResult `json:"results"`
		Errors  []string             `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &found))
	require.Empty(t, found.Errors)
	require.Len(t, found.Results, 1)
	assert.True(t, strings.HasPrefix(found.Results[0].ID, "donor:"))

	res, err = d.Invoke(context.Background(), protocol.ToolNameFetch, map[string]any{"id": found.Results[0].ID})
	require.NoError(t, err)
	var detail struct {
		Type   string          `json:"type"`
		Record json.RawMessage `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &detail))
	assert.Equal(t, "donor", detail.Type)
	assert.JSONEq(t, `{"transaction_entity_id": 501, "entity_name": "Arizona Education Association", "total_to_recipient": 1200, "donation_count": 3}`, string(detail.Record))
}

func TestFetch_ErrorsAreClassified(t *testing.T) {
	d := dispatcher(t, ProfileSearch, testDeps(&fakeGateway{}, nil, &fakeEmbedder{}))

	_, err := d.Invoke(context.Background(), protocol.ToolNameFetch, map[string]any{"id": "garbage"})
	var invErr *tool.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeInvalidResultID, invErr.Code)

	_, err = d.Invoke(context.Background(), protocol.ToolNameSearch, map[string]any{
		"filters": map[string]any{"types": []any{"committee"}},
	})
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, protocol.ErrorCodeInvalidArguments, invErr.Code)
}
