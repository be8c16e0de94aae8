package protocol

const (
	ServerName    = "woke-palantir-mcp"
	ServerVersion = "1.0.0"
)

// Tools registered by every profile.
const (
	ToolNameSearch = "search"
	ToolNameFetch  = "fetch"
)

// Direct-profile tools map one-to-one onto database functions.
const (
	ToolNameSQL                             = "sql"
	ToolNameSessionWindow                   = "session_window"
	ToolNameFindDonorsByName                = "find_donors_by_name"
	ToolNameRecipientEntityIDsForLegislator = "recipient_entity_ids_for_legislator"
	ToolNameSearchDonorTotalsWindow         = "search_donor_totals_window"
	ToolNameSearchBillsForLegislator        = "search_bills_for_legislator"
	ToolNameGetBillText                     = "get_bill_text"
	ToolNameGetBillVotes                    = "get_bill_votes"
	ToolNameGetBillVoteRollup               = "get_bill_vote_rollup"
	ToolNameSearchRTSByVector               = "search_rts_by_vector"
)

const (
	RPCMethodInitialize               = "initialize"
	RPCMethodNotificationsInitialized = "notifications/initialized"
	RPCMethodPing                     = "ping"
	RPCMethodToolsList                = "tools/list"
	RPCMethodToolsCall                = "tools/call"
	RPCMethodResourcesList            = "resources/list"
	RPCMethodResourcesRead            = "resources/read"
)

// Canonical error codes surfaced in tool results and JSON-RPC error data.
const (
	ErrorCodeToolNotFound         = "TOOL_NOT_FOUND"
	ErrorCodeInvalidArguments     = "INVALID_ARGUMENTS"
	ErrorCodeTimeout              = "TIMEOUT"
	ErrorCodeHandlerFault         = "HANDLER_FAULT"
	ErrorCodeConfigurationMissing = "CONFIGURATION_MISSING"
	ErrorCodeUpstreamCallFailure  = "UPSTREAM_CALL_FAILURE"
	ErrorCodeInvalidResultID      = "INVALID_RESULT_ID"
	ErrorCodeUnknownResultKind    = "UNKNOWN_RESULT_KIND"
	ErrorCodeWriteNotAllowed      = "WRITE_NOT_ALLOWED"

	ErrorCodeMissingField     = "MISSING_FIELD"
	ErrorCodeInvalidField     = "INVALID_FIELD"
	ErrorCodeMethodNotFound   = "METHOD_NOT_FOUND"
	ErrorCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrorCodeOriginNotAllowed = "ORIGIN_NOT_ALLOWED"
	ErrorCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
)

const (
	DefaultListenAddr = "127.0.0.1:8087"
	DefaultMCPPath    = "/mcp"

	ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"

	MCPSessionHeader         = "MCP-Session-Id"
	MCPProtocolVersionHeader = "MCP-Protocol-Version"
	SessionExpiredHeader     = "X-MCP-Session-Expired"
)
