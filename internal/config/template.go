package config

// DefaultYAML is the template written by "wpmcp config init". Placeholders
// like ${OPENAI_API_KEY} are resolved from the environment at load time.
const DefaultYAML = `server:
  listen: "127.0.0.1:8087"
  mcp_path: "/mcp"
  public: false
  session_inactivity_timeout: 24h
  session_max_lifetime: 168h
  maintenance_schedule: "@every 1m"

tools:
  # search | direct | legacy
  profile: search
  timeout: 60s

campaign_finance:
  url: ""
  key: ${CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY}

primary:
  url: ""
  key: ${SUPABASE_PRIMARY_SERVICE_ROLE_KEY}

embedding:
  # openai | gemini
  provider: openai
  model: text-embedding-3-small
  openai_api_key: ${OPENAI_API_KEY}
  gemini_api_key: ${GEMINI_API_KEY}
  timeout: 30s

database:
  # pgx | sqlite
  driver: pgx
  host: ""
  port: 5432
  name: ""
  user: ""
  password: ${DB_PASSWORD}
  max_open_conns: 5
  idle_timeout: 30s
  acquire_timeout: 5s

sql:
  allow_write: false

security:
  allowed_origins:
    - "http://localhost"
    - "http://127.0.0.1"
  trusted_proxies:
    - "127.0.0.1/32"
    - "::1/128"
  rate_limit_rps: 60
  rate_limit_burst: 20

log:
  level: info
  format: text
`
