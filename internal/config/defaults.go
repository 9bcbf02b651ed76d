package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultStoreDriver = "sqlite"
	DefaultStoreDSN    = "opsinsight.db"
	DefaultMaxRows     = 10_000

	DefaultBigQueryLocation       = "US"
	DefaultMaxQueryBytesProcessed = 10_000_000_000 // 10GB

	DefaultElasticsearchMaxRetries = 3
	DefaultKnowledgeResults        = 5

	DefaultModel          = "claude-sonnet-4-6"
	DefaultModelMaxTokens = 4096
	DefaultModelTimeout   = 120 // seconds per attempt
	DefaultModelRetries   = 2
	DefaultModelRetryWait = 2 // seconds

	DefaultPreviewRows    = 10
	DefaultPreviewChars   = 2000
	DefaultResultRowCap   = 50
	DefaultChartMarker    = "Chart"
	DefaultSummaryHeading = "Summary"
	DefaultSchemaCacheTTL = 300 // seconds

	DefaultMaxPromptLength = 2000

	DefaultCORSMaxAge = 300
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

var DefaultSensitiveColumns = []string{
	"patient_name", "patient", "id_card", "id_number",
	"phone", "mobile", "email", "address",
	"password", "secret", "token", "api_key",
}

var DefaultPIIKeywords = []string{
	"id card", "id number", "身份证", "phone number", "手机号",
	"home address", "家庭住址", "password",
	"ssn", "social security", "credit card", "bank account",
}

var DefaultKnowledgeIndices = []string{"kb-*"}
