package constants

// Static route constants
const (
	APIRoute      = "/api"
	APIV1Route    = "/v1"
	HealthRoute   = "/healthz"
	MetricsRoute  = "/metrics"
	DocsBasePath  = "/docs/api/"
	DocsV1Path    = "v1"
	OpenAPIV1File = "public/docs/v1/openapi.yml"

	// relative to the v1 group
	CheckoutRoute     = "/billing/checkout"
	WebhookRoute      = "/billing/webhook"
	ModulesRoute      = "/modules"
	ModuleAccessRoute = "/modules/:slug/access"
	AccountLogsRoute  = "/account/security-logs"
	AdminRoute        = "/admin"
)
