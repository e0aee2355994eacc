package literals

var (
	HEADER_USER_ID     = "X-User-ID"
	HEADER_DEBUG_TOKEN = "X-Debug-Token"

	OK                = "OK"
	NOT_FOUND         = "Not Found"
	MISSING_OWNER     = "Missing X-User-ID header"
	INVALID_BODY      = "Request body is not valid JSON"
	INTERNAL_ERROR    = "Internal server error"
	TOO_MANY_ATTEMPTS = "Too many attempts. Please try again later."
	NO_CONTACTS       = "No emergency contacts configured"

	KIND_RATE_LIMITED  = "RateLimited"
	KIND_MISSING_OWNER = "MissingOwner"
	KIND_NOT_FOUND     = "NotFound"
	KIND_LIMIT_REACHED = "LimitReached"
	KIND_INVALID_BODY  = "InvalidBody"
	KIND_NO_CONTACTS   = "NoContacts"
	KIND_INTERNAL      = "Internal"

	STATUS_HEALTHY   = "healthy"
	STATUS_DEGRADED  = "degraded"
	STATUS_UNHEALTHY = "unhealthy"
)
