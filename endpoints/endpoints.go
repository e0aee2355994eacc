// Package endpoints exposes the Witness Runtime HTTP surface: the contacts,
// location and alert API, the health and metrics endpoints, and the guarded
// debug endpoints.
package endpoints

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/arturoeanton/witness-runtime/contacts"
	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/literals"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/notify"
	"github.com/arturoeanton/witness-runtime/ratelimit"
	"github.com/go-redis/redis"
	"github.com/labstack/echo/v4"
)

// Dependencies are the collaborators the handlers are built from. DB and
// Redis are only used by the health check and may be nil.
type Dependencies struct {
	Config   *engine.ConfigWorkspace
	Contacts *contacts.Service
	Notifier *notify.Notifier
	Limiter  ratelimit.RateLimiter
	Log      *logger.Logger
	Metrics  *Metrics
	DB       *sql.DB
	Redis    *redis.Client
}

// Register mounts every route group on e
func Register(e *echo.Echo, deps Dependencies) {
	if deps.Log == nil {
		logger.Initialize(false, false)
		deps.Log = logger.Default
	}
	if deps.Config == nil {
		config := engine.DefaultConfig()
		deps.Config = &config
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewRateLimiter(&engine.RateLimitConfig{}, nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(deps.Log)
	}
	if deps.Notifier != nil {
		deps.Metrics.trackNotifier(deps.Notifier)
	}

	RegisterMonitoringEndpoints(e, deps)
	RegisterAPIEndpoints(e, deps)
	RegisterDebugEndpoints(e, deps)
}

// errorBody is the JSON shape of every API error
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// CheckError writes the response for err and returns true when err is not
// nil. Known service errors map to their own status; anything else is a 500
// whose detail stays in the log.
func CheckError(c echo.Context, deps Dependencies, err error) bool {
	if err == nil {
		return false
	}

	var validationErr *contacts.ValidationError
	var rateErr *contacts.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		deps.Metrics.validationFailures.WithLabelValues(string(validationErr.Kind)).Inc()
		_ = c.JSON(http.StatusBadRequest, errorBody{Error: validationErr.Message, Kind: string(validationErr.Kind)})
	case errors.As(err, &rateErr):
		result := ratelimit.Result{Allowed: false, RemainingRequests: 0, RetryAfter: rateErr.RetryAfter}
		rejectRateLimited(c, deps, result)
	case errors.Is(err, contacts.ErrMissingOwner):
		_ = c.JSON(http.StatusUnauthorized, errorBody{Error: literals.MISSING_OWNER, Kind: literals.KIND_MISSING_OWNER})
	case errors.Is(err, contacts.ErrNotFound):
		_ = c.JSON(http.StatusNotFound, errorBody{Error: literals.NOT_FOUND, Kind: literals.KIND_NOT_FOUND})
	case errors.Is(err, contacts.ErrLimitReached):
		_ = c.JSON(http.StatusConflict, errorBody{Error: err.Error(), Kind: literals.KIND_LIMIT_REACHED})
	default:
		deps.Log.Error("Request failed", map[string]any{"path": c.Path(), "method": c.Request().Method}, err)
		_ = c.JSON(http.StatusInternalServerError, errorBody{Error: literals.INTERNAL_ERROR, Kind: literals.KIND_INTERNAL})
	}
	return true
}

func rejectRateLimited(c echo.Context, deps Dependencies, result ratelimit.Result) {
	deps.Metrics.rateLimited.WithLabelValues(c.Path()).Inc()
	config := &deps.Config.RateLimitConfig
	limit := 0
	if deps.Limiter != nil {
		limit = deps.Limiter.Limit()
	}
	ratelimit.SetHeaders(c, config, limit, result)
	_ = ratelimit.Reject(c, config, result)
}

// owner reads the authenticated owner set by the upstream gateway
func owner(c echo.Context) string {
	return c.Request().Header.Get(literals.HEADER_USER_ID)
}
