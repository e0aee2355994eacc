package endpoints

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/literals"
	"github.com/arturoeanton/witness-runtime/ratelimit"
	"github.com/labstack/echo/v4"
)

// debugMiddleware provides authentication and IP filtering for debug endpoints
func debugMiddleware(config *engine.DebugConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.AuthToken != "" {
				token := bearerToken(c.Request())
				if subtle.ConstantTimeCompare([]byte(token), []byte(config.AuthToken)) != 1 {
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"error": "Invalid or missing debug token",
					})
				}
			}

			if config.AllowedIPs != "" {
				clientIP := ratelimit.ClientIP(c)
				if !ipAllowed(clientIP, config.AllowedIPs) {
					return c.JSON(http.StatusForbidden, echo.Map{
						"error": fmt.Sprintf("IP %s not allowed", clientIP),
					})
				}
			}

			return next(c)
		}
	}
}

// bearerToken reads "Authorization: Bearer <token>", then X-Debug-Token
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.Header.Get(literals.HEADER_DEBUG_TOKEN)
}

func ipAllowed(clientIP, allowedIPs string) bool {
	ip := net.ParseIP(clientIP)
	for _, allowed := range strings.Split(allowedIPs, ",") {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if strings.Contains(allowed, "/") {
			if _, ipNet, err := net.ParseCIDR(allowed); err == nil && ip != nil && ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if allowed == clientIP || (ip != nil && ip.Equal(net.ParseIP(allowed))) {
			return true
		}
	}
	return false
}

// RegisterDebugEndpoints registers the debug endpoints when enabled
func RegisterDebugEndpoints(e *echo.Echo, deps Dependencies) {
	config := &deps.Config.DebugConfig
	if !config.Enabled {
		deps.Log.Info("Debug endpoints are disabled", nil)
		return
	}
	if config.AuthToken == "" {
		deps.Log.Warn("Debug endpoints enabled without an auth token", nil)
	}

	debug := e.Group("/debug", debugMiddleware(config))

	debug.GET("/info", handleDebugInfo(deps))
	debug.GET("/config", handleDebugConfig(deps))

	debug.GET("/logs", handleDebugLogs(deps))
	debug.DELETE("/logs", handleDebugClearLogs(deps))

	debug.DELETE("/ratelimit", handleDebugClearRateLimits(deps))
	debug.DELETE("/ratelimit/:id", handleDebugClearRateLimit(deps))

	if deps.Notifier != nil {
		debug.DELETE("/notify/dedupe", handleDebugResetDedupe(deps))
	}
}

func handleDebugInfo(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"service":     "Witness Runtime",
			"go_version":  runtime.Version(),
			"os":          runtime.GOOS,
			"arch":        runtime.GOARCH,
			"cpus":        runtime.NumCPU(),
			"goroutines":  runtime.NumGoroutine(),
			"timestamp":   time.Now().Unix(),
			"uptime":      time.Since(deps.Metrics.startTime).String(),
			"development": deps.Log.IsDevelopment(),
		})
	}
}

// handleDebugConfig reports the configuration without any secret
func handleDebugConfig(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		config := deps.Config
		return c.JSON(http.StatusOK, echo.Map{
			"server": echo.Map{
				"address":    config.ServerConfig.Address,
				"body_limit": config.ServerConfig.BodyLimit,
				"tls":        config.ServerConfig.TLSCert != "",
			},
			"logging": echo.Map{
				"development":      config.LoggingConfig.Development,
				"buffer_capacity":  config.LoggingConfig.BufferCapacity,
				"forward_to_redis": config.LoggingConfig.ForwardToRedis,
			},
			"rate_limit": echo.Map{
				"enabled":      config.RateLimitConfig.Enabled,
				"backend":      config.RateLimitConfig.Backend,
				"max_requests": config.RateLimitConfig.MaxRequests,
				"window_ms":    config.RateLimitConfig.WindowMs,
			},
			"database": echo.Map{
				"driver": config.DatabaseConfig.Driver,
			},
			"redis": echo.Map{
				"configured": config.RedisConfig.Host != "",
			},
			"security": echo.Map{
				"encryption": config.SecurityConfig.EncryptionKey != "",
			},
			"notify": echo.Map{
				"sms":            config.TwilioConfig.Enable,
				"email":          config.MailConfig.Enable,
				"dedupe_seconds": config.NotifyConfig.DedupeSeconds,
			},
		})
	}
}

func handleDebugLogs(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"logs":  deps.Log.GetLogs(),
			"stats": deps.Log.Stats(),
		})
	}
}

func handleDebugClearLogs(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		deps.Log.ClearLogs()
		return c.JSON(http.StatusOK, echo.Map{"message": literals.OK})
	}
}

func handleDebugClearRateLimits(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		deps.Limiter.ClearAll()
		deps.Log.Info("Rate limits cleared", nil)
		return c.JSON(http.StatusOK, echo.Map{"message": literals.OK})
	}
}

func handleDebugClearRateLimit(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		deps.Limiter.ClearLimit(id)
		deps.Log.Info("Rate limit cleared", map[string]any{"identifier": id})
		return c.JSON(http.StatusOK, echo.Map{"message": literals.OK, "identifier": id})
	}
}

func handleDebugResetDedupe(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		cleared := deps.Notifier.DedupeSize()
		deps.Notifier.ResetDedupe()
		deps.Log.Info("Alert dedupe reset", map[string]any{"cleared": cleared})
		return c.JSON(http.StatusOK, echo.Map{"message": literals.OK, "cleared": cleared})
	}
}
