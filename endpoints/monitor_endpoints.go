package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/arturoeanton/witness-runtime/literals"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/notify"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server. Each instance owns
// its registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	activeRequests     prometheus.Gauge
	rateLimited        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	contactsCreated    prometheus.Counter
	alerts             prometheus.Counter
	deliveries         *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics registers the collectors. log feeds the buffer gauges.
func NewMetrics(log *logger.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "witness_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "witness_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "witness_requests_active",
			Help: "Number of active HTTP requests",
		}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "witness_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"path"}),
		validationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "witness_validation_failures_total",
			Help: "Rejected inputs by error kind",
		}, []string{"kind"}),
		contactsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "witness_contacts_created_total",
			Help: "Emergency contacts created",
		}),
		alerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "witness_alerts_total",
			Help: "Alerts dispatched",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "witness_alert_deliveries_total",
			Help: "Alert deliveries by channel and status",
		}, []string{"channel", "status"}),
		startTime: time.Now(),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "witness_uptime_seconds",
		Help: "Number of seconds since the runtime started",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	if log != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "witness_log_buffer_entries",
			Help: "Entries held by the log ring buffer",
		}, func() float64 { return float64(log.Stats().Buffered) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "witness_log_forward_failures_total",
			Help: "Error entries the remote hook failed to accept",
		}, func() float64 { return float64(log.Stats().ForwardFailures) })
	}

	return m
}

// Registry exposes the registry for additional collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// trackNotifier exports the size of the notifier dedupe cache
func (m *Metrics) trackNotifier(n *notify.Notifier) {
	_ = m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "witness_notify_dedupe_entries",
		Help: "Deliveries remembered for dedupe",
	}, func() float64 { return float64(n.DedupeSize()) }))
}

// ObserveDispatch counts the outcome of every delivery in report
func (m *Metrics) ObserveDispatch(report notify.DispatchReport) {
	m.alerts.Inc()
	for _, d := range report.Deliveries {
		m.deliveries.WithLabelValues(string(d.Channel), string(d.Status)).Inc()
	}
}

// middleware collects request metrics
func (m *Metrics) middleware(skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, path := range skip {
				if c.Path() == path {
					return next(c)
				}
			}

			start := time.Now()
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.duration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(c.Request().Method, path, strconv.Itoa(c.Response().Status)).Inc()

			return nil
		}
	}
}

// RegisterMonitoringEndpoints registers health and metrics endpoints
func RegisterMonitoringEndpoints(e *echo.Echo, deps Dependencies) {
	config := deps.Config.MonitorConfig
	if !config.Enabled {
		deps.Log.Info("Monitoring endpoints are disabled", nil)
		return
	}

	deps.Log.Info("Registering monitoring endpoints", map[string]any{
		"health":  config.HealthCheckPath,
		"metrics": config.MetricsPath,
	})

	e.GET(config.HealthCheckPath, handleHealthCheck(deps))
	e.HEAD(config.HealthCheckPath, handleHealthCheck(deps))
	e.GET(config.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(deps.Metrics.registry, promhttp.HandlerOpts{})))

	e.Use(deps.Metrics.middleware(config.HealthCheckPath, config.MetricsPath))
}

// HealthStatus is the health check response
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  int64                      `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth reports one dependency
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func handleHealthCheck(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		health := HealthStatus{
			Status:     literals.STATUS_HEALTHY,
			Timestamp:  time.Now().Unix(),
			Uptime:     time.Since(deps.Metrics.startTime).Round(time.Second).String(),
			Components: make(map[string]ComponentHealth),
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if deps.DB != nil {
			health.Components["database"] = checkDatabaseHealth(ctx, deps)
		}
		if deps.Redis != nil {
			health.Components["redis"] = checkRedisHealth(deps)
		}
		health.Components["memory"] = checkMemoryHealth()

		for _, component := range health.Components {
			if component.Status == literals.STATUS_UNHEALTHY {
				health.Status = literals.STATUS_DEGRADED
			}
		}

		statusCode := http.StatusOK
		if health.Status != literals.STATUS_HEALTHY {
			statusCode = http.StatusServiceUnavailable
		}
		return c.JSON(statusCode, health)
	}
}

func checkDatabaseHealth(ctx context.Context, deps Dependencies) ComponentHealth {
	if err := deps.DB.PingContext(ctx); err != nil {
		deps.Log.Error("Database health check failed", nil, err)
		return ComponentHealth{Status: literals.STATUS_UNHEALTHY, Message: "database ping failed"}
	}
	return ComponentHealth{Status: literals.STATUS_HEALTHY}
}

func checkRedisHealth(deps Dependencies) ComponentHealth {
	if err := deps.Redis.Ping().Err(); err != nil {
		deps.Log.Error("Redis health check failed", nil, err)
		return ComponentHealth{Status: literals.STATUS_UNHEALTHY, Message: "redis ping failed"}
	}
	return ComponentHealth{Status: literals.STATUS_HEALTHY}
}

func checkMemoryHealth() ComponentHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// warn above 1GB
	if m.Alloc > 1024*1024*1024 {
		return ComponentHealth{
			Status:  "warning",
			Message: fmt.Sprintf("High memory usage: %d MB", m.Alloc/1024/1024),
		}
	}
	return ComponentHealth{Status: literals.STATUS_HEALTHY}
}
