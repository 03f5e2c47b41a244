package logger

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prcycle"

func counterFunc(subsystem, name, help string, labels prometheus.Labels, c *atomic.Int64) prometheus.CounterFunc {
	return promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, func() float64 { return float64(c.Load()) })
}

// The counters above, read at scrape time.
var (
	// Metric: prcycle_log_errors_total
	ErrorsLogged = counterFunc("log", "errors_total", "Errors reported, sampled or not", nil, &TotalErrors)
	// Metric: prcycle_log_warnings_total
	WarningsLogged = counterFunc("log", "warnings_total", "Warnings reported, sampled or not", nil, &TotalWarnings)

	// Metric: prcycle_http_error_responses_total{status}
	Responses5xx = httpErrors("5xx", &Total5xxErrors)
	Responses4xx = httpErrors("4xx", &Total4xxErrors)
	Responses400 = httpErrors("400", &Total400Errors)
	Responses404 = httpErrors("404", &Total404Errors)
	Responses422 = httpErrors("422", &Total422Errors)

	// Metric: prcycle_http_slow_requests_total
	SlowRequestsSeen = counterFunc("http", "slow_requests_total", "Requests slower than the slow request threshold", nil, &SlowRequests)
)

func httpErrors(status string, c *atomic.Int64) prometheus.CounterFunc {
	return counterFunc("http", "error_responses_total", "HTTP error responses by status class or code",
		prometheus.Labels{"status": status}, c)
}
