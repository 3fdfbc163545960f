// Package metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CrawlDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seo_crawl_duration_seconds",
			Help:    "Duration of page crawls in seconds, labeled by outcome code.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"code"},
	)
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_analyses_total",
			Help: "Total number of analyses, labeled by mode and status.",
		},
		[]string{"mode", "status"},
	)
	OverallScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seo_overall_score",
			Help:    "Distribution of overall scores, labeled by scorer.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"scorer"},
	)
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_llm_requests_total",
			Help: "Total number of LLM scoring calls, labeled by result code.",
		},
		[]string{"code"},
	)
	LLMTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_llm_tokens_total",
			Help: "Total number of tokens reported by the LLM API.",
		},
	)
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_breaker_rejections_total",
			Help: "Requests rejected by an open circuit breaker, labeled by service.",
		},
		[]string{"service"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seo_breaker_state",
			Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_rate_limited_total",
			Help: "Requests rejected by a rate limiter, labeled by limiter.",
		},
		[]string{"limiter"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_http_requests_total",
			Help: "HTTP requests served, labeled by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seo_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func init() {
	prometheus.MustRegister(CrawlDuration)
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(OverallScore)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(LLMTokens)
	prometheus.MustRegister(BreakerRejections)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
