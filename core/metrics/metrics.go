// Package metrics exposes the bot's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "currencybot"

// Registry groups the collectors used across the bot.
type Registry struct {
	reg *prometheus.Registry

	updates        *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	replies        *prometheus.CounterVec
	webhook        *prometheus.CounterVec
	rateLookups    *prometheus.CounterVec
	rateLatency    prometheus.Histogram
	conversions    *prometheus.CounterVec
	sendErrors     prometheus.Counter
	activeSessions prometheus.GaugeFunc
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.updates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "updates_total",
		Help: "Telegram updates handled, by kind.",
	}, []string{"kind"})
	r.handlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total",
		Help: "Handler invocations that returned an error, by handler.",
	}, []string{"handler"})
	r.replies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "replies_total",
		Help: "Messages sent or edited in response to updates.",
	}, []string{"keyboard"})
	r.webhook = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "webhook_requests_total",
		Help: "Webhook HTTP requests, by response status.",
	}, []string{"status"})
	r.rateLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "rate_lookups_total",
		Help: "Exchange-rate lookups, by result.",
	}, []string{"result"})
	r.rateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "rate_lookup_duration_seconds",
		Help:    "Latency of exchange-rate lookups.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})
	r.conversions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "conversions_total",
		Help: "Completed conversions, by currency pair.",
	}, []string{"source", "target"})
	r.sendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "send_errors_total",
		Help: "Outbound Telegram sends that failed.",
	})

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.updates, r.handlerErrors, r.replies, r.webhook,
		r.rateLookups, r.rateLatency, r.conversions, r.sendErrors,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// TrackSessions registers a gauge that reads the active session count on scrape.
func (r *Registry) TrackSessions(count func() float64) {
	if r == nil || count == nil || r.activeSessions != nil {
		return
	}
	r.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_sessions",
		Help: "Conversations that are not idle.",
	}, count)
	r.reg.MustRegister(r.activeSessions)
}

// The recorders below are nil-safe so packages can run without metrics wired.

func (r *Registry) Update(kind string) {
	if r != nil {
		r.updates.WithLabelValues(kind).Inc()
	}
}

func (r *Registry) HandlerError(handler string) {
	if r != nil {
		r.handlerErrors.WithLabelValues(handler).Inc()
	}
}

func (r *Registry) Reply(withKeyboard bool) {
	if r == nil {
		return
	}
	label := "false"
	if withKeyboard {
		label = "true"
	}
	r.replies.WithLabelValues(label).Inc()
}

func (r *Registry) WebhookRequest(status int) {
	if r != nil {
		r.webhook.WithLabelValues(http.StatusText(status)).Inc()
	}
}

func (r *Registry) RateLookup(result string, took time.Duration) {
	if r == nil {
		return
	}
	r.rateLookups.WithLabelValues(result).Inc()
	r.rateLatency.Observe(took.Seconds())
}

func (r *Registry) Conversion(source, target string) {
	if r != nil {
		r.conversions.WithLabelValues(source, target).Inc()
	}
}

func (r *Registry) SendError() {
	if r != nil {
		r.sendErrors.Inc()
	}
}
