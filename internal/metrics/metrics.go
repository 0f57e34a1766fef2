package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route pattern, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // PlanRuns counts planning runs by algorithm and final status
    PlanRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "plan_runs_total", Help: "Planning runs by algorithm and status."},
        []string{"algorithm", "status"},
    )
    // PlanDuration records engine wall time in seconds
    PlanDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Planning engine duration in seconds.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}},
        []string{"algorithm"},
    )
    // PlanCompletion is the completion percentage of the latest run per algorithm
    PlanCompletion = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "plan_completion_percent", Help: "Completion percentage of the most recent run."},
        []string{"algorithm"},
    )
    // StreamClients is the number of connected SSE and websocket clients
    StreamClients = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "stream_clients", Help: "Connected event stream clients."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(PlanRuns)
        Registry.MustRegister(PlanDuration)
        Registry.MustRegister(PlanCompletion)
        Registry.MustRegister(StreamClients)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// ObservePlan records one finished planning run.
func ObservePlan(algorithm, status string, seconds, completionPct float64) {
    PlanRuns.WithLabelValues(algorithm, status).Inc()
    if status != "completed" { return }
    PlanDuration.WithLabelValues(algorithm).Observe(seconds)
    PlanCompletion.WithLabelValues(algorithm).Set(completionPct)
}
