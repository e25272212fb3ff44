package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	relayStartedTotal         atomic.Uint64
	relayCompletedTotal       atomic.Uint64
	relayDeniedTotal          atomic.Uint64
	relayFailedTotal          atomic.Uint64
	relayPersistFailuresTotal atomic.Uint64

	upstreamDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncRelayStarted increments the started counter.
func IncRelayStarted() {
	relayStartedTotal.Add(1)
}

// IncRelayCompleted increments the completed counter.
func IncRelayCompleted() {
	relayCompletedTotal.Add(1)
}

// IncRelayDenied increments the quota-denied counter.
func IncRelayDenied() {
	relayDeniedTotal.Add(1)
}

// IncRelayFailed increments the failed counter.
func IncRelayFailed() {
	relayFailedTotal.Add(1)
}

// IncRelayPersistFailure counts analyses that completed but could not be recorded.
func IncRelayPersistFailure() {
	relayPersistFailuresTotal.Add(1)
}

// ObserveUpstreamDurationMs records an upstream call duration in milliseconds.
func ObserveUpstreamDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	upstreamDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "relay_started_total", "Total analyses started", relayStartedTotal.Load())
	writeCounter(&buf, "relay_completed_total", "Total analyses completed", relayCompletedTotal.Load())
	writeCounter(&buf, "relay_denied_total", "Total analyses denied by quota", relayDeniedTotal.Load())
	writeCounter(&buf, "relay_failed_total", "Total analyses failed", relayFailedTotal.Load())
	writeCounter(&buf, "relay_persist_failures_total", "Total completed analyses that failed to persist", relayPersistFailuresTotal.Load())
	writeHistogram(&buf, "upstream_duration_ms", "Upstream workflow call duration in milliseconds", upstreamDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
