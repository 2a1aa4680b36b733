// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is the metrics interface used by the relay usecases
type MetricsCollector interface {
	RecordRelay(direction string)
	RecordCommentSaved(mediaCount int)
	RecordRateLimited()
	RecordUnresolved(direction string)
	RecordAlbumFlush(items int)
	RecordSendFailure(op string)
}

// Collector collects Prometheus metrics
type Collector struct {
	relayed       *prometheus.CounterVec
	commentsSaved prometheus.Counter
	mediaSaved    prometheus.Counter
	rateLimited   prometheus.Counter
	unresolved    *prometheus.CounterVec
	albumFlushes  prometheus.Counter
	albumSize     prometheus.Histogram
	sendFailures  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comment_bridge_relayed_total",
			Help: "Relayed units (single messages or albums) by direction",
		}, []string{"direction"}),
		commentsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comment_bridge_comments_saved_total",
			Help: "Comments persisted",
		}),
		mediaSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comment_bridge_comment_media_saved_total",
			Help: "Comment media rows persisted",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comment_bridge_rate_limited_total",
			Help: "New comments rejected by the rate limiter",
		}),
		unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comment_bridge_unresolved_total",
			Help: "Messages whose conversation context could not be resolved",
		}, []string{"direction"}),
		albumFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comment_bridge_album_flushes_total",
			Help: "Album groups flushed",
		}),
		albumSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "comment_bridge_album_items",
			Help:    "Items per flushed album",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 10},
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comment_bridge_send_failures_total",
			Help: "Transport calls that failed, by operation",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.relayed,
		c.commentsSaved,
		c.mediaSaved,
		c.rateLimited,
		c.unresolved,
		c.albumFlushes,
		c.albumSize,
		c.sendFailures,
	)

	return c
}

// RecordRelay counts a relayed unit
func (c *Collector) RecordRelay(direction string) {
	c.relayed.WithLabelValues(direction).Inc()
}

// RecordCommentSaved counts a persisted comment and its media rows
func (c *Collector) RecordCommentSaved(mediaCount int) {
	c.commentsSaved.Inc()
	c.mediaSaved.Add(float64(mediaCount))
}

// RecordRateLimited counts a rejected admission
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// RecordUnresolved counts a failed context resolution
func (c *Collector) RecordUnresolved(direction string) {
	c.unresolved.WithLabelValues(direction).Inc()
}

// RecordAlbumFlush counts a flushed album
func (c *Collector) RecordAlbumFlush(items int) {
	c.albumFlushes.Inc()
	c.albumSize.Observe(float64(items))
}

// RecordSendFailure counts a failed transport call
func (c *Collector) RecordSendFailure(op string) {
	c.sendFailures.WithLabelValues(op).Inc()
}

// Nop discards all metrics
type Nop struct{}

func (Nop) RecordRelay(string)       {}
func (Nop) RecordCommentSaved(int)   {}
func (Nop) RecordRateLimited()       {}
func (Nop) RecordUnresolved(string)  {}
func (Nop) RecordAlbumFlush(int)     {}
func (Nop) RecordSendFailure(string) {}

// Handler returns the HTTP handler for Prometheus scrapes
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
