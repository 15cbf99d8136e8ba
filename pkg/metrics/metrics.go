// Package metrics holds the prometheus collectors shared by the chat engine
// and the store service. Everything registers with the default registry.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages accepted by the store.",
	})
	SendRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_send_rejected_total",
		Help: "Send attempts rejected before reaching the store, by reason.",
	}, []string{"reason"})
	SendFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_failed_total",
		Help: "Send attempts that failed in transport.",
	})
	Redactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_redactions_total",
		Help: "Moderation replacements, by kind.",
	}, []string{"kind"})
	Unsends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_unsend_total",
		Help: "Unsend requests, by outcome.",
	}, []string{"outcome"})
	Snapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_snapshots_total",
		Help: "Full feed snapshots delivered to subscribers.",
	})
	VisibleMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_visible_messages",
		Help: "Messages in the most recent rendered snapshot.",
	})

	StoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_store_ops_total",
		Help: "Store service operations, by operation and result.",
	}, []string{"op", "result"})
	Watchers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_store_watchers",
		Help: "Long-poll requests currently waiting.",
	})
	Purged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_retention_purged_total",
		Help: "Soft-deleted records removed by retention.",
	})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesSent, SendRejected, SendFailed, Redactions, Unsends, Snapshots, VisibleMessages,
		StoreOps, Watchers, Purged, heapAlloc,
	)
}

// Handler serves the default registry on a fasthttp server.
func Handler() fasthttp.RequestHandler {
	return wrapHTTPHandler(promhttp.Handler())
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}
