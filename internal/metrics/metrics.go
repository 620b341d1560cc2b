package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/langlink/internal/lifecycle"
)

const (
	namespace = "langlink"
	subsystem = "connection"
)

// connStates lists every top-level connection state, so the state gauge
// always exports one series per state.
var connStates = []lifecycle.ConnPhase{
	lifecycle.ConnDisconnected,
	lifecycle.ConnSocketCreated,
	lifecycle.ConnErrorWait,
	lifecycle.ConnTimedOut,
	lifecycle.ConnOffline,
	lifecycle.ConnSuspended,
}

// Collector records lifecycle changes. It implements the manager's
// Observer interface.
type Collector struct {
	// TransitionsTotal counts top-level state changes.
	// Labels: from, to
	TransitionsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors that started a backoff.
	ErrorsTotal prometheus.Counter

	// RetryCount is the current number of consecutive failures.
	RetryCount prometheus.Gauge

	// State is 1 for the current top-level state and 0 otherwise.
	// Labels: state
	State *prometheus.GaugeVec

	// PingsTotal counts heartbeat outcomes.
	// Labels: result (ok, failed)
	PingsTotal *prometheus.CounterVec
}

// NewCollector registers the collectors with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Connection errors that triggered a backoff",
		}),
		RetryCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_count",
			Help:      "Consecutive failed connection attempts",
		}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "Current top-level connection state (1 = active)",
		}, []string{"state"}),
		PingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pings_total",
			Help:      "Heartbeat results",
		}, []string{"result"}),
	}

	c.setState(lifecycle.ConnDisconnected)
	return c
}

// ObserveChange updates the collectors from one processed event.
func (c *Collector) ObserveChange(change lifecycle.Change) {
	from, to := change.From, change.To

	if from.Conn != to.Conn {
		c.TransitionsTotal.WithLabelValues(from.Conn.String(), to.Conn.String()).Inc()
		c.setState(to.Conn)
	}
	if to.Ctx.RetryCount > from.Ctx.RetryCount {
		c.ErrorsTotal.Inc()
	}
	c.RetryCount.Set(float64(to.Ctx.RetryCount))

	pending := from.Opened() && from.Ping == lifecycle.PingSent
	switch e := change.Event.(type) {
	case lifecycle.PingDone:
		if pending && e.Seq == from.PingSeq {
			c.PingsTotal.WithLabelValues("ok").Inc()
		}
	case lifecycle.PingFailed:
		if pending && e.Seq == from.PingSeq {
			c.PingsTotal.WithLabelValues("failed").Inc()
		}
	}
}

func (c *Collector) setState(current lifecycle.ConnPhase) {
	for _, s := range connStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.State.WithLabelValues(s.String()).Set(v)
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
