package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
)

type Registry struct {
	reg *prometheus.Registry

	// live client
	Events          *prometheus.CounterVec
	Diagnostics     *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
	OrdersHeld      prometheus.Gauge
	SnapshotSize    prometheus.Histogram

	// journal and relay
	ChangelogAppended prometheus.Counter
	ChangelogFailed   prometheus.Counter
	RelayProduced     prometheus.Counter
	RelayFailed       prometheus.Counter

	// recovery tooling
	Applied            prometheus.Counter
	Skipped            prometheus.Counter
	Stale              prometheus.Counter
	TTRSec             prometheus.Gauge
	LastManifestAgeSec prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderfeed_events_applied_total"}, []string{"kind"})
	diags := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderfeed_diagnostics_total"}, []string{"kind"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderfeed_state_transitions_total"}, []string{"to"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_reconnects_total"})
	connState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orderfeed_connection_state",
		Help: "0=disconnected 1=connecting 2=connected 3=error 4=unauthorized",
	})
	held := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderfeed_orders_held"})
	snapSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderfeed_snapshot_orders",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	clAppended := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_changelog_appended_total"})
	clFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_changelog_failed_total"})
	relayProduced := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_relay_produced_total"})
	relayFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_relay_failed_total"})

	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_replay_applied_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_replay_skipped_total"})
	stale := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderfeed_replay_stale_total"})
	ttr := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderfeed_recovery_ttr_seconds"})
	lastAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderfeed_last_manifest_age_seconds"})

	r.MustRegister(events, diags, transitions, reconnects, connState, held, snapSize,
		clAppended, clFailed, relayProduced, relayFailed,
		applied, skipped, stale, ttr, lastAge)
	return &Registry{
		reg:                r,
		Events:             events,
		Diagnostics:        diags,
		Transitions:        transitions,
		Reconnects:         reconnects,
		ConnectionState:    connState,
		OrdersHeld:         held,
		SnapshotSize:       snapSize,
		ChangelogAppended:  clAppended,
		ChangelogFailed:    clFailed,
		RelayProduced:      relayProduced,
		RelayFailed:        relayFailed,
		Applied:            applied,
		Skipped:            skipped,
		Stale:              stale,
		TTRSec:             ttr,
		LastManifestAgeSec: lastAge,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Subscriber records client activity. held reports the current list size
// and is usually ordersync.Client's store length.
func (r *Registry) Subscriber(held func() int) ordersync.Subscriber {
	return ordersync.Subscriber{
		OnSnapshot: func(orders []model.Order) {
			r.Events.WithLabelValues("snapshot").Inc()
			r.SnapshotSize.Observe(float64(len(orders)))
			r.OrdersHeld.Set(float64(len(orders)))
		},
		OnCreated: func(model.Order) {
			r.Events.WithLabelValues("created").Inc()
			r.OrdersHeld.Set(float64(held()))
		},
		OnStatusChanged: func(ordersync.StatusChange) {
			r.Events.WithLabelValues("status_changed").Inc()
		},
		OnStateChange: func(ch ordersync.StateChange) {
			r.Transitions.WithLabelValues(ch.To.String()).Inc()
			r.ConnectionState.Set(float64(ch.To))
			if ch.From == ordersync.Error && ch.To == ordersync.Connecting {
				r.Reconnects.Inc()
			}
		},
		OnDiagnostic: func(d ordersync.Diagnostic) {
			r.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
		},
	}
}
