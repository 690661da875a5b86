package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PollTabs   = "tabs"
	PollOrders = "orders"
)

// FloorMetrics tracks the background loops that keep the staff dashboard fresh.
type FloorMetrics struct {
	pollDuration  *prometheus.HistogramVec
	pollErrors    *prometheus.CounterVec
	pollDiscarded *prometheus.CounterVec
	openTabs      prometheus.Gauge
	billRequests  prometheus.Gauge
	pendingOrders prometheus.Gauge
	outboxDepth   prometheus.Gauge
	outboxReplays *prometheus.CounterVec
}

var (
	floorMetricsOnce sync.Once
	floorMetrics     *FloorMetrics
)

// Floor returns the singleton floor metrics registry.
func Floor() *FloorMetrics {
	return FloorWithConfig(Config{})
}

func FloorWithConfig(cfg Config) *FloorMetrics {
	floorMetricsOnce.Do(func() {
		floorMetrics = newFloorMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return floorMetrics
}

// ResetFloorMetricsForTest resets the floor metrics singleton for tests.
func ResetFloorMetricsForTest() {
	floorMetricsOnce = sync.Once{}
	floorMetrics = nil
}

func newFloorMetrics(registerer prometheus.Registerer, cfg Config) *FloorMetrics {
	constLabels := serviceLabels(cfg)

	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "comanda_dashboard_poll_duration_seconds",
		Help:        "Dashboard snapshot fetch latency by poller.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"poller"})
	pollErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "comanda_dashboard_poll_errors_total",
		Help:        "Dashboard snapshot fetch failures by poller.",
		ConstLabels: constLabels,
	}, []string{"poller"})
	pollDiscarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "comanda_dashboard_poll_discarded_total",
		Help:        "Snapshots dropped because a newer fetch was already applied.",
		ConstLabels: constLabels,
	}, []string{"poller"})
	openTabs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "comanda_open_tabs",
		Help:        "Open tabs in the latest snapshot.",
		ConstLabels: constLabels,
	})
	billRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "comanda_bill_requests",
		Help:        "Open tabs that asked for the bill.",
		ConstLabels: constLabels,
	})
	pendingOrders := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "comanda_pending_orders",
		Help:        "Pending ledger entries in the latest snapshot.",
		ConstLabels: constLabels,
	})
	outboxDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "comanda_outbox_depth",
		Help:        "Ledger writes waiting for replay.",
		ConstLabels: constLabels,
	})
	outboxReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "comanda_outbox_replays_total",
		Help:        "Outbox replay attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	return &FloorMetrics{
		pollDuration:  registerCollector(registerer, pollDuration).(*prometheus.HistogramVec),
		pollErrors:    registerCollector(registerer, pollErrors).(*prometheus.CounterVec),
		pollDiscarded: registerCollector(registerer, pollDiscarded).(*prometheus.CounterVec),
		openTabs:      registerCollector(registerer, openTabs).(prometheus.Gauge),
		billRequests:  registerCollector(registerer, billRequests).(prometheus.Gauge),
		pendingOrders: registerCollector(registerer, pendingOrders).(prometheus.Gauge),
		outboxDepth:   registerCollector(registerer, outboxDepth).(prometheus.Gauge),
		outboxReplays: registerCollector(registerer, outboxReplays).(*prometheus.CounterVec),
	}
}

func (m *FloorMetrics) ObservePoll(poller string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.WithLabelValues(poller).Observe(d.Seconds())
	if err != nil {
		m.pollErrors.WithLabelValues(poller).Inc()
	}
}

func (m *FloorMetrics) IncPollDiscarded(poller string) {
	if m == nil {
		return
	}
	m.pollDiscarded.WithLabelValues(poller).Inc()
}

func (m *FloorMetrics) SetTabGauges(open, billRequests int) {
	if m == nil {
		return
	}
	m.openTabs.Set(float64(open))
	m.billRequests.Set(float64(billRequests))
}

func (m *FloorMetrics) SetPendingOrders(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

func (m *FloorMetrics) SetOutboxDepth(n int64) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(n))
}

func (m *FloorMetrics) IncOutboxReplay(outcome string) {
	if m == nil {
		return
	}
	m.outboxReplays.WithLabelValues(outcome).Inc()
}
