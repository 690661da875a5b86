package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFloorMetricsRecordsPollOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newFloorMetrics(reg, Config{ServiceName: "comanda", Environment: "test"})

	m.ObservePoll(PollTabs, 20*time.Millisecond, nil)
	m.ObservePoll(PollTabs, 30*time.Millisecond, errors.New("db down"))
	m.IncPollDiscarded(PollOrders)
	m.SetOutboxDepth(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.pollErrors.WithLabelValues(PollTabs)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pollDiscarded.WithLabelValues(PollOrders)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.outboxDepth))
}

func TestRegisterCollectorReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newHTTPMetrics(reg, Config{})
	second := newHTTPMetrics(reg, Config{})
	assert.Same(t, first.requests, second.requests)
}
