package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()

	open := prometheus.NewGauge(prometheus.GaugeOpts{Name: "comanda_open_tabs"})
	open.Set(4)
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "comanda_outbox_replay_total"}, []string{"outcome"})
	settled.WithLabelValues("replayed").Add(2)
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "comanda_poll_seconds"})
	latency.Observe(0.2)

	registry.MustRegister(open, settled, latency)
	return registry
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		byName[s.Labels[0].Value] = s
	}
	gauge := byName["comanda_open_tabs"]
	require.Len(t, gauge.Samples, 1)
	assert.Equal(t, 4.0, gauge.Samples[0].Value)
	assert.Equal(t, int64(1000), gauge.Samples[0].Timestamp)

	counter, ok := byName["comanda_outbox_replay_total"]
	require.True(t, ok, "labels are sorted so __name__ comes first")
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "comanda_outbox_replay_total"},
		{Name: "outcome", Value: "replayed"},
	}, counter.Labels)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var (
		received prompb.WriteRequest
		headers  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, received.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "token")
	pusher.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer token", headers.Get("Authorization"))
	assert.Len(t, received.Timeseries, 2)
	assert.Equal(t, int64(42), received.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	assert.Error(t, err)
}

func TestNewPusherFromConfig(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: "statsd", Endpoint: "x"}}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite, Endpoint: "not a url"}}, log))

	remote := NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://prom:9090/api/v1/write"}}, log)
	assert.IsType(t, &RemoteWritePusher{}, remote)

	gateway := NewPusher(config.Config{AppName: "comanda", MetricsPush: config.MetricsPushConfig{Exporter: ExporterPushgateway, Endpoint: "http://gateway:9091"}}, log)
	assert.IsType(t, &PushgatewayPusher{}, gateway)
}

type countingPusher struct{ calls chan struct{} }

func (p *countingPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	p.calls <- struct{}{}
	return nil
}

func TestRunPushesUntilCancelled(t *testing.T) {
	pusher := &countingPusher{calls: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, pusher, prometheus.NewRegistry(), 10*time.Millisecond, zap.NewNop())
	}()

	select {
	case <-pusher.calls:
	case <-time.After(time.Second):
		t.Fatal("no push within a second")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
