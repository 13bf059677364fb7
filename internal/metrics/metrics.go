// Package metrics exposes Prometheus counters and gauges for the
// receive/update/send pipeline, served over HTTP at /metrics.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter and gauge the pipeline updates.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MeasurementsSent *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	DispatcherQueued prometheus.Gauge
}

// New registers and returns the metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mqspeak_messages_received_total",
			Help: "MQTT messages received, by broker.",
		}, []string{"broker"}),
		MeasurementsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mqspeak_measurements_sent_total",
			Help: "Measurements successfully delivered, by channel and kind.",
		}, []string{"channel", "kind"}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mqspeak_send_failures_total",
			Help: "Failed delivery attempts, by channel and kind.",
		}, []string{"channel", "kind"}),
		DispatcherQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqspeak_dispatcher_queue_depth",
			Help: "Number of dispatcher jobs waiting in the queue, sampled when a job is enqueued.",
		}),
	}
}

// RecordMessageReceived increments the per-broker receive counter.
func (m *Metrics) RecordMessageReceived(broker string) {
	m.MessagesReceived.WithLabelValues(broker).Inc()
}

// ObserveQueueDepth records the dispatcher's current queue depth. It
// satisfies dispatcher.Recorder.
func (m *Metrics) ObserveQueueDepth(n int) {
	m.DispatcherQueued.Set(float64(n))
}

// RecordSendResult increments the success or failure counter for a
// channel/kind pair. It satisfies dispatcher.Recorder.
func (m *Metrics) RecordSendResult(channelName string, kind model.ChannelKind, success bool) {
	if success {
		m.MeasurementsSent.WithLabelValues(channelName, string(kind)).Inc()
		return
	}
	m.SendFailures.WithLabelValues(channelName, string(kind)).Inc()
}

// Server serves the /metrics endpoint on addr until ctx is cancelled.
type Server struct {
	http *http.Server
}

// NewServer builds a metrics HTTP server bound to addr (e.g. ":9641").
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// Run listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.http.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
