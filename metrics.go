package main

import (
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed for this simulator.
// The shape (a struct of promauto-registered vectors built once at
// startup) follows the teacher's prometheus.go NewPrometheusMetrics
// pattern; the gauges themselves are this simulator's own.
type Metrics struct {
	controllerState  *prometheus.GaugeVec // 1 for the active engine_state, labeled "state"
	acquiredPoints   prometheus.Gauge
	bufferLength     prometheus.Gauge
	connectedClients prometheus.Gauge
	commandsTotal    *prometheus.CounterVec // labeled "command"
	errorsTotal      *prometheus.CounterVec // labeled "code"
}

// NewMetrics registers and returns the simulator's Prometheus collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		controllerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kreios_controller_state",
				Help: "1 for the engine's current state, 0 for all others, labeled by state name",
			},
			[]string{"state"},
		),
		acquiredPoints: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kreios_acquired_points",
				Help: "NumberOfAcquiredPoints of the active acquisition",
			},
		),
		bufferLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kreios_buffer_length",
				Help: "Number of sample values produced so far",
			},
		),
		connectedClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kreios_connected_clients",
				Help: "1 if a TCP client is currently connected, else 0",
			},
		),
		commandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kreios_commands_total",
				Help: "Total requests handled, labeled by command name",
			},
			[]string{"command"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kreios_errors_total",
				Help: "Total error responses, labeled by wire error code",
			},
			[]string{"code"},
		),
	}
	log.Println("metrics: Prometheus collectors registered")
	return m
}

var engineStateNames = []string{"idle", "validated", "running", "paused", "finished", "aborted", "error"}

// ObserveEngineStatus updates the state/points/buffer gauges from a
// status snapshot.
func (m *Metrics) ObserveEngineStatus(st EngineStatus, bufferLen int) {
	if m == nil {
		return
	}
	for _, name := range engineStateNames {
		v := 0.0
		if name == st.State.String() {
			v = 1.0
		}
		m.controllerState.WithLabelValues(name).Set(v)
	}
	m.acquiredPoints.Set(float64(st.AcquiredSamples))
	m.bufferLength.Set(float64(bufferLen))
}

// SetConnected updates the connected-clients gauge.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connectedClients.Set(1)
	} else {
		m.connectedClients.Set(0)
	}
}

// RecordCommand increments the per-command request counter.
func (m *Metrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command).Inc()
}

// RecordError increments the per-code error counter.
func (m *Metrics) RecordError(code int) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler returns the promhttp scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
