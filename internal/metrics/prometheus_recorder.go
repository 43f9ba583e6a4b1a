package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallpanel_remote"

// Connectivity states exported by the state gauge.
var connectivityStates = []string{"disconnected", "connecting", "connected"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	commands         *prom.CounterVec
	activations      *prom.CounterVec
	dispatchSkipped  *prom.CounterVec
	dispatchDuration *prom.HistogramVec
	dispatchStatus   *prom.CounterVec
	connectAttempts  prom.Counter
	connectResults   *prom.CounterVec
	connectivity     *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers the device metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Control commands executed, by kind",
		}, []string{"kind"}),
		activations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "button_activations_total",
			Help:      "Qualifying button releases, by channel",
		}, []string{"channel"}),
		dispatchSkipped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_skipped_total",
			Help:      "Dispatches abandoned before any network I/O, by reason",
		}, []string{"reason"}),
		dispatchDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of outbound API requests",
			Buckets:   prom.DefBuckets,
		}, []string{"path"}),
		dispatchStatus: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_results_total",
			Help:      "Outbound API request results by path and status (-1 = transport error)",
		}, []string{"path", "status"}),
		connectAttempts: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "connect_checks_total",
			Help:      "Link status checks made while connecting",
		}),
		connectResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "connect_results_total",
			Help:      "Connection sequences by outcome",
		}, []string{"result"}),
		connectivity: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_state",
			Help:      "1 for the current connectivity state, 0 otherwise",
		}, []string{"state"}),
	}
	reg.MustRegister(pr.commands, pr.activations, pr.dispatchSkipped, pr.dispatchDuration,
		pr.dispatchStatus, pr.connectAttempts, pr.connectResults, pr.connectivity)
	pr.SetConnectivity("disconnected")
	return pr
}

func (p *PrometheusRecorder) IncCommand(kind string) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncActivation(channel string) {
	if p == nil {
		return
	}
	p.activations.WithLabelValues(channel).Inc()
}

func (p *PrometheusRecorder) IncDispatchSkipped(reason string) {
	if p == nil {
		return
	}
	p.dispatchSkipped.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) ObserveDispatch(path string, status int, d time.Duration) {
	if p == nil {
		return
	}
	p.dispatchDuration.WithLabelValues(path).Observe(d.Seconds())
	p.dispatchStatus.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) IncConnectAttempt() {
	if p == nil {
		return
	}
	p.connectAttempts.Inc()
}

func (p *PrometheusRecorder) IncConnectResult(success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.connectResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetConnectivity(state string) {
	if p == nil {
		return
	}
	for _, s := range connectivityStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.connectivity.WithLabelValues(s).Set(v)
	}
}

// HTTPHandler returns an http.Handler that serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
