// Package metrics exposes the session gate's counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/model"
)

const namespace = "tgforward"

// Recorder implements the observer hooks of the interceptor and the guard.
type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	probes         *prometheus.CounterVec
	loginRedirects prometheus.Counter
	sessions       prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Gateway calls by method and outcome.",
		}, []string{"method", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Refresh-token exchanges by result.",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_probes_total",
			Help:      "Role probes by role and result.",
		}, []string{"role", "result"}),
		loginRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_redirects_total",
			Help:      "Sessions sent to the login page.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Browser sessions held in memory.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.refreshes,
		r.probes,
		r.loginRedirects,
		r.sessions,
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveRequest(method string, outcome string) {
	r.requests.WithLabelValues(method, outcome).Inc()
}

func (r *Recorder) ObserveRefresh(err error) {
	r.refreshes.WithLabelValues(result(err)).Inc()
}

func (r *Recorder) ObserveProbe(role model.Role, err error) {
	r.probes.WithLabelValues(role.String(), result(err)).Inc()
}

// LoginRedirect counts navigations to the login page.
func (r *Recorder) LoginRedirect(string) {
	r.loginRedirects.Inc()
}

func (r *Recorder) SetSessions(n int) {
	r.sessions.Set(float64(n))
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apiclient.ErrLoginRequired):
		return "rejected"
	default:
		return "error"
	}
}
