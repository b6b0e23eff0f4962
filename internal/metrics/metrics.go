// Package metrics records remote call outcomes and skipped ticks on a
// dedicated prometheus registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/csheth/mailpilot/internal/workflow"
)

const namespace = "mailpilot"

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry     *prometheus.Registry
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	ticksSkipped *prometheus.CounterVec
	ticksFired   *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote workflow calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote workflow calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}, []string{"op"}),
		ticksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Timer ticks dropped because the matching call was already in flight.",
		}, []string{"kind"}),
		ticksFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_fired_total",
			Help:      "Timer ticks that started a remote call.",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(
		r.calls,
		r.latency,
		r.ticksSkipped,
		r.ticksFired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveCall records one finished remote call. Outcome is "ok" or the
// workflow error kind.
func (r *Recorder) ObserveCall(op workflow.Op, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(workflow.KindOf(err))
	}
	r.calls.WithLabelValues(string(op), outcome).Inc()
	r.latency.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (r *Recorder) TickSkipped(kind string) {
	if r == nil {
		return
	}
	r.ticksSkipped.WithLabelValues(kind).Inc()
}

func (r *Recorder) TickFired(kind string) {
	if r == nil {
		return
	}
	r.ticksFired.WithLabelValues(kind).Inc()
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound; serving continues in the background.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", slog.String("addr", ln.Addr().String()), slog.String("error", err.Error()))
		}
	}()
	return ln.Addr(), nil
}
