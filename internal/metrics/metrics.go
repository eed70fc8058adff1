package metrics

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var weiPerGwei = big.NewFloat(1e9)

// Registry holds the run's prometheus collectors. It satisfies the
// orchestrator's Observer interface.
type Registry struct {
	registry      *prometheus.Registry
	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	gasPriceGwei  prometheus.Gauge
}

func NewRegistry() *Registry {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintforge_attempts_total",
		Help: "Total number of mint transaction attempts",
	}, []string{"status"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintforge_retries_total",
		Help: "Retries scheduled by the orchestrator",
	}, []string{"reason"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintforge_runs_total",
		Help: "Completed mint runs",
	}, []string{"result"})

	gasPrice := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mintforge_gas_price_gwei",
		Help: "Gas price used by the most recent estimate",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(attempts, retries, runs, gasPrice)

	return &Registry{
		registry:      r,
		attemptsTotal: attempts,
		retriesTotal:  retries,
		runsTotal:     runs,
		gasPriceGwei:  gasPrice,
	}
}

func (m *Registry) AttemptRecorded(status string) {
	m.attemptsTotal.WithLabelValues(status).Inc()
}

func (m *Registry) RetryScheduled(reason string) {
	m.retriesTotal.WithLabelValues(reason).Inc()
}

func (m *Registry) GasPriceWei(price *big.Int) {
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(price), weiPerGwei).Float64()
	m.gasPriceGwei.Set(gwei)
}

func (m *Registry) RunFinished(result string) {
	m.runsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry over HTTP.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. Useful during long
// waits for a mint to go live.
func (m *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
