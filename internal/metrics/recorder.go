package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"arcevo/internal/evo"
)

const namespace = "arcevo"

// Recorder exports controller progress as Prometheus metrics.
type Recorder struct {
	mutations        *prometheus.CounterVec
	mutationAttempts prometheus.Histogram
	evaluations      prometheus.Counter
	fitness          prometheus.Histogram
	rates            *prometheus.GaugeVec
	generation       prometheus.Gauge
	averageFitness   prometheus.Gauge
	bestFitness      prometheus.Gauge
}

var _ evo.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutation requests by outcome.",
		}, []string{"outcome"}),
		mutationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_attempts",
			Help:      "Operator selections spent per mutation request.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Completed mutant evaluations.",
		}),
		fitness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "individual_fitness",
			Help:      "Fitness of evaluated mutants.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_rate",
			Help:      "Mean outcome rate across the population in the latest generation.",
		}, []string{"outcome"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation",
			Help:      "Latest completed generation.",
		}),
		averageFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_fitness",
			Help:      "Average population fitness of the latest generation.",
		}),
		bestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best individual fitness of the latest generation.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.mutations, r.mutationAttempts, r.evaluations, r.fitness,
		r.rates, r.generation, r.averageFitness, r.bestFitness,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) MutationFinished(_ int, outcome evo.MutationOutcome, attempts int) {
	r.mutations.WithLabelValues(string(outcome)).Inc()
	if outcome != evo.MutationFailed {
		r.mutationAttempts.Observe(float64(attempts))
	}
}

func (r *Recorder) EvaluationFinished(_ int, _ evo.Rates, fitness float64) {
	r.evaluations.Inc()
	r.fitness.Observe(fitness)
}

func (r *Recorder) GenerationFinished(stats evo.GenerationStats) {
	r.generation.Set(float64(stats.Generation))
	if stats.Scored > 0 {
		r.averageFitness.Set(stats.AverageFitness)
		r.bestFitness.Set(stats.Best.Score)
	}
	r.rates.WithLabelValues("success").Set(stats.MeanRates.Success)
	r.rates.WithLabelValues("timeout").Set(stats.MeanRates.Timeout)
	r.rates.WithLabelValues("datarace").Set(stats.MeanRates.Datarace)
	r.rates.WithLabelValues("deadlock").Set(stats.MeanRates.Deadlock)
	r.rates.WithLabelValues("error").Set(stats.MeanRates.Error)
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	klog.FromContext(ctx).Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
