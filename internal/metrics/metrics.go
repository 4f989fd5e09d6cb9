// Package metrics holds the Prometheus collectors of the batch jobs.
// Batch jobs do not live long enough to be scraped, so collectors are pushed
// to a Pushgateway when a run finishes.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "memereport"

// Collectors is a private registry plus the collectors registered on it
type Collectors struct {
	Registry *prometheus.Registry

	Records       *prometheus.CounterVec
	FetchedBytes  prometheus.Counter
	CacheHits     prometheus.Counter
	BreakerState  prometheus.Gauge
	JobDuration   *prometheus.GaugeVec
	LastSuccess   *prometheus.GaugeVec
	ReportPages   *prometheus.GaugeVec
	ReportEntries *prometheus.GaugeVec
}

func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Archive records processed by the extraction job, by outcome.",
		}, []string{"outcome"}),
		FetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_media_bytes_total",
			Help:      "Bytes of media downloaded or read from the media cache.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_cache_hits_total",
			Help:      "Media fetches served from the cache.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_circuit_breaker_state",
			Help:      "Fetch circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
		JobDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of the last run of a job.",
		}, []string{"job"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a job.",
		}, []string{"job"}),
		ReportPages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_pages",
			Help:      "Pages of the last rendered report, by section.",
		}, []string{"section"}),
		ReportEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_entries",
			Help:      "Ranked memes in the last rendered report, by section.",
		}, []string{"section"}),
	}

	c.Registry.MustRegister(
		c.Records,
		c.FetchedBytes,
		c.CacheHits,
		c.BreakerState,
		c.JobDuration,
		c.LastSuccess,
		c.ReportPages,
		c.ReportEntries,
	)
	return c
}

// ObserveJob records the duration of a job and, on success, its completion time
func (c *Collectors) ObserveJob(job string, start time.Time, succeeded bool) {
	c.JobDuration.WithLabelValues(job).Set(time.Since(start).Seconds())
	if succeeded {
		c.LastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// Push sends the registry to the Pushgateway, grouped by job and run id.
// An empty url disables pushing.
func (c *Collectors) Push(ctx context.Context, url, job, runID string) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(c.Registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	slog.Debug("metrics pushed", "url", url, "job", job, "run_id", runID)
	return nil
}
