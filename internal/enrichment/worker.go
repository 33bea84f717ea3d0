package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/resilio/internal/domain"
)

// ErrStale is returned by an Applier when the incident has moved on and
// the analysis must be discarded.
var ErrStale = errors.New("incident is no longer awaiting enrichment")

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	NumWorkers int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		NumWorkers: 4,
		QueueSize:  256,
		JobTimeout: 45 * time.Second,
	}
}

// Analyzer classifies an incident image.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AIAnalysis, error)
}

// Applier stores a classification result on an incident.
type Applier interface {
	ApplyAnalysis(ctx context.Context, incidentID string, analysis domain.AIAnalysis) error
}

// Job is one incident awaiting classification.
type Job struct {
	IncidentID string
	ImageURL   string
}

// Worker runs classification jobs in the background. Jobs are attempted
// once; failures are logged and counted, never retried.
type Worker struct {
	config   WorkerConfig
	analyzer Analyzer
	applier  Applier

	jobs     chan Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new enrichment worker.
func NewWorker(config WorkerConfig, analyzer Analyzer) *Worker {
	defaults := DefaultWorkerConfig()
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}

	return &Worker{
		config:   config,
		analyzer: analyzer,
		jobs:     make(chan Job, config.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches worker goroutines that hand results to applier.
func (w *Worker) Start(ctx context.Context, applier Applier) {
	w.applier = applier

	slog.Info("starting enrichment worker",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Submit enqueues a job without blocking. It returns false when the job
// was dropped because the queue is full or the worker is stopped.
func (w *Worker) Submit(incidentID, imageURL string) bool {
	select {
	case <-w.stopCh:
		return false
	default:
	}

	select {
	case w.jobs <- Job{IncidentID: incidentID, ImageURL: imageURL}:
		queueDepth.Inc()
		return true
	default:
		slog.Warn("enrichment queue full, dropping job", "incident_id", incidentID)
		recordJob(resultDropped)
		return false
	}
}

// Disabled accepts no jobs. It stands in for the worker when enrichment is off.
type Disabled struct{}

// Submit always reports the job as not queued.
func (Disabled) Submit(string, string) bool { return false }

// Stop waits for in-flight jobs and stops all workers. Queued jobs are discarded.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
	slog.Info("enrichment worker stopped", "discarded", len(w.jobs))
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case job := <-w.jobs:
			queueDepth.Dec()
			w.process(ctx, workerID, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, workerID int, job Job) {
	logger := slog.With("worker", workerID, "incident_id", job.IncidentID)

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	analysis, err := w.analyzer.Analyze(jobCtx, AnalyzeRequest{
		EmergencyID: job.IncidentID,
		ImageURL:    job.ImageURL,
	})
	if err != nil {
		logger.Warn("incident enrichment failed", "error", err)
		recordJob(resultFailed)
		return
	}

	err = w.applier.ApplyAnalysis(jobCtx, job.IncidentID, *analysis)
	switch {
	case err == nil:
		logger.Debug("incident enriched", "severity_hint", analysis.Severity)
		recordJob(resultApplied)
	case errors.Is(err, ErrStale):
		logger.Info("discarding stale enrichment", "reason", err)
		recordJob(resultStale)
	default:
		logger.Error("failed to apply enrichment", "error", err)
		recordJob(resultApplyFail)
	}
}
