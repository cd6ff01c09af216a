package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sasta-kro/dropdeploy/errs"
)

// recentJobsKept caps the in-memory record of completed jobs.
const recentJobsKept = 100

// JobHandler is what the worker invokes for each delivered job. in practice
// this is the orchestrator's BuildAndDeploy; the indirection keeps this
// package free of any dependency on the pipeline.
type JobHandler func(ctx context.Context, job DeployJob) error

// JobRecord is one entry in the worker's recent-completions ring, kept for
// operator introspection (dumped in the shutdown summary log).
type JobRecord struct {
	DeploymentID string
	ProjectID    string
	Succeeded    bool
	Error        string
	FinishedAt   time.Time
	Duration     time.Duration
}

// Worker is the consumer side: an asynq server pulling deploy jobs with
// bounded concurrency and applying the shared retry policy.
type Worker struct {
	server  *asynq.Server
	handler JobHandler
	logger  *slog.Logger

	// recent is a bounded ring of completed job outcomes, newest last.
	// guarded by recentMutex; handler goroutines append concurrently.
	recentMutex sync.Mutex
	recent      []JobRecord
}

// NewWorker constructs the consumer. concurrency bounds how many pipelines
// run at once (each fully independent; see the orchestrator for what one
// pipeline does). the retry delays come from the same policy Submit declares.
func NewWorker(addr string, handler JobHandler, concurrency int, logger *slog.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: addr},
		asynq.Config{
			Concurrency:    concurrency,
			RetryDelayFunc: retryDelay,
			Logger:         &slogAdapter{logger: logger},
		},
	)

	return &Worker{
		server:  server,
		handler: handler,
		logger:  logger,
	}
}

// Run consumes jobs until the process receives SIGINT/SIGTERM (asynq
// installs the signal handling) and then drains in-flight jobs. blocking.
func (worker *Worker) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDeploy, worker.handleDeployTask)

	worker.logger.Info("worker consuming deploy jobs")
	err := worker.server.Run(mux)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	worker.logSummary()
	return nil
}

// handleDeployTask unmarshals one delivered job and hands it to the
// pipeline. the returned error drives asynq's retry machinery:
//
//	nil                  -> job completed, done
//	error (retryable)    -> re-delivered with backoff, up to the retry cap
//	error (not retryable)-> wrapped in SkipRetry so asynq archives it
//	                        immediately instead of burning retries on input
//	                        that cannot get better (stale ids, validation)
func (worker *Worker) handleDeployTask(ctx context.Context, task *asynq.Task) error {
	var job DeployJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal deploy job payload: %v: %w", err, asynq.SkipRetry)
	}

	startedAt := time.Now()
	worker.logger.Info("deploy job started", "deployment_id", job.DeploymentID, "project_id", job.ProjectID)

	err := worker.handler(ctx, job)

	record := JobRecord{
		DeploymentID: job.DeploymentID,
		ProjectID:    job.ProjectID,
		Succeeded:    err == nil,
		FinishedAt:   time.Now(),
		Duration:     time.Since(startedAt),
	}
	if err != nil {
		record.Error = err.Error()
	}
	worker.recordCompletion(record)

	if err != nil {
		worker.logger.Error("deploy job failed",
			"deployment_id", job.DeploymentID,
			"duration", record.Duration.Round(time.Millisecond),
			"error", err,
		)
		if !errs.Retryable(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	worker.logger.Info("deploy job completed",
		"deployment_id", job.DeploymentID,
		"duration", record.Duration.Round(time.Millisecond),
	)
	return nil
}

// recordCompletion appends to the ring, discarding the oldest entries past
// the cap.
func (worker *Worker) recordCompletion(record JobRecord) {
	worker.recentMutex.Lock()
	defer worker.recentMutex.Unlock()

	worker.recent = append(worker.recent, record)
	if len(worker.recent) > recentJobsKept {
		worker.recent = worker.recent[len(worker.recent)-recentJobsKept:]
	}
}

// RecentJobs returns a copy of the completions ring, oldest first.
func (worker *Worker) RecentJobs() []JobRecord {
	worker.recentMutex.Lock()
	defer worker.recentMutex.Unlock()

	recentCopy := make([]JobRecord, len(worker.recent))
	copy(recentCopy, worker.recent)
	return recentCopy
}

// logSummary reports the session's completion counts at shutdown.
func (worker *Worker) logSummary() {
	records := worker.RecentJobs()

	succeeded, failed := 0, 0
	for _, record := range records {
		if record.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}
	worker.logger.Info("worker shut down",
		"recent_jobs", len(records),
		"succeeded", succeeded,
		"failed", failed,
	)
}

// slogAdapter bridges asynq's internal logger interface onto slog so the
// queue's own diagnostics land in the same structured stream as everything else.
type slogAdapter struct {
	logger *slog.Logger
}

func (adapter *slogAdapter) Debug(args ...any) { adapter.logger.Debug(fmt.Sprint(args...)) }
func (adapter *slogAdapter) Info(args ...any)  { adapter.logger.Info(fmt.Sprint(args...)) }
func (adapter *slogAdapter) Warn(args ...any)  { adapter.logger.Warn(fmt.Sprint(args...)) }
func (adapter *slogAdapter) Error(args ...any) { adapter.logger.Error(fmt.Sprint(args...)) }
func (adapter *slogAdapter) Fatal(args ...any) { adapter.logger.Error(fmt.Sprint(args...)) }
