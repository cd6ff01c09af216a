// Package queue is the durable job pipe between the API server (producer)
// and the worker (consumer). it rides on asynq over redis: at-least-once
// delivery, bounded retries with exponential backoff, and persisted task
// state that survives both process restarts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sasta-kro/dropdeploy/errs"
)

// TaskTypeDeploy is the asynq task type for deployment jobs.
const TaskTypeDeploy = "deploy:run"

// retry policy: a job is attempted at most maxAttempts times in total, with
// exponential backoff between attempts starting at 2 seconds (2s, 4s, 8s).
const (
	maxAttempts      = 3
	initialBackoff   = 2 * time.Second
	completedJobsTTL = 24 * time.Hour
)

// DeployJob is the payload of one deployment job. deliberately tiny: the
// deployment row is the source of truth, the job is just a pointer to it,
// so a re-delivered job always acts on current state.
type DeployJob struct {
	DeploymentID string `json:"deployment_id"`
	ProjectID    string `json:"project_id"`
}

// Queue is the producer side. constructed once at startup and injected into
// the orchestrator.
type Queue struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewQueue constructs the producer connected to the redis backend at addr
// ("host:port"). the connection is lazy; a dead backend surfaces on the
// first Submit, which the orchestrator is built to tolerate.
func NewQueue(addr string, logger *slog.Logger) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
		logger: logger,
	}
}

// Close releases the producer's redis connections.
func (jobQueue *Queue) Close() error {
	return jobQueue.client.Close()
}

// Submit enqueues a deployment job durably and returns its queue-side id.
//
// failure classification matters here: when the backend is unreachable the
// error comes back as KindQueueUnavailable, and the orchestrator swallows it
// (the deployment row is already persisted as QUEUED and can be re-submitted
// once the backend recovers). any other error propagates as internal.
func (jobQueue *Queue) Submit(ctx context.Context, job DeployJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal deploy job: %w", err)
	}

	task := asynq.NewTask(TaskTypeDeploy, payload)

	taskInfo, err := jobQueue.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(maxAttempts-1), // retries after the first attempt
		asynq.Timeout(30*time.Minute), // container builds can legitimately take minutes
		asynq.Retention(completedJobsTTL),
	)
	if err != nil {
		if isConnectivityError(err) {
			return "", errs.Wrap(errs.KindQueueUnavailable, err, "queue backend unreachable")
		}
		return "", fmt.Errorf("failed to enqueue deploy job for deployment %q: %w", job.DeploymentID, err)
	}

	jobQueue.logger.Info("deploy job submitted",
		"task_id", taskInfo.ID,
		"deployment_id", job.DeploymentID,
		"project_id", job.ProjectID,
	)
	return taskInfo.ID, nil
}

// retryDelay implements the 2s/4s/8s backoff. asynq calls this with the
// count of retries performed so far (1 for the first retry).
func retryDelay(retryCount int, _ error, _ *asynq.Task) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return initialBackoff << (retryCount - 1)
}

// isConnectivityError reports whether an error chain indicates the backend
// could not be reached at all, as opposed to rejecting the job. dial
// failures, refused connections and timeouts count; protocol errors do not.
func isConnectivityError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded)
}
