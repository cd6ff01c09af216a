package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/dropdeploy/errs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// bareWorker builds a Worker without an asynq server, enough to exercise the
// task handler and the completions ring directly.
func bareWorker(handler JobHandler) *Worker {
	return &Worker{handler: handler, logger: testLogger()}
}

func deployTask(t *testing.T, job DeployJob) *asynq.Task {
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeDeploy, payload)
}

func TestHandleDeployTaskSuccess(t *testing.T) {
	var received DeployJob
	worker := bareWorker(func(ctx context.Context, job DeployJob) error {
		received = job
		return nil
	})

	task := deployTask(t, DeployJob{DeploymentID: "dep-1", ProjectID: "proj-1"})
	err := worker.handleDeployTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, "dep-1", received.DeploymentID)

	records := worker.RecentJobs()
	require.Len(t, records, 1)
	assert.True(t, records[0].Succeeded)
}

func TestHandleDeployTaskRetryableFailure(t *testing.T) {
	worker := bareWorker(func(ctx context.Context, job DeployJob) error {
		return errs.New(errs.KindBuildFailed, "npm install blew up")
	})

	err := worker.handleDeployTask(context.Background(), deployTask(t, DeployJob{DeploymentID: "dep-1"}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "a build failure is worth retrying")
}

func TestHandleDeployTaskNonRetryableFailureSkipsRetry(t *testing.T) {
	worker := bareWorker(func(ctx context.Context, job DeployJob) error {
		return errs.New(errs.KindValidation, "project has no repository URL")
	})

	err := worker.handleDeployTask(context.Background(), deployTask(t, DeployJob{DeploymentID: "dep-1"}))

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry, "validation failures cannot improve with retries")

	records := worker.RecentJobs()
	require.Len(t, records, 1)
	assert.False(t, records[0].Succeeded)
	assert.Contains(t, records[0].Error, "repository URL")
}

func TestHandleDeployTaskGarbagePayloadSkipsRetry(t *testing.T) {
	worker := bareWorker(func(ctx context.Context, job DeployJob) error {
		t.Fatal("handler must not run for an unparseable payload")
		return nil
	})

	task := asynq.NewTask(TaskTypeDeploy, []byte("not json"))
	err := worker.handleDeployTask(context.Background(), task)

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRecentJobsRingBounded(t *testing.T) {
	worker := bareWorker(nil)

	for i := 0; i < recentJobsKept+50; i++ {
		worker.recordCompletion(JobRecord{DeploymentID: fmt.Sprintf("dep-%d", i), Succeeded: true})
	}

	records := worker.RecentJobs()
	require.Len(t, records, recentJobsKept)
	// oldest entries fell off; the newest survive.
	assert.Equal(t, fmt.Sprintf("dep-%d", recentJobsKept+49), records[len(records)-1].DeploymentID)
	assert.Equal(t, "dep-50", records[0].DeploymentID)
}
