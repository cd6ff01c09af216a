// Package deploy is the pipeline orchestrator: the one component that drives
// a deployment through its whole lifecycle and the only writer of deployment
// state after insertion. the API server calls CreateDeployment (persist +
// enqueue, fast); the worker calls BuildAndDeploy (clone, build, run; slow).
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/models"
	"github.com/sasta-kro/dropdeploy/queue"
	"github.com/sasta-kro/dropdeploy/recipes"
	"github.com/sasta-kro/dropdeploy/util"
)

// failureLogsTailBytes caps how much error output is persisted onto a failed
// deployment row. rows are read by dashboards, not log shippers.
const failureLogsTailBytes = 4096

// repoManager is the slice of the repository manager the pipeline needs.
type repoManager interface {
	EnsureRepo(ctx context.Context, repoURL, slug, branch string) (string, error)
}

// containerEngine is the slice of the engine adapter the pipeline needs.
type containerEngine interface {
	BuildImage(ctx context.Context, slug string, contextDir string, framework models.Framework) (string, error)
	ReplaceAndRun(ctx context.Context, imageRef string, internalPort int, containerName string) (int, error)
	StopAndRemoveContainer(ctx context.Context, containerName string) error
}

// jobQueue is the producer side of the queue as the orchestrator sees it.
type jobQueue interface {
	Submit(ctx context.Context, job queue.DeployJob) (string, error)
}

// Orchestrator wires the database, repository manager, container engine and
// job queue into the deployment pipeline. all dependencies are injected;
// tests substitute fakes for everything but the database.
type Orchestrator struct {
	database *db.Database
	repos    repoManager
	engine   containerEngine
	jobs     jobQueue
	logger   *slog.Logger

	containerPrefix string
}

// NewOrchestrator constructs the orchestrator. containerPrefix namespaces
// every container and image this instance manages.
func NewOrchestrator(
	database *db.Database,
	repos repoManager,
	engine containerEngine,
	jobs jobQueue,
	containerPrefix string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		database:        database,
		repos:           repos,
		engine:          engine,
		jobs:            jobs,
		logger:          logger,
		containerPrefix: containerPrefix,
	}
}

/*
CreateDeployment is the producer half of the pipeline, run inside the HTTP
request: verify ownership, persist a QUEUED deployment row, enqueue the job.

The row is written before the enqueue on purpose. If the queue backend is
down, the deployment still exists as QUEUED — the user sees their request was
accepted, and the row can be re-submitted once the backend recovers. The
reverse order would enqueue jobs pointing at rows that do not exist yet.

A project the user does not own is reported as not found, not as forbidden:
revealing that someone else's project id exists is worse than a slightly
less precise error.
*/
func (orchestrator *Orchestrator) CreateDeployment(ctx context.Context, projectID string, userID string) (*models.Deployment, error) {
	project, err := orchestrator.database.GetProject(projectID)
	if errors.Is(err, db.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "project %q not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, errs.New(errs.KindNotFound, "project %q not found", projectID)
	}

	deployment := &models.Deployment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    models.StatusQueued,
	}
	if err := orchestrator.database.InsertDeployment(deployment); err != nil {
		return nil, err
	}

	_, err = orchestrator.jobs.Submit(ctx, queue.DeployJob{
		DeploymentID: deployment.ID,
		ProjectID:    project.ID,
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindQueueUnavailable {
			// swallowed deliberately: the QUEUED row is durable, the job is not.
			orchestrator.logger.Warn("queue backend unavailable, deployment stays queued",
				"deployment_id", deployment.ID, "error", err)
			return deployment, nil
		}
		return nil, err
	}

	return deployment, nil
}

/*
BuildAndDeploy is the consumer half: one full pipeline run for one job.

	load the deployment and its project (stale job -> clean no-op)
	mark BUILDING, step CLONING
	clone or update the repository working directory
	step BUILDING_IMAGE; build and verify the image
	step STARTING; replace the old container, start the new one on a fresh port
	release the subdomain from the previous live deployment
	mark DEPLOYED with port + subdomain

Every failure after MarkBuilding lands in MarkFailed with the tail of the
error output, and the error is still returned so the queue can apply its
retry policy. A failed attempt that later retries starts over from CLONING
on the same row; the terminal FAILED state written here is overwritten by
the retry's MarkBuilding.
*/
func (orchestrator *Orchestrator) BuildAndDeploy(ctx context.Context, job queue.DeployJob) error {
	deployment, err := orchestrator.database.GetDeployment(job.DeploymentID)
	if errors.Is(err, db.ErrRecordNotFound) {
		// stale job: the deployment (or its whole project) was deleted while
		// the job sat in the queue. nothing to do, nothing to retry.
		orchestrator.logger.Info("skipping stale deploy job", "deployment_id", job.DeploymentID)
		return nil
	}
	if err != nil {
		return err
	}

	project, err := orchestrator.database.GetProject(deployment.ProjectID)
	if errors.Is(err, db.ErrRecordNotFound) {
		orchestrator.logger.Info("skipping deploy job for deleted project",
			"deployment_id", job.DeploymentID, "project_id", deployment.ProjectID)
		return nil
	}
	if err != nil {
		return err
	}

	if project.RepoURL == "" {
		failure := errs.New(errs.KindValidation, "project %q has no repository URL", project.ID)
		orchestrator.failDeployment(deployment.ID, failure)
		return failure
	}

	orchestrator.logger.Info("pipeline started",
		"deployment_id", deployment.ID,
		"project", project.Slug,
		"framework", project.Framework,
	)

	if err := orchestrator.database.MarkBuilding(deployment.ID, time.Now()); err != nil {
		return err
	}

	// step 1: clone or update the working directory.
	workingDir, err := orchestrator.repos.EnsureRepo(ctx, project.RepoURL, project.Slug, project.Branch)
	if err != nil {
		orchestrator.failDeployment(deployment.ID, err)
		return err
	}

	// step 2: build the image and verify it exists.
	if err := orchestrator.database.UpdateBuildStep(deployment.ID, models.StepBuildingImage); err != nil {
		return err
	}
	imageRef, err := orchestrator.engine.BuildImage(ctx, project.Slug, workingDir, project.Framework)
	if err != nil {
		orchestrator.failDeployment(deployment.ID, err)
		return err
	}

	// step 3: swap the container.
	if err := orchestrator.database.UpdateBuildStep(deployment.ID, models.StepStarting); err != nil {
		return err
	}
	recipe, err := recipes.ForFramework(project.Framework)
	if err != nil {
		orchestrator.failDeployment(deployment.ID, err)
		return err
	}

	containerName := models.ContainerName(orchestrator.containerPrefix, project.Slug)
	hostPort, err := orchestrator.engine.ReplaceAndRun(ctx, imageRef, recipe.InternalPort, containerName)
	if err != nil {
		orchestrator.failDeployment(deployment.ID, err)
		return err
	}

	// subdomain handover: the previous live deployment releases the slug
	// before this one claims it, keeping the unique index satisfied.
	subdomain := project.Slug
	if err := orchestrator.database.ClearSubdomainOnOtherDeployments(project.ID, subdomain, deployment.ID); err != nil {
		orchestrator.failDeployment(deployment.ID, err)
		return err
	}

	successNote := fmt.Sprintf("deployed %s on host port %d", imageRef, hostPort)
	if err := orchestrator.database.MarkDeployed(deployment.ID, hostPort, subdomain, successNote); err != nil {
		return err
	}

	orchestrator.logger.Info("pipeline completed",
		"deployment_id", deployment.ID,
		"project", project.Slug,
		"host_port", hostPort,
		"subdomain", subdomain,
	)
	return nil
}

// StopProjectContainer tears down a project's running container. called by
// the delete handler before the rows go away, and safe when no container
// exists.
func (orchestrator *Orchestrator) StopProjectContainer(ctx context.Context, slug string) error {
	containerName := models.ContainerName(orchestrator.containerPrefix, slug)
	return orchestrator.engine.StopAndRemoveContainer(ctx, containerName)
}

// failDeployment persists the terminal FAILED state with the tail of the
// error text. a failure to write the failure is logged and dropped; the
// sweeper catches rows stranded in BUILDING.
func (orchestrator *Orchestrator) failDeployment(deploymentID string, cause error) {
	logs := util.TailString(cause.Error(), failureLogsTailBytes)
	if err := orchestrator.database.MarkFailed(deploymentID, logs); err != nil {
		orchestrator.logger.Error("failed to persist deployment failure",
			"deployment_id", deploymentID, "error", err)
	}
}
