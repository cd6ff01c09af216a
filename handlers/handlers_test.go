package handlers

// handlers_test.go drives the real router over httptest with a real sqlite
// database; only the process-external effects (git, docker, redis) are faked.

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/gateway"
	"github.com/sasta-kro/dropdeploy/models"
	"github.com/sasta-kro/dropdeploy/queue"
)

// fakeInfra satisfies both the orchestrator's engine interface and the
// gateway's: build/run/stop for the pipeline, resolve/exec/logs for the
// terminal. one fake, every docker touchpoint.
type fakeInfra struct {
	hostPort     int
	stoppedNames []string
	execResult   *docker.ExecResult
	execCommands []string
}

func (infra *fakeInfra) BuildImage(ctx context.Context, slug string, contextDir string, framework models.Framework) (string, error) {
	return models.ImageRef("dropdeploy", slug), nil
}

func (infra *fakeInfra) ReplaceAndRun(ctx context.Context, imageRef string, internalPort int, containerName string) (int, error) {
	return infra.hostPort, nil
}

func (infra *fakeInfra) StopAndRemoveContainer(ctx context.Context, containerName string) error {
	infra.stoppedNames = append(infra.stoppedNames, containerName)
	return nil
}

func (infra *fakeInfra) ResolveRunningContainer(ctx context.Context, containerName string) (string, error) {
	return "container-id", nil
}

func (infra *fakeInfra) ExecInContainer(ctx context.Context, containerID string, command string) (*docker.ExecResult, error) {
	infra.execCommands = append(infra.execCommands, command)
	return infra.execResult, nil
}

func (infra *fakeInfra) ContainerLogsTail(ctx context.Context, containerID string, tailLines int) (string, error) {
	return "log line\n", nil
}

type fakeRepos struct{ workingDir string }

func (repos *fakeRepos) EnsureRepo(ctx context.Context, repoURL, slug, branch string) (string, error) {
	return repos.workingDir, nil
}

type fakeQueue struct{ submitted []queue.DeployJob }

func (jobs *fakeQueue) Submit(ctx context.Context, job queue.DeployJob) (string, error) {
	jobs.submitted = append(jobs.submitted, job)
	return "task-1", nil
}

type apiFixture struct {
	router   http.Handler
	database *db.Database
	infra    *fakeInfra
	jobs     *fakeQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDatabase() })

	infra := &fakeInfra{hostPort: 8451, execResult: &docker.ExecResult{Stdout: "ok\n", ExitCode: 0}}
	jobs := &fakeQueue{}

	orchestrator := deploy.NewOrchestrator(database, &fakeRepos{workingDir: t.TempDir()}, infra, jobs, "dropdeploy", logger)
	commandGateway := gateway.NewGateway(infra, logger)

	router := CreateAndSetupRouter(RouterDependencies{
		Logger:          logger,
		Database:        database,
		Orchestrator:    orchestrator,
		CommandGateway:  commandGateway,
		ContainerPrefix: "dropdeploy",
		SubdomainBase:   "localhost",
		AllowedOrigin:   "*",
	})

	return &apiFixture{router: router, database: database, infra: infra, jobs: jobs}
}

// doJSON performs a request with the standard auth header and an optional
// JSON body, returning the recorder.
func (fixture *apiFixture) doJSON(t *testing.T, method, path string, body any, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, bodyReader)
	if userID != "" {
		request.Header.Set(userIDHeader, userID)
	}

	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var decoded T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded), "body: %s", recorder.Body.String())
	return decoded
}

func (fixture *apiFixture) createProject(t *testing.T, name string) *models.Project {
	t.Helper()
	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects", map[string]string{
		"name":      name,
		"repoUrl":   "https://example.com/repo.git",
		"framework": "NODEJS",
	}, "user-1")
	require.Equal(t, http.StatusCreated, recorder.Code, "body: %s", recorder.Body.String())
	project := decodeBody[*models.Project](t, recorder)
	return project
}

func TestHealth(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.doJSON(t, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody[map[string]string](t, recorder)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateProjectRequiresIdentity(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects", map[string]string{
		"name": "x", "repoUrl": "https://example.com/x.git", "framework": "STATIC",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCreateProjectDerivesSlug(t *testing.T) {
	fixture := newAPIFixture(t)

	project := fixture.createProject(t, "My Cool Blog!")

	assert.Equal(t, "my-cool-blog", project.Slug)
	assert.Equal(t, "user-1", project.UserID)
	assert.Equal(t, "main", project.Branch, "branch defaults to main")
}

func TestCreateProjectSlugCollisionGetsSuffix(t *testing.T) {
	fixture := newAPIFixture(t)

	first := fixture.createProject(t, "My Blog")
	second := fixture.createProject(t, "My Blog")

	assert.Equal(t, "my-blog", first.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "my-blog-"), "got %q", second.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
}

func TestCreateProjectRejectsBadFramework(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects", map[string]string{
		"name": "x", "repoUrl": "https://example.com/x.git", "framework": "RAILS",
	}, "user-1")

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[map[string]string](t, recorder)
	assert.Contains(t, body["error"], "RAILS")
}

func TestGetProjectIncludesRecentDeployments(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "With History")

	deployRecorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	require.Equal(t, http.StatusAccepted, deployRecorder.Code)

	recorder := fixture.doJSON(t, http.MethodGet, "/api/projects/"+project.ID, nil, "user-1")
	require.Equal(t, http.StatusOK, recorder.Code)

	var detail struct {
		ID          string               `json:"id"`
		Deployments []*models.Deployment `json:"deployments"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &detail))
	assert.Equal(t, project.ID, detail.ID)
	require.Len(t, detail.Deployments, 1)
	assert.Equal(t, models.StatusQueued, detail.Deployments[0].Status)
}

func TestGetProjectForeignOwnerIsNotFound(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Private")

	recorder := fixture.doJSON(t, http.MethodGet, "/api/projects/"+project.ID, nil, "intruder")

	assert.Equal(t, http.StatusNotFound, recorder.Code, "ownership mismatch must look like a missing project")
}

func TestDeployReturnsAcceptedAndEnqueues(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Deployable")

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")

	require.Equal(t, http.StatusAccepted, recorder.Code)
	body := decodeBody[map[string]string](t, recorder)
	assert.NotEmpty(t, body["deploymentId"])

	require.Len(t, fixture.jobs.submitted, 1)
	assert.Equal(t, body["deploymentId"], fixture.jobs.submitted[0].DeploymentID)
}

func TestDeleteProjectStopsContainerFirst(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Doomed")

	recorder := fixture.doJSON(t, http.MethodDelete, "/api/projects/"+project.ID, nil, "user-1")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, fixture.infra.stoppedNames, 1)
	assert.Equal(t, "dropdeploy-doomed", fixture.infra.stoppedNames[0])

	_, err := fixture.database.GetProject(project.ID)
	assert.ErrorIs(t, err, db.ErrRecordNotFound)
}

func TestTerminalRequiresDeployedProject(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Not Deployed")

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "ls"}, "user-1")

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[map[string]string](t, recorder)
	assert.Contains(t, body["error"], "not deployed")
}

// markDeployed fast-forwards a project's latest deployment to DEPLOYED so the
// terminal and resolve endpoints have something live to talk to.
func (fixture *apiFixture) markDeployed(t *testing.T, project *models.Project, hostPort int) {
	t.Helper()
	deployments, err := fixture.database.ListDeploymentsForProject(project.ID, 1)
	require.NoError(t, err)
	require.NotEmpty(t, deployments)
	require.NoError(t, fixture.database.MarkDeployed(deployments[0].ID, hostPort, project.Slug, "ok"))
}

func TestTerminalRunsCommandThroughGateway(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Live App")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 8451)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "ls -la"}, "user-1")

	require.Equal(t, http.StatusOK, recorder.Code, "body: %s", recorder.Body.String())
	var result struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exitCode"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.Equal(t, "ok\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)

	require.Len(t, fixture.infra.execCommands, 1)
	assert.Equal(t, "ls -la", fixture.infra.execCommands[0])
}

func TestTerminalStaysOpenDuringRedeploy(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Live App")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 8451)

	// a redeploy queued on top of the live container: the newest deployment
	// row is QUEUED, but the container holding the subdomain is still serving.
	deployRecorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	require.Equal(t, http.StatusAccepted, deployRecorder.Code)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "ls -la"}, "user-1")

	require.Equal(t, http.StatusOK, recorder.Code, "body: %s", recorder.Body.String())
	require.Len(t, fixture.infra.execCommands, 1)
	assert.Equal(t, "ls -la", fixture.infra.execCommands[0])
}

func TestTerminalRejectsDisallowedCommand(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Guarded")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 8451)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "rm -rf /"}, "user-1")

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, fixture.infra.execCommands, "rejected commands never reach the engine")
}

func TestTerminalRejectsOversizedCommand(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Flooded")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 8451)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "echo " + strings.Repeat("x", maxTerminalCommandLength)}, "user-1")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTerminalShortcut(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Shortcuts")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 8451)

	recorder := fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/terminal",
		map[string]string{"command": "/show-logs"}, "user-1")

	require.Equal(t, http.StatusOK, recorder.Code, "body: %s", recorder.Body.String())
	var result struct {
		Stdout string `json:"stdout"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.Equal(t, "log line\n", result.Stdout)
}

func TestResolveSubdomain(t *testing.T) {
	fixture := newAPIFixture(t)
	project := fixture.createProject(t, "Resolvable")
	fixture.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/deploy", nil, "user-1")
	fixture.markDeployed(t, project, 9321)

	recorder := fixture.doJSON(t, http.MethodGet, "/api/resolve/"+project.Slug, nil, "")

	require.Equal(t, http.StatusOK, recorder.Code)
	var resolved struct {
		HostPort int    `json:"hostPort"`
		Target   string `json:"target"`
		Host     string `json:"host"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resolved))
	assert.Equal(t, 9321, resolved.HostPort)
	assert.Equal(t, "127.0.0.1:9321", resolved.Target)
	assert.Equal(t, project.Slug+".localhost", resolved.Host)
}

func TestResolveUnknownSubdomain(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.doJSON(t, http.MethodGet, "/api/resolve/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCORSPreflight(t *testing.T) {
	fixture := newAPIFixture(t)

	request := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}
