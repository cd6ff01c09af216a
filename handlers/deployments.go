package handlers

// deployments.go covers the deployment actions on a project (deploy,
// terminal) and the reverse-proxy resolve endpoint.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/gateway"
	"github.com/sasta-kro/dropdeploy/models"
)

// maxTerminalCommandLength bounds the terminal request body. a legitimate
// interactive command fits in far less; anything longer is either an
// accident or an attempt to smuggle a script through the gateway.
const maxTerminalCommandLength = 1000

// commandExecutor is the slice of the gateway the terminal endpoint needs.
// an interface so handler tests run without a docker daemon.
type commandExecutor interface {
	Execute(ctx context.Context, containerName string, commandString string) (*docker.ExecResult, error)
	ExecuteShortcut(ctx context.Context, containerName string, commandString string) (*docker.ExecResult, error)
}

// DeploymentHandler holds the dependencies for the deployment endpoints.
type DeploymentHandler struct {
	database        *db.Database
	orchestrator    *deploy.Orchestrator
	commandGateway  commandExecutor
	containerPrefix string
	subdomainBase   string
	logger          *slog.Logger
}

// NewDeploymentHandler constructs a DeploymentHandler.
func NewDeploymentHandler(
	database *db.Database,
	orchestrator *deploy.Orchestrator,
	commandGateway *gateway.Gateway,
	containerPrefix string,
	subdomainBase string,
	logger *slog.Logger,
) *DeploymentHandler {
	return &DeploymentHandler{
		database:        database,
		orchestrator:    orchestrator,
		commandGateway:  commandGateway,
		containerPrefix: containerPrefix,
		subdomainBase:   subdomainBase,
		logger:          logger,
	}
}

// Deploy handles POST /api/projects/{id}/deploy.
// the heavy lifting happens on the worker; this endpoint persists the QUEUED
// row, enqueues the job and returns immediately. 202 Accepted is the honest
// status: the work is accepted, not done.
func (handler *DeploymentHandler) Deploy(responseWriter http.ResponseWriter, request *http.Request) {
	userID, err := requireUserID(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	projectID := chi.URLParam(request, "id")
	deployment, err := handler.orchestrator.CreateDeployment(request.Context(), projectID, userID)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	writeJsonAndRespond(responseWriter, http.StatusAccepted, map[string]string{
		"deploymentId": deployment.ID,
		"message":      "deployment queued",
	})
}

// terminalRequest is the JSON body of POST /api/projects/{id}/terminal.
type terminalRequest struct {
	Command string `json:"command"`
}

// terminalResponse mirrors the gateway's exec result.
type terminalResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Terminal handles POST /api/projects/{id}/terminal: one command executed
// inside the project's running container through the gateway. a leading "/"
// selects the shortcut registry, anything else goes through the allow-list.
// the project must currently be DEPLOYED; a queued or failed project has no
// container worth talking to.
func (handler *DeploymentHandler) Terminal(responseWriter http.ResponseWriter, request *http.Request) {
	project, err := handler.ownedProject(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	var body terminalRequest
	if err := decodeJSONBody(request, &body); err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	command := strings.TrimSpace(body.Command)
	if command == "" {
		writeClassifiedError(responseWriter, errs.New(errs.KindValidation, "command is required"), handler.logger)
		return
	}
	if len(command) > maxTerminalCommandLength {
		writeClassifiedError(responseWriter, errs.New(errs.KindValidation,
			"command exceeds %d characters", maxTerminalCommandLength), handler.logger)
		return
	}

	if err := handler.requireDeployed(project); err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	containerName := models.ContainerName(handler.containerPrefix, project.Slug)

	var result *docker.ExecResult
	if strings.HasPrefix(command, "/") {
		result, err = handler.commandGateway.ExecuteShortcut(request.Context(), containerName, command)
	} else {
		result, err = handler.commandGateway.Execute(request.Context(), containerName, command)
	}
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, terminalResponse{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	})
}

// resolveResponse is the reverse-proxy contract: the subdomain's live host
// port plus a ready-to-dial loopback target. Host echoes back the full
// hostname the proxy matched, "<subdomain>.<base>".
type resolveResponse struct {
	HostPort int    `json:"hostPort"`
	Target   string `json:"target"`
	Host     string `json:"host"`
}

// Resolve handles GET /api/resolve/{subdomain}.
// the reverse proxy calls this to map an incoming Host header label to the
// backend it should forward to. no auth: the proxy is infrastructure, and
// the response reveals nothing beyond a loopback port number.
func (handler *DeploymentHandler) Resolve(responseWriter http.ResponseWriter, request *http.Request) {
	subdomain := chi.URLParam(request, "subdomain")

	deployment, err := handler.database.FindDeployedBySubdomain(subdomain)
	if errors.Is(err, db.ErrRecordNotFound) {
		writeClassifiedError(responseWriter,
			errs.New(errs.KindNotFound, "no live deployment for subdomain %q", subdomain), handler.logger)
		return
	}
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}
	if deployment.ContainerPort == nil {
		// a DEPLOYED row without a port violates the terminal-state invariant;
		// report it as unavailable rather than handing the proxy port 0.
		writeClassifiedError(responseWriter,
			errs.New(errs.KindInternal, "deployment %q has no port recorded", deployment.ID), handler.logger)
		return
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, resolveResponse{
		HostPort: *deployment.ContainerPort,
		Target:   fmt.Sprintf("127.0.0.1:%d", *deployment.ContainerPort),
		Host:     subdomain + "." + handler.subdomainBase,
	})
}

// requireDeployed checks that the project has a live DEPLOYED deployment.
// the live one is whichever holds the project's subdomain, not the newest
// row: a redeploy in flight (QUEUED/BUILDING) must not lock the terminal out
// of the container that is still serving traffic.
func (handler *DeploymentHandler) requireDeployed(project *models.Project) error {
	_, err := handler.database.FindDeployedBySubdomain(project.Slug)
	if errors.Is(err, db.ErrRecordNotFound) {
		return errs.New(errs.KindValidation, "project is not deployed; deploy it before opening a terminal")
	}
	return err
}

// ownedProject mirrors the project handler's ownership check for the
// deployment routes, which hang off the same {id} parameter.
func (handler *DeploymentHandler) ownedProject(request *http.Request) (*models.Project, error) {
	userID, err := requireUserID(request)
	if err != nil {
		return nil, err
	}

	projectID := chi.URLParam(request, "id")
	project, err := handler.database.GetProject(projectID)
	if errors.Is(err, db.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "project %q not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, errs.New(errs.KindNotFound, "project %q not found", projectID)
	}
	return project, nil
}
