package handlers

// projects.go covers the project resource: registration, listing, detail
// (with recent deployments) and deletion. every endpoint requires the caller
// identity header and reports projects the caller does not own as not found.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/models"
	"github.com/sasta-kro/dropdeploy/util"
)

// recentDeploymentsShown caps how many deployments ride along on the project
// detail response. clients wanting full history page through the list.
const recentDeploymentsShown = 5

// ProjectHandler holds the dependencies for the project endpoints.
type ProjectHandler struct {
	database     *db.Database
	orchestrator *deploy.Orchestrator
	logger       *slog.Logger
}

// NewProjectHandler constructs a ProjectHandler.
func NewProjectHandler(database *db.Database, orchestrator *deploy.Orchestrator, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{database: database, orchestrator: orchestrator, logger: logger}
}

// createProjectRequest is the JSON body of POST /api/projects.
type createProjectRequest struct {
	Name      string `json:"name"`
	RepoURL   string `json:"repoUrl"`
	Framework string `json:"framework"`
	Branch    string `json:"branch"`
}

// projectDetailResponse is the project plus its most recent deployments.
type projectDetailResponse struct {
	*models.Project
	Deployments []*models.Deployment `json:"deployments"`
}

// CreateProject handles POST /api/projects.
// derives the slug from the name and retries once with a random suffix when
// the plain slug is already taken; a second collision (16 bits of entropy
// colliding twice) is reported as an error rather than looped on.
func (handler *ProjectHandler) CreateProject(responseWriter http.ResponseWriter, request *http.Request) {
	userID, err := requireUserID(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	var body createProjectRequest
	if err := decodeJSONBody(request, &body); err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	if body.Name == "" {
		writeClassifiedError(responseWriter, errs.New(errs.KindValidation, "name is required"), handler.logger)
		return
	}
	if body.RepoURL == "" {
		writeClassifiedError(responseWriter, errs.New(errs.KindValidation, "repoUrl is required"), handler.logger)
		return
	}
	framework := models.Framework(body.Framework)
	if !framework.Valid() {
		writeClassifiedError(responseWriter, errs.New(errs.KindValidation,
			"framework %q is not supported (STATIC, NODEJS, NEXTJS, DJANGO)", body.Framework), handler.logger)
		return
	}
	branch := body.Branch
	if branch == "" {
		branch = "main"
	}

	project := &models.Project{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      body.Name,
		Slug:      util.Slugify(body.Name),
		RepoURL:   body.RepoURL,
		Framework: framework,
		Branch:    branch,
	}

	err = handler.database.InsertProject(project)
	if errors.Is(err, db.ErrSlugTaken) {
		project.Slug = util.SlugWithSuffix(project.Slug)
		err = handler.database.InsertProject(project)
	}
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	handler.logger.Info("project created", "project_id", project.ID, "slug", project.Slug)
	writeJsonAndRespond(responseWriter, http.StatusCreated, project)
}

// ListProjects handles GET /api/projects: all projects owned by the caller,
// newest first.
func (handler *ProjectHandler) ListProjects(responseWriter http.ResponseWriter, request *http.Request) {
	userID, err := requireUserID(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	projects, err := handler.database.ListProjects(userID)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}
	if projects == nil {
		projects = []*models.Project{} // JSON [] instead of null
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, projects)
}

// GetProject handles GET /api/projects/{id}: the project with its most
// recent deployments so a dashboard can render status and build step in one
// round trip.
func (handler *ProjectHandler) GetProject(responseWriter http.ResponseWriter, request *http.Request) {
	project, err := handler.ownedProject(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	deployments, err := handler.database.ListDeploymentsForProject(project.ID, recentDeploymentsShown)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}
	if deployments == nil {
		deployments = []*models.Deployment{}
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, projectDetailResponse{
		Project:     project,
		Deployments: deployments,
	})
}

// DeleteProject handles DELETE /api/projects/{id}.
// the running container is stopped and removed FIRST; the rows are deleted
// last, so a crash in between leaves a recoverable project row rather than
// an orphaned container nothing references anymore.
func (handler *ProjectHandler) DeleteProject(responseWriter http.ResponseWriter, request *http.Request) {
	project, err := handler.ownedProject(request)
	if err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	if err := handler.orchestrator.StopProjectContainer(request.Context(), project.Slug); err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	if err := handler.database.DeleteProject(project.ID); err != nil {
		writeClassifiedError(responseWriter, err, handler.logger)
		return
	}

	handler.logger.Info("project deleted", "project_id", project.ID, "slug", project.Slug)
	writeJsonAndRespond(responseWriter, http.StatusOK, map[string]string{
		"message": "project deleted",
	})
}

// ownedProject loads the {id} route parameter's project and verifies the
// caller owns it. both "no such project" and "someone else's project" come
// back as NotFound: confirming that a foreign project id exists would leak
// more than the imprecise error costs.
func (handler *ProjectHandler) ownedProject(request *http.Request) (*models.Project, error) {
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
