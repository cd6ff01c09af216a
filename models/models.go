// Package models defines the data structures (structs) shared across the application.
// this package has no imports from other internal packages, making it the
// foundation of the dependency graph. other packages (db, handlers, deploy) import from here.
package models

import "time"

// Framework classifies a project's source tree so the recipe catalog can pick
// the right container build recipe and internal port.
// using a named string type instead of plain string enforces that only valid
// framework values are used at compile time when combined with the constants below.
type Framework string

const (
	// FrameworkStatic is a pre-built static site served by a file server on port 80
	FrameworkStatic Framework = "STATIC"

	// FrameworkNodeJS is a node application started via its package "start" script, port 3000
	FrameworkNodeJS Framework = "NODEJS"

	// FrameworkNextJS is a Next.js application built in two stages, port 3000
	FrameworkNextJS Framework = "NEXTJS"

	// FrameworkDjango is a Django application run from requirements.txt, port 8000
	FrameworkDjango Framework = "DJANGO"
)

// Valid reports whether the framework is one of the declared constants.
// handlers call this before persisting anything user-supplied.
func (framework Framework) Valid() bool {
	switch framework {
	case FrameworkStatic, FrameworkNodeJS, FrameworkNextJS, FrameworkDjango:
		return true
	}
	return false
}

// DeploymentStatus represents the current lifecycle state of a deployment.
type DeploymentStatus string

const (
	// StatusQueued means the row is persisted and a job is (or will be) waiting in the queue
	StatusQueued DeploymentStatus = "QUEUED"

	// StatusBuilding means the pipeline is actively running (cloning, building the image, starting)
	StatusBuilding DeploymentStatus = "BUILDING"

	// StatusDeployed means the container is running and the subdomain routes to it. terminal.
	StatusDeployed DeploymentStatus = "DEPLOYED"

	// StatusFailed means the pipeline encountered an error and did not complete. terminal.
	StatusFailed DeploymentStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
// the state machine only allows QUEUED -> BUILDING -> {DEPLOYED | FAILED},
// with FAILED reachable from any non-terminal state.
func (status DeploymentStatus) Terminal() bool {
	return status == StatusDeployed || status == StatusFailed
}

// BuildStep is the fine-grained progress marker surfaced to clients while a
// deployment is in the BUILDING state. it is nil (NULL in the database)
// whenever the status is not BUILDING.
type BuildStep string

const (
	// StepCloning: the repository manager is cloning or updating the working directory
	StepCloning BuildStep = "CLONING"

	// StepBuildingImage: the container engine is building the image from the recipe
	StepBuildingImage BuildStep = "BUILDING_IMAGE"

	// StepStarting: the old container is being replaced and the new one started
	StepStarting BuildStep = "STARTING"
)

/*
Project is created when a user registers a source repository.
it maps 1:1 to the projects table in SQLite.

`json` struct tags control how the struct is serialized to JSON in HTTP responses.
`omitempty` on pointer fields means the key is omitted from JSON output when the
value is nil, which keeps API responses clean for fields that are not always populated.
*/
type Project struct {
	// ID is a UUID v4, generated at creation time, used as the primary key
	ID string `json:"id"`

	// UserID identifies the owner. authentication itself lives upstream;
	// the core only compares this field for ownership checks.
	UserID string `json:"user_id"`

	// Name is the human-readable label the user assigns to the project
	Name string `json:"name"`

	// Slug is the URL-safe, globally unique identifier derived from Name.
	// it is used verbatim as the subdomain and as the root of the container
	// and image names ("<prefix>-<slug>", "<prefix>/<slug>:latest").
	Slug string `json:"slug"`

	// RepoURL is the public git repository URL the project deploys from
	RepoURL string `json:"repo_url"`

	// Framework selects the build recipe and internal port
	Framework Framework `json:"framework"`

	// Branch is the git branch to deploy from, defaults to "main"
	Branch string `json:"branch"`

	// CreatedAt is set once at row insertion time
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every mutation
	UpdatedAt time.Time `json:"updated_at"`
}

/*
Deployment is a single attempt to build and run a Project at a point in time.
created as QUEUED by the orchestrator, mutated only by the orchestrator as the
pipeline advances, terminal in DEPLOYED or FAILED.

Pointer fields (*string, *int, *time.Time) are for genuinely optional data:
a queued deployment has no build step, no port, no subdomain and no
completion time yet, and NULL is the honest representation of that.
*/
type Deployment struct {
	// ID is a UUID v4, generated at creation time, used as the primary key
	ID string `json:"id"`

	// ProjectID links back to the owning project
	ProjectID string `json:"project_id"`

	// Status is the current lifecycle state (QUEUED/BUILDING/DEPLOYED/FAILED)
	Status DeploymentStatus `json:"status"`

	// BuildStep is the progress marker while Status is BUILDING, nil otherwise
	BuildStep *BuildStep `json:"build_step,omitempty"`

	// ContainerPort is the allocated host port the container publishes on.
	// non-nil exactly when the deployment reached DEPLOYED.
	ContainerPort *int `json:"container_port,omitempty"`

	// Subdomain is the DNS label the reverse proxy routes to this deployment.
	// at most one deployment per project holds a given non-nil subdomain;
	// it always equals the project slug while this deployment is the live one.
	Subdomain *string `json:"subdomain,omitempty"`

	// Logs holds the tail of build output on failure (or a short success note).
	// this is a persisted outcome, not a live log stream.
	Logs string `json:"logs"`

	// StartedAt is when the pipeline began executing (BUILDING), nil while QUEUED
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is set exactly when the deployment reaches a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt is set once at row insertion time
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every status transition
	UpdatedAt time.Time `json:"updated_at"`
}

// ContainerName derives the deterministic container name for a project.
// derived, never stored: the slug is the single source of truth.
func ContainerName(prefix, slug string) string {
	return prefix + "-" + slug
}

// ImageRef derives the deterministic image reference for a project.
func ImageRef(prefix, slug string) string {
	return prefix + "/" + slug + ":latest"
}
