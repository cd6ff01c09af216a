package handlers

// router.go constructs the chi router, registers all middleware, and wires
// all routes to their handlers. it is the single source of truth for the
// HTTP surface area of the API; adding an endpoint means adding one line
// here, nothing else.

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/gateway"
)

// RouterDependencies groups everything the router and its handlers need.
// a single struct instead of N arguments keeps CreateAndSetupRouter's
// signature stable as handlers are added; a new dependency is one field
// here, not a change at every call site.
type RouterDependencies struct {
	Logger          *slog.Logger
	Database        *db.Database
	Orchestrator    *deploy.Orchestrator
	CommandGateway  *gateway.Gateway
	ContainerPrefix string
	SubdomainBase   string
	AllowedOrigin   string
}

// CreateAndSetupRouter constructs the chi multiplexer, attaches middleware,
// constructs all handlers with their dependencies, and registers all routes.
// it returns a plain http.Handler so main has no chi import or awareness.
func CreateAndSetupRouter(dependencies RouterDependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(RequestLogger(dependencies.Logger))
	router.Use(middleware.Recoverer)
	router.Use(CORSMiddleware(dependencies.AllowedOrigin))

	healthHandler := NewHealthHandler(dependencies.Logger)
	projectHandler := NewProjectHandler(dependencies.Database, dependencies.Orchestrator, dependencies.Logger)
	deploymentHandler := NewDeploymentHandler(
		dependencies.Database,
		dependencies.Orchestrator,
		dependencies.CommandGateway,
		dependencies.ContainerPrefix,
		dependencies.SubdomainBase,
		dependencies.Logger,
	)

	// /health stays at the root level: load balancers and uptime monitors
	// expect it there and know nothing about the /api grouping.
	router.Get("/health", healthHandler.Health)

	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Post("/projects", projectHandler.CreateProject)
		apiRouter.Get("/projects", projectHandler.ListProjects)
		apiRouter.Get("/projects/{id}", projectHandler.GetProject)
		apiRouter.Delete("/projects/{id}", projectHandler.DeleteProject)

		apiRouter.Post("/projects/{id}/deploy", deploymentHandler.Deploy)
		apiRouter.Post("/projects/{id}/terminal", deploymentHandler.Terminal)

		// the reverse proxy's lookup endpoint.
		apiRouter.Get("/resolve/{subdomain}", deploymentHandler.Resolve)
	})

	return router
}
