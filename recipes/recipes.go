// Package recipes is the catalog of container build recipes. for each
// supported framework it declares (a) the Dockerfile text written into the
// build context root and (b) the internal port the application listens on.
// the recipes are deliberately fixed string constants: four frameworks with
// zero interpolation do not need a template engine, and a recipe that can be
// read top to bottom in this file is a recipe that can be audited.
package recipes

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sasta-kro/dropdeploy/models"
)

// Recipe pairs the Dockerfile content with the port the resulting container
// listens on internally. the engine adapter binds an allocated host port to
// InternalPort when it creates the container.
type Recipe struct {
	Dockerfile   string
	InternalPort int
}

// staticRecipe serves a pre-built tree straight from a static file server.
// nginx:alpine is chosen over nginx:latest because it is significantly
// smaller (~40MB vs ~180MB), has a minimal attack surface, and has
// everything needed to serve static files over HTTP.
const staticRecipe = `FROM nginx:alpine
COPY . /usr/share/nginx/html
EXPOSE 80
`

// nodejsRecipe installs production dependencies and runs the package's
// "start" script. a project without a start script builds a perfectly valid
// image that exits immediately, or in some configurations builds nothing at
// all; the adapter's post-build verification catches the latter.
const nodejsRecipe = `FROM node:20-alpine
WORKDIR /app
COPY package*.json ./
RUN npm install --omit=dev
COPY . .
EXPOSE 3000
CMD ["npm", "start"]
`

// nextjsRecipe is a two-stage build: the builder stage carries the full
// toolchain and source, the runtime stage keeps only the build artifacts and
// production dependencies. this roughly halves the final image size.
const nextjsRecipe = `FROM node:20-alpine AS builder
WORKDIR /app
COPY package*.json ./
RUN npm install
COPY . .
RUN npm run build

FROM node:20-alpine
WORKDIR /app
COPY --from=builder /app/package*.json ./
COPY --from=builder /app/node_modules ./node_modules
COPY --from=builder /app/.next ./.next
COPY --from=builder /app/public ./public
EXPOSE 3000
CMD ["npm", "start"]
`

// djangoRecipe installs from requirements.txt and runs the development
// server bound to 0.0.0.0 so it accepts traffic from outside the container.
const djangoRecipe = `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
EXPOSE 8000
CMD ["python", "manage.py", "runserver", "0.0.0.0:8000"]
`

// catalog maps each framework to its recipe. adding a framework means adding
// a constant above and one entry here.
var catalog = map[models.Framework]Recipe{
	models.FrameworkStatic: {Dockerfile: staticRecipe, InternalPort: 80},
	models.FrameworkNodeJS: {Dockerfile: nodejsRecipe, InternalPort: 3000},
	models.FrameworkNextJS: {Dockerfile: nextjsRecipe, InternalPort: 3000},
	models.FrameworkDjango: {Dockerfile: djangoRecipe, InternalPort: 8000},
}

// ForFramework returns the recipe for a framework, or an error for a value
// outside the catalog (which means a row was written without validation).
func ForFramework(framework models.Framework) (Recipe, error) {
	recipe, found := catalog[framework]
	if !found {
		return Recipe{}, fmt.Errorf("no recipe for framework %q", framework)
	}
	return recipe, nil
}

// PrepareContext makes a checked-out working directory buildable:
// it writes the recipe as `Dockerfile` into the context root (overwriting any
// Dockerfile the repository ships, the platform's recipe is authoritative)
// and applies the framework-specific pre-build fixups.
func PrepareContext(contextDir string, framework models.Framework, logger *slog.Logger) (Recipe, error) {
	recipe, err := ForFramework(framework)
	if err != nil {
		return Recipe{}, err
	}

	if framework == models.FrameworkNextJS {
		// user repos routinely fail `next build` on lint or type errors that
		// have nothing to do with whether the site runs. patch the config
		// before the image build so those do not abort the deployment.
		patchNextConfig(contextDir, logger)
	}

	dockerfilePath := filepath.Join(contextDir, "Dockerfile")
	err = os.WriteFile(dockerfilePath, []byte(recipe.Dockerfile), 0644)
	if err != nil {
		return Recipe{}, fmt.Errorf("failed to write Dockerfile into %q: %w", contextDir, err)
	}

	return recipe, nil
}
