package db

// deployments.go contains all SQL query functions for the deployments table.
// the orchestrator is the only writer after insertion; each function below is
// a single-row UPDATE, which is what serializes state transitions for one
// deployment id (SQLite executes them one at a time on the single connection).

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sasta-kro/dropdeploy/models"
)

// InsertDeployment writes a new deployment row. the struct must have ID,
// ProjectID and Status populated by the caller (the orchestrator inserts
// with StatusQueued).
func (database *Database) InsertDeployment(deployment *models.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, project_id, status, build_step, container_port,
			subdomain, logs, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	timeNow := time.Now().UTC()
	deployment.CreatedAt = timeNow
	deployment.UpdatedAt = timeNow

	_, err := database.connection.Exec(query,
		deployment.ID,
		deployment.ProjectID,
		deployment.Status,
		deployment.BuildStep,     // *BuildStep, nil inserts NULL
		deployment.ContainerPort, // *int, nil inserts NULL
		deployment.Subdomain,     // *string, nil inserts NULL
		deployment.Logs,
		deployment.StartedAt,   // *time.Time, nil inserts NULL
		deployment.CompletedAt, // *time.Time, nil inserts NULL
		deployment.CreatedAt,
		deployment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment %q: %w", deployment.ID, err)
	}
	return nil
}

// GetDeployment fetches a single deployment row by its UUID.
// returns ErrRecordNotFound if no row matches. the pipeline treats that as a
// stale job (the deployment was deleted after the job was queued).
func (database *Database) GetDeployment(id string) (*models.Deployment, error) {
	query := `
		SELECT id, project_id, status, build_step, container_port,
		       subdomain, logs, started_at, completed_at, created_at, updated_at
		FROM deployments
		WHERE id = ?
	`

	row := database.connection.QueryRow(query, id)
	deployment, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment %q: %w", id, err)
	}
	return deployment, nil
}

// ListDeploymentsForProject returns the most recent deployments of a project,
// newest first, capped at limit. clients render these to show progress.
func (database *Database) ListDeploymentsForProject(projectID string, limit int) ([]*models.Deployment, error) {
	query := `
		SELECT id, project_id, status, build_step, container_port,
		       subdomain, logs, started_at, completed_at, created_at, updated_at
		FROM deployments
		WHERE project_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := database.connection.Query(query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments for project %q: %w", projectID, err)
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		deployment, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment row: %w", err)
		}
		deployments = append(deployments, deployment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployment rows: %w", err)
	}

	return deployments, nil
}

// MarkBuilding moves a deployment into the BUILDING state: sets the first
// build step (CLONING) and stamps started_at. called once per pipeline run,
// right before the repository manager starts work.
func (database *Database) MarkBuilding(id string, startedAt time.Time) error {
	query := `
		UPDATE deployments
		SET status = ?, build_step = ?, started_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := database.connection.Exec(query,
		models.StatusBuilding, models.StepCloning, startedAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark deployment %q building: %w", id, err)
	}
	return requireRowAffected(result)
}

// UpdateBuildStep advances the build step marker while status is BUILDING.
// steps advance strictly CLONING -> BUILDING_IMAGE -> STARTING; the
// orchestrator owns that ordering, this function just persists it.
func (database *Database) UpdateBuildStep(id string, step models.BuildStep) error {
	query := `UPDATE deployments SET build_step = ?, updated_at = ? WHERE id = ?`

	result, err := database.connection.Exec(query, step, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update build step for deployment %q: %w", id, err)
	}
	return requireRowAffected(result)
}

// MarkDeployed writes the terminal success state in one statement:
// status DEPLOYED, build_step NULL, the allocated host port, the subdomain,
// and completed_at. a single UPDATE keeps the terminal-state invariants
// (step null, completed set, port+subdomain set) atomic.
func (database *Database) MarkDeployed(id string, hostPort int, subdomain string, logs string) error {
	query := `
		UPDATE deployments
		SET status = ?, build_step = NULL, container_port = ?,
		    subdomain = ?, logs = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	timeNow := time.Now().UTC()
	result, err := database.connection.Exec(query,
		models.StatusDeployed, hostPort, subdomain, logs, timeNow, timeNow, id)
	if err != nil {
		return fmt.Errorf("failed to mark deployment %q deployed: %w", id, err)
	}
	return requireRowAffected(result)
}

// MarkFailed writes the terminal failure state: status FAILED, build_step
// NULL, completed_at, and the tail of the error output into logs.
func (database *Database) MarkFailed(id string, logs string) error {
	query := `
		UPDATE deployments
		SET status = ?, build_step = NULL, logs = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	timeNow := time.Now().UTC()
	result, err := database.connection.Exec(query,
		models.StatusFailed, logs, timeNow, timeNow, id)
	if err != nil {
		return fmt.Errorf("failed to mark deployment %q failed: %w", id, err)
	}
	return requireRowAffected(result)
}

// ClearSubdomainOnOtherDeployments nulls the subdomain on every deployment of
// the project except the one being promoted. called immediately before
// MarkDeployed so the partial unique index on subdomain never fires: the old
// holder releases the label, then the new deployment claims it.
// zero rows affected is fine (first deployment of a project).
func (database *Database) ClearSubdomainOnOtherDeployments(projectID string, subdomain string, excludeID string) error {
	query := `
		UPDATE deployments
		SET subdomain = NULL, updated_at = ?
		WHERE project_id = ? AND subdomain = ? AND id != ?
	`

	_, err := database.connection.Exec(query, time.Now().UTC(), projectID, subdomain, excludeID)
	if err != nil {
		return fmt.Errorf("failed to clear subdomain %q on other deployments: %w", subdomain, err)
	}
	return nil
}

// FindDeployedBySubdomain resolves a subdomain label to its live deployment.
// this is the reverse-proxy contract: the proxy reads (subdomain, host port)
// and forwards traffic to the loopback address on that port.
func (database *Database) FindDeployedBySubdomain(subdomain string) (*models.Deployment, error) {
	query := `
		SELECT id, project_id, status, build_step, container_port,
		       subdomain, logs, started_at, completed_at, created_at, updated_at
		FROM deployments
		WHERE subdomain = ? AND status = ?
	`

	row := database.connection.QueryRow(query, subdomain, models.StatusDeployed)
	deployment, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subdomain %q: %w", subdomain, err)
	}
	return deployment, nil
}

// SweepStuckBuilding marks every deployment still in BUILDING as FAILED.
// a worker killed mid-pipeline leaves rows in BUILDING forever (no queue job
// will reference them again once retries are exhausted), so the worker runs
// this once at startup before consuming jobs. returns how many rows it swept.
func (database *Database) SweepStuckBuilding(reason string) (int64, error) {
	query := `
		UPDATE deployments
		SET status = ?, build_step = NULL, logs = ?, completed_at = ?, updated_at = ?
		WHERE status = ?
	`

	timeNow := time.Now().UTC()
	result, err := database.connection.Exec(query,
		models.StatusFailed, reason, timeNow, timeNow, models.StatusBuilding)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck deployments: %w", err)
	}

	sweptCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read swept row count: %w", err)
	}
	return sweptCount, nil
}

// scanDeployment reads a single database row into a Deployment struct.
// all pointer fields are scanned into their pointer types directly;
// database/sql sets them to nil for NULL columns.
func scanDeployment(row scanner) (*models.Deployment, error) {
	var deployment models.Deployment
	err := row.Scan(
		&deployment.ID,
		&deployment.ProjectID,
		&deployment.Status,
		&deployment.BuildStep,     // scans NULL -> nil *BuildStep
		&deployment.ContainerPort, // scans NULL -> nil *int
		&deployment.Subdomain,     // scans NULL -> nil *string
		&deployment.Logs,
		&deployment.StartedAt,   // scans NULL -> nil *time.Time
		&deployment.CompletedAt, // scans NULL -> nil *time.Time
		&deployment.CreatedAt,
		&deployment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}
