package db

// projects.go contains all SQL query functions for the projects table.
// raw SQL is used intentionally: it keeps the query layer explicit, avoids
// ORM magic, and makes the SQL readable and auditable.

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sasta-kro/dropdeploy/models"
)

// ErrRecordNotFound is returned by the Get/Update/Delete functions when no
// row matches. callers check for this sentinel error to distinguish
// "not found" (404) from a real database error (500).
var ErrRecordNotFound = errors.New("record not found")

// ErrSlugTaken is returned by InsertProject when the slug collides with an
// existing project. the handler retries with a suffixed slug.
var ErrSlugTaken = errors.New("slug already taken")

// InsertProject writes a new project row. the project struct must have ID,
// UserID, Name, Slug, RepoURL, Framework and Branch populated by the caller.
// CreatedAt/UpdatedAt are set here so record metadata is consistent across
// all inserts regardless of caller.
func (database *Database) InsertProject(project *models.Project) error {
	query := `
		INSERT INTO projects (
			id, user_id, name, slug, repo_url, framework, branch,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	timeNow := time.Now().UTC()
	project.CreatedAt = timeNow
	project.UpdatedAt = timeNow

	_, err := database.connection.Exec(query,
		project.ID,
		project.UserID,
		project.Name,
		project.Slug,
		project.RepoURL,
		project.Framework,
		project.Branch,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		// the driver reports the UNIQUE violation as a plain error string;
		// mapping it to a sentinel keeps the slug-retry logic out of SQL-land.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.slug") {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to insert project %q: %w", project.ID, err)
	}
	return nil
}

// GetProject fetches a single project row by its UUID.
// returns ErrRecordNotFound if no row matches, which callers map to HTTP 404.
func (database *Database) GetProject(id string) (*models.Project, error) {
	query := `
		SELECT id, user_id, name, slug, repo_url, framework, branch,
		       created_at, updated_at
		FROM projects
		WHERE id = ?
	`

	row := database.connection.QueryRow(query, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", id, err)
	}
	return project, nil
}

// GetProjectBySlug fetches a single project row by slug. used by the
// reverse-proxy resolve endpoint and by slug-collision checks.
func (database *Database) GetProjectBySlug(slug string) (*models.Project, error) {
	query := `
		SELECT id, user_id, name, slug, repo_url, framework, branch,
		       created_at, updated_at
		FROM projects
		WHERE slug = ?
	`

	row := database.connection.QueryRow(query, slug)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by slug %q: %w", slug, err)
	}
	return project, nil
}

// ListProjects returns all projects owned by a user, newest first.
func (database *Database) ListProjects(userID string) ([]*models.Project, error) {
	query := `
		SELECT id, user_id, name, slug, repo_url, framework, branch,
		       created_at, updated_at
		FROM projects
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := database.connection.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	// rows.Close releases the connection back to the pool. deferred
	// immediately after checking the Query error, because rows is nil on error.
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, project)
	}

	// iteration errors are separate from scan errors and must be checked
	// after the loop, not inside it.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// UpdateProjectBranch changes the branch the project deploys from.
// the next deployment's repository update will fetch and check out the new
// branch in the existing working directory (no re-clone).
func (database *Database) UpdateProjectBranch(id string, branch string) error {
	query := `UPDATE projects SET branch = ?, updated_at = ? WHERE id = ?`

	result, err := database.connection.Exec(query, branch, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update branch for project %q: %w", id, err)
	}
	return requireRowAffected(result)
}

// DeleteProject removes a project row and all of its deployment rows.
// the caller (handler) is responsible for stopping and removing the
// project's container FIRST; the database rows are the last thing deleted.
func (database *Database) DeleteProject(id string) error {
	// deployments first so no orphan rows survive a crash between the two
	// statements (a dangling project row is recoverable, dangling deployments
	// with a claimed subdomain are not).
	_, err := database.connection.Exec(`DELETE FROM deployments WHERE project_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deployments for project %q: %w", id, err)
	}

	result, err := database.connection.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %q: %w", id, err)
	}
	return requireRowAffected(result)
}

// requireRowAffected turns a zero-row UPDATE/DELETE into ErrRecordNotFound.
// RowsAffected returns 0 when no row matched the WHERE clause; surfacing
// that prevents silent no-ops on mistyped ids.
func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// scanProject reads a single database row into a Project struct.
func scanProject(row scanner) (*models.Project, error) {
	var project models.Project
	err := row.Scan(
		&project.ID,
		&project.UserID,
		&project.Name,
		&project.Slug,
		&project.RepoURL,
		&project.Framework,
		&project.Branch,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &project, nil
}
