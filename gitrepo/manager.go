// Package gitrepo maintains the per-project on-disk working directories the
// pipeline builds from. one directory per project at <projectsRoot>/<slug>,
// created on first deploy, updated in place thereafter, surviving deployments.
//
// This package shells out to the system `git` binary via exec.Command()
// rather than using a pure-Go git library (go-git). The native binary is
// faster, handles all protocol edge cases (including shallow->full
// conversion, which pure-Go implementations handle poorly), and avoids
// pulling in 30+ transitive dependencies for fire-and-forget operations.
// The deploy host's image must include git (one `apk add git` line).
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/util"
)

// fetchRefspec is written onto origin before every update. the initial clone
// may have been shallow and single-branch, which leaves a narrow refspec
// like "+refs/heads/main:refs/remotes/origin/main" in the repo config; a
// later branch switch would then never see the new branch. overwriting with
// the wildcard refspec makes every remote branch discoverable.
const fetchRefspec = "+refs/heads/*:refs/remotes/origin/*"

// gitErrorTailBytes caps how much git stderr is carried inside an error.
const gitErrorTailBytes = 2048

// Manager owns the repository root directory. it holds no per-project state;
// the filesystem is the state, partitioned by slug.
type Manager struct {
	rootDir string
	logger  *slog.Logger
}

// NewManager constructs a Manager rooted at rootDir, creating it if absent.
func NewManager(rootDir string, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects root %q: %w", rootDir, err)
	}
	return &Manager{rootDir: rootDir, logger: logger}, nil
}

// WorkingDir returns the deterministic on-disk path for a project's checkout.
func (manager *Manager) WorkingDir(slug string) string {
	return filepath.Join(manager.rootDir, slug)
}

/*
EnsureRepo returns a local filesystem path containing a fully checked-out
working tree pinned to the tip of the named branch on origin.

First call for a slug performs a full clone. Every later call updates the
existing directory in place:

 1. overwrite origin's fetch refspec so all remote branches are discoverable
 2. fetch (with --unshallow when a shallow marker is present) and prune
 3. check out the branch, creating a local tracking branch if it is new here
 4. hard-reset the working tree to origin/<branch>

On success the tree matches the remote tip, the repository is non-shallow,
and uncommitted local edits are discarded. The call is safe to repeat; the
second run performs no clone and yields an identical tree. Every failure
(network, auth, missing branch, filesystem) comes back as a CloneFailed
error carrying the tail of git's stderr.
*/
func (manager *Manager) EnsureRepo(ctx context.Context, repoURL, slug, branch string) (string, error) {
	workingDir := manager.WorkingDir(slug)
	gitDir := filepath.Join(workingDir, ".git")

	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		return workingDir, manager.cloneFresh(ctx, repoURL, branch, workingDir)
	}

	return workingDir, manager.updateExisting(ctx, workingDir, branch)
}

// cloneFresh performs the first-time full clone targeting the branch.
// a full clone (not --depth 1) is deliberate: the directory lives across
// deployments and later branch switches need the full ref history anyway.
func (manager *Manager) cloneFresh(ctx context.Context, repoURL, branch, workingDir string) error {
	manager.logger.Info("cloning repository", "url", repoURL, "branch", branch, "dir", workingDir)

	// git clone creates the destination directory itself; a half-created
	// directory from a previous failed clone would make it bail, so clear
	// any leftover non-repo directory first.
	if err := os.RemoveAll(workingDir); err != nil {
		return errs.Wrap(errs.KindCloneFailed, err, "failed to clear working directory %q", workingDir)
	}

	err := manager.runGit(ctx, "", "clone", "--branch", branch, repoURL, workingDir)
	if err != nil {
		return err
	}

	manager.logger.Info("clone complete", "dir", workingDir)
	return nil
}

// updateExisting brings an already-cloned directory to the remote tip of the
// requested branch without re-cloning.
func (manager *Manager) updateExisting(ctx context.Context, workingDir, branch string) error {
	manager.logger.Info("updating repository", "dir", workingDir, "branch", branch)

	// step 1: widen the fetch refspec (see the constant above).
	err := manager.runGit(ctx, workingDir, "config", "remote.origin.fetch", fetchRefspec)
	if err != nil {
		return err
	}

	// step 2: fetch. the shallow marker file is how git itself records a
	// shallow clone; its presence means this fetch must also deepen to full
	// history or later resets against origin/<branch> can fail.
	if manager.isShallow(workingDir) {
		err = manager.runGit(ctx, workingDir, "fetch", "--unshallow", "--prune", "origin")
	} else {
		err = manager.runGit(ctx, workingDir, "fetch", "--prune", "origin")
	}
	if err != nil {
		return err
	}

	// step 3: check out the branch. plain checkout fails when the branch was
	// never checked out locally (eg the project switched branches since the
	// clone); the fallback creates a local tracking branch from the remote ref.
	err = manager.runGit(ctx, workingDir, "checkout", branch)
	if err != nil {
		err = manager.runGit(ctx, workingDir, "checkout", "-B", branch, "origin/"+branch)
		if err != nil {
			return err
		}
	}

	// step 4: discard local edits and pin the tree to the remote tip.
	// the working directory is owned by the pipeline, nothing in it is
	// precious; whatever a previous build left behind gets thrown away.
	err = manager.runGit(ctx, workingDir, "reset", "--hard", "origin/"+branch)
	if err != nil {
		return err
	}

	manager.logger.Info("repository updated", "dir", workingDir, "branch", branch)
	return nil
}

// isShallow reports whether the repository at workingDir is a shallow clone.
// git maintains the .git/shallow marker file exactly while the clone is
// shallow and removes it after --unshallow completes.
func (manager *Manager) isShallow(workingDir string) bool {
	_, err := os.Stat(filepath.Join(workingDir, ".git", "shallow"))
	return err == nil
}

// runGit runs one git command, optionally inside workingDir ("" means no -C).
// git writes its diagnostics (progress, errors) to stderr, not stdout;
// both are captured and the stderr tail travels inside the returned error so
// the pipeline can persist the real failure reason onto the deployment row.
func (manager *Manager) runGit(ctx context.Context, workingDir string, args ...string) error {
	fullArgs := args
	if workingDir != "" {
		fullArgs = append([]string{"-C", workingDir}, args...)
	}

	gitCommand := exec.CommandContext(ctx, "git", fullArgs...)

	var stderrBuffer bytes.Buffer
	gitCommand.Stderr = &stderrBuffer
	gitCommand.Stdout = &stderrBuffer // interleave: plumbing output is rare and harmless here

	err := gitCommand.Run()
	if err != nil {
		tail := util.TailString(stderrBuffer.String(), gitErrorTailBytes)
		return errs.Wrap(errs.KindCloneFailed, err, "git %s failed: %s", args[0], tail)
	}
	return nil
}
