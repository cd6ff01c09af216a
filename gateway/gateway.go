// Package gateway is the safety boundary around running operator commands
// inside a live container. it enforces a fixed command allow-list, a hard
// wall-clock timeout, and a small registry of named shortcut commands.
// the gateway never retries; callers decide what a failure means.
package gateway

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/errs"
)

// executionTimeout is the wall-clock budget for one command, shortcut log
// fetches included. long enough for `npm ls` against a cold cache, short
// enough that a `tail -f` cannot pin a handler goroutine forever.
const executionTimeout = 30 * time.Second

// allowedCommands is the fixed allow-list, checked against the first
// whitespace-delimited token of the command string. read-oriented tools and
// the common runtime CLIs; notably absent: rm, kill, chmod, sh, bash, and
// anything that opens an interactive session.
var allowedCommands = map[string]bool{
	"ls": true, "cat": true, "pwd": true, "echo": true, "env": true,
	"whoami": true, "df": true, "du": true, "ps": true, "top": true,
	"head": true, "tail": true, "grep": true, "find": true, "wc": true,
	"date": true, "uptime": true, "which": true, "printenv": true,
	"hostname": true, "uname": true, "id": true, "free": true,
	"stat": true, "file": true, "sort": true, "uniq": true, "tr": true,
	"cut": true, "awk": true, "sed": true, "less": true, "more": true,
	"mkdir": true, "touch": true, "cp": true, "mv": true, "cd": true,
	"npm": true, "node": true, "python": true, "pip": true,
	"curl": true, "wget": true,
}

// containerEngine is the slice of the engine adapter the gateway needs.
// declared here (accept interfaces where you consume them) so tests can
// substitute a fake without a docker daemon.
type containerEngine interface {
	ResolveRunningContainer(ctx context.Context, containerName string) (string, error)
	ExecInContainer(ctx context.Context, containerID string, command string) (*docker.ExecResult, error)
	ContainerLogsTail(ctx context.Context, containerID string, tailLines int) (string, error)
}

// Gateway executes operator commands against running containers.
type Gateway struct {
	engine containerEngine
	logger *slog.Logger
}

// NewGateway constructs a Gateway backed by the given engine adapter.
func NewGateway(engine containerEngine, logger *slog.Logger) *Gateway {
	return &Gateway{engine: engine, logger: logger}
}

// Execute runs an allow-listed shell command inside the named container.
// commandString must not begin with "/" (that form is a shortcut; see
// ExecuteShortcut). the allow-list check happens before any engine call, so
// a rejected command never touches the container at all.
func (commandGateway *Gateway) Execute(ctx context.Context, containerName string, commandString string) (*docker.ExecResult, error) {
	if err := validateCommand(commandString); err != nil {
		return nil, err
	}

	// the timeout covers resolution + exec + output copy as one budget.
	execContext, cancel := context.WithTimeout(ctx, executionTimeout)
	defer cancel()

	containerID, err := commandGateway.engine.ResolveRunningContainer(execContext, containerName)
	if err != nil {
		return nil, err
	}

	commandGateway.logger.Info("executing command in container",
		"container", containerName,
		"command", commandString,
	)

	result, err := commandGateway.engine.ExecInContainer(execContext, containerID, commandString)
	if err != nil {
		if execContext.Err() != nil {
			// normalize deadline expiry to the documented message regardless
			// of which underlying call the deadline interrupted.
			return nil, errs.New(errs.KindTimeout,
				"command timed out after %s", executionTimeout)
		}
		return nil, err
	}

	return result, nil
}

// validateCommand enforces the allow-list on the first token.
// the rejection message lists the permitted set so operators do not have to
// guess; the set is fixed, there is nothing secret about it.
func validateCommand(commandString string) error {
	fields := strings.Fields(commandString)
	if len(fields) == 0 {
		return errs.New(errs.KindValidation, "empty command")
	}

	baseCommand := fields[0]
	if !allowedCommands[baseCommand] {
		return errs.New(errs.KindValidation,
			"command %q is not permitted; allowed commands: %s",
			baseCommand, strings.Join(sortedAllowedCommands(), " "))
	}
	return nil
}

// sortedAllowedCommands returns the allow-list in stable order for error
// messages and /help output.
func sortedAllowedCommands() []string {
	commands := make([]string, 0, len(allowedCommands))
	for command := range allowedCommands {
		commands = append(commands, command)
	}
	sort.Strings(commands)
	return commands
}
