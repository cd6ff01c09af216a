package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/errs"
)

// shortcut is one entry in the fixed shortcut registry. a shortcut resolves
// to either a shell command run inside the container (shellCommand set) or a
// host-side engine call (logTail set); /help is special-cased and touches
// neither the container nor the engine.
type shortcut struct {
	description  string
	shellCommand string
	logTail      int
}

// shortcuts is the fixed registry, keyed by the leading-slash name.
var shortcuts = map[string]shortcut{
	"/show-logs": {description: "show the last 500 log lines", logTail: 500},
	"/tail-logs": {description: "show the last 100 log lines", logTail: 100},
	"/env":       {description: "print the container environment, sorted", shellCommand: "env | sort"},
	"/files":     {description: "list the working directory", shellCommand: "ls -la"},
	"/help":      {description: "list available shortcuts"},
}

// ExecuteShortcut resolves and runs a named shortcut ("/show-logs" etc.).
// unknown names are rejected with the available set, same shape as the
// allow-list rejection. shortcut shell commands skip validateCommand:
// they are registry-defined, not user-supplied, so the allow-list has
// nothing to protect against here.
func (commandGateway *Gateway) ExecuteShortcut(ctx context.Context, containerName string, commandString string) (*docker.ExecResult, error) {
	fields := strings.Fields(commandString)
	if len(fields) == 0 {
		return nil, errs.New(errs.KindValidation, "empty command")
	}
	shortcutName := fields[0]

	registered, found := shortcuts[shortcutName]
	if !found {
		return nil, errs.New(errs.KindValidation,
			"unknown shortcut %q; available: %s", shortcutName, strings.Join(sortedShortcutNames(), " "))
	}

	// /help is answered from the registry alone.
	if shortcutName == "/help" {
		return &docker.ExecResult{Stdout: helpText(), ExitCode: 0}, nil
	}

	execContext, cancel := context.WithTimeout(ctx, executionTimeout)
	defer cancel()

	containerID, err := commandGateway.engine.ResolveRunningContainer(execContext, containerName)
	if err != nil {
		return nil, err
	}

	if registered.logTail > 0 {
		// host-side engine call; no process runs inside the container.
		logOutput, err := commandGateway.engine.ContainerLogsTail(execContext, containerID, registered.logTail)
		if err != nil {
			return nil, err
		}
		return &docker.ExecResult{Stdout: logOutput, ExitCode: 0}, nil
	}

	commandGateway.logger.Info("executing shortcut in container",
		"container", containerName,
		"shortcut", shortcutName,
	)

	result, err := commandGateway.engine.ExecInContainer(execContext, containerID, registered.shellCommand)
	if err != nil {
		if execContext.Err() != nil {
			return nil, errs.New(errs.KindTimeout, "command timed out after %s", executionTimeout)
		}
		return nil, err
	}
	return result, nil
}

// helpText renders the shortcut listing, one per line, aligned and sorted.
func helpText() string {
	names := sortedShortcutNames()

	var builder strings.Builder
	builder.WriteString("Available shortcuts:\n")
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("  %-12s %s\n", name, shortcuts[name].description))
	}
	builder.WriteString("\nAny other input runs as a shell command (restricted command set; try one and the error lists it).\n")
	return builder.String()
}

// sortedShortcutNames returns the registry keys in stable order.
func sortedShortcutNames() []string {
	names := make([]string, 0, len(shortcuts))
	for name := range shortcuts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
