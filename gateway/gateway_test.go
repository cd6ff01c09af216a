package gateway

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/errs"
)

// fakeEngine records what the gateway asked for and plays back canned
// answers. no docker daemon involved.
type fakeEngine struct {
	resolvedID   string
	resolveErr   error
	execResult   *docker.ExecResult
	execErr      error
	logOutput    string
	execCalls    []string
	logTailCalls []int

	// blockUntilCancel makes ExecInContainer hang until the context is
	// cancelled, simulating a command that never finishes.
	blockUntilCancel bool
}

func (engine *fakeEngine) ResolveRunningContainer(ctx context.Context, containerName string) (string, error) {
	if engine.resolveErr != nil {
		return "", engine.resolveErr
	}
	return engine.resolvedID, nil
}

func (engine *fakeEngine) ExecInContainer(ctx context.Context, containerID string, command string) (*docker.ExecResult, error) {
	engine.execCalls = append(engine.execCalls, command)
	if engine.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if engine.execErr != nil {
		return nil, engine.execErr
	}
	return engine.execResult, nil
}

func (engine *fakeEngine) ContainerLogsTail(ctx context.Context, containerID string, tailLines int) (string, error) {
	engine.logTailCalls = append(engine.logTailCalls, tailLines)
	return engine.logOutput, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGateway(engine *fakeEngine) *Gateway {
	return NewGateway(engine, testLogger())
}

func TestExecuteAllowedCommand(t *testing.T) {
	engine := &fakeEngine{
		resolvedID: "abc123",
		execResult: &docker.ExecResult{Stdout: "total 0\n", ExitCode: 0},
	}
	commandGateway := newTestGateway(engine)

	result, err := commandGateway.Execute(context.Background(), "dropdeploy-site", "ls -la /app")

	require.NoError(t, err)
	assert.Equal(t, "total 0\n", result.Stdout)
	require.Len(t, engine.execCalls, 1)
	assert.Equal(t, "ls -la /app", engine.execCalls[0])
}

func TestExecuteRejectsDisallowedCommand(t *testing.T) {
	engine := &fakeEngine{resolvedID: "abc123"}
	commandGateway := newTestGateway(engine)

	_, err := commandGateway.Execute(context.Background(), "dropdeploy-site", "rm -rf /")

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), `"rm"`)
	assert.Contains(t, err.Error(), "allowed commands", "rejection lists the permitted set")
	assert.Empty(t, engine.execCalls, "a rejected command must never reach the engine")
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	commandGateway := newTestGateway(&fakeEngine{})

	_, err := commandGateway.Execute(context.Background(), "dropdeploy-site", "   ")

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestValidateCommandChecksFirstTokenOnly(t *testing.T) {
	// arguments may mention anything; only the executable is policed.
	assert.NoError(t, validateCommand("grep rm /app/notes.txt"))
	assert.Error(t, validateCommand("bash -c ls"))
}

func TestExecuteShortcutUnknownName(t *testing.T) {
	engine := &fakeEngine{}
	commandGateway := newTestGateway(engine)

	_, err := commandGateway.ExecuteShortcut(context.Background(), "dropdeploy-site", "/selfdestruct")

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "/show-logs", "rejection lists the available shortcuts")
	assert.Empty(t, engine.execCalls)
	assert.Empty(t, engine.logTailCalls)
}

func TestExecuteShortcutHelp(t *testing.T) {
	engine := &fakeEngine{}
	commandGateway := newTestGateway(engine)

	result, err := commandGateway.ExecuteShortcut(context.Background(), "dropdeploy-site", "/help")

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	for name := range shortcuts {
		assert.Contains(t, result.Stdout, name)
	}
	assert.Empty(t, engine.execCalls, "/help must not touch the container")
	assert.Empty(t, engine.logTailCalls)
}

func TestExecuteShortcutLogs(t *testing.T) {
	engine := &fakeEngine{resolvedID: "abc123", logOutput: "app listening on 3000\n"}
	commandGateway := newTestGateway(engine)

	result, err := commandGateway.ExecuteShortcut(context.Background(), "dropdeploy-site", "/show-logs")

	require.NoError(t, err)
	assert.Equal(t, "app listening on 3000\n", result.Stdout)
	require.Len(t, engine.logTailCalls, 1)
	assert.Equal(t, 500, engine.logTailCalls[0])
	assert.Empty(t, engine.execCalls, "log shortcuts are host-side, no exec")
}

func TestExecuteShortcutShellCommand(t *testing.T) {
	engine := &fakeEngine{
		resolvedID: "abc123",
		execResult: &docker.ExecResult{Stdout: "PATH=/usr/bin\n", ExitCode: 0},
	}
	commandGateway := newTestGateway(engine)

	_, err := commandGateway.ExecuteShortcut(context.Background(), "dropdeploy-site", "/env")

	require.NoError(t, err)
	require.Len(t, engine.execCalls, 1)
	assert.Equal(t, "env | sort", engine.execCalls[0])
}

func TestExecuteTimesOutBlockedCommand(t *testing.T) {
	engine := &fakeEngine{resolvedID: "abc123", blockUntilCancel: true}
	commandGateway := newTestGateway(engine)

	// the gateway's own deadline is the 30s constant; the caller context's
	// shorter deadline wins the WithTimeout combination, so the test sees the
	// same expiry path in milliseconds.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := commandGateway.Execute(ctx, "dropdeploy-site", "tail -f /var/log/app.log")

	require.Error(t, err)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecuteShortcutTimesOutBlockedCommand(t *testing.T) {
	engine := &fakeEngine{resolvedID: "abc123", blockUntilCancel: true}
	commandGateway := newTestGateway(engine)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := commandGateway.ExecuteShortcut(ctx, "dropdeploy-site", "/env")

	require.Error(t, err)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
}

func TestExecuteShortcutEmptyInput(t *testing.T) {
	engine := &fakeEngine{}
	commandGateway := newTestGateway(engine)

	_, err := commandGateway.ExecuteShortcut(context.Background(), "dropdeploy-site", "   ")

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Empty(t, engine.execCalls)
}

func TestExecutePropagatesResolveFailure(t *testing.T) {
	notFound := errs.New(errs.KindNotFound, "no running container")
	commandGateway := newTestGateway(&fakeEngine{resolveErr: notFound})

	_, err := commandGateway.Execute(context.Background(), "dropdeploy-ghost", "ls")

	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
