package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/archive"

	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/models"
	"github.com/sasta-kro/dropdeploy/recipes"
)

// buildOutputTailChunks is how many trailing stream chunks are kept for the
// error message. build output can run to thousands of lines; the last ~20
// chunks are where compilers and package managers put the actual reason.
const buildOutputTailChunks = 20

/*
BuildImage builds a container image from a checked-out working directory.

Steps:

	write the framework recipe as Dockerfile into the context root
	tar the context directory (the engine API takes a tar stream, not a path)
	ask the engine to build with tag <prefix>/<slug>:latest
	drain the progress stream, keeping the last ~20 chunks
	on an error chunk, fail with the tail of the output
	after a clean stream, independently verify the image exists via inspect

The final inspect is not paranoia: the engine's build stream can complete
without an error event and still have produced nothing (the classic case is a
NODEJS project whose package.json breaks the final image stage). claiming
success on stream-end alone would hand the run step an image that is not there.
*/
func (engineClient *Client) BuildImage(
	ctx context.Context,
	slug string,
	contextDir string,
	framework models.Framework,
) (string, error) {
	imageRef := models.ImageRef(engineClient.namePrefix, slug)

	// the recipe catalog writes the Dockerfile and applies framework fixups
	// (the NEXTJS config patch) before anything is tarred.
	_, err := recipes.PrepareContext(contextDir, framework, engineClient.logger)
	if err != nil {
		return "", errs.Wrap(errs.KindBuildFailed, err, "failed to prepare build context for %q", slug)
	}

	// the engine API consumes the build context as a tar stream. pkg/archive
	// handles symlinks, permissions and .dockerignore the same way the CLI does.
	contextTar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", errs.Wrap(errs.KindBuildFailed, err, "failed to tar build context %q", contextDir)
	}
	defer contextTar.Close()

	engineClient.logger.Info("building image", "image", imageRef, "context", contextDir)

	buildResponse, err := engineClient.sdk.ImageBuild(ctx, contextTar, build.ImageBuildOptions{
		Tags:       []string{imageRef},
		Dockerfile: "Dockerfile",
		Remove:     true, // remove intermediate containers on success
	})
	if err != nil {
		return "", errs.Wrap(errs.KindBuildFailed, err, "image build request failed for %q", imageRef)
	}
	defer buildResponse.Body.Close()

	// drain the stream. the build is not complete until the stream ends, and
	// failures arrive as error chunks inside it, not as an HTTP error.
	outputTail, streamErr := drainBuildStream(buildResponse.Body, engineClient.logger)
	if streamErr != nil {
		return "", errs.Wrap(errs.KindBuildFailed, streamErr,
			"image build failed for %q; output tail:\n%s", imageRef, strings.Join(outputTail, ""))
	}

	// independent existence check (see the function comment).
	_, inspectErr := engineClient.sdk.ImageInspect(ctx, imageRef)
	if inspectErr != nil {
		return "", errs.New(errs.KindImageMissing, "%s", missingImageMessage(imageRef, framework))
	}

	engineClient.logger.Info("image built", "image", imageRef)
	return imageRef, nil
}

// buildStreamChunk is the subset of the engine's newline-delimited JSON
// progress events this code cares about: human-readable progress text and
// the error shape.
type buildStreamChunk struct {
	Stream      string `json:"stream"`
	ErrorText   string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// drainBuildStream reads the build progress stream to completion, keeping a
// ring of the last buildOutputTailChunks text chunks. the first error chunk
// wins; the stream is still drained afterwards so the daemon finishes writing.
func drainBuildStream(body io.Reader, logger *slog.Logger) ([]string, error) {
	var tail []string
	var firstError error

	scanner := bufio.NewScanner(body)
	// build output lines can exceed bufio's 64KB default (webpack loves
	// single-line stats dumps); give the scanner room.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var chunk buildStreamChunk
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			// a non-JSON line is unexpected but not fatal; keep it in the tail.
			tail = appendToTail(tail, scanner.Text()+"\n")
			continue
		}

		if chunk.Stream != "" {
			tail = appendToTail(tail, chunk.Stream)
		}

		if firstError == nil {
			if chunk.ErrorDetail != nil && chunk.ErrorDetail.Message != "" {
				firstError = fmt.Errorf("%s", chunk.ErrorDetail.Message)
			} else if chunk.ErrorText != "" {
				firstError = fmt.Errorf("%s", chunk.ErrorText)
			}
		}
	}

	if scanErr := scanner.Err(); scanErr != nil && firstError == nil {
		firstError = fmt.Errorf("reading build stream: %w", scanErr)
	}
	if firstError != nil {
		logger.Warn("image build stream reported an error", "error", firstError)
	}

	return tail, firstError
}

// appendToTail keeps the slice bounded to the last buildOutputTailChunks entries.
func appendToTail(tail []string, chunk string) []string {
	tail = append(tail, chunk)
	if len(tail) > buildOutputTailChunks {
		tail = tail[len(tail)-buildOutputTailChunks:]
	}
	return tail
}

// missingImageMessage normalizes the "built fine, image absent" failure into
// something actionable. the hint names the start script only for NODEJS,
// where a missing `start` in package.json is by far the most common cause;
// other frameworks get the generic message rather than a misleading hint.
func missingImageMessage(imageRef string, framework models.Framework) string {
	base := fmt.Sprintf("build completed but image %q does not exist", imageRef)
	if framework == models.FrameworkNodeJS {
		return base + `; the most common cause is a package.json without a "start" script`
	}
	return base + "; check that the repository matches the selected framework"
}
