// Package handlers contains all HTTP handler functions for the API.
// handlers are thin translation layers: decode the request, call into the
// db/orchestrator/gateway layer, write a JSON response. no business logic
// lives here.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sasta-kro/dropdeploy/errs"
)

// userIDHeader carries the caller identity, placed by the upstream auth
// layer. authentication itself is out of scope here; the handlers only
// require the header to be present and compare it for ownership.
const userIDHeader = "X-User-ID"

// writeJsonAndRespond serializes the payload and writes it with the given
// status code. json.Marshal (not an Encoder) buffers the whole body first,
// so an encoding failure never escapes after a 200 header is already out.
func writeJsonAndRespond(responseWriter http.ResponseWriter, statusCode int, dataPayload any) {
	responseWriter.Header().Set("Content-Type", "application/json")

	serializedData, err := json.Marshal(dataPayload)
	if err != nil {
		// unreachable with statically typed response structs; the fallback
		// prevents a silent empty response which is harder to debug.
		http.Error(responseWriter, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	responseWriter.WriteHeader(statusCode)
	responseWriter.Write(serializedData) // nolint:errcheck -- write errors are not actionable server-side
}

// writeErrorJsonAndLogIt logs the error and writes the standard error shape:
//
//	{"error": "some human-readable message"}
//
// the message sent to the client is always a controlled string, never a raw
// Go error, to avoid leaking internal details.
func writeErrorJsonAndLogIt(
	responseWriter http.ResponseWriter,
	statusCode int,
	message string,
	logger *slog.Logger,
) {
	logger.Error("request error", "status", statusCode, "message", message)
	writeJsonAndRespond(responseWriter, statusCode, map[string]string{"error": message})
}

// writeClassifiedError maps a classified error to its HTTP status and writes
// it. internal errors get a generic message; everything else is considered
// safe to show (validation rejections, not-found, timeout) because those
// messages are written for the caller in the first place.
func writeClassifiedError(responseWriter http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := errs.HTTPStatus(err)

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		logger.Error("internal error", "error", err)
		message = "internal error"
	}
	writeErrorJsonAndLogIt(responseWriter, statusCode, message, logger)
}

// requireUserID extracts the caller identity from the request headers.
// a missing header is an Unauthorized error, which the callers pass straight
// to writeClassifiedError.
func requireUserID(request *http.Request) (string, error) {
	userID := request.Header.Get(userIDHeader)
	if userID == "" {
		return "", errs.New(errs.KindUnauthorized, "missing %s header", userIDHeader)
	}
	return userID, nil
}

// decodeJSONBody decodes the request body into target, rejecting unknown
// fields so typos in client payloads fail loudly instead of silently
// deploying with defaults.
func decodeJSONBody(request *http.Request, target any) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return errs.New(errs.KindValidation, "invalid JSON body: %v", err)
	}
	return nil
}
