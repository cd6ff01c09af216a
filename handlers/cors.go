package handlers

import "net/http"

// CORSMiddleware adds the CORS headers so the dashboard (served from a
// different origin) can make fetch() requests to this API.
// in production allowedOrigin is the actual dashboard domain; "*" is fine
// for local development.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			responseWriter.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			responseWriter.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+userIDHeader)

			// preflight requests get an immediate 204 with no body. the
			// browser sends these before cross-origin POST/DELETE requests.
			if request.Method == http.MethodOptions {
				responseWriter.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(responseWriter, request)
		})
	}
}
