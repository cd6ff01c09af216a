/*
Package config handles loading and validating application configuration
from environment variables. All values have sensible defaults so both
binaries (API server and worker) can start with zero environment setup
during local development.
*/
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Config struct holds all configuration values for the application.
// values are read once at startup and passed through the app via dependency injection.
// no global config variable is used. callers receive a *Config explicitly,
// making dependencies visible and the code easier to test.
type Config struct {
	// Port is the TCP port the HTTP server listens on
	Port string

	// the file path to the SQLite database file
	// when switching to Postgres, this field becomes the DSN connection string.
	DBPath string

	// ProjectsRoot is the base directory on disk where project repositories
	// are cloned. each project gets one subdirectory here named by slug,
	// which survives across deployments (clone once, fetch thereafter).
	ProjectsRoot string

	// DockerDataRoot is the container engine's data root on the host.
	// informational: the control plane never writes there itself, but
	// operators need it surfaced for disk accounting.
	DockerDataRoot string

	// ContainerEngineSocket is the control socket for the container engine.
	// empty means the SDK default (DOCKER_HOST env, then the standard unix socket).
	ContainerEngineSocket string

	// QueueHost and QueuePort locate the redis backend the job queue uses.
	QueueHost string
	QueuePort string

	// MemoryLimitBytes is the hard memory cap applied to every deployed
	// container. default 512 MiB.
	MemoryLimitBytes int64

	// CPUShares is the relative CPU weight applied to every deployed
	// container. 1024 is the engine's neutral weight.
	CPUShares int64

	// ContainerPrefix is both the container-name prefix ("<prefix>-<slug>")
	// and the image-namespace prefix ("<prefix>/<slug>:latest").
	ContainerPrefix string

	// SubdomainBase is the DNS suffix the reverse proxy serves deployments
	// under, eg "example.app" -> "<slug>.example.app". the core only records
	// the subdomain label; routing is the proxy's job.
	SubdomainBase string

	// CORSAllowedOrigin is the origin the browser dashboard is served from.
	CORSAllowedOrigin string

	// LogFormat controls the output format of slog (logging library)
	// accepted values: "json" (default) | "text"
	// set to "text" during local development for readable terminal output
	LogFormat string
}

// Load reads configuration from environment variables and returns a populated Config struct.
// missing environment variables fall back to safe local development defaults
// so the app can run without any setup during early development.
func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DBPath:                getEnv("DB_PATH", "./dropdeploy.db"),
		ProjectsRoot:          getEnv("PROJECTS_ROOT", "./data/projects"),
		DockerDataRoot:        getEnv("DOCKER_DATA_ROOT", "/var/lib/docker"),
		ContainerEngineSocket: getEnv("CONTAINER_ENGINE_SOCKET", ""),
		QueueHost:             getEnv("QUEUE_HOST", "127.0.0.1"),
		QueuePort:             getEnv("QUEUE_PORT", "6379"),
		MemoryLimitBytes:      getEnvInt64("MEMORY_LIMIT_BYTES", 512*1024*1024),
		CPUShares:             getEnvInt64("CPU_SHARES", 1024),
		ContainerPrefix:       getEnv("CONTAINER_PREFIX", "dropdeploy"),
		SubdomainBase:         getEnv("SUBDOMAIN_BASE", "localhost"),
		CORSAllowedOrigin:     getEnv("CORS_ALLOWED_ORIGIN", "*"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
	}
}

// QueueAddr joins QueueHost and QueuePort into the "host:port" form the
// queue client expects.
func (config *Config) QueueAddr() string {
	return config.QueueHost + ":" + config.QueuePort
}

// getEnv retrieves the value of an environment variable by key.
// if the variable is not set or is empty, the provided fallback value is returned.
// this avoids scattered os.Getenv calls with inline fallback logic throughout the codebase.
func getEnv(key, fallbackValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallbackValue
}

// getEnvInt64 is getEnv for numeric values. a value that is set but does not
// parse falls back as well; a malformed resource cap must not take the
// whole control plane down when the default is always safe.
func getEnvInt64(key string, fallbackValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallbackValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallbackValue
	}
	return parsed
}

// NewLogger constructs a *slog.Logger based on the LogFormat field of the config.
// "text" produces human-readable output for local development
// any other value (including "json") produces structured JSON output for production
// and Docker log shipping.
func (config *Config) NewLogger() *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		// AddSource adds the file name and line number to each log record.
		// useful during development to trace log origins.
		AddSource: true,
		Level:     slog.LevelDebug,
	}

	if config.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
