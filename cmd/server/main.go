// Command server is the HTTP API binary: project CRUD, deploy submission,
// the in-container terminal, and the reverse-proxy resolve endpoint. it
// never runs a pipeline itself; deployments are enqueued for the worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sasta-kro/dropdeploy/config"
	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/gateway"
	"github.com/sasta-kro/dropdeploy/gitrepo"
	"github.com/sasta-kro/dropdeploy/handlers"
	"github.com/sasta-kro/dropdeploy/queue"
)

func main() {
	appConfig := config.Load()
	logger := appConfig.NewLogger()

	logger.Info("api server starting",
		"port", appConfig.Port,
		"db_path", appConfig.DBPath,
		"queue_addr", appConfig.QueueAddr(),
		"log_format", appConfig.LogFormat,
	)

	database, err := db.OpenDatabase(appConfig.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.CloseDatabase()

	engineClient, err := docker.NewClient(logger, docker.Options{
		SocketPath:       appConfig.ContainerEngineSocket,
		NamePrefix:       appConfig.ContainerPrefix,
		MemoryLimitBytes: appConfig.MemoryLimitBytes,
		CPUShares:        appConfig.CPUShares,
	})
	if err != nil {
		logger.Error("failed to connect to container engine", "error", err)
		os.Exit(1)
	}
	defer engineClient.Close()

	repoManager, err := gitrepo.NewManager(appConfig.ProjectsRoot, logger)
	if err != nil {
		logger.Error("failed to initialize repository manager", "error", err)
		os.Exit(1)
	}

	jobQueue := queue.NewQueue(appConfig.QueueAddr(), logger)
	defer jobQueue.Close()

	orchestrator := deploy.NewOrchestrator(
		database, repoManager, engineClient, jobQueue,
		appConfig.ContainerPrefix, logger,
	)
	commandGateway := gateway.NewGateway(engineClient, logger)

	router := handlers.CreateAndSetupRouter(handlers.RouterDependencies{
		Logger:          logger,
		Database:        database,
		Orchestrator:    orchestrator,
		CommandGateway:  commandGateway,
		ContainerPrefix: appConfig.ContainerPrefix,
		SubdomainBase:   appConfig.SubdomainBase,
		AllowedOrigin:   appConfig.CORSAllowedOrigin,
	})

	httpServer := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
		// builds run on the worker; the slowest synchronous request here is a
		// 30-second terminal command, so give the write side headroom past it.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      45 * time.Second,
	}

	// serve in a goroutine so the main goroutine can wait on signals.
	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()

	shutdownSignals := make(chan os.Signal, 1)
	signal.Notify(shutdownSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	case receivedSignal := <-shutdownSignals:
		logger.Info("shutting down", "signal", receivedSignal.String())

		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := httpServer.Shutdown(shutdownContext); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("api server stopped")
}
