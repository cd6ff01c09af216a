// Command worker is the pipeline binary: it consumes deploy jobs from the
// queue and runs the clone -> build -> run pipeline with bounded concurrency.
// before consuming, it sweeps deployments a previous worker left stranded in
// BUILDING, so a crash never leaves rows stuck in a non-terminal state.
package main

import (
	"os"
	"strconv"

	"github.com/sasta-kro/dropdeploy/config"
	"github.com/sasta-kro/dropdeploy/db"
	"github.com/sasta-kro/dropdeploy/deploy"
	"github.com/sasta-kro/dropdeploy/docker"
	"github.com/sasta-kro/dropdeploy/gitrepo"
	"github.com/sasta-kro/dropdeploy/queue"
)

// sweptBuildingReason is written into the logs column of swept rows so the
// dashboard shows why a deployment that was "building" is suddenly failed.
const sweptBuildingReason = "worker restarted while this deployment was building; redeploy to retry"

func main() {
	appConfig := config.Load()
	logger := appConfig.NewLogger()

	concurrency := workerConcurrency()

	logger.Info("worker starting",
		"db_path", appConfig.DBPath,
		"queue_addr", appConfig.QueueAddr(),
		"concurrency", concurrency,
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

	// startup sweep: rows stranded in BUILDING by a killed worker would
	// otherwise sit there forever; no queue job will touch them again once
	// retries are exhausted.
	sweptCount, err := database.SweepStuckBuilding(sweptBuildingReason)
	if err != nil {
		logger.Error("failed to sweep stuck deployments", "error", err)
		os.Exit(1)
	}
	if sweptCount > 0 {
		logger.Warn("swept deployments stuck in BUILDING", "count", sweptCount)
	}

	worker := queue.NewWorker(appConfig.QueueAddr(), orchestrator.BuildAndDeploy, concurrency, logger)
	if err := worker.Run(); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("worker stopped")
}

// workerConcurrency reads WORKER_CONCURRENCY with a default of 5 pipelines
// in flight. image builds are the bottleneck and are mostly daemon-side, so
// a small number keeps the host responsive without serializing everything.
func workerConcurrency() int {
	value := os.Getenv("WORKER_CONCURRENCY")
	if value == "" {
		return 5
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return 5
	}
	return parsed
}
