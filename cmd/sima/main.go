// Command sima is a minimal userspace init process: it runs as PID 1,
// launches a configured set of long-lived services, reaps every
// exiting child on the system, exposes a control socket for
// start/stop/restart/status and power-state requests, and drives
// orderly shutdown, reboot, and self re-exec.
package main

import (
	"fmt"
	"os"

	"sima/client"
	"sima/internal/config"
	"sima/internal/control"
	"sima/internal/logger"
	"sima/internal/metrics"
	"sima/internal/platform"
	"sima/internal/reaper"
	"sima/internal/service"
	"sima/internal/supervisor"
)

const metricsAddrEnv = "SIMA_METRICS_ADDR"

func main() {
	if os.Getpid() != 1 {
		fmt.Fprintln(os.Stderr, "sima: must run as pid 1")
		os.Exit(1)
	}

	logger.SetLogger(logger.New(os.Stdout, ""))
	logger.Noticef("sima starting (pid 1).")

	if err := run(); err != nil {
		logger.Noticef("sima: %v", err)
		os.Exit(1)
	}
}

func run() error {
	manifestPath := config.DefaultManifestPath
	if p := os.Getenv("SIMA_MANIFEST"); p != "" {
		manifestPath = p
	}
	configs, err := config.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}

	table, err := service.NewTable(configs)
	if err != nil {
		return fmt.Errorf("cannot build service table: %w", err)
	}

	r, err := reaper.Start()
	if err != nil {
		return fmt.Errorf("cannot start reaper: %w", err)
	}
	defer r.Stop()

	sv := supervisor.New(table, r, platform.Linux{}, os.Args)

	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		registry := metrics.NewRegistry()
		sv.SetMetrics(registry)
		metricsServer := metrics.NewServer(addr, registry)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				logger.Debugf("Metrics server stopped: %v.", err)
			}
		}()
	}

	sv.SpawnConfigured()

	socketPath := client.DefaultSocketPath
	if p := os.Getenv("SIMA_SOCKET"); p != "" {
		socketPath = p
	}
	ctlServer, err := control.Listen(socketPath, sv.Commands())
	if err != nil {
		return fmt.Errorf("cannot listen on control socket: %w", err)
	}
	go func() {
		if err := ctlServer.Serve(); err != nil {
			logger.Noticef("Control server stopped: %v.", err)
		}
	}()

	return sv.Run()
}
