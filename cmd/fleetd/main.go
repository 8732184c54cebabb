// fleetd runs the autonomy engine's control loop. It has three
// subcommands: run starts the loop and HTTP status surface in the
// foreground, status and stop talk to an already-running instance via its
// PID file and local API (§6.4).
//
// Usage:
//
//	fleetd run [--config path] [--binary path] [--tick-seconds n] [--log-level level]
//	fleetd status [--data-dir dir]
//	fleetd stop [--data-dir dir]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"
	"github.com/ssd-technologies/nocturne-fleet/internal/deploy"
	"github.com/ssd-technologies/nocturne-fleet/internal/engine"
	"github.com/ssd-technologies/nocturne-fleet/internal/health"
	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
	"github.com/ssd-technologies/nocturne-fleet/internal/recovery"
	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
	"github.com/ssd-technologies/nocturne-fleet/internal/replicator"
	"github.com/ssd-technologies/nocturne-fleet/internal/scheduler"
	"github.com/ssd-technologies/nocturne-fleet/internal/server"
	"github.com/ssd-technologies/nocturne-fleet/internal/storage"
)

// Exit codes (§6.4).
const (
	exitClean                = 0
	exitConfigError          = 1
	exitUnrecoverableRuntime = 2
	exitEmergencyShutdown    = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "stop":
		cmdStop(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitConfigError)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: fleetd <command> [flags]

Commands:
  run      Start the control loop and status API in the foreground
  status   Check whether a running instance is reachable
  stop     Stop a running instance
`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", envOr("CONFIG_PATH", "config/target_servers.json"), "path to the registry file")
	binaryPath := fs.String("binary", envOr("BINARY_PATH", ""), "path to the binary to ship on replication")
	tickSeconds := fs.Int("tick-seconds", atoiOr(envOr("TICK_SECONDS", ""), 30), "decision tick period in seconds")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "info"), "verbosity floor (debug|info|warn|error)")
	dataDir := fs.String("data-dir", envOr("FLEETD_DATA_DIR", "data"), "directory for the PID file, API port file, and local database")
	apiAddr := fs.String("api-addr", envOr("FLEETD_API_ADDR", "127.0.0.1:8090"), "local status API bind address")
	fs.Parse(args)

	logger := log.New(os.Stderr, "[fleetd] ", log.LstdFlags)
	logger.Printf("starting: config=%s tick=%ds log_level=%s", *configPath, *tickSeconds, *logLevel)

	if err := os.MkdirAll(*dataDir, 0700); err != nil {
		logger.Printf("create data dir: %v", err)
		os.Exit(exitConfigError)
	}

	reg, err := registry.Load(*configPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		os.Exit(exitConfigError)
	}
	if *binaryPath == "" {
		logger.Printf("config error: BINARY_PATH is required")
		os.Exit(exitConfigError)
	}

	db, err := storage.NewDB(filepath.Join(*dataDir, "fleetd.db"))
	if err != nil {
		logger.Printf("open database: %v", err)
		os.Exit(exitConfigError)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := buildEngine(ctx, reg, db, *binaryPath, *dataDir, logger)

	hub := mesh.NewHub(eng, 5*time.Second, logger)
	srv := server.New(eng, hub)
	httpServer := &http.Server{Addr: *apiAddr, Handler: srv}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("status API error: %v", err)
		}
	}()

	writePIDFiles(*dataDir, *apiAddr, logger)
	defer removePIDFiles(*dataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutdown signal received")
		cancel()
	}()

	runErr := eng.Run(ctx, time.Duration(*tickSeconds)*time.Second)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpServer.Shutdown(shutdownCtx)
	shutdownCancel()

	if runErr == nil {
		os.Exit(exitClean)
	}
	if engine.KindOf(runErr) == engine.KindInvariantViolation {
		logger.Printf("emergency shutdown: %v", runErr)
		os.Exit(exitEmergencyShutdown)
	}
	logger.Printf("unrecoverable runtime error: %v", runErr)
	os.Exit(exitUnrecoverableRuntime)
}

// buildEngine wires every component (§2) the same way for every run; it is
// the one place in the binary that knows all six exist.
func buildEngine(ctx context.Context, reg *registry.File, db *storage.DB, binaryPath, dataDir string, logger *log.Logger) *engine.Engine {
	healthStore := health.NewStore(20)
	monitor := health.NewMonitor(healthStore, health.NewProcSampler(), "", dataDir, 10*time.Second, logger, 16)
	go monitor.Run(ctx)

	tracker := replicator.NewTracker(reg)
	deployer := deploy.NewDeployer()
	replicas := replicator.NewManager(tracker, deployer, replicator.Config{
		BinaryPath: binaryPath,
		Logger:     logger,
	})
	go replicas.Run(ctx, time.Minute)

	history := recovery.NewHistory(db)
	recoveryMgr := recovery.NewManager("self", history, recovery.Executors{
		Restart: func(ctx context.Context) error {
			logger.Println("restart_process: exiting for supervisor restart")
			os.Exit(exitUnrecoverableRuntime)
			return nil
		},
		Redeploy: func(ctx context.Context) error {
			logger.Println("redeploy_component: no-op for the local node, nothing to redeploy onto itself")
			return nil
		},
		Failover: func(ctx context.Context) error {
			return fmt.Errorf("recovery: no backup node configured for failover")
		},
		ScaleUp: func(ctx context.Context) error {
			replicas.TriggerDeploy(ctx, nil)
			return nil
		},
		Rollback: func(ctx context.Context) error {
			logger.Println("rollback_configuration: no-op, fleetd ships one configuration per deploy")
			return nil
		},
		Shutdown: func(ctx context.Context) error {
			logger.Println("emergency_shutdown: quarantining this node")
			return nil
		},
		Cleanup: func(ctx context.Context) error {
			return cleanupLogs(dataDir)
		},
	})

	taskHandlers := scheduler.NewRegistry()
	taskStore := scheduler.NewStore(db)
	tasks := scheduler.New(taskHandlers, scheduler.Config{Store: taskStore, Logger: logger})
	registerDefaultTasks(taskHandlers, healthStore, replicas)
	go tasks.Run(ctx)

	return engine.New(engine.EngineContext{
		Decisions: decisionmaker.New(0.1),
		Health:    healthStore,
		Monitor:   monitor,
		Replicas:  replicas,
		Recovery:  recoveryMgr,
		Tasks:     tasks,
		Events:    mesh.NewEventLog(200),
		NodeID:    "self",
		Logger:    logger,
	})
}

// registerDefaultTasks wires the scheduler's built-in task kinds to the
// components that actually know how to perform them; Custom tasks are
// registered per-deployment, not here.
func registerDefaultTasks(reg *scheduler.Registry, healthStore *health.Store, replicas *replicator.Manager) {
	reg.Register(scheduler.KindHealthCheck, func(ctx context.Context, t *scheduler.Task) error {
		_ = healthStore.Current()
		return nil
	})
	reg.Register(scheduler.KindReplicationCheck, func(ctx context.Context, t *scheduler.Task) error {
		replicas.RunOnce(ctx)
		return nil
	})
}

func cleanupLogs(dataDir string) error {
	logDir := filepath.Join(dataDir, "logs")
	entries, err := os.ReadDir(logDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(logDir, entry.Name()))
		}
	}
	return nil
}

func writePIDFiles(dataDir, apiAddr string, logger *log.Logger) {
	pidPath := filepath.Join(dataDir, "fleetd.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		logger.Printf("write pid file: %v", err)
	}
	apiPath := filepath.Join(dataDir, "fleetd.api")
	if err := os.WriteFile(apiPath, []byte(apiAddr), 0600); err != nil {
		logger.Printf("write api file: %v", err)
	}
}

func removePIDFiles(dataDir string) {
	os.Remove(filepath.Join(dataDir, "fleetd.pid"))
	os.Remove(filepath.Join(dataDir, "fleetd.api"))
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// cmdStatus checks whether a run instance is reachable, reading its PID
// file and hitting its local status API.
func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", envOr("FLEETD_DATA_DIR", "data"), "directory holding the PID and API files")
	fs.Parse(args)

	pidData, err := os.ReadFile(filepath.Join(*dataDir, "fleetd.pid"))
	if err != nil {
		fmt.Println("fleetd not running")
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		fmt.Println("fleetd not running (invalid pid file)")
		return
	}
	process, err := os.FindProcess(pid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		fmt.Println("fleetd not running")
		return
	}

	apiData, err := os.ReadFile(filepath.Join(*dataDir, "fleetd.api"))
	if err != nil {
		fmt.Printf("fleetd running (PID %d) but API address unknown\n", pid)
		return
	}
	apiAddr := strings.TrimSpace(string(apiData))

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/status", apiAddr))
	if err != nil {
		fmt.Printf("fleetd running (PID %d) but API unreachable: %v\n", pid, err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("fleetd running (PID %d)\n  API: http://%s\n  Status: %s\n", pid, apiAddr, strings.TrimSpace(string(body)))
}

// cmdStop sends SIGTERM to a running instance, letting it shut down
// cleanly through its own ctx-cancel path.
func cmdStop(args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	dataDir := fs.String("data-dir", envOr("FLEETD_DATA_DIR", "data"), "directory holding the PID file")
	fs.Parse(args)

	pidPath := filepath.Join(*dataDir, "fleetd.pid")
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		fmt.Println("fleetd not running")
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		fmt.Println("fleetd not running (invalid pid file)")
		os.Remove(pidPath)
		return
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("fleetd not running")
		os.Remove(pidPath)
		return
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Printf("failed to stop fleetd (PID %d): %v\n", pid, err)
		return
	}
	fmt.Printf("fleetd stopping (PID %d)\n", pid)
}
