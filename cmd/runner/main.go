// Command runner is the container-plane binary: it owns the docker
// lifecycle for workspace containers and terminates PTY/exec/LSP
// WebSocket sessions plus the preview HTTP proxy. Grounded on the
// teacher's cmd/agent-deck/main.go signal-handling and logging.Init
// wiring, generalized from an interactive TUI entrypoint to a headless
// server process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudide/cloudide/internal/logging"
	"github.com/cloudide/cloudide/internal/runner/authn"
	"github.com/cloudide/cloudide/internal/runner/config"
	"github.com/cloudide/cloudide/internal/runner/containers"
	"github.com/cloudide/cloudide/internal/runner/httpapi"
)

func main() {
	cfg := config.FromEnv()
	containers.DockerBin = cfg.DockerBin

	logging.Init(logging.Config{
		LogDir: os.Getenv("LOG_DIR"),
		Level:  os.Getenv("LOG_LEVEL"),
		Debug:  os.Getenv("DEBUG") == "true",
	})
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompRunner)

	guard, err := authn.NewGuard(cfg.SharedSecret, cfg.Production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runner: %v\n", err)
		os.Exit(1)
	}

	cm := containers.NewManager()
	server := httpapi.New(cfg, guard, cm)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 dumps the in-memory log ring buffer for post-mortem
	// debugging without interrupting attached PTY/exec/LSP sessions.
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(os.Getenv("LOG_DIR"), fmt.Sprintf("runner-crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				log.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				log.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server_error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	log.Info("runner_started", slog.String("port", cfg.Port))

	<-sigChan
	log.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown_error", slog.String("error", err.Error()))
	}
}
