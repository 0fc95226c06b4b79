// Command broker is the control-plane binary: user auth, workspace CRUD
// and settings, file/git/task/search proxying, and the WebSocket upgrade
// gateway in front of the runner. Grounded on the teacher's
// cmd/agent-deck/main.go signal-handling and logging.Init wiring,
// generalized from an interactive TUI entrypoint to a headless server
// process.
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

	"github.com/cloudide/cloudide/internal/broker/authn"
	"github.com/cloudide/cloudide/internal/broker/config"
	"github.com/cloudide/cloudide/internal/broker/httpapi"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/crypto"
	"github.com/cloudide/cloudide/internal/logging"
)

func main() {
	cfg := config.FromEnv()

	logging.Init(logging.Config{
		LogDir: os.Getenv("LOG_DIR"),
		Level:  os.Getenv("LOG_LEVEL"),
		Debug:  os.Getenv("DEBUG") == "true",
	})
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompBroker)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "broker: migrate: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.WorkspacesRoot, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "broker: workspaces root: %v\n", err)
		os.Exit(1)
	}

	issuer := authn.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)

	box, err := crypto.NewBox(cfg.AppEncryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}

	runner := runnerclient.New(cfg.RunnerURL, cfg.RunnerSharedSecret)
	runner.SetWSBaseURL(cfg.RunnerWSURL)

	server := httpapi.New(cfg, st, issuer, box, runner)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 dumps the in-memory log ring buffer for post-mortem
	// debugging without interrupting in-flight requests.
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(os.Getenv("LOG_DIR"), fmt.Sprintf("broker-crash-dump-%d.jsonl", time.Now().Unix()))
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

	log.Info("broker_started", slog.String("port", cfg.Port))

	<-sigChan
	log.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown_error", slog.String("error", err.Error()))
	}
}
