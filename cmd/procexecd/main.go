// Command procexecd runs the process-supervision daemon: the Registry,
// Output Store, Process Supervisor (with its Retention Scheduler) and
// Management HTTP API, wired together the way cmd/zmux-server/main.go wires
// its own services, plus a signal-driven shutdown path the supervisor's
// child processes require that the teacher's stateless HTTP service never
// needed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/config"
	"github.com/edirooss/procexecd/internal/httpapi"
	"github.com/edirooss/procexecd/internal/logging"
	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/registry"
	"github.com/edirooss/procexecd/internal/supervisor"
)

func main() {
	debug := os.Getenv("ENV") == "dev"
	log := logging.New(debug)
	defer log.Sync()
	log = log.Named("main")

	settings := config.Load()

	storageRoot := settings.OutputStoragePath
	ephemeralStorage := storageRoot == ""
	if ephemeralStorage {
		dir, err := os.MkdirTemp("", "procexecd-output-*")
		if err != nil {
			log.Fatal("failed to create output storage dir", zap.Error(err))
		}
		storageRoot = dir
		log.Warn("OUTPUT_STORAGE_PATH unset, using process-lifetime temp dir", zap.String("dir", dir))
	}

	reg := registry.New()

	store, err := outputstore.New(log, storageRoot)
	if err != nil {
		log.Fatal("output store init failed", zap.Error(err))
	}

	sup := supervisor.New(log, reg, store, settings.ProcessRetentionSecs)

	addr := os.Getenv("LISTEN_ADDR")
	httpServer := httpapi.New(log, sup, store, httpapi.Options{Addr: addr, Debug: debug})

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if err := sup.Shutdown(); err != nil {
		log.Error("supervisor shutdown error", zap.Error(err))
	}

	if ephemeralStorage {
		if err := os.RemoveAll(storageRoot); err != nil {
			log.Error("failed to remove temp output storage dir", zap.Error(err), zap.String("dir", storageRoot))
		}
	}
}
