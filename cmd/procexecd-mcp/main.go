// Command procexecd-mcp is the optional stdio tool-call front end (§6):
// it wires the same core components cmd/procexecd does, then serves the
// seven tool-call operations over stdin/stdout via mark3labs/mcp-go instead
// of the Management HTTP API.
package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/config"
	"github.com/edirooss/procexecd/internal/facade"
	"github.com/edirooss/procexecd/internal/logging"
	"github.com/edirooss/procexecd/internal/mcpserver"
	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/registry"
	"github.com/edirooss/procexecd/internal/resolver"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/internal/toolsurface"
)

func main() {
	log := logging.New(os.Getenv("ENV") == "dev")
	defer log.Sync()
	log = log.Named("main")

	settings := config.Load()

	storageRoot := settings.OutputStoragePath
	ephemeralStorage := storageRoot == ""
	if ephemeralStorage {
		dir, err := os.MkdirTemp("", "procexecd-mcp-output-*")
		if err != nil {
			log.Fatal("failed to create output storage dir", zap.Error(err))
		}
		storageRoot = dir
	}

	reg := registry.New()
	store, err := outputstore.New(log, storageRoot)
	if err != nil {
		log.Fatal("output store init failed", zap.Error(err))
	}

	res := resolver.New(settings.Resolver)
	sup := supervisor.New(log, reg, store, settings.ProcessRetentionSecs)
	fac := facade.New(res, sup, store)
	tools := toolsurface.New(fac, sup, store)

	srv := mcpserver.New(log, tools)

	log.Info("serving MCP tools over stdio")
	if err := mcpserver.Serve(srv); err != nil {
		log.Fatal("mcp server failed", zap.Error(err))
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
