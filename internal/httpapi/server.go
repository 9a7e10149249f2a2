// Package httpapi implements the Management HTTP API (C6): a minimal JSON
// surface over the Registry and Output Store, sharing the same Supervisor
// the tool-call surface drives. Construction order (router -> middleware ->
// routes -> http.Server -> ListenAndServe) is grounded on
// cmd/zmux-server/main.go.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/pkg/procexec"
)

// Options configures the HTTP server.
type Options struct {
	Addr  string
	Debug bool // disables gin.ReleaseMode and enables permissive CORS
}

// Server wraps the management HTTP surface.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// New builds the Gin router and an unstarted http.Server.
func New(log *zap.Logger, sup *supervisor.Supervisor, store *outputstore.Store, opts Options) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(webRecovery(log))

	if opts.Debug {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(zapLogger(log))

	h := &handlers{sup: sup, store: store}
	api := r.Group("/api/processes")
	{
		api.GET("", h.listProcesses)
		api.GET("/:pid", h.getProcess)
		api.GET("/:pid/output", h.getOutput)
		api.POST("/:pid/stop", h.stopProcess)
		api.POST("/:pid/clean", h.cleanProcess)
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	return &Server{
		log: log.Named("httpapi"),
		httpServer: &http.Server{
			Addr:           addr,
			Handler:        r,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 15,
			ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
		},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down. Per
// spec.md §4.6 this must be a production-grade server, never a
// development-only one, unless Options.Debug is set. A startup/serve
// failure is surfaced as a *procexec.WebInterfaceError, per spec.md §7's
// "HTTP plane failed to start or handle" -> "startup failure" mapping.
func (s *Server) ListenAndServe() error {
	s.log.Info("running HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &procexec.WebInterfaceError{Reason: "listen and serve", Err: err}
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
