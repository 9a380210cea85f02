// Package server exposes the HTTP API: index management, document ingestion
// and search, mirroring the engine's REST surface.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-mizu/mizu"

	"github.com/strand-search/strand/internal/config"
	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/index"
)

// Server wires the HTTP surface to the index manager.
type Server struct {
	app *mizu.App
	mgr *index.Manager
	cfg *config.Config
	log *slog.Logger
}

// New builds the server and registers all routes.
func New(mgr *index.Manager, cfg *config.Config, log *slog.Logger) *Server {
	app := mizu.New()
	app.SetLogger(log)
	s := &Server{
		app: app,
		mgr: mgr,
		cfg: cfg,
		log: log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.app.Router

	r.ErrorHandler(s.handleError)

	r.Get("/health", func(c *mizu.Ctx) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "available"})
	})

	r.Post("/indexes", s.createIndex)
	r.Get("/indexes", s.listIndexes)
	r.Get("/indexes/{uid}", s.getIndex)
	r.Put("/indexes/{uid}", s.renameIndex)
	r.Delete("/indexes/{uid}", s.deleteIndex)

	r.Post("/indexes/{uid}/documents", s.addDocuments)

	r.Get("/indexes/{uid}/search", s.searchGet)
	r.Post("/indexes/{uid}/search", s.searchPost)

	r.Get("/indexes/{uid}/settings", s.getSettings)
	r.Post("/indexes/{uid}/settings", s.updateSettings)
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.app.Router }

// Listen serves until shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("http server listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// handleError maps core errors onto the API's {"message": ...} payloads.
// Internal identifiers never leak: the client sees the structured message
// only.
func (s *Server) handleError(c *mizu.Ctx, err error) {
	status := strerrors.StatusOf(err)
	message := "internal error"

	var serr *strerrors.Error
	if errors.As(err, &serr) {
		message = serr.Message
	}
	if status >= 500 {
		s.log.Error("request failed",
			slog.String("path", c.Request().URL.Path),
			slog.String("error", err.Error()))
	}
	_ = c.JSON(status, map[string]string{"message": message})
}
