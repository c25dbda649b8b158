// Package server assembles the router and middleware chain for the quest
// gateway.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/questlab/geminiquest/pkg/core/live"
	"github.com/questlab/geminiquest/pkg/core/quest"
	"github.com/questlab/geminiquest/pkg/gateway/assets"
	"github.com/questlab/geminiquest/pkg/gateway/config"
	"github.com/questlab/geminiquest/pkg/gateway/handlers"
	"github.com/questlab/geminiquest/pkg/gateway/lifecycle"
	"github.com/questlab/geminiquest/pkg/gateway/live/sessions"
	"github.com/questlab/geminiquest/pkg/gateway/mw"
)

// Deps are the wired collaborators the handlers need.
type Deps struct {
	Pipeline *quest.Pipeline
	Store    *quest.Store
	Assets   *assets.Store
	Dialer   live.Dialer
}

type Server struct {
	cfg    config.Config
	logger *zap.Logger
	router chi.Router

	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		router:       chi.NewRouter(),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
	}
	s.routes(deps)
	return s
}

// LiveSessions exposes the tracker so shutdown can drain websocket
// connections.
func (s *Server) LiveSessions() *sessions.Tracker {
	return s.liveSessions
}

// Lifecycle exposes the drain flag for graceful shutdown.
func (s *Server) Lifecycle() *lifecycle.Lifecycle {
	return s.lifecycle
}

func (s *Server) routes(deps Deps) {
	r := s.router
	r.NotFound(handlers.NotFoundHandler{}.ServeHTTP)
	r.Method(http.MethodGet, "/healthz", handlers.HealthHandler{})

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/quests", handlers.SubmitQuestHandler{Pipeline: deps.Pipeline, Lifecycle: s.lifecycle})
		r.Method(http.MethodGet, "/quests", handlers.ListQuestsHandler{Store: deps.Store})
		r.Method(http.MethodGet, "/quests/{id}", handlers.GetQuestHandler{Store: deps.Store})
		r.Method(http.MethodPost, "/quests/{id}/video", handlers.VideoHandler{Pipeline: deps.Pipeline, Store: deps.Store})
		r.Method(http.MethodPost, "/quests/{id}/viral", handlers.ViralHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodPost, "/quests/{id}/quiz", handlers.QuizHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodPost, "/quests/{id}/chat", handlers.ChatHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodPost, "/quests/{id}/style", handlers.StyleHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodPost, "/monitor", handlers.MonitorHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodGet, "/profile", handlers.ProfileHandler{Pipeline: deps.Pipeline})
		r.Method(http.MethodGet, "/assets/{id}", handlers.AssetHandler{Assets: deps.Assets})
		r.Method(http.MethodGet, "/live", handlers.LiveHandler{
			Config:       s.cfg,
			Dialer:       deps.Dialer,
			Logger:       s.logger,
			Lifecycle:    s.lifecycle,
			LiveSessions: s.liveSessions,
		})
	})
}

// Handler returns the full middleware chain. RequestID sits outermost so
// every later layer, including access logging, sees the id.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
