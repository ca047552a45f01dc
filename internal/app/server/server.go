package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/server/handlers"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/services"
	"github.com/chiderandukwe/wakadugbe-ws-socket/pkg/middleware"
)

type Server struct {
	log              *slog.Logger
	mux              *http.ServeMux
	app              string
	addr             string
	wsHandler        *handlers.WSHandler
	broadcastHandler *handlers.BroadcastHandler
	tokenSvc         *services.TokenService
}

func NewServer(
	log *slog.Logger,
	app string,
	addr string,
	hub *registry.Registry,
	dispatcher *services.Dispatcher,
	manager *services.ConnectionManager,
	tokenSvc *services.TokenService,
	journal contracts.Journal,
) *Server {
	s := &Server{
		log:              log,
		mux:              http.NewServeMux(),
		app:              app,
		addr:             addr,
		wsHandler:        handlers.NewWSHandler(hub, dispatcher, manager),
		broadcastHandler: handlers.NewBroadcastHandler(hub, journal),
		tokenSvc:         tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	chain := func(h http.Handler) http.Handler {
		return middleware.TracerMiddleware(s.app)(middleware.RequestLogger(s.log)(h))
	}

	// Socket clients identify themselves over the wire via
	// register_user; the upgrade route stays open.
	s.mux.Handle("/ws", chain(http.HandlerFunc(s.wsHandler.Handler)))
	s.mux.Handle("GET /health", chain(http.HandlerFunc(s.broadcastHandler.Health)))

	// Backend-facing routes carry the shared-secret JWT.
	s.mux.Handle("POST /broadcast", chain(auth(http.HandlerFunc(s.broadcastHandler.Broadcast))))
	s.mux.Handle("GET /journal", chain(auth(http.HandlerFunc(s.broadcastHandler.Journal))))
}

func (s *Server) Start() error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
		// No WriteTimeout: the websocket sessions are long-lived and a
		// server-wide write deadline would sever them.
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.log.Info("server - starting", "addr", s.addr)
	return server.ListenAndServe()
}
