package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/server/ws"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/services"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/platform/logger"
)

type WSHandler struct {
	hub        *registry.Registry
	dispatcher *services.Dispatcher
	manager    *services.ConnectionManager
}

func NewWSHandler(hub *registry.Registry, dispatcher *services.Dispatcher, manager *services.ConnectionManager) *WSHandler {
	return &WSHandler{
		hub:        hub,
		dispatcher: dispatcher,
		manager:    manager,
	}
}

// Handler upgrades the request and runs the connection until the peer
// goes away. Identity arrives later over the socket via register_user;
// the upgrade itself is open, matching the mobile clients.
func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	// The session must outlive the HTTP request's own deadline.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - ws upgrade failed", "err", err)
		cancel()
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	span.SetAttributes(attribute.String("conn.id", connID))
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - ws closed", "conn_id", connID, "code", code)
		cancel()
		return nil
	})

	socket := ws.NewWebSocket(ctx, conn)
	client := ws.NewClient(ctx, socket, connID)
	s.hub.Attach(client)
	// Unwound in reverse: detach from the registry first so a closed
	// client is never a broadcast target, then close the transport.
	defer client.Close()
	defer s.manager.HandleDisconnect(connID)
	log.InfoContext(r.Context(), "ws handler - connection established", "conn_id", connID, "remote_addr", r.RemoteAddr)

	// One goroutine per frame: a slow backend call on one event never
	// stalls the socket read.
	socket.ReadLoop(func(data []byte) {
		go func(raw []byte) {
			s.dispatcher.Dispatch(client.Context(), client, raw)
		}(data)
	})
}
