package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// Replayer re-delivers a stored lifecycle event to a reconnecting
// client. Implemented by the Dispatcher; the indirection exists because
// the dispatcher also routes register_user to the connection manager.
type Replayer interface {
	Replay(ctx context.Context, c contracts.Client, event string, data json.RawMessage) bool
}

// ConnectionManager owns the identity side of a connection's life:
// register_user on the way in, presence teardown on the way out.
type ConnectionManager struct {
	log      *slog.Logger
	backend  contracts.Backend
	registry contracts.Registry
	presence contracts.PresenceStore
	replayer Replayer
}

func NewConnectionManager(
	log *slog.Logger,
	backend contracts.Backend,
	registry contracts.Registry,
	presence contracts.PresenceStore,
) *ConnectionManager {
	return &ConnectionManager{
		log:      log,
		backend:  backend,
		registry: registry,
		presence: presence,
	}
}

// SetReplayer late-binds the dispatcher. Must be called before the
// server accepts connections.
func (m *ConnectionManager) SetReplayer(r Replayer) {
	m.replayer = r
}

// RegisterUser binds a user identity to the connection, resyncs any
// in-flight ride state, and publishes the presence flip. Registered in
// the dispatcher's handler table under register_user.
func (m *ConnectionManager) RegisterUser(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "ConnectionManager.RegisterUser")
	defer span.End()
	var in struct {
		UserID      domain.ID `json:"userId"`
		NotifyToken string    `json:"notify_token"`
		Data        *struct {
			Event     string       `json:"event"`
			DriverID  domain.ID    `json:"driver_id"`
			Latitude  domain.Coord `json:"latitude"`
			Longitude domain.Coord `json:"longitude"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.UserID == "" {
		span.SetStatus(codes.Error, domain.ErrMissingUserID.Error())
		m.log.ErrorContext(ctx, "connection - register user - missing user id", "conn_id", c.ID())
		return
	}
	userID := in.UserID.String()
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("conn_id", c.ID()))

	ut, err := m.backend.UserType(ctx, userID)
	if err != nil {
		span.RecordError(err)
		m.log.ErrorContext(ctx, "connection - register user - user type lookup failed", "user_id", userID, "err", err)
		return
	}

	if in.NotifyToken != "" {
		if err := m.backend.StoreNotifyToken(ctx, userID, in.NotifyToken); err != nil {
			m.log.WarnContext(ctx, "connection - register user - notify token store failed", "user_id", userID, "err", err)
		}
	}

	// Resync: replay the user's last recorded lifecycle event, unless
	// the trip already ended, in which case there is nothing to resume.
	if last, err := m.backend.LastEvent(ctx, userID); err != nil {
		m.log.WarnContext(ctx, "connection - register user - last event lookup failed", "user_id", userID, "err", err)
	} else if last != nil && last.EventType != domain.EvEndTrip && m.replayer != nil {
		if m.replayer.Replay(ctx, c, last.EventType, last.EventData) {
			m.log.InfoContext(ctx, "connection - register user - last event replayed",
				"user_id", userID, "event", last.EventType)
		} else {
			m.log.WarnContext(ctx, "connection - register user - no handler for stored event",
				"user_id", userID, "event", last.EventType)
		}
	}

	// A driver registering mid-trip gets its own position echoed back so
	// the app map recovers without waiting for the next GPS tick.
	if in.Data != nil && in.Data.Event == domain.EvUpdateDriverLocation {
		emitFrame(ctx, m.log, c, domain.ServerFrame{
			Event: domain.EvDriverLocationUpdate,
			Data: map[string]any{
				"driver_id": in.Data.DriverID,
				"latitude":  in.Data.Latitude,
				"longitude": in.Data.Longitude,
			},
		})
	}

	m.registry.Bind(userID, c.ID(), ut)
	if err := m.presence.SetOnline(ctx, userID); err != nil {
		m.log.WarnContext(ctx, "connection - register user - presence store failed", "user_id", userID, "err", err)
	}
	if _, err := m.backend.PostEvent(ctx, connectionStatusEvent(userID, ut, domain.PresenceOnline)); err != nil {
		m.log.ErrorContext(ctx, "connection - register user - status publish failed", "user_id", userID, "err", err)
	}
	m.log.InfoContext(ctx, "connection - register user - registered",
		"user_id", userID, "user_type", ut, "conn_id", c.ID())
}

// HandleDisconnect tears a connection down. Registry cleanup is
// synchronous; the backend and presence-store notifications run on
// their own goroutine so a slow backend never delays transport
// teardown.
func (m *ConnectionManager) HandleDisconnect(connID string) {
	sess, ok := m.registry.MarkOffline(connID)
	m.registry.Detach(connID)
	if !ok {
		// Anonymous connection; nothing to announce.
		return
	}
	m.log.Info("connection - disconnect - user offline",
		"user_id", sess.UserID, "user_type", sess.UserType, "conn_id", connID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ctx, span := tracer.Start(ctx, "ConnectionManager.Disconnect", trace.WithAttributes(
			attribute.String("user_id", sess.UserID),
		))
		defer span.End()
		if err := m.presence.SetOffline(ctx, sess.UserID); err != nil {
			m.log.WarnContext(ctx, "connection - disconnect - presence store failed", "user_id", sess.UserID, "err", err)
		}
		if _, err := m.backend.PostEvent(ctx, connectionStatusEvent(sess.UserID, sess.UserType, domain.PresenceOffline)); err != nil {
			span.RecordError(err)
			m.log.ErrorContext(ctx, "connection - disconnect - status publish failed", "user_id", sess.UserID, "err", err)
		}
	}()
}

// connectionStatusEvent shapes the backend's presence-change envelope.
// event_data is a JSON string, not an object; the backend stores it
// verbatim.
func connectionStatusEvent(userID string, ut domain.UserType, status domain.Presence) map[string]any {
	eventData, _ := json.Marshal(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	var driverStatus any
	if ut == domain.UserTypeDriver {
		driverStatus = status
	}
	return map[string]any{
		"event": domain.EvConnectionStatus,
		"data": map[string]any{
			"userId":                   userID,
			"userType":                 ut,
			"event_type":               "connection_status_change",
			"event_data":               string(eventData),
			"user_connection_status":   status,
			"driver_connection_status": driverStatus,
		},
	}
}
