package contracts

import (
	"context"
	"encoding/json"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// Backend wraps every outbound call to the ride backend. Any call may
// fail with a network error or a non-success status; callers must treat
// failure as "unknown outcome": the write may have landed server-side
// even when the response was lost.
type Backend interface {
	// ForwardEvent posts {event, data} to the generic event sink and
	// returns the backend's response body for echoing to the client.
	ForwardEvent(ctx context.Context, event string, data any) (json.RawMessage, error)
	// PostEvent posts an already-shaped envelope to the event sink.
	// Lifecycle steps use it for their step-specific field layouts.
	PostEvent(ctx context.Context, envelope any) (json.RawMessage, error)
	// OrderStatus reads the authoritative order record.
	OrderStatus(ctx context.Context, orderID string) (*domain.Order, error)
	// FindNearbyDrivers queries candidates around a pickup point.
	// radiusMeters is passed through to the backend unchanged.
	FindNearbyDrivers(ctx context.Context, lat, lon, radiusMeters float64) ([]domain.DriverCandidate, error)
	// UserType resolves whether a user is a rider or a driver.
	UserType(ctx context.Context, userID string) (domain.UserType, error)
	// StoreNotifyToken saves a push-notification token.
	StoreNotifyToken(ctx context.Context, userID, token string) error
	// LastEvent returns the user's last recorded lifecycle event, or
	// nil when none is stored.
	LastEvent(ctx context.Context, userID string) (*domain.StoredEvent, error)
}
