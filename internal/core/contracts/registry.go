package contracts

import (
	"context"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// Registry is the process-wide session registry and room manager. All
// operations are atomic per key; sessions are keyed by user ID,
// connections and rooms by connection ID.
type Registry interface {
	// Attach adds a live connection before any user identity is known.
	Attach(c Client)
	// Detach removes the connection and its room membership. It never
	// touches the network.
	Detach(connID string)
	// Bind associates a user identity with a connection. A second
	// registration for the same user overwrites the first
	// (last-registration-wins).
	Bind(userID, connID string, ut domain.UserType)
	// MarkOffline reverse-scans the sessions for the one owning connID
	// and flips it offline. A missing match is not an error: anonymous
	// connections disconnect silently.
	MarkOffline(connID string) (domain.Session, bool)
	// Lookup returns a copy of the session for userID.
	Lookup(userID string) (domain.Session, bool)

	// Join places the connection in a room; a second join overwrites
	// the first. Leave removes it.
	Join(connID, room string)
	Leave(connID string)
	Room(connID string) (string, bool)

	// EmitToUser delivers a frame to the user's live connection; the
	// boolean reports whether an online target existed. Conn-scoped
	// replies go through the Client handle directly.
	EmitToUser(ctx context.Context, userID string, frame domain.ServerFrame) bool
	// Broadcast delivers to every live connection; BroadcastRoom scopes
	// delivery to one room.
	Broadcast(ctx context.Context, frame domain.ServerFrame)
	BroadcastRoom(ctx context.Context, room string, frame domain.ServerFrame)
}

// Client is the minimal surface the registry and dispatcher need to talk
// to one websocket connection.
type Client interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Close()
}
