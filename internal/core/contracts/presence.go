package contracts

import "context"

// PresenceStore mirrors session presence into Redis so operators and
// sibling nodes can observe who is online. The in-process registry
// stays authoritative; the mirror is advisory.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Online(ctx context.Context) ([]string, error)
}
