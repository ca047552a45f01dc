package contracts

import (
	"context"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// Journal records relay traffic for the debug inspection endpoint.
// Append failures are logged by callers, never escalated.
type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int64) ([]domain.JournalEntry, error)
}
