package ws

import (
	"context"
	"sync"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// RuntimeClient decouples handler goroutines from the socket write:
// sends go through a buffered channel and a single writeLoop, so a slow
// reader never blocks a dispatcher invocation.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	connID string
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, ws *WebSocket, connID string) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		connID: connID,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() string { return c.connID }

// Context is done once the connection is gone; in-flight waits (the
// accept-order confirmation poll) select on it to avoid leaking work
// against a dead client.
func (c *RuntimeClient) Context() context.Context { return c.ctx }

func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	// Report a closed client even while the buffer still has room.
	select {
	case <-c.ctx.Done():
		return domain.ErrClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return domain.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the client context and closes the socket. The out
// channel is deliberately never closed: handler goroutines may be
// inside Send at any moment, and a closed channel would turn that race
// into a panic. writeLoop exits on the context instead, and buffered
// frames are dropped.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
