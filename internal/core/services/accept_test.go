package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

func acceptPayload() map[string]any {
	return map[string]any{
		"order": map[string]any{"id": 77},
		"driver": map[string]any{
			"id": 12, "name": "Tunde", "vehicle_type": "sedan", "plate_number": "LAG-123",
		},
	}
}

func TestAcceptOrderAlreadyTaken(t *testing.T) {
	backend := newFakeBackend()
	backend.orders["77"] = &domain.Order{ID: "77", Status: domain.OrderDriverAccepted}
	d, reg := testDispatcher(t, backend)
	c := newFakeClient("conn-driver")
	reg.Attach(c)

	dispatchEnvelope(t, d, c, domain.EvAcceptOrder, acceptPayload())

	taken := c.framesFor(domain.EvRideAlreadyTaken)
	if len(taken) != 1 {
		t.Fatalf("frames = %+v, want one ride_alreay_taken", c.Frames())
	}
	if taken[0].OrderID != "77" {
		t.Errorf("order_id = %q, want 77", taken[0].OrderID)
	}
	if got := backend.forwardedEvents(); len(got) != 0 {
		t.Errorf("forwarded = %v, want the acceptance never forwarded", got)
	}
}

func TestAcceptOrderMissingOrderID(t *testing.T) {
	backend := newFakeBackend()
	d, reg := testDispatcher(t, backend)
	c := newFakeClient("conn-driver")
	reg.Attach(c)

	dispatchEnvelope(t, d, c, domain.EvAcceptOrder, map[string]any{
		"driver": map[string]any{"id": 12},
	})

	frames := c.framesFor(domain.EvAcceptOrderResponse)
	if len(frames) != 1 || frames[0].Status != domain.StatusError {
		t.Fatalf("frames = %+v, want one accept_order_response error", c.Frames())
	}
	if n := backend.backendCalls(); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestAcceptOrderHandshakeConfirms(t *testing.T) {
	backend := newFakeBackend()
	backend.seqOrderID = "77"
	backend.orders["77"] = &domain.Order{
		ID:          "77",
		DriverToken: "tok-driver",
		ChatToken:   "tok-chat",
		ConfirmedAt: "2026-08-30T10:00:00Z",
		Driver:      &domain.DriverProfile{ID: "12"},
	}
	// check: created; token re-read: created; then two poll misses
	// before the backend reflects the acceptance.
	backend.orderSeq = []domain.OrderStatus{
		domain.OrderCreated, domain.OrderCreated,
		domain.OrderCreated, domain.OrderCreated,
		domain.OrderDriverAccepted,
	}
	d, reg := testDispatcher(t, backend)
	c := newFakeClient("conn-driver")
	reg.Attach(c)

	dispatchEnvelope(t, d, c, domain.EvAcceptOrder, acceptPayload())

	accepted := c.framesFor(domain.EvRideAccepted)
	if len(accepted) != 1 || accepted[0].Status != domain.StatusSuccess {
		t.Fatalf("frames = %+v, want one provisional ride_accepted", c.Frames())
	}

	confirmed := c.waitForFrame(t, domain.EvConfirmRide, time.Second)
	if confirmed.Status != domain.StatusSuccess {
		t.Errorf("confirm status = %q", confirmed.Status)
	}

	// accept_order committed, ride_accepted recorded, confirm_ride
	// recorded, in that order.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(backend.forwardedEvents()) == 3 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	want := []string{domain.EvAcceptOrder, domain.EvRideAccepted, domain.EvConfirmRide}
	got := backend.forwardedEvents()
	if len(got) != len(want) {
		t.Fatalf("forwarded = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("forwarded = %v, want %v", got, want)
		}
	}
}

func TestAcceptOrderConfirmPollExhausted(t *testing.T) {
	backend := newFakeBackend()
	backend.seqOrderID = "77"
	backend.orders["77"] = &domain.Order{ID: "77"}
	backend.orderSeq = []domain.OrderStatus{domain.OrderCreated} // never flips
	d, reg := testDispatcher(t, backend)
	c := newFakeClient("conn-driver")
	reg.Attach(c)

	dispatchEnvelope(t, d, c, domain.EvAcceptOrder, acceptPayload())

	c.waitForFrame(t, domain.EvRideAccepted, time.Second)
	// 5 attempts at 5ms spacing; generous wait, then the poll must have
	// given up without a confirm frame.
	time.Sleep(100 * time.Millisecond)
	if frames := c.framesFor(domain.EvConfirmRide); len(frames) != 0 {
		t.Fatalf("confirm frames = %+v, want abandonment after exhausted attempts", frames)
	}
	for _, ev := range backend.forwardedEvents() {
		if ev == domain.EvConfirmRide {
			t.Fatal("confirm_ride forwarded despite exhausted poll")
		}
	}
}

func TestAcceptOrderConfirmPollCancelledOnDisconnect(t *testing.T) {
	backend := newFakeBackend()
	backend.seqOrderID = "77"
	backend.orders["77"] = &domain.Order{ID: "77"}
	backend.orderSeq = []domain.OrderStatus{domain.OrderCreated}
	d, reg := testDispatcher(t, backend)
	c := newFakeClient("conn-driver")
	reg.Attach(c)

	ctx, cancel := context.WithCancel(context.Background())
	payload, err := json.Marshal(acceptPayload())
	if err != nil {
		t.Fatal(err)
	}
	env, err := json.Marshal(map[string]any{"event": domain.EvAcceptOrder, "data": json.RawMessage(payload)})
	if err != nil {
		t.Fatal(err)
	}
	d.Dispatch(ctx, c, env)
	c.waitForFrame(t, domain.EvRideAccepted, time.Second)

	cancel()
	// Once the connection context is gone the poll winds down; after a
	// settle period the read count must be flat and no confirmation may
	// ever have been pushed.
	time.Sleep(50 * time.Millisecond)
	settled := backend.statusReadCount()
	time.Sleep(50 * time.Millisecond)
	if after := backend.statusReadCount(); after != settled {
		t.Errorf("status reads kept going after disconnect: %d -> %d", settled, after)
	}
	if frames := c.framesFor(domain.EvConfirmRide); len(frames) != 0 {
		t.Fatalf("confirm frames = %+v after disconnect", frames)
	}
}

func TestAcceptOrderRaceSecondDriverRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.orders["77"] = &domain.Order{ID: "77", Status: domain.OrderCreated}
	d, reg := testDispatcher(t, backend)
	first := newFakeClient("conn-d1")
	second := newFakeClient("conn-d2")
	reg.Attach(first)
	reg.Attach(second)

	dispatchEnvelope(t, d, first, domain.EvAcceptOrder, acceptPayload())
	// The first acceptance landed; the backend now reports the order
	// taken when the slower driver's accept arrives.
	backend.mu.Lock()
	backend.orders["77"].Status = domain.OrderDriverAccepted
	backend.mu.Unlock()

	dispatchEnvelope(t, d, second, domain.EvAcceptOrder, map[string]any{
		"order":  map[string]any{"id": 77},
		"driver": map[string]any{"id": 99},
	})

	if frames := first.framesFor(domain.EvRideAccepted); len(frames) != 1 {
		t.Fatalf("first driver frames = %+v, want the acceptance", first.Frames())
	}
	if frames := second.framesFor(domain.EvRideAlreadyTaken); len(frames) != 1 {
		t.Fatalf("second driver frames = %+v, want ride_alreay_taken", second.Frames())
	}
	if frames := second.framesFor(domain.EvRideAccepted); len(frames) != 0 {
		t.Fatalf("second driver got ride_accepted: %+v", frames)
	}
}
