package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakePresence() *fakePresence { return &fakePresence{online: map[string]bool{}} }

func (p *fakePresence) SetOnline(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	return nil
}

func (p *fakePresence) SetOffline(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	return nil
}

func (p *fakePresence) Online(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id := range p.online {
		out = append(out, id)
	}
	return out, nil
}

func (p *fakePresence) isOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

type fakeReplayer struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeReplayer) Replay(_ context.Context, _ contracts.Client, event string, _ json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return true
}

func (r *fakeReplayer) replayed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func testManager(t *testing.T, backend *fakeBackend) (*ConnectionManager, *registry.Registry, *fakePresence) {
	t.Helper()
	d, reg := testDispatcher(t, backend)
	presence := newFakePresence()
	m := NewConnectionManager(d.log, backend, reg, presence)
	return m, reg, presence
}

func registerPayload(extra map[string]any) json.RawMessage {
	payload := map[string]any{"userId": 12}
	for k, v := range extra {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// waitForPosted polls until the backend has seen event or the deadline
// passes. Disconnect publishing runs on its own goroutine.
func waitForPosted(t *testing.T, backend *fakeBackend, event string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n := 0
		for _, ev := range backend.postedEvents() {
			if ev == event {
				n++
			}
		}
		if n >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never saw %d %q envelopes; posted %v", want, event, backend.postedEvents())
}

func TestRegisterUserBindsSessionAndPublishesOnline(t *testing.T) {
	backend := newFakeBackend()
	backend.userTypes["12"] = domain.UserTypeDriver
	m, reg, presence := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	m.RegisterUser(context.Background(), c, registerPayload(map[string]any{"notify_token": "fcm-abc"}))

	sess, ok := reg.Lookup("12")
	if !ok || sess.ConnID != "conn-1" || sess.UserType != domain.UserTypeDriver {
		t.Fatalf("session = %+v, %v", sess, ok)
	}
	if sess.Presence != domain.PresenceOnline {
		t.Errorf("presence = %q, want online", sess.Presence)
	}
	if !presence.isOnline("12") {
		t.Error("presence mirror not updated")
	}
	backend.mu.Lock()
	token := backend.tokens["12"]
	backend.mu.Unlock()
	if token != "fcm-abc" {
		t.Errorf("notify token = %q, want fcm-abc", token)
	}

	waitForPosted(t, backend, domain.EvConnectionStatus, 1)
	backend.mu.Lock()
	envelope := backend.posted[len(backend.posted)-1]
	backend.mu.Unlock()
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("envelope = %v", envelope)
	}
	if data["user_connection_status"] != "online" {
		t.Errorf("user_connection_status = %v", data["user_connection_status"])
	}
	if data["driver_connection_status"] != "online" {
		t.Errorf("driver_connection_status = %v, want online for a driver", data["driver_connection_status"])
	}
	if _, isString := data["event_data"].(string); !isString {
		t.Errorf("event_data = %T, want a JSON string", data["event_data"])
	}
}

func TestRegisterUserRiderHasNullDriverStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.userTypes["5"] = domain.UserTypeRider
	m, reg, _ := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	raw, _ := json.Marshal(map[string]any{"userId": 5})
	m.RegisterUser(context.Background(), c, raw)

	waitForPosted(t, backend, domain.EvConnectionStatus, 1)
	backend.mu.Lock()
	data := backend.posted[len(backend.posted)-1]["data"].(map[string]any)
	backend.mu.Unlock()
	if data["driver_connection_status"] != nil {
		t.Errorf("driver_connection_status = %v, want null for a rider", data["driver_connection_status"])
	}
}

func TestRegisterUserReplaysLastEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.lastEvent = &domain.StoredEvent{
		EventType: domain.EvDriverArrived,
		EventData: json.RawMessage(`{"order":{"id":77},"driver":{"id":12}}`),
	}
	m, reg, _ := testManager(t, backend)
	replayer := &fakeReplayer{}
	m.SetReplayer(replayer)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	m.RegisterUser(context.Background(), c, registerPayload(nil))

	got := replayer.replayed()
	if len(got) != 1 || got[0] != domain.EvDriverArrived {
		t.Fatalf("replayed = %v, want driver_arrived once", got)
	}
}

func TestRegisterUserSkipsReplayAfterEndTrip(t *testing.T) {
	backend := newFakeBackend()
	backend.lastEvent = &domain.StoredEvent{
		EventType: domain.EvEndTrip,
		EventData: json.RawMessage(`{"order_id":77}`),
	}
	m, reg, _ := testManager(t, backend)
	replayer := &fakeReplayer{}
	m.SetReplayer(replayer)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	m.RegisterUser(context.Background(), c, registerPayload(nil))

	if got := replayer.replayed(); len(got) != 0 {
		t.Fatalf("replayed = %v, an ended trip must not resume", got)
	}
	if _, ok := reg.Lookup("12"); !ok {
		t.Fatal("registration must still complete after a skipped replay")
	}
}

func TestRegisterUserEchoesDriverLocation(t *testing.T) {
	backend := newFakeBackend()
	backend.userTypes["12"] = domain.UserTypeDriver
	m, reg, _ := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	m.RegisterUser(context.Background(), c, registerPayload(map[string]any{
		"data": map[string]any{
			"event": domain.EvUpdateDriverLocation, "driver_id": 12,
			"latitude": 6.5, "longitude": 3.3,
		},
	}))

	frames := c.framesFor(domain.EvDriverLocationUpdate)
	if len(frames) != 1 {
		t.Fatalf("frames = %+v, want one location echo", c.Frames())
	}
}

func TestRegisterUserMissingUserID(t *testing.T) {
	backend := newFakeBackend()
	m, reg, _ := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	raw, _ := json.Marshal(map[string]any{"notify_token": "fcm-abc"})
	m.RegisterUser(context.Background(), c, raw)

	if n := backend.backendCalls(); n != 0 {
		t.Errorf("backend calls = %d, want 0 without a user id", n)
	}
}

func TestDisconnectPublishesOfflineAndRetainsSession(t *testing.T) {
	backend := newFakeBackend()
	backend.userTypes["12"] = domain.UserTypeDriver
	m, reg, presence := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)
	m.RegisterUser(context.Background(), c, registerPayload(nil))
	waitForPosted(t, backend, domain.EvConnectionStatus, 1)

	m.HandleDisconnect(c.ID())

	sess, ok := reg.Lookup("12")
	if !ok {
		t.Fatal("session dropped on disconnect; it must be retained offline")
	}
	if sess.Presence != domain.PresenceOffline {
		t.Errorf("presence = %q, want offline", sess.Presence)
	}

	waitForPosted(t, backend, domain.EvConnectionStatus, 2)
	if presence.isOnline("12") {
		t.Error("presence mirror still online after disconnect")
	}
	backend.mu.Lock()
	data := backend.posted[len(backend.posted)-1]["data"].(map[string]any)
	backend.mu.Unlock()
	if data["user_connection_status"] != "offline" {
		t.Errorf("user_connection_status = %v, want offline", data["user_connection_status"])
	}
}

func TestDisconnectAnonymousConnectionIsSilent(t *testing.T) {
	backend := newFakeBackend()
	m, reg, _ := testManager(t, backend)
	c := newFakeClient("conn-1")
	reg.Attach(c)

	m.HandleDisconnect(c.ID())

	time.Sleep(20 * time.Millisecond)
	if n := backend.backendCalls(); n != 0 {
		t.Errorf("backend calls = %d, want 0 for an anonymous disconnect", n)
	}
}
