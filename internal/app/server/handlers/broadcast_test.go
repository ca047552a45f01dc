package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

type recordingClient struct {
	id string

	mu     sync.Mutex
	frames []domain.ServerFrame
}

func (c *recordingClient) ID() string { return c.id }
func (c *recordingClient) Close()     {}

func (c *recordingClient) Send(_ context.Context, data []byte) error {
	var frame domain.ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recordingClient) sentFrames() []domain.ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ServerFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

type memJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (j *memJournal) Append(_ context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) Recent(_ context.Context, n int64) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.JournalEntry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

func postBroadcast(t *testing.T, h *BroadcastHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Broadcast(rec, req)
	return rec
}

func TestBroadcastMissingEventRejected(t *testing.T) {
	h := NewBroadcastHandler(registry.NewRegistry(), &memJournal{})

	rec := postBroadcast(t, h, `{"data":{"order_id":77}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := registry.NewRegistry()
	a := &recordingClient{id: "conn-a"}
	b := &recordingClient{id: "conn-b"}
	hub.Attach(a)
	hub.Attach(b)
	journal := &memJournal{}
	h := NewBroadcastHandler(hub, journal)

	rec := postBroadcast(t, h, `{"event":"surge_pricing","data":{"multiplier":1.4}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	for _, c := range []*recordingClient{a, b} {
		frames := c.sentFrames()
		if len(frames) != 1 || frames[0].Event != "surge_pricing" {
			t.Fatalf("client %s frames = %+v", c.ID(), frames)
		}
	}
	journal.mu.Lock()
	logged := len(journal.entries)
	journal.mu.Unlock()
	if logged != 1 {
		t.Errorf("journal entries = %d, want 1", logged)
	}
}

func TestBroadcastRoomScoped(t *testing.T) {
	hub := registry.NewRegistry()
	member := &recordingClient{id: "conn-a"}
	outsider := &recordingClient{id: "conn-b"}
	hub.Attach(member)
	hub.Attach(outsider)
	hub.Join(member.ID(), "ride:77")
	h := NewBroadcastHandler(hub, nil)

	rec := postBroadcast(t, h, `{"event":"eta_update","room":"ride:77","data":{"eta_min":4}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if frames := member.sentFrames(); len(frames) != 1 {
		t.Fatalf("member frames = %+v", frames)
	}
	if frames := outsider.sentFrames(); len(frames) != 0 {
		t.Fatalf("outsider frames = %+v, want none", frames)
	}
}

func TestBroadcastTargetedUserReportsDelivery(t *testing.T) {
	hub := registry.NewRegistry()
	c := &recordingClient{id: "conn-a"}
	hub.Attach(c)
	hub.Bind("12", c.ID(), domain.UserTypeDriver)
	h := NewBroadcastHandler(hub, nil)

	rec := postBroadcast(t, h, `{"event":"payout_ready","user_id":12,"data":{}}`)
	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Delivered {
		t.Error("delivered = false for a bound online user")
	}

	rec = postBroadcast(t, h, `{"event":"payout_ready","user_id":999,"data":{}}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Delivered {
		t.Error("delivered = true for an unknown user")
	}
}

func TestJournalEndpointNewestFirst(t *testing.T) {
	journal := &memJournal{}
	_ = journal.Append(context.Background(), domain.JournalEntry{Event: "first", Direction: "inbound"})
	_ = journal.Append(context.Background(), domain.JournalEntry{Event: "second", Direction: "inbound"})
	h := NewBroadcastHandler(registry.NewRegistry(), journal)

	req := httptest.NewRequest(http.MethodGet, "/journal", nil)
	rec := httptest.NewRecorder()
	h.Journal(rec, req)

	var resp struct {
		Entries []domain.JournalEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Event != "second" {
		t.Fatalf("entries = %+v, want newest first", resp.Entries)
	}
}
