package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

type UserType string

const (
	UserTypeRider  UserType = "rider"
	UserTypeDriver UserType = "driver"
)

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// OrderStatus values as reported by the backend. The relay never owns
// order state, it only sequences its emissions against these.
type OrderStatus string

const (
	OrderCreated        OrderStatus = "created"
	OrderDriverAccepted OrderStatus = "driver_accepted"
	OrderRideConfirmed  OrderStatus = "ride_confirmed"
	OrderPickedUp       OrderStatus = "picked_up"
	OrderInProgress     OrderStatus = "in_progress"
	OrderDelivered      OrderStatus = "delivered"
	OrderCompleted      OrderStatus = "completed"
	OrderCanceled       OrderStatus = "canceled"
)

// ID tolerates both numeric and string identifiers; the backend is not
// consistent about which it sends.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Coord tolerates coordinates serialized as either numbers or strings.
type Coord float64

func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*c = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*c = Coord(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Coord(f)
	return nil
}

// Session is the live binding between a user identity and a transport
// connection. Keyed by user ID in the registry; at most one live entry
// per user, last registration wins.
type Session struct {
	UserID   string
	ConnID   string
	UserType UserType
	Presence Presence
	LastSeen time.Time
}

// Order is the backend's view of an order as read through the
// order-status endpoint. Referenced, never owned.
type Order struct {
	ID          ID             `json:"id"`
	Status      OrderStatus    `json:"status"`
	Customer    ID             `json:"customer,omitempty"`
	ConfirmedAt string         `json:"confirmed_at,omitempty"`
	DriverToken string         `json:"agora_token_driver,omitempty"`
	ChatToken   string         `json:"agora_token_chat,omitempty"`
	Driver      *DriverProfile `json:"driver,omitempty"`
}

// DriverProfile carries the driver fields the mobile apps render in
// the accept/confirm flow.
type DriverProfile struct {
	ID          ID     `json:"id"`
	Name        string `json:"name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Phone       string `json:"phone,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
	Color       string `json:"color,omitempty"`
	AgoraUser   string `json:"agora_username,omitempty"`
	DriverToken string `json:"agora_token_driver,omitempty"`
}

// DriverCandidate is a transient nearby-drivers result. Never persisted;
// lives only inside one ride_created handling.
type DriverCandidate struct {
	ID        ID    `json:"id"`
	Latitude  Coord `json:"latitude"`
	Longitude Coord `json:"longitude"`
}

// StoredEvent is the last lifecycle event the backend recorded for a
// user, replayed on reconnect.
type StoredEvent struct {
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
}

// JournalEntry is one line of the relay's debug event journal.
type JournalEntry struct {
	Event     string    `json:"event"`
	Direction string    `json:"direction"`
	ConnID    string    `json:"conn_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
