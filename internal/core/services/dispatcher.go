package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/config"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/geo"
)

var tracer = otel.Tracer("ride-dispatcher")

// HandlerFunc is one step of the ride lifecycle. Handlers never return
// errors: every failure is converted to a client-visible error frame or
// a log line at this boundary, so no single invocation can take the
// relay down.
type HandlerFunc func(ctx context.Context, c contracts.Client, data json.RawMessage)

// Dispatcher routes named client events to their lifecycle handlers.
// Events without a registered handler fall through to a generic
// forward-and-echo path, which keeps the relay forward-compatible with
// event types it has never seen.
type Dispatcher struct {
	log      *slog.Logger
	backend  contracts.Backend
	registry contracts.Registry
	journal  contracts.Journal
	cfg      config.DispatchConfig
	handlers map[string]HandlerFunc
}

func NewDispatcher(
	log *slog.Logger,
	backend contracts.Backend,
	registry contracts.Registry,
	journal contracts.Journal,
	cfg config.DispatchConfig,
) *Dispatcher {
	d := &Dispatcher{
		log:      log,
		backend:  backend,
		registry: registry,
		journal:  journal,
		cfg:      cfg,
		handlers: make(map[string]HandlerFunc),
	}
	d.handlers[domain.EvRideCreated] = d.handleRideCreated
	d.handlers[domain.EvAcceptOrder] = d.handleAcceptOrder
	d.handlers[domain.EvOrderCancelled] = d.handleOrderCancelled
	d.handlers[domain.EvCancelOrder] = d.handleCancelOrder
	d.handlers[domain.EvRejectOrder] = func(ctx context.Context, c contracts.Client, data json.RawMessage) {
		d.forwardAndEcho(ctx, c, domain.EvRejectOrder, data)
	}
	d.handlers[domain.EvUpdateDriverLocation] = d.handleUpdateDriverLocation
	d.handlers[domain.EvEndTrip] = d.handleEndTrip
	d.handlers[domain.EvChatMessage] = d.handleChatMessage
	d.handlers[domain.EvJoinRoom] = d.handleJoinRoom
	d.handlers[domain.EvLeaveRoom] = d.handleLeaveRoom
	for _, step := range tripSteps {
		d.handlers[step.event] = d.tripStepHandler(step)
	}
	return d
}

// Register adds or replaces a handler. The connection manager hooks
// register_user in through here.
func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

// Dispatch handles one inbound frame. Callers run it on its own
// goroutine; nothing here may assume exclusivity beyond the registry's
// own locking.
func (d *Dispatcher) Dispatch(ctx context.Context, c contracts.Client, raw []byte) {
	var env domain.ClientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		if err == nil {
			err = domain.ErrMissingEvent
		}
		d.log.WarnContext(ctx, "dispatcher - dispatch - invalid frame", "conn_id", c.ID(), "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvError,
			Status:  domain.StatusError,
			Message: "Invalid event frame.",
		})
		return
	}
	ctx, span := tracer.Start(ctx, "Dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("event", env.Event),
		attribute.String("conn_id", c.ID()),
	))
	defer span.End()
	d.journalEntry(ctx, env.Event, "inbound", c.ID(), "")

	if h, ok := d.handlers[env.Event]; ok {
		h(ctx, c, env.Data)
		return
	}
	d.log.InfoContext(ctx, "dispatcher - dispatch - dynamic event", "event", env.Event, "conn_id", c.ID())
	d.forwardAndEcho(ctx, c, env.Event, env.Data)
}

// Replay re-invokes the handler for a stored lifecycle event,
// resynchronizing a reconnecting client. Reports whether a handler
// existed for the event name.
func (d *Dispatcher) Replay(ctx context.Context, c contracts.Client, event string, data json.RawMessage) bool {
	h, ok := d.handlers[event]
	if !ok {
		return false
	}
	h(ctx, c, data)
	return true
}

// forwardAndEcho is the generic path: relay the event to the backend
// and mirror the outcome back to the sender under the same event name.
func (d *Dispatcher) forwardAndEcho(ctx context.Context, c contracts.Client, event string, data json.RawMessage) {
	resp, err := d.backend.ForwardEvent(ctx, event, data)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatcher - forward - backend call failed", "event", event, "conn_id", c.ID(), "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   event,
			Status:  domain.StatusError,
			Message: "Failed to handle " + event + ".",
			Error:   err.Error(),
		})
		return
	}
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   event,
		Status:  domain.StatusSuccess,
		Message: event + " handled successfully.",
		Data:    resp,
	})
}

func (d *Dispatcher) handleRideCreated(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.RideCreated")
	defer span.End()
	var in struct {
		Order    json.RawMessage `json:"order"`
		RideType json.RawMessage `json:"ride_type"`
		User     json.RawMessage `json:"user"`
		Radius   float64         `json:"radius"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || len(in.Order) == 0 {
		span.SetStatus(codes.Error, "invalid payload")
		d.log.ErrorContext(ctx, "dispatcher - ride created - invalid payload", "conn_id", c.ID())
		return
	}
	var pickup struct {
		FromLat  domain.Coord `json:"from_lat"`
		FromLong domain.Coord `json:"from_long"`
	}
	if err := json.Unmarshal(in.Order, &pickup); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - ride created - unreadable pickup point", "err", err)
		return
	}
	radiusMeters := in.Radius
	if radiusMeters <= 0 {
		radiusMeters = d.cfg.DefaultRadiusMeters
	}
	radiusKm := radiusMeters / 1000

	candidates, err := d.backend.FindNearbyDrivers(ctx, float64(pickup.FromLat), float64(pickup.FromLong), radiusMeters)
	if err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - ride created - nearby drivers lookup failed", "err", err)
	}

	// One broadcast per admitted driver, not one per batch. Zero
	// admitted drivers is a valid outcome; the forward below still runs.
	admitted := 0
	for _, drv := range candidates {
		if !geo.WithinRadius(float64(pickup.FromLat), float64(pickup.FromLong), float64(drv.Latitude), float64(drv.Longitude), radiusKm) {
			d.log.InfoContext(ctx, "dispatcher - ride created - driver outside radius",
				"driver_id", drv.ID, "radius_km", radiusKm)
			continue
		}
		d.registry.Broadcast(ctx, domain.ServerFrame{
			Event:  domain.EvRideCreated,
			Status: domain.StatusSuccess,
			Data: map[string]any{
				"order":     in.Order,
				"ride_type": in.RideType,
				"user":      in.User,
				"driver":    drv,
			},
		})
		admitted++
		d.log.InfoContext(ctx, "dispatcher - ride created - ride offered",
			"driver_id", drv.ID)
	}
	span.SetAttributes(attribute.Int("drivers.candidates", len(candidates)), attribute.Int("drivers.admitted", admitted))
	d.log.InfoContext(ctx, "dispatcher - ride created - fan-out complete",
		"candidates", len(candidates), "admitted", admitted)

	d.forwardAndEcho(ctx, c, domain.EvRideCreated, raw)
}

func (d *Dispatcher) handleOrderCancelled(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.OrderCancelled")
	defer span.End()
	var in struct {
		OrderID domain.ID `json:"order_id"`
		UserID  domain.ID `json:"user_id"`
		Reason  string    `json:"reason"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.OrderID == "" || in.UserID == "" {
		span.SetStatus(codes.Error, "invalid payload")
		d.log.ErrorContext(ctx, "dispatcher - order cancelled - invalid payload", "conn_id", c.ID())
		return
	}
	reason := in.Reason
	if reason == "" {
		reason = "No reason provided"
	}

	// Best-effort resolution of the other party; the forward below is
	// unconditional either way.
	cancelledBy, otherParty := d.resolveCancelParties(ctx, in.OrderID.String(), in.UserID)

	notice := map[string]any{
		"order_id":     in.OrderID,
		"cancelled_by": cancelledBy,
		"reason":       reason,
	}
	if otherParty != "" {
		if d.registry.EmitToUser(ctx, otherParty, domain.ServerFrame{
			Event:   domain.EvRideCancelled,
			Status:  domain.StatusCancelled,
			OrderID: in.OrderID,
			Data:    notice,
		}) {
			d.log.InfoContext(ctx, "dispatcher - order cancelled - other party notified",
				"order_id", in.OrderID, "user_id", otherParty)
		} else {
			d.log.InfoContext(ctx, "dispatcher - order cancelled - other party offline",
				"order_id", in.OrderID, "user_id", otherParty)
		}
	}

	if _, err := d.backend.ForwardEvent(ctx, domain.EvRideCancelled, notice); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - order cancelled - forward failed", "order_id", in.OrderID, "err", err)
	}
}

// resolveCancelParties reads the authoritative order to decide which
// side cancelled and who should be told.
func (d *Dispatcher) resolveCancelParties(ctx context.Context, orderID string, canceller domain.ID) (string, string) {
	order, err := d.backend.OrderStatus(ctx, orderID)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatcher - order cancelled - order lookup failed", "order_id", orderID, "err", err)
		return "", ""
	}
	switch {
	case order.Customer == canceller:
		if order.Driver != nil {
			return string(domain.UserTypeRider), order.Driver.ID.String()
		}
		return string(domain.UserTypeRider), ""
	case order.Driver != nil && order.Driver.ID == canceller:
		return string(domain.UserTypeDriver), order.Customer.String()
	default:
		d.log.WarnContext(ctx, "dispatcher - order cancelled - canceller matches neither party",
			"order_id", orderID, "user_id", canceller)
		return "", ""
	}
}

func (d *Dispatcher) handleCancelOrder(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.CancelOrder")
	defer span.End()
	if _, err := d.backend.ForwardEvent(ctx, domain.EvCancelOrder, raw); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - cancel order - forward failed", "err", err)
	}
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   domain.EvCancelOrder,
		Status:  domain.StatusCanceled,
		Message: "Ride Canceled.",
		Data:    raw,
	})

	var in struct {
		Order struct {
			ID           domain.ID `json:"id"`
			CustomerNote string    `json:"customer_note"`
			DriverNote   string    `json:"driver_note"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.Order.ID == "" {
		return
	}
	if _, err := d.backend.PostEvent(ctx, map[string]any{
		"event": domain.EvCancelOrder,
		"order": map[string]any{
			"id":            in.Order.ID,
			"status":        domain.OrderCanceled,
			"customer_note": in.Order.CustomerNote,
			"driver_note":   in.Order.DriverNote,
		},
	}); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - cancel order - status update failed", "order_id", in.Order.ID, "err", err)
	}
}

func (d *Dispatcher) handleUpdateDriverLocation(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.UpdateDriverLocation")
	defer span.End()
	var in struct {
		DriverID  domain.ID    `json:"driver_id"`
		OrderID   domain.ID    `json:"order_id"`
		Latitude  domain.Coord `json:"latitude"`
		Longitude domain.Coord `json:"longitude"`
		// Older driver builds nest the payload one level down.
		Data *struct {
			DriverID  domain.ID    `json:"driver_id"`
			OrderID   domain.ID    `json:"order_id"`
			Latitude  domain.Coord `json:"latitude"`
			Longitude domain.Coord `json:"longitude"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		d.log.ErrorContext(ctx, "dispatcher - update driver location - invalid payload", "err", err)
	}
	if in.DriverID == "" && in.Data != nil {
		in.DriverID = in.Data.DriverID
		in.OrderID = in.Data.OrderID
		in.Latitude = in.Data.Latitude
		in.Longitude = in.Data.Longitude
	}
	if in.DriverID == "" {
		span.SetStatus(codes.Error, domain.ErrMissingDriverID.Error())
		d.log.ErrorContext(ctx, "dispatcher - update driver location - missing driver id", "conn_id", c.ID())
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvUpdateDriverLocation,
			Status:  domain.StatusError,
			Message: "Failed to update driver location.",
		})
		return
	}

	// Forward first; the client is only told "updated" once the backend
	// write actually returned.
	var orderID any
	if in.OrderID != "" {
		orderID = in.OrderID
	}
	if _, err := d.backend.PostEvent(ctx, map[string]any{
		"event":     domain.EvUpdateDriverLocation,
		"order_id":  orderID,
		"driver_id": in.DriverID,
		"latitude":  in.Latitude,
		"longitude": in.Longitude,
	}); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - update driver location - backend update failed",
			"driver_id", in.DriverID, "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvUpdateDriverLocation,
			Status:  domain.StatusError,
			Message: "Failed to update driver location.",
		})
		return
	}
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   domain.EvUpdateDriverLocation,
		Status:  domain.StatusSuccess,
		Message: "Driver Location updated.",
		Data:    raw,
	})
}

func (d *Dispatcher) handleEndTrip(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.EndTrip")
	defer span.End()
	var in struct {
		OrderID     domain.ID   `json:"order_id"`
		DriverID    domain.ID   `json:"driver_id"`
		RiderID     domain.ID   `json:"rider_id"`
		EndTime     string      `json:"end_time"`
		PaymentMode string      `json:"payment_mode"`
		Amount      json.Number `json:"amount"`
	}
	var invalid error
	if err := json.Unmarshal(raw, &in); err != nil {
		invalid = err
	} else {
		switch {
		case in.OrderID == "":
			invalid = domain.ErrMissingOrderID
		case in.DriverID == "":
			invalid = domain.ErrMissingDriverID
		case in.RiderID == "":
			invalid = domain.ErrMissingRiderID
		}
	}
	if invalid != nil {
		span.SetStatus(codes.Error, invalid.Error())
		d.log.ErrorContext(ctx, "dispatcher - end trip - invalid request", "conn_id", c.ID(), "err", invalid)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvError,
			Status:  domain.StatusError,
			Message: "Invalid request. Missing order_id, driver_id, or rider_id.",
		})
		return
	}

	resp, err := d.backend.PostEvent(ctx, map[string]any{
		"event":        domain.EvEndTrip,
		"order_id":     in.OrderID,
		"driver_id":    in.DriverID,
		"rider_id":     in.RiderID,
		"end_time":     in.EndTime,
		"payment_mode": in.PaymentMode,
		"amount":       in.Amount,
	})
	if err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - end trip - forward failed", "order_id", in.OrderID, "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvError,
			Status:  domain.StatusError,
			Message: "Failed to end trip",
			Error:   err.Error(),
		})
		return
	}

	// Provisional ack keeps the sender's UI responsive; it does not
	// wait for the per-party notifications below.
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   domain.EvEndTrip,
		Status:  domain.StatusSuccess,
		Message: "Trip has ended.",
		Data:    raw,
	})

	// Each party is notified independently: the driver still hears
	// about the end of the trip when the rider is gone, and vice versa.
	final := domain.ServerFrame{
		Event:   domain.EvEndTrip,
		Status:  domain.StatusSuccess,
		Message: "Trip ended successfully.",
		Data:    resp,
	}
	if !d.registry.EmitToUser(ctx, in.DriverID.String(), final) {
		d.log.InfoContext(ctx, "dispatcher - end trip - driver not connected", "driver_id", in.DriverID)
	}
	if !d.registry.EmitToUser(ctx, in.RiderID.String(), final) {
		d.log.InfoContext(ctx, "dispatcher - end trip - rider not connected", "rider_id", in.RiderID)
	}
}

func (d *Dispatcher) handleChatMessage(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.ChatMessage")
	defer span.End()
	var in struct {
		Room string `json:"room"`
	}
	_ = json.Unmarshal(raw, &in)

	frame := domain.ServerFrame{
		Event:   domain.EvChatMessage,
		Status:  domain.StatusSuccess,
		Message: "New chat message.",
		Data:    raw,
	}
	if in.Room != "" {
		d.registry.BroadcastRoom(ctx, in.Room, frame)
	} else {
		d.registry.Broadcast(ctx, frame)
	}
	d.forwardAndEcho(ctx, c, domain.EvChatMessage, raw)
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	room, ok := decodeRoom(raw)
	if !ok {
		d.log.WarnContext(ctx, "dispatcher - join room - missing room name", "conn_id", c.ID())
		return
	}
	d.registry.Join(c.ID(), room)
	d.log.InfoContext(ctx, "dispatcher - join room - joined", "conn_id", c.ID(), "room", room)
}

func (d *Dispatcher) handleLeaveRoom(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	d.registry.Leave(c.ID())
	d.log.InfoContext(ctx, "dispatcher - leave room - left", "conn_id", c.ID())
}

// decodeRoom accepts either a bare string or {"room": "..."}.
func decodeRoom(raw json.RawMessage) (string, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil && name != "" {
		return name, true
	}
	var in struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(raw, &in); err == nil && in.Room != "" {
		return in.Room, true
	}
	return "", false
}

func (d *Dispatcher) journalEntry(ctx context.Context, event, direction, connID, detail string) {
	if d.journal == nil {
		return
	}
	entry := domain.JournalEntry{
		Event:     event,
		Direction: direction,
		ConnID:    connID,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := d.journal.Append(ctx, entry); err != nil {
		d.log.DebugContext(ctx, "dispatcher - journal - append failed", "event", event, "err", err)
	}
}

func emitFrame(ctx context.Context, log *slog.Logger, c contracts.Client, frame domain.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.ErrorContext(ctx, "dispatcher - emit - marshal failed", "event", frame.Event, "err", err)
		return
	}
	if err := c.Send(ctx, data); err != nil {
		log.WarnContext(ctx, "dispatcher - emit - send failed", "event", frame.Event, "conn_id", c.ID(), "err", err)
	}
}
