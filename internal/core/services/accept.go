package services

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// handleAcceptOrder runs the accept handshake: read the authoritative
// order status, reject if another driver got there first, commit the
// acceptance, then confirm asynchronously. The status check is an
// optimization only; the backend remains the linearization point, so
// two drivers racing past the check both forward and the backend picks
// the winner.
func (d *Dispatcher) handleAcceptOrder(ctx context.Context, c contracts.Client, raw json.RawMessage) {
	ctx, span := tracer.Start(ctx, "Dispatcher.AcceptOrder")
	defer span.End()
	var in struct {
		Order struct {
			ID        domain.ID `json:"id"`
			ChatToken string    `json:"agora_token_chat"`
		} `json:"order"`
		Driver domain.DriverProfile `json:"driver"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.Order.ID == "" {
		span.SetStatus(codes.Error, domain.ErrMissingOrderID.Error())
		d.log.ErrorContext(ctx, "dispatcher - accept order - missing order id", "conn_id", c.ID())
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvAcceptOrderResponse,
			Status:  domain.StatusError,
			Message: "Invalid order data received.",
		})
		return
	}
	orderID := in.Order.ID.String()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.String("driver_id", in.Driver.ID.String()))

	order, err := d.backend.OrderStatus(ctx, orderID)
	if err != nil || order.Status == "" {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - accept order - status check failed", "order_id", orderID, "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvAcceptOrderResponse,
			Status:  domain.StatusError,
			Message: "Invalid order status received.",
		})
		return
	}
	if order.Status == domain.OrderDriverAccepted {
		d.log.InfoContext(ctx, "dispatcher - accept order - ride already taken",
			"order_id", orderID, "driver_id", in.Driver.ID)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvRideAlreadyTaken,
			Status:  domain.StatusError,
			Message: "This ride has already been accepted by another driver.",
			OrderID: in.Order.ID,
		})
		return
	}

	if _, err := d.backend.ForwardEvent(ctx, domain.EvAcceptOrder, raw); err != nil {
		span.RecordError(err)
		d.log.ErrorContext(ctx, "dispatcher - accept order - forward failed", "order_id", orderID, "err", err)
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   domain.EvRideAccepted,
			Status:  domain.StatusError,
			Message: "Failed to accept the ride. Please try again.",
		})
		return
	}

	// Re-read for the session tokens the backend mints on acceptance.
	driverToken := ""
	chatToken := in.Order.ChatToken
	if updated, err := d.backend.OrderStatus(ctx, orderID); err != nil {
		d.log.WarnContext(ctx, "dispatcher - accept order - token re-read failed", "order_id", orderID, "err", err)
	} else {
		driverToken = updated.DriverToken
		if chatToken == "" {
			chatToken = updated.ChatToken
		}
	}

	accepted := map[string]any{
		"order": map[string]any{
			"id":               in.Order.ID,
			"status":           domain.OrderDriverAccepted,
			"driver":           in.Driver,
			"agora_token_chat": chatToken,
		},
	}
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   domain.EvRideAccepted,
		Status:  domain.StatusSuccess,
		Message: "Ride accepted successfully.",
		Data:    accepted,
	})
	if _, err := d.backend.ForwardEvent(ctx, domain.EvRideAccepted, accepted); err != nil {
		d.log.ErrorContext(ctx, "dispatcher - accept order - acceptance record failed", "order_id", orderID, "err", err)
	}

	// Confirmation runs on its own task so the connection keeps
	// handling other events; it dies with the connection context.
	go d.confirmRide(ctx, c, orderID, driverToken)
}

// confirmRide polls the order until the backend reflects the
// acceptance, then pushes the confirmation frame. Bounded attempts; an
// exhausted poll is logged and abandoned, never surfaced as a failure
// to the driver who already holds a provisional acceptance.
func (d *Dispatcher) confirmRide(ctx context.Context, c contracts.Client, orderID, driverToken string) {
	ctx, span := tracer.Start(ctx, "Dispatcher.ConfirmRide", trace.WithAttributes(
		attribute.String("order_id", orderID),
	))
	defer span.End()

	var order *domain.Order
	for attempt := 0; attempt < d.cfg.ConfirmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.log.InfoContext(ctx, "dispatcher - confirm ride - abandoned, connection closed", "order_id", orderID)
				return
			case <-time.After(d.cfg.ConfirmInterval):
			}
		}
		got, err := d.backend.OrderStatus(ctx, orderID)
		if err != nil {
			d.log.WarnContext(ctx, "dispatcher - confirm ride - status poll failed",
				"order_id", orderID, "attempt", attempt+1, "err", err)
			continue
		}
		if got.Status == domain.OrderDriverAccepted {
			order = got
			break
		}
		d.log.InfoContext(ctx, "dispatcher - confirm ride - status not yet accepted",
			"order_id", orderID, "status", got.Status, "attempt", attempt+1)
	}
	if order == nil {
		span.SetStatus(codes.Error, "confirmation attempts exhausted")
		d.log.ErrorContext(ctx, "dispatcher - confirm ride - status not confirmed", "order_id", orderID)
		return
	}

	// One more read for the confirmed_at the backend stamps on the
	// acceptance; the polled snapshot may predate it.
	if fresh, err := d.backend.OrderStatus(ctx, orderID); err == nil {
		order = fresh
	}

	confirmed := map[string]any{
		"order": map[string]any{
			"id":                 order.ID,
			"status":             order.Status,
			"confirmed_at":       order.ConfirmedAt,
			"agora_token_driver": driverToken,
		},
	}
	if order.Driver != nil {
		confirmed["driver"] = map[string]any{"id": order.Driver.ID}
	}
	emitFrame(ctx, d.log, c, domain.ServerFrame{
		Event:   domain.EvConfirmRide,
		Status:  domain.StatusSuccess,
		Message: "Ride has been confirmed.",
		Data:    confirmed,
	})
	if _, err := d.backend.ForwardEvent(ctx, domain.EvConfirmRide, confirmed); err != nil {
		d.log.ErrorContext(ctx, "dispatcher - confirm ride - confirmation record failed", "order_id", orderID, "err", err)
	}
	d.log.InfoContext(ctx, "dispatcher - confirm ride - confirmed", "order_id", orderID)
}
