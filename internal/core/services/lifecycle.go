package services

import (
	"context"
	"encoding/json"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// tripPayload is the superset of fields the trip-step events carry.
// Each step reads the slice of it that its envelope needs.
type tripPayload struct {
	Order struct {
		ID        domain.ID `json:"id"`
		StartTime string    `json:"start_time"`
	} `json:"order"`
	Driver struct {
		ID       domain.ID `json:"id"`
		Position struct {
			Latitude  domain.Coord `json:"latitude"`
			Longitude domain.Coord `json:"longitude"`
		} `json:"position"`
	} `json:"driver"`
	OrderID   domain.ID    `json:"order_id"`
	DriverID  domain.ID    `json:"driver_id"`
	Latitude  domain.Coord `json:"latitude"`
	Longitude domain.Coord `json:"longitude"`
}

type tripStep struct {
	event   string
	message string
	// envelope builds the step-specific status update for the backend.
	// nil means the step is forward-and-ack only.
	envelope func(in tripPayload) map[string]any
}

var tripSteps = []tripStep{
	{
		event:   domain.EvDriverEnroute,
		message: "Driver Enroute.",
		envelope: func(in tripPayload) map[string]any {
			return map[string]any{
				"event":    domain.EvDriverEnroute,
				"rideId":   in.Order.ID,
				"driverId": in.Driver.ID,
				"status":   "on_driver",
				"position": map[string]any{
					"longitude": in.Driver.Position.Longitude,
					"latitude":  in.Driver.Position.Latitude,
				},
			}
		},
	},
	{
		event:   domain.EvDriverArrived,
		message: "Driver has arrived.",
		envelope: func(in tripPayload) map[string]any {
			return map[string]any{
				"event":    domain.EvDriverArrived,
				"rideId":   in.Order.ID,
				"status":   "arrived",
				"driverId": in.Driver.ID,
			}
		},
	},
	{
		event:   domain.EvDriverWaiting,
		message: "Driver is waiting.",
	},
	{
		event:   domain.EvStartTrip,
		message: "Trip has started.",
		envelope: func(in tripPayload) map[string]any {
			return map[string]any{
				"event": domain.EvStartTrip,
				"order": map[string]any{
					"id":         in.Order.ID,
					"status":     domain.OrderPickedUp,
					"start_time": in.Order.StartTime,
				},
			}
		},
	},
	{
		event:   domain.EvTripInProgress,
		message: "Trip in progress.",
		envelope: func(in tripPayload) map[string]any {
			return map[string]any{
				"event":     domain.EvTripInProgress,
				"order_id":  in.OrderID,
				"driver_id": in.DriverID,
				"latitude":  in.Latitude,
				"longitude": in.Longitude,
			}
		},
	},
	{
		event:   domain.EvArrivedAtDestination,
		message: "Driver has arrived at the destination.",
		envelope: func(in tripPayload) map[string]any {
			return map[string]any{
				"event":    domain.EvArrivedAtDestination,
				"rideId":   in.Order.ID,
				"status":   "delivered",
				"driverId": in.Driver.ID,
			}
		},
	},
}

// tripStepHandler builds the shared handler shape for a trip step:
// forward to the backend, acknowledge the sender, then post the
// step-specific status update. Status-update failures are logged only;
// the ack already went out on the strength of the forward.
func (d *Dispatcher) tripStepHandler(step tripStep) HandlerFunc {
	return func(ctx context.Context, c contracts.Client, raw json.RawMessage) {
		ctx, span := tracer.Start(ctx, "Dispatcher.TripStep."+step.event)
		defer span.End()
		if _, err := d.backend.ForwardEvent(ctx, step.event, raw); err != nil {
			span.RecordError(err)
			d.log.ErrorContext(ctx, "dispatcher - trip step - forward failed",
				"event", step.event, "conn_id", c.ID(), "err", err)
			emitFrame(ctx, d.log, c, domain.ServerFrame{
				Event:   step.event,
				Status:  domain.StatusError,
				Message: "Failed to handle " + step.event + ".",
				Error:   err.Error(),
			})
			return
		}
		emitFrame(ctx, d.log, c, domain.ServerFrame{
			Event:   step.event,
			Status:  domain.StatusSuccess,
			Message: step.message,
			Data:    raw,
		})
		if step.envelope == nil {
			return
		}
		var in tripPayload
		if err := json.Unmarshal(raw, &in); err != nil {
			d.log.WarnContext(ctx, "dispatcher - trip step - unreadable payload",
				"event", step.event, "err", err)
			return
		}
		if _, err := d.backend.PostEvent(ctx, step.envelope(in)); err != nil {
			span.RecordError(err)
			d.log.ErrorContext(ctx, "dispatcher - trip step - status update failed",
				"event", step.event, "err", err)
		}
	}
}
