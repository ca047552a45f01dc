package domain

import "encoding/json"

// Inbound event names. Anything outside this set falls through to the
// generic forward-and-echo path.
const (
	EvRegisterUser         = "register_user"
	EvJoinRoom             = "join_room"
	EvLeaveRoom            = "leave_room"
	EvRideCreated          = "ride_created"
	EvAcceptOrder          = "accept_order"
	EvOrderCancelled       = "order_cancelled"
	EvCancelOrder          = "cancel_order"
	EvRejectOrder          = "reject_order"
	EvDriverEnroute        = "driver_enroute_to_rider"
	EvDriverArrived        = "driver_arrived"
	EvDriverWaiting        = "driver_waiting"
	EvStartTrip            = "start_trip"
	EvTripInProgress       = "trip_in_progress"
	EvArrivedAtDestination = "arrived_at_destination"
	EvUpdateDriverLocation = "update_driver_location"
	EvEndTrip              = "end_trip"
	EvChatMessage          = "chat_message"
)

// Synthetic outbound event names.
const (
	EvRideAccepted        = "ride_accepted"
	EvConfirmRide         = "confirm_ride"
	EvRideCancelled       = "ride_cancelled"
	EvAcceptOrderResponse = "accept_order_response"
	// The typo is load-bearing: deployed clients subscribe to this
	// exact name.
	EvRideAlreadyTaken     = "ride_alreay_taken"
	EvDriverLocationUpdate = "driver_location_update"
	EvError                = "error"
	// EvConnectionStatus is the backend-facing presence change event,
	// never emitted to clients.
	EvConnectionStatus = "update_connection_status"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	// Two spellings, both deployed: cancel_order acks with "canceled",
	// the ride_cancelled notification carries "cancelled".
	StatusCanceled  = "canceled"
	StatusCancelled = "cancelled"
)

// ClientEnvelope is one inbound socket frame.
type ClientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerFrame is one outbound socket frame. Status/Message/Data mirror
// the acknowledgment shape clients expect.
type ServerFrame struct {
	Event   string `json:"event"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	OrderID ID     `json:"order_id,omitempty"`
}
