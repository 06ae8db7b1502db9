package kafka

import "time"

// Topic names. All topics are keyed by the ride or driver id so records for
// one entity land on the same partition.
const (
	TopicRideRequests       = "ride-requests"
	TopicRideMatches        = "ride-matches"
	TopicRideUpdates        = "ride-updates"
	TopicDriverLocations    = "driver-locations"
	TopicDriverAvailability = "driver-availability"
)

// AllTopics lists every dispatch topic for startup creation.
var AllTopics = []string{
	TopicRideRequests,
	TopicRideMatches,
	TopicRideUpdates,
	TopicDriverLocations,
	TopicDriverAvailability,
}

// RideRequestEvent is published to ride-requests when a rider requests a ride.
type RideRequestEvent struct {
	RideID             int64   `json:"ride_id"`
	RiderID            int64   `json:"rider_id"`
	PickupLat          float64 `json:"pickup_lat"`
	PickupLon          float64 `json:"pickup_lon"`
	PickupAddress      string  `json:"pickup_address"`
	DestinationLat     float64 `json:"destination_lat"`
	DestinationLon     float64 `json:"destination_lon"`
	DestinationAddress string  `json:"destination_address"`
	VehicleType        string  `json:"vehicle_type"`
	RequestedAt        string  `json:"requested_at"`
}

// RideMatchEvent is published to ride-matches when a driver is selected.
type RideMatchEvent struct {
	RideID           int64   `json:"ride_id"`
	DriverID         int64   `json:"driver_id"`
	DriverName       string  `json:"driver_name"`
	DistanceToPickup float64 `json:"distance_to_pickup"`
	EstimatedFare    float64 `json:"estimated_fare"`
	RideDistance     float64 `json:"ride_distance"`
	VehicleType      string  `json:"vehicle_type"`
}

// RideUpdateEvent is published to ride-updates for driver-initiated
// lifecycle transitions. Fare is set only on completion.
type RideUpdateEvent struct {
	RideID    int64    `json:"ride_id"`
	DriverID  int64    `json:"driver_id"`
	Status    string   `json:"status"`
	Timestamp float64  `json:"timestamp"`
	Fare      *float64 `json:"fare,omitempty"`
}

// DriverLocationEvent is published to driver-locations while a driver is
// online.
type DriverLocationEvent struct {
	DriverID    int64   `json:"driver_id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	VehicleType string  `json:"vehicle_type"`
	Timestamp   float64 `json:"timestamp"`
}

// DriverAvailabilityEvent is published to driver-availability when a driver
// goes online or offline.
type DriverAvailabilityEvent struct {
	DriverID  int64   `json:"driver_id"`
	IsOnline  bool    `json:"is_online"`
	Timestamp float64 `json:"timestamp"`
}

// Now returns the current time as fractional Unix seconds, the timestamp
// format carried on driver and ride events.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
