package models

import "time"

// VehicleType enumerates the supported vehicle classes.
type VehicleType string

const (
	VehicleBike  VehicleType = "bike"
	VehicleSedan VehicleType = "sedan"
	VehicleSUV   VehicleType = "suv"
)

// Valid reports whether v is a known vehicle type.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleBike, VehicleSedan, VehicleSUV:
		return true
	}
	return false
}

// RideStatus represents the status of a ride
type RideStatus string

const (
	RideStatusRequested RideStatus = "requested"
	RideStatusMatched   RideStatus = "matched"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusStarted   RideStatus = "started"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// Driver represents a driver in the system
type Driver struct {
	ID            int64       `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	Email         string      `json:"email" db:"email"`
	Phone         string      `json:"phone" db:"phone"`
	VehicleType   VehicleType `json:"vehicle_type" db:"vehicle_type"`
	VehicleNumber string      `json:"vehicle_number" db:"vehicle_number"`
	Rating        float64     `json:"rating" db:"rating"`
	IsOnline      bool        `json:"is_online" db:"is_online"`
	CurrentLat    *float64    `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLon    *float64    `json:"current_lon,omitempty" db:"current_lon"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// Rider represents a rider in the system
type Rider struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Rating    float64   `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Ride represents a ride in the system
type Ride struct {
	ID                 int64       `json:"id" db:"id"`
	RiderID            int64       `json:"rider_id" db:"rider_id"`
	DriverID           *int64      `json:"driver_id,omitempty" db:"driver_id"`
	PickupLat          float64     `json:"pickup_lat" db:"pickup_lat"`
	PickupLon          float64     `json:"pickup_lon" db:"pickup_lon"`
	PickupAddress      string      `json:"pickup_address" db:"pickup_address"`
	DestinationLat     float64     `json:"destination_lat" db:"destination_lat"`
	DestinationLon     float64     `json:"destination_lon" db:"destination_lon"`
	DestinationAddress string      `json:"destination_address" db:"destination_address"`
	Status             RideStatus  `json:"status" db:"status"`
	VehicleType        VehicleType `json:"vehicle_type" db:"vehicle_type"`
	Fare               *float64    `json:"fare,omitempty" db:"fare"`
	DistanceKm         *float64    `json:"distance_km,omitempty" db:"distance_km"`
	RequestedAt        time.Time   `json:"requested_at" db:"requested_at"`
	MatchedAt          *time.Time  `json:"matched_at,omitempty" db:"matched_at"`
	AcceptedAt         *time.Time  `json:"accepted_at,omitempty" db:"accepted_at"`
	StartedAt          *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// RideRequest represents a ride request from a rider
type RideRequest struct {
	RiderID            int64   `json:"rider_id" binding:"required"`
	PickupLat          float64 `json:"pickup_lat" binding:"required"`
	PickupLon          float64 `json:"pickup_lon" binding:"required"`
	PickupAddress      string  `json:"pickup_address" binding:"required"`
	DestinationLat     float64 `json:"destination_lat" binding:"required"`
	DestinationLon     float64 `json:"destination_lon" binding:"required"`
	DestinationAddress string  `json:"destination_address" binding:"required"`
	VehicleType        string  `json:"vehicle_type" binding:"required,oneof=bike sedan suv"`
}

// RiderCreate represents a request to register a rider
type RiderCreate struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required"`
}

// DriverCreate represents a request to register a driver
type DriverCreate struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Phone         string `json:"phone" binding:"required"`
	VehicleType   string `json:"vehicle_type" binding:"required,oneof=bike sedan suv"`
	VehicleNumber string `json:"vehicle_number" binding:"required"`
}

// AvailabilityUpdate represents a driver going online or offline
type AvailabilityUpdate struct {
	DriverID int64 `json:"driver_id" binding:"required"`
	IsOnline *bool `json:"is_online" binding:"required"`
}

// LocationUpdate represents a driver position report
type LocationUpdate struct {
	DriverID int64   `json:"driver_id" binding:"required"`
	Lat      float64 `json:"lat" binding:"required"`
	Lon      float64 `json:"lon" binding:"required"`
}

// RideAction represents a driver-initiated ride lifecycle action
type RideAction struct {
	DriverID int64    `json:"driver_id" binding:"required"`
	RideID   int64    `json:"ride_id" binding:"required"`
	Fare     *float64 `json:"fare,omitempty"`
}
