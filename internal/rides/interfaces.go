package rides

import (
	"context"

	"github.com/openride/dispatch/pkg/models"
)

// Publisher sends keyed JSON records to the bus.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value interface{}) error
}

// RidesRepository provides ride and rider data access.
type RidesRepository interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRideByID(ctx context.Context, id int64) (*models.Ride, error)
	ListRidesByRider(ctx context.Context, riderID int64) ([]*models.Ride, error)
	ListRidesByDriver(ctx context.Context, driverID int64) ([]*models.Ride, error)
	ApplyMatch(ctx context.Context, rideID, driverID int64, fare, distanceKm float64) (bool, error)
	AdvanceStatus(ctx context.Context, rideID int64, ev Event, fare *float64) (bool, error)
	CreateRider(ctx context.Context, rider *models.Rider) error
	GetRiderByID(ctx context.Context, id int64) (*models.Rider, error)
}
