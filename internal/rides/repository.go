package rides

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openride/dispatch/pkg/models"
)

// Repository handles database operations for rides and riders
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new rides repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRide inserts a new ride in requested status and fills in the
// generated id and requested_at.
func (r *Repository) CreateRide(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (
			rider_id, pickup_lat, pickup_lon, pickup_address,
			destination_lat, destination_lon, destination_address,
			vehicle_type, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'requested')
		RETURNING id, status, requested_at
	`

	err := r.db.QueryRow(ctx, query,
		ride.RiderID,
		ride.PickupLat,
		ride.PickupLon,
		ride.PickupAddress,
		ride.DestinationLat,
		ride.DestinationLon,
		ride.DestinationAddress,
		ride.VehicleType,
	).Scan(&ride.ID, &ride.Status, &ride.RequestedAt)

	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}
	return nil
}

const rideColumns = `
	id, rider_id, driver_id, pickup_lat, pickup_lon, pickup_address,
	destination_lat, destination_lon, destination_address, status,
	vehicle_type, fare, distance_km, requested_at, matched_at,
	accepted_at, started_at, completed_at
`

func scanRide(row interface{ Scan(...interface{}) error }) (*models.Ride, error) {
	ride := &models.Ride{}
	err := row.Scan(
		&ride.ID,
		&ride.RiderID,
		&ride.DriverID,
		&ride.PickupLat,
		&ride.PickupLon,
		&ride.PickupAddress,
		&ride.DestinationLat,
		&ride.DestinationLon,
		&ride.DestinationAddress,
		&ride.Status,
		&ride.VehicleType,
		&ride.Fare,
		&ride.DistanceKm,
		&ride.RequestedAt,
		&ride.MatchedAt,
		&ride.AcceptedAt,
		&ride.StartedAt,
		&ride.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// GetRideByID retrieves a ride by ID
func (r *Repository) GetRideByID(ctx context.Context, id int64) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	ride, err := scanRide(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get ride %d: %w", id, err)
	}
	return ride, nil
}

// ListRidesByRider returns all rides for a rider, newest first.
func (r *Repository) ListRidesByRider(ctx context.Context, riderID int64) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 ORDER BY requested_at DESC`
	return r.listRides(ctx, query, riderID)
}

// ListRidesByDriver returns all rides for a driver, newest first.
func (r *Repository) ListRidesByDriver(ctx context.Context, driverID int64) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 ORDER BY requested_at DESC`
	return r.listRides(ctx, query, driverID)
}

func (r *Repository) listRides(ctx context.Context, query string, arg interface{}) ([]*models.Ride, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	defer rows.Close()

	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// ApplyMatch transitions a requested ride to matched, recording the selected
// driver, fare and distance. Returns false when the ride is not in requested
// status (duplicate or late match), which callers treat as a no-op.
func (r *Repository) ApplyMatch(ctx context.Context, rideID, driverID int64, fare, distanceKm float64) (bool, error) {
	query := `
		UPDATE rides
		SET driver_id = $2, fare = $3, distance_km = $4,
		    status = 'matched', matched_at = now()
		WHERE id = $1 AND status = 'requested'
	`
	tag, err := r.db.Exec(ctx, query, rideID, driverID, fare, distanceKm)
	if err != nil {
		return false, fmt.Errorf("failed to apply match to ride %d: %w", rideID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AdvanceStatus applies a lifecycle event. The status guard in each UPDATE
// enforces the FSM at the row level, so concurrent or replayed events
// resolve to no-ops. Returns false when the guard rejected the transition.
func (r *Repository) AdvanceStatus(ctx context.Context, rideID int64, ev Event, fare *float64) (bool, error) {
	var query string
	args := []interface{}{rideID}

	switch ev {
	case EventAccept:
		query = `UPDATE rides SET status = 'accepted', accepted_at = now()
			WHERE id = $1 AND status = 'matched'`
	case EventStart:
		query = `UPDATE rides SET status = 'started', started_at = now()
			WHERE id = $1 AND status = 'accepted'`
	case EventComplete:
		query = `UPDATE rides SET status = 'completed', completed_at = now(),
			fare = COALESCE($2, fare)
			WHERE id = $1 AND status = 'started'`
		args = append(args, fare)
	case EventCancel:
		query = `UPDATE rides SET status = 'cancelled'
			WHERE id = $1 AND status IN ('requested', 'matched', 'accepted')`
	default:
		return false, fmt.Errorf("unknown ride event %q", ev)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to advance ride %d (%s): %w", rideID, ev, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateRider inserts a new rider and fills in the generated id.
func (r *Repository) CreateRider(ctx context.Context, rider *models.Rider) error {
	query := `
		INSERT INTO riders (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING id, rating, created_at
	`
	err := r.db.QueryRow(ctx, query, rider.Name, rider.Email, rider.Phone).
		Scan(&rider.ID, &rider.Rating, &rider.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rider: %w", err)
	}
	return nil
}

// GetRiderByID retrieves a rider by ID
func (r *Repository) GetRiderByID(ctx context.Context, id int64) (*models.Rider, error) {
	rider := &models.Rider{}
	query := `SELECT id, name, email, phone, rating, created_at FROM riders WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rider.ID, &rider.Name, &rider.Email, &rider.Phone, &rider.Rating, &rider.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rider %d: %w", id, err)
	}
	return rider, nil
}
