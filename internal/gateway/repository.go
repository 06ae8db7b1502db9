package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database lookups for fan-out routing
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new gateway repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetRideParties returns the rider and, when matched, the driver of a ride.
func (r *Repository) GetRideParties(ctx context.Context, rideID int64) (int64, *int64, error) {
	var (
		riderID  int64
		driverID *int64
	)
	err := r.db.QueryRow(ctx, `SELECT rider_id, driver_id FROM rides WHERE id = $1`, rideID).
		Scan(&riderID, &driverID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get ride %d parties: %w", rideID, err)
	}
	return riderID, driverID, nil
}
