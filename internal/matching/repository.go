package matching

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openride/dispatch/pkg/models"
)

// Candidate is a driver eligible for matching: online, right vehicle class,
// with a known position.
type Candidate struct {
	ID   int64
	Name string
	Lat  float64
	Lon  float64
}

// Repository handles database operations for matching
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new matching repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindCandidates returns every online driver of the requested vehicle class
// with a stored position.
func (r *Repository) FindCandidates(ctx context.Context, vehicleType models.VehicleType) ([]Candidate, error) {
	query := `
		SELECT id, name, current_lat, current_lon
		FROM drivers
		WHERE is_online = true
		  AND vehicle_type = $1
		  AND current_lat IS NOT NULL
		  AND current_lon IS NOT NULL
	`
	rows, err := r.db.Query(ctx, query, vehicleType)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Lat, &c.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ApplyFareEstimate stores the estimated fare and trip distance on the ride
// row before the match is announced.
func (r *Repository) ApplyFareEstimate(ctx context.Context, rideID int64, fare, distanceKm float64) error {
	query := `UPDATE rides SET fare = $2, distance_km = $3 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, rideID, fare, distanceKm); err != nil {
		return fmt.Errorf("failed to store fare for ride %d: %w", rideID, err)
	}
	return nil
}
