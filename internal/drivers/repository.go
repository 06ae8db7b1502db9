package drivers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openride/dispatch/pkg/models"
)

// Repository handles database operations for drivers
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new drivers repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateDriver inserts a new driver and fills in the generated fields.
func (r *Repository) CreateDriver(ctx context.Context, driver *models.Driver) error {
	query := `
		INSERT INTO drivers (name, email, phone, vehicle_type, vehicle_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, rating, is_online, created_at
	`
	err := r.db.QueryRow(ctx, query,
		driver.Name, driver.Email, driver.Phone, driver.VehicleType, driver.VehicleNumber,
	).Scan(&driver.ID, &driver.Rating, &driver.IsOnline, &driver.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}
	return nil
}

// GetDriverByID retrieves a driver by ID
func (r *Repository) GetDriverByID(ctx context.Context, id int64) (*models.Driver, error) {
	driver := &models.Driver{}
	query := `
		SELECT id, name, email, phone, vehicle_type, vehicle_number,
		       rating, is_online, current_lat, current_lon, created_at
		FROM drivers WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&driver.ID, &driver.Name, &driver.Email, &driver.Phone,
		&driver.VehicleType, &driver.VehicleNumber, &driver.Rating,
		&driver.IsOnline, &driver.CurrentLat, &driver.CurrentLon, &driver.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get driver %d: %w", id, err)
	}
	return driver, nil
}

// SetAvailability flips the online flag. Returns false when the driver does
// not exist.
func (r *Repository) SetAvailability(ctx context.Context, driverID int64, online bool) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE drivers SET is_online = $2 WHERE id = $1`, driverID, online)
	if err != nil {
		return false, fmt.Errorf("failed to set driver %d availability: %w", driverID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateLocation stores the driver's position and reports the current online
// flag and vehicle type, which the service uses to decide whether the
// position is published.
func (r *Repository) UpdateLocation(ctx context.Context, driverID int64, lat, lon float64) (bool, models.VehicleType, error) {
	var (
		online      bool
		vehicleType models.VehicleType
	)
	query := `
		UPDATE drivers SET current_lat = $2, current_lon = $3
		WHERE id = $1
		RETURNING is_online, vehicle_type
	`
	err := r.db.QueryRow(ctx, query, driverID, lat, lon).Scan(&online, &vehicleType)
	if err != nil {
		return false, "", fmt.Errorf("failed to update driver %d location: %w", driverID, err)
	}
	return online, vehicleType, nil
}
