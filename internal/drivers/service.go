package drivers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"go.uber.org/zap"
)

// Publisher sends keyed JSON records to the bus.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value interface{}) error
}

// DriversRepository provides driver data access.
type DriversRepository interface {
	CreateDriver(ctx context.Context, driver *models.Driver) error
	GetDriverByID(ctx context.Context, id int64) (*models.Driver, error)
	SetAvailability(ctx context.Context, driverID int64, online bool) (bool, error)
	UpdateLocation(ctx context.Context, driverID int64, lat, lon float64) (bool, models.VehicleType, error)
}

// Service handles driver registration, availability and position reports,
// and driver-initiated ride lifecycle actions. Ride rows are never mutated
// here; lifecycle actions are published to ride-updates and applied by the
// ride service.
type Service struct {
	repo     DriversRepository
	producer Publisher
}

// NewService creates a new drivers service
func NewService(repo DriversRepository, producer Publisher) *Service {
	return &Service{repo: repo, producer: producer}
}

// CreateDriver registers a new driver.
func (s *Service) CreateDriver(ctx context.Context, req *models.DriverCreate) (*models.Driver, error) {
	driver := &models.Driver{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		VehicleType:   models.VehicleType(req.VehicleType),
		VehicleNumber: req.VehicleNumber,
	}
	if err := s.repo.CreateDriver(ctx, driver); err != nil {
		return nil, err
	}
	return driver, nil
}

// GetDriver returns a driver by id.
func (s *Service) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	driver, err := s.repo.GetDriverByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("driver not found", err)
		}
		return nil, err
	}
	return driver, nil
}

// UpdateAvailability persists the online flag and publishes it to
// driver-availability. A publish failure is surfaced so the caller retries;
// the flag stays persisted either way.
func (s *Service) UpdateAvailability(ctx context.Context, req *models.AvailabilityUpdate) error {
	online := *req.IsOnline

	found, err := s.repo.SetAvailability(ctx, req.DriverID, online)
	if err != nil {
		return err
	}
	if !found {
		return common.NewNotFoundError("driver not found", nil)
	}

	event := kafka.DriverAvailabilityEvent{
		DriverID:  req.DriverID,
		IsOnline:  online,
		Timestamp: kafka.Now(),
	}
	key := strconv.FormatInt(req.DriverID, 10)
	if err := s.producer.Send(ctx, kafka.TopicDriverAvailability, key, event); err != nil {
		return common.NewInternalError("failed to publish availability", err)
	}

	logger.InfoContext(ctx, "driver availability updated",
		zap.Int64("driver_id", req.DriverID),
		zap.Bool("is_online", online),
	)
	return nil
}

// UpdateLocation persists the position and publishes it to driver-locations.
// Reports from offline drivers are stored but not published, so the live
// view only ever sees online drivers. Returns whether the report was
// published.
func (s *Service) UpdateLocation(ctx context.Context, req *models.LocationUpdate) (bool, error) {
	online, vehicleType, err := s.repo.UpdateLocation(ctx, req.DriverID, req.Lat, req.Lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, common.NewNotFoundError("driver not found", err)
		}
		return false, err
	}

	if !online {
		logger.WarnContext(ctx, "location report from offline driver suppressed",
			zap.Int64("driver_id", req.DriverID),
		)
		return false, nil
	}

	event := kafka.DriverLocationEvent{
		DriverID:    req.DriverID,
		Lat:         req.Lat,
		Lon:         req.Lon,
		VehicleType: string(vehicleType),
		Timestamp:   kafka.Now(),
	}
	key := strconv.FormatInt(req.DriverID, 10)
	if err := s.producer.Send(ctx, kafka.TopicDriverLocations, key, event); err != nil {
		return false, common.NewInternalError("failed to publish location", err)
	}
	return true, nil
}

// AcceptRide publishes the accepted transition for a ride.
func (s *Service) AcceptRide(ctx context.Context, req *models.RideAction) error {
	return s.publishRideUpdate(ctx, req, models.RideStatusAccepted, nil)
}

// StartRide publishes the started transition for a ride.
func (s *Service) StartRide(ctx context.Context, req *models.RideAction) error {
	return s.publishRideUpdate(ctx, req, models.RideStatusStarted, nil)
}

// CompleteRide publishes the completed transition. The final fare is
// required; it replaces the matched estimate when the ride service applies
// the event.
func (s *Service) CompleteRide(ctx context.Context, req *models.RideAction) error {
	if req.Fare == nil {
		return common.NewBadRequestError("fare is required to complete a ride", nil)
	}
	return s.publishRideUpdate(ctx, req, models.RideStatusCompleted, req.Fare)
}

func (s *Service) publishRideUpdate(ctx context.Context, req *models.RideAction, status models.RideStatus, fare *float64) error {
	event := kafka.RideUpdateEvent{
		RideID:    req.RideID,
		DriverID:  req.DriverID,
		Status:    string(status),
		Timestamp: kafka.Now(),
		Fare:      fare,
	}
	key := strconv.FormatInt(req.RideID, 10)
	if err := s.producer.Send(ctx, kafka.TopicRideUpdates, key, event); err != nil {
		return common.NewInternalError("failed to publish ride update", err)
	}

	logger.InfoContext(ctx, "ride update published",
		zap.Int64("ride_id", req.RideID),
		zap.Int64("driver_id", req.DriverID),
		zap.String("status", string(status)),
	)
	return nil
}
