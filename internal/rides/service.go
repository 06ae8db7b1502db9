package rides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"go.uber.org/zap"
)

// ConsumerGroup identifies the ride service on the bus. Both inbound topics
// use the same group so all records for one ride are handled by one worker.
const ConsumerGroup = "ride-service-group"

// Service owns the rider-initiated ride lifecycle: it creates ride rows and
// advances their status in response to bus events.
type Service struct {
	repo     RidesRepository
	producer Publisher
}

// NewService creates a new rides service
func NewService(repo RidesRepository, producer Publisher) *Service {
	return &Service{repo: repo, producer: producer}
}

// Subscriber registers bus handlers for a (topic, group) pair.
type Subscriber interface {
	Subscribe(topic, group string, handler kafka.HandlerFunc)
}

// Start registers the ride-matches and ride-updates consumers.
func (s *Service) Start(consumer Subscriber) {
	consumer.Subscribe(kafka.TopicRideMatches, ConsumerGroup, s.HandleRideMatch)
	consumer.Subscribe(kafka.TopicRideUpdates, ConsumerGroup, s.HandleRideUpdate)
	logger.Info("ride service consuming", zap.String("group", ConsumerGroup))
}

// CreateRideRequest inserts a new ride in requested status and publishes it
// to ride-requests. The row commit precedes the publish; if the publish
// fails the ride stays requested and the failure is logged, not rolled back.
func (s *Service) CreateRideRequest(ctx context.Context, req *models.RideRequest) (*models.Ride, error) {
	if !models.VehicleType(req.VehicleType).Valid() {
		return nil, common.NewBadRequestError(fmt.Sprintf("unknown vehicle type %q", req.VehicleType), nil)
	}

	if _, err := s.repo.GetRiderByID(ctx, req.RiderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("rider not found", err)
		}
		return nil, fmt.Errorf("look up rider %d: %w", req.RiderID, err)
	}

	ride := &models.Ride{
		RiderID:            req.RiderID,
		PickupLat:          req.PickupLat,
		PickupLon:          req.PickupLon,
		PickupAddress:      req.PickupAddress,
		DestinationLat:     req.DestinationLat,
		DestinationLon:     req.DestinationLon,
		DestinationAddress: req.DestinationAddress,
		VehicleType:        models.VehicleType(req.VehicleType),
	}
	if err := s.repo.CreateRide(ctx, ride); err != nil {
		return nil, err
	}

	event := kafka.RideRequestEvent{
		RideID:             ride.ID,
		RiderID:            ride.RiderID,
		PickupLat:          ride.PickupLat,
		PickupLon:          ride.PickupLon,
		PickupAddress:      ride.PickupAddress,
		DestinationLat:     ride.DestinationLat,
		DestinationLon:     ride.DestinationLon,
		DestinationAddress: ride.DestinationAddress,
		VehicleType:        string(ride.VehicleType),
		RequestedAt:        ride.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
	key := strconv.FormatInt(ride.ID, 10)
	if err := s.producer.Send(ctx, kafka.TopicRideRequests, key, event); err != nil {
		// The row is committed; the ride stays requested until re-driven.
		logger.WarnContext(ctx, "ride request publish failed",
			zap.Int64("ride_id", ride.ID),
			zap.Error(err),
		)
	} else {
		logger.InfoContext(ctx, "ride request created",
			zap.Int64("ride_id", ride.ID),
			zap.Int64("rider_id", ride.RiderID),
		)
	}

	return ride, nil
}

// HandleRideMatch consumes a ride-matches record and transitions the ride
// from requested to matched. Records for rides already at matched or later
// are idempotent no-ops.
func (s *Service) HandleRideMatch(ctx context.Context, key, value []byte) error {
	var event kafka.RideMatchEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed ride-matches record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	applied, err := s.repo.ApplyMatch(ctx, event.RideID, event.DriverID, event.EstimatedFare, event.RideDistance)
	if err != nil {
		logger.Error("apply match failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}
	if !applied {
		logger.Info("duplicate match ignored", zap.Int64("ride_id", event.RideID))
		return nil
	}

	logger.Info("ride matched",
		zap.Int64("ride_id", event.RideID),
		zap.Int64("driver_id", event.DriverID),
		zap.Float64("fare", event.EstimatedFare),
	)
	return nil
}

// HandleRideUpdate consumes a ride-updates record and advances the ride FSM,
// stamping the matching timestamp. Illegal transitions are logged no-ops.
func (s *Service) HandleRideUpdate(ctx context.Context, key, value []byte) error {
	var event kafka.RideUpdateEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed ride-updates record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	ev, ok := EventForStatus(models.RideStatus(event.Status))
	if !ok {
		logger.Warn("unknown ride update status",
			zap.Int64("ride_id", event.RideID),
			zap.String("status", event.Status),
		)
		return nil
	}

	applied, err := s.repo.AdvanceStatus(ctx, event.RideID, ev, event.Fare)
	if err != nil {
		logger.Error("advance status failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}
	if !applied {
		logger.Info("ride transition ignored",
			zap.Int64("ride_id", event.RideID),
			zap.String("event", string(ev)),
		)
		return nil
	}

	logger.Info("ride status updated",
		zap.Int64("ride_id", event.RideID),
		zap.String("status", event.Status),
	)
	return nil
}

// CancelRide publishes a cancellation to ride-updates. The ride row is not
// touched here; the ride-updates consumer applies the transition, which the
// status guard rejects for rides already started or finished.
func (s *Service) CancelRide(ctx context.Context, rideID int64) error {
	ride, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NewNotFoundError("ride not found", err)
		}
		return err
	}
	if _, ok := Next(ride.Status, EventCancel); !ok {
		return common.NewConflictError(fmt.Sprintf("ride %d cannot be cancelled from status %s", rideID, ride.Status))
	}

	event := kafka.RideUpdateEvent{
		RideID:    rideID,
		Status:    string(models.RideStatusCancelled),
		Timestamp: kafka.Now(),
	}
	if ride.DriverID != nil {
		event.DriverID = *ride.DriverID
	}
	key := strconv.FormatInt(rideID, 10)
	if err := s.producer.Send(ctx, kafka.TopicRideUpdates, key, event); err != nil {
		return common.NewInternalError("failed to publish cancellation", err)
	}

	logger.InfoContext(ctx, "ride cancellation published", zap.Int64("ride_id", rideID))
	return nil
}

// GetRide returns a ride by id.
func (s *Service) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	ride, err := s.repo.GetRideByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", err)
		}
		return nil, err
	}
	return ride, nil
}

// ListRidesByRider returns a rider's rides, newest first.
func (s *Service) ListRidesByRider(ctx context.Context, riderID int64) ([]*models.Ride, error) {
	return s.repo.ListRidesByRider(ctx, riderID)
}

// ListRidesByDriver returns a driver's rides, newest first.
func (s *Service) ListRidesByDriver(ctx context.Context, driverID int64) ([]*models.Ride, error) {
	return s.repo.ListRidesByDriver(ctx, driverID)
}

// CreateRider registers a new rider.
func (s *Service) CreateRider(ctx context.Context, req *models.RiderCreate) (*models.Rider, error) {
	rider := &models.Rider{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if err := s.repo.CreateRider(ctx, rider); err != nil {
		return nil, err
	}
	return rider, nil
}

// GetRider returns a rider by id.
func (s *Service) GetRider(ctx context.Context, id int64) (*models.Rider, error) {
	rider, err := s.repo.GetRiderByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("rider not found", err)
		}
		return nil, err
	}
	return rider, nil
}
