package matching

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/openride/dispatch/pkg/geo"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"go.uber.org/zap"
)

// ConsumerGroup identifies the matching service on the bus.
const ConsumerGroup = "matching-service-group"

// distanceEpsilon bounds float noise when comparing candidate distances.
// Candidates closer together than this are tied and resolve by driver id.
const distanceEpsilon = 1e-9

// Publisher sends keyed JSON records to the bus.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value interface{}) error
}

// MatchingRepository provides candidate lookup and fare persistence.
type MatchingRepository interface {
	FindCandidates(ctx context.Context, vehicleType models.VehicleType) ([]Candidate, error)
	ApplyFareEstimate(ctx context.Context, rideID int64, fare, distanceKm float64) error
}

// Subscriber registers bus handlers for a (topic, group) pair.
type Subscriber interface {
	Subscribe(topic, group string, handler kafka.HandlerFunc)
}

// Service pairs ride requests with the nearest eligible driver.
type Service struct {
	repo     MatchingRepository
	producer Publisher
}

// NewService creates a new matching service
func NewService(repo MatchingRepository, producer Publisher) *Service {
	return &Service{repo: repo, producer: producer}
}

// Start registers the ride-requests consumer.
func (s *Service) Start(consumer Subscriber) {
	consumer.Subscribe(kafka.TopicRideRequests, ConsumerGroup, s.HandleRideRequest)
	logger.Info("matching service consuming", zap.String("group", ConsumerGroup))
}

// HandleRideRequest selects the candidate nearest to the pickup point, prices
// the trip, stores the estimate on the ride row and announces the match.
// Requests with no eligible driver are logged and dropped. Failures after
// candidate selection return an error so the record is redelivered; the
// ride-matches publish happens last, so a retry never follows a publish.
func (s *Service) HandleRideRequest(ctx context.Context, key, value []byte) error {
	var event kafka.RideRequestEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed ride-requests record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	candidates, err := s.repo.FindCandidates(ctx, models.VehicleType(event.VehicleType))
	if err != nil {
		logger.Error("candidate lookup failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}
	best, pickupDist, ok := selectNearest(candidates, event.PickupLat, event.PickupLon)
	if !ok {
		logger.Warn("no driver available for ride",
			zap.Int64("ride_id", event.RideID),
			zap.String("vehicle_type", event.VehicleType),
		)
		return nil
	}

	rideDistance := geo.Haversine(event.PickupLat, event.PickupLon, event.DestinationLat, event.DestinationLon)
	fare := EstimateFare(models.VehicleType(event.VehicleType), rideDistance)

	if err := s.repo.ApplyFareEstimate(ctx, event.RideID, fare, geo.Round2(rideDistance)); err != nil {
		logger.Error("fare persist failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}

	match := kafka.RideMatchEvent{
		RideID:           event.RideID,
		DriverID:         best.ID,
		DriverName:       best.Name,
		DistanceToPickup: geo.Round2(pickupDist),
		EstimatedFare:    fare,
		RideDistance:     geo.Round2(rideDistance),
		VehicleType:      event.VehicleType,
	}
	if err := s.producer.Send(ctx, kafka.TopicRideMatches, strconv.FormatInt(event.RideID, 10), match); err != nil {
		logger.Error("match publish failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}

	logger.Info("ride matched to driver",
		zap.Int64("ride_id", event.RideID),
		zap.Int64("driver_id", best.ID),
		zap.Float64("distance_to_pickup", match.DistanceToPickup),
		zap.Float64("estimated_fare", fare),
	)
	return nil
}

// selectNearest returns the candidate with the smallest distance to the
// given point. Distances within distanceEpsilon are tied and the lowest
// driver id wins, so the selection is deterministic regardless of scan
// order.
func selectNearest(candidates []Candidate, lat, lon float64) (Candidate, float64, bool) {
	var (
		best     Candidate
		bestDist float64
		found    bool
	)
	for _, c := range candidates {
		d := geo.Haversine(lat, lon, c.Lat, c.Lon)
		switch {
		case !found:
			best, bestDist, found = c, d, true
		case d < bestDist-distanceEpsilon:
			best, bestDist = c, d
		case d < bestDist+distanceEpsilon && c.ID < best.ID:
			best, bestDist = c, d
		}
	}
	return best, bestDist, found
}
