package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/driverindex"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/redis"
	"go.uber.org/zap"
)

// ConsumerGroup identifies the gateway on the bus.
const ConsumerGroup = "gateway-group"

// locationTTL bounds how stale the redis location mirror can get.
const locationTTL = 5 * time.Minute

// Outbound message types pushed to websocket sessions.
const (
	MsgLocationUpdated     = "location_updated"
	MsgAvailabilityUpdated = "availability_updated"
	MsgRideUpdate          = "ride_update"
	MsgAllDriverLocations  = "all_driver_locations"
	MsgNearbyDrivers       = "nearby_drivers"
	MsgHeartbeat           = "heartbeat"
	MsgError               = "error"
)

// GatewayRepository resolves fan-out routing from the store.
type GatewayRepository interface {
	GetRideParties(ctx context.Context, rideID int64) (int64, *int64, error)
}

// Subscriber registers bus handlers for a (topic, group) pair.
type Subscriber interface {
	Subscribe(topic, group string, handler kafka.HandlerFunc)
}

// Service consumes driver and ride events and fans them out to websocket
// sessions, maintaining the live driver index and the redis location mirror
// along the way.
type Service struct {
	hub   *Hub
	index *driverindex.Index
	repo  GatewayRepository
	cache redis.ClientInterface
}

// NewService creates a new gateway service and wires itself as the hub's
// inbound handler.
func NewService(hub *Hub, index *driverindex.Index, repo GatewayRepository, cache redis.ClientInterface) *Service {
	s := &Service{hub: hub, index: index, repo: repo, cache: cache}
	hub.SetInboundHandler(s.handleSessionMessage)
	return s
}

// Start registers the bus consumers.
func (s *Service) Start(consumer Subscriber) {
	consumer.Subscribe(kafka.TopicDriverLocations, ConsumerGroup, s.HandleDriverLocation)
	consumer.Subscribe(kafka.TopicDriverAvailability, ConsumerGroup, s.HandleDriverAvailability)
	consumer.Subscribe(kafka.TopicRideUpdates, ConsumerGroup, s.HandleRideUpdate)
	logger.Info("gateway consuming", zap.String("group", ConsumerGroup))
}

// Index exposes the live driver index for HTTP queries.
func (s *Service) Index() *driverindex.Index {
	return s.index
}

// HandleDriverLocation applies a position report to the live index, mirrors
// it into redis and pushes it to sessions watching the driver. Stale or
// offline-gated reports are dropped without fan-out.
func (s *Service) HandleDriverLocation(ctx context.Context, key, value []byte) error {
	var event kafka.DriverLocationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed driver-locations record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	entry := driverindex.Entry{
		DriverID:    event.DriverID,
		Lat:         event.Lat,
		Lon:         event.Lon,
		VehicleType: event.VehicleType,
		Timestamp:   event.Timestamp,
	}
	if !s.index.Update(entry) {
		logger.Debug("location report dropped", zap.Int64("driver_id", event.DriverID))
		return nil
	}

	if err := s.mirrorLocation(ctx, entry); err != nil {
		logger.Warn("location mirror failed", zap.Int64("driver_id", event.DriverID), zap.Error(err))
	}

	s.hub.SendToDriver(event.DriverID, mustMarshal(map[string]interface{}{
		"type":         MsgLocationUpdated,
		"driver_id":    event.DriverID,
		"lat":          event.Lat,
		"lon":          event.Lon,
		"vehicle_type": event.VehicleType,
		"timestamp":    event.Timestamp,
	}))
	return nil
}

// HandleDriverAvailability updates the index gate and notifies sessions
// watching the driver. Going offline also evicts the redis mirror.
func (s *Service) HandleDriverAvailability(ctx context.Context, key, value []byte) error {
	var event kafka.DriverAvailabilityEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed driver-availability record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	s.index.SetAvailability(event.DriverID, event.IsOnline)
	if !event.IsOnline {
		if err := s.cache.Delete(ctx, locationKey(event.DriverID)); err != nil {
			logger.Warn("location mirror evict failed", zap.Int64("driver_id", event.DriverID), zap.Error(err))
		}
	}

	s.hub.SendToDriver(event.DriverID, mustMarshal(map[string]interface{}{
		"type":      MsgAvailabilityUpdated,
		"driver_id": event.DriverID,
		"is_online": event.IsOnline,
		"timestamp": event.Timestamp,
	}))
	return nil
}

// HandleRideUpdate resolves the ride's rider from the store and pushes the
// status change to the rider's sessions and to sessions watching the ride.
func (s *Service) HandleRideUpdate(ctx context.Context, key, value []byte) error {
	var event kafka.RideUpdateEvent
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed ride-updates record", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	riderID, _, err := s.repo.GetRideParties(ctx, event.RideID)
	if err != nil {
		logger.Error("ride lookup failed", zap.Int64("ride_id", event.RideID), zap.Error(err))
		return err
	}

	payload := map[string]interface{}{
		"type":      MsgRideUpdate,
		"ride_id":   event.RideID,
		"driver_id": event.DriverID,
		"status":    event.Status,
		"timestamp": event.Timestamp,
	}
	if event.Fare != nil {
		payload["fare"] = *event.Fare
	}
	frame := mustMarshal(payload)

	s.hub.SendToRider(riderID, frame)
	s.hub.SendToRide(event.RideID, frame)
	return nil
}

// SessionOpened registers a session and sends the browse snapshot when the
// session subscribes to the browse feed.
func (s *Service) SessionOpened(session *Session) {
	s.hub.Add(session)
	if session.Kind == KindBrowse {
		session.SendMessage(mustMarshal(map[string]interface{}{
			"type":    MsgAllDriverLocations,
			"drivers": s.index.Snapshot(),
		}))
	}
}

// inboundRequest is the shape of frames sessions send us.
type inboundRequest struct {
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius"`
}

// handleSessionMessage answers session frames. Browse sessions can request
// nearby or full snapshots; anything else is acknowledged as a heartbeat so
// bare clients can probe liveness with any text frame.
func (s *Service) handleSessionMessage(session *Session, data []byte) {
	var req inboundRequest
	if err := json.Unmarshal(data, &req); err != nil {
		session.SendMessage(heartbeatFrame())
		return
	}

	switch req.Type {
	case "get_nearby":
		if session.Kind != KindBrowse {
			session.SendMessage(mustMarshal(map[string]interface{}{
				"type":    MsgError,
				"message": "get_nearby is only available on the browse feed",
			}))
			return
		}
		session.SendMessage(mustMarshal(map[string]interface{}{
			"type":    MsgNearbyDrivers,
			"drivers": s.index.Nearby(req.Lat, req.Lon, req.Radius),
		}))

	case "get_all":
		if session.Kind != KindBrowse {
			session.SendMessage(mustMarshal(map[string]interface{}{
				"type":    MsgError,
				"message": "get_all is only available on the browse feed",
			}))
			return
		}
		session.SendMessage(mustMarshal(map[string]interface{}{
			"type":    MsgAllDriverLocations,
			"drivers": s.index.Snapshot(),
		}))

	default:
		session.SendMessage(heartbeatFrame())
	}
}

// NearbyDrivers answers the REST nearby query from the live index.
func (s *Service) NearbyDrivers(lat, lon, radiusKm float64) []driverindex.NearbyDriver {
	return s.index.Nearby(lat, lon, radiusKm)
}

// DriverLocation serves the point lookup from the redis mirror, falling back
// to the live index when the mirror is cold.
func (s *Service) DriverLocation(ctx context.Context, driverID int64) (*driverindex.Entry, error) {
	raw, err := s.cache.GetString(ctx, locationKey(driverID))
	if err == nil {
		var entry driverindex.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err == nil {
			return &entry, nil
		}
		logger.Warn("corrupt location mirror entry", zap.Int64("driver_id", driverID))
	} else if !errors.Is(err, goredis.Nil) {
		logger.Warn("location mirror read failed", zap.Int64("driver_id", driverID), zap.Error(err))
	}

	if entry, ok := s.index.Get(driverID); ok {
		return &entry, nil
	}
	return nil, common.NewNotFoundError("driver location not known", nil)
}

func (s *Service) mirrorLocation(ctx context.Context, entry driverindex.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cache.SetWithExpiration(ctx, locationKey(entry.DriverID), raw, locationTTL)
}

func locationKey(driverID int64) string {
	return fmt.Sprintf("driver:location:%d", driverID)
}

func heartbeatFrame() []byte {
	return mustMarshal(map[string]interface{}{
		"type":   MsgHeartbeat,
		"status": "connected",
	})
}

// mustMarshal marshals fan-out payloads. The payloads are maps of plain
// values, so a marshal failure is a programming error.
func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("payload marshal failed", zap.Error(err))
		return []byte(`{"type":"error"}`)
	}
	return data
}
