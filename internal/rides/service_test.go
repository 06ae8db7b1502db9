package rides

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/models"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) CreateRide(ctx context.Context, ride *models.Ride) error {
	args := m.Called(ctx, ride)
	if args.Error(0) == nil {
		ride.ID = 42
		ride.Status = models.RideStatusRequested
		ride.RequestedAt = time.Now()
	}
	return args.Error(0)
}

func (m *mockRepo) GetRideByID(ctx context.Context, id int64) (*models.Ride, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ride), args.Error(1)
}

func (m *mockRepo) ListRidesByRider(ctx context.Context, riderID int64) ([]*models.Ride, error) {
	args := m.Called(ctx, riderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ride), args.Error(1)
}

func (m *mockRepo) ListRidesByDriver(ctx context.Context, driverID int64) ([]*models.Ride, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ride), args.Error(1)
}

func (m *mockRepo) ApplyMatch(ctx context.Context, rideID, driverID int64, fare, distanceKm float64) (bool, error) {
	args := m.Called(ctx, rideID, driverID, fare, distanceKm)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) AdvanceStatus(ctx context.Context, rideID int64, ev Event, fare *float64) (bool, error) {
	args := m.Called(ctx, rideID, ev, fare)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) CreateRider(ctx context.Context, rider *models.Rider) error {
	args := m.Called(ctx, rider)
	if args.Error(0) == nil {
		rider.ID = 7
	}
	return args.Error(0)
}

func (m *mockRepo) GetRiderByID(ctx context.Context, id int64) (*models.Rider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rider), args.Error(1)
}

type mockProducer struct{ mock.Mock }

func (m *mockProducer) Send(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func validRequest() *models.RideRequest {
	return &models.RideRequest{
		RiderID:            1,
		PickupLat:          40.7484,
		PickupLon:          -73.9857,
		PickupAddress:      "Empire State Building",
		DestinationLat:     40.7061,
		DestinationLon:     -73.9969,
		DestinationAddress: "Brooklyn Bridge",
		VehicleType:        "sedan",
	}
}

func TestCreateRideRequestPublishes(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("GetRiderByID", mock.Anything, int64(1)).Return(&models.Rider{ID: 1}, nil)
	repo.On("CreateRide", mock.Anything, mock.Anything).Return(nil)
	producer.On("Send", mock.Anything, kafka.TopicRideRequests, "42", mock.Anything).Return(nil)

	ride, err := svc.CreateRideRequest(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(42), ride.ID)
	assert.Equal(t, models.RideStatusRequested, ride.Status)

	producer.AssertExpectations(t)
	sent := producer.Calls[0].Arguments.Get(3).(kafka.RideRequestEvent)
	assert.Equal(t, int64(42), sent.RideID)
	assert.Equal(t, "sedan", sent.VehicleType)
}

func TestCreateRideRequestSurvivesPublishFailure(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("GetRiderByID", mock.Anything, int64(1)).Return(&models.Rider{ID: 1}, nil)
	repo.On("CreateRide", mock.Anything, mock.Anything).Return(nil)
	producer.On("Send", mock.Anything, kafka.TopicRideRequests, "42", mock.Anything).
		Return(errors.New("broker unreachable"))

	// The row is already committed; the request still succeeds.
	ride, err := svc.CreateRideRequest(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusRequested, ride.Status)
}

func TestCreateRideRequestUnknownVehicleType(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockProducer{})

	req := validRequest()
	req.VehicleType = "helicopter"

	_, err := svc.CreateRideRequest(context.Background(), req)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
}

func TestCreateRideRequestUnknownRider(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("GetRiderByID", mock.Anything, int64(1)).Return(nil, pgx.ErrNoRows)

	_, err := svc.CreateRideRequest(context.Background(), validRequest())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

func TestHandleRideMatchApplies(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("ApplyMatch", mock.Anything, int64(42), int64(1), 8.3, 4.8).Return(true, nil)

	payload, _ := json.Marshal(kafka.RideMatchEvent{
		RideID: 42, DriverID: 1, EstimatedFare: 8.3, RideDistance: 4.8,
	})
	err := svc.HandleRideMatch(context.Background(), []byte("42"), payload)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleRideMatchDuplicateIsNoOp(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	// The ride already advanced past requested; the guard rejects and the
	// record is still committed.
	repo.On("ApplyMatch", mock.Anything, int64(42), int64(1), 8.3, 4.8).Return(false, nil)

	payload, _ := json.Marshal(kafka.RideMatchEvent{
		RideID: 42, DriverID: 1, EstimatedFare: 8.3, RideDistance: 4.8,
	})
	err := svc.HandleRideMatch(context.Background(), []byte("42"), payload)
	assert.NoError(t, err)
}

func TestHandleRideMatchMalformedDropped(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockProducer{})
	assert.NoError(t, svc.HandleRideMatch(context.Background(), []byte("42"), []byte("{not json")))
}

func TestHandleRideMatchRepoErrorRedelivered(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("ApplyMatch", mock.Anything, int64(42), int64(1), 8.3, 4.8).
		Return(false, errors.New("connection reset"))

	payload, _ := json.Marshal(kafka.RideMatchEvent{
		RideID: 42, DriverID: 1, EstimatedFare: 8.3, RideDistance: 4.8,
	})
	assert.Error(t, svc.HandleRideMatch(context.Background(), []byte("42"), payload))
}

func TestHandleRideUpdateAdvances(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("AdvanceStatus", mock.Anything, int64(42), EventAccept, (*float64)(nil)).Return(true, nil)

	payload, _ := json.Marshal(kafka.RideUpdateEvent{RideID: 42, DriverID: 1, Status: "accepted"})
	require.NoError(t, svc.HandleRideUpdate(context.Background(), []byte("42"), payload))
	repo.AssertExpectations(t)
}

func TestHandleRideUpdateCompleteCarriesFare(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	fare := 9.75
	repo.On("AdvanceStatus", mock.Anything, int64(42), EventComplete, &fare).Return(true, nil)

	payload, _ := json.Marshal(kafka.RideUpdateEvent{RideID: 42, Status: "completed", Fare: &fare})
	require.NoError(t, svc.HandleRideUpdate(context.Background(), []byte("42"), payload))
}

// Replaying the full lifecycle against a completed ride leaves every event a
// rejected no-op and commits every record.
func TestHandleRideUpdateReplayIsIdempotent(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("AdvanceStatus", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(false, nil)
	repo.On("ApplyMatch", mock.Anything, int64(42), int64(1), mock.Anything, mock.Anything).Return(false, nil)

	match, _ := json.Marshal(kafka.RideMatchEvent{RideID: 42, DriverID: 1})
	assert.NoError(t, svc.HandleRideMatch(context.Background(), []byte("42"), match))

	for _, status := range []string{"accepted", "started", "completed"} {
		payload, _ := json.Marshal(kafka.RideUpdateEvent{RideID: 42, Status: status})
		assert.NoError(t, svc.HandleRideUpdate(context.Background(), []byte("42"), payload))
	}
}

func TestHandleRideUpdateUnknownStatusDropped(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	payload, _ := json.Marshal(kafka.RideUpdateEvent{RideID: 42, Status: "teleported"})
	assert.NoError(t, svc.HandleRideUpdate(context.Background(), []byte("42"), payload))
	repo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelRidePublishes(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	driverID := int64(3)
	repo.On("GetRideByID", mock.Anything, int64(42)).
		Return(&models.Ride{ID: 42, Status: models.RideStatusMatched, DriverID: &driverID}, nil)
	producer.On("Send", mock.Anything, kafka.TopicRideUpdates, "42", mock.Anything).Return(nil)

	require.NoError(t, svc.CancelRide(context.Background(), 42))

	sent := producer.Calls[0].Arguments.Get(3).(kafka.RideUpdateEvent)
	assert.Equal(t, "cancelled", sent.Status)
	assert.Equal(t, int64(3), sent.DriverID)
}

func TestCancelRideRejectedAfterStart(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("GetRideByID", mock.Anything, int64(42)).
		Return(&models.Ride{ID: 42, Status: models.RideStatusStarted}, nil)

	err := svc.CancelRide(context.Background(), 42)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Code)
}
