package matching

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/models"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) FindCandidates(ctx context.Context, vehicleType models.VehicleType) ([]Candidate, error) {
	args := m.Called(ctx, vehicleType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candidate), args.Error(1)
}

func (m *mockRepo) ApplyFareEstimate(ctx context.Context, rideID int64, fare, distanceKm float64) error {
	args := m.Called(ctx, rideID, fare, distanceKm)
	return args.Error(0)
}

type mockProducer struct{ mock.Mock }

func (m *mockProducer) Send(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func requestPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(kafka.RideRequestEvent{
		RideID:         42,
		RiderID:        1,
		PickupLat:      40.7484,
		PickupLon:      -73.9857,
		DestinationLat: 40.7061,
		DestinationLon: -73.9969,
		VehicleType:    "sedan",
	})
	require.NoError(t, err)
	return payload
}

func TestHandleRideRequestMatchesNearestDriver(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("FindCandidates", mock.Anything, models.VehicleSedan).Return([]Candidate{
		{ID: 1, Name: "Alice", Lat: 40.7580, Lon: -73.9855}, // ~1.07 km from pickup
		{ID: 2, Name: "Bob", Lat: 40.7829, Lon: -73.9654},   // farther out
	}, nil)
	repo.On("ApplyFareEstimate", mock.Anything, int64(42), 8.3, 4.8).Return(nil)
	producer.On("Send", mock.Anything, kafka.TopicRideMatches, "42", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleRideRequest(context.Background(), []byte("42"), requestPayload(t)))

	repo.AssertExpectations(t)
	producer.AssertExpectations(t)

	sent := producer.Calls[0].Arguments.Get(3).(kafka.RideMatchEvent)
	assert.Equal(t, int64(42), sent.RideID)
	assert.Equal(t, int64(1), sent.DriverID)
	assert.Equal(t, "Alice", sent.DriverName)
	assert.InDelta(t, 1.07, sent.DistanceToPickup, 0.01)
	assert.Equal(t, 8.3, sent.EstimatedFare)
	assert.Equal(t, 4.8, sent.RideDistance)
}

func TestHandleRideRequestNoCandidatesDropped(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	// Only suv drivers are online; the sedan request finds nobody and the
	// ride stays requested.
	repo.On("FindCandidates", mock.Anything, models.VehicleSedan).Return([]Candidate{}, nil)

	require.NoError(t, svc.HandleRideRequest(context.Background(), []byte("42"), requestPayload(t)))
	producer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ApplyFareEstimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRideRequestTieBreaksByDriverID(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	// Two candidates at the identical position; the lowest id must win no
	// matter the scan order.
	repo.On("FindCandidates", mock.Anything, models.VehicleSedan).Return([]Candidate{
		{ID: 9, Name: "Nine", Lat: 40.7580, Lon: -73.9855},
		{ID: 4, Name: "Four", Lat: 40.7580, Lon: -73.9855},
	}, nil)
	repo.On("ApplyFareEstimate", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	producer.On("Send", mock.Anything, kafka.TopicRideMatches, "42", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleRideRequest(context.Background(), []byte("42"), requestPayload(t)))

	sent := producer.Calls[0].Arguments.Get(3).(kafka.RideMatchEvent)
	assert.Equal(t, int64(4), sent.DriverID)
	producer.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleRideRequestFarePersistFailureAbortsPublish(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("FindCandidates", mock.Anything, models.VehicleSedan).Return([]Candidate{
		{ID: 1, Name: "Alice", Lat: 40.7580, Lon: -73.9855},
	}, nil)
	repo.On("ApplyFareEstimate", mock.Anything, int64(42), mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))

	assert.Error(t, svc.HandleRideRequest(context.Background(), []byte("42"), requestPayload(t)))
	producer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRideRequestMalformedDropped(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockProducer{})
	assert.NoError(t, svc.HandleRideRequest(context.Background(), []byte("42"), []byte("{oops")))
}

func TestSelectNearestDeterministic(t *testing.T) {
	a := Candidate{ID: 2, Lat: 40.7580, Lon: -73.9855}
	b := Candidate{ID: 5, Lat: 40.7580, Lon: -73.9855}
	c := Candidate{ID: 1, Lat: 40.7829, Lon: -73.9654}

	orders := [][]Candidate{
		{a, b, c},
		{b, a, c},
		{c, b, a},
		{c, a, b},
	}
	for _, candidates := range orders {
		best, _, ok := selectNearest(candidates, 40.7580, -73.9855)
		require.True(t, ok)
		assert.Equal(t, int64(2), best.ID)
	}
}

func TestSelectNearestEmpty(t *testing.T) {
	_, _, ok := selectNearest(nil, 40.0, -73.0)
	assert.False(t, ok)
}
