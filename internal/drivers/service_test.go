package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/models"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) CreateDriver(ctx context.Context, driver *models.Driver) error {
	args := m.Called(ctx, driver)
	if args.Error(0) == nil {
		driver.ID = 5
		driver.Rating = 5.0
	}
	return args.Error(0)
}

func (m *mockRepo) GetDriverByID(ctx context.Context, id int64) (*models.Driver, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Driver), args.Error(1)
}

func (m *mockRepo) SetAvailability(ctx context.Context, driverID int64, online bool) (bool, error) {
	args := m.Called(ctx, driverID, online)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) UpdateLocation(ctx context.Context, driverID int64, lat, lon float64) (bool, models.VehicleType, error) {
	args := m.Called(ctx, driverID, lat, lon)
	return args.Bool(0), args.Get(1).(models.VehicleType), args.Error(2)
}

type mockProducer struct{ mock.Mock }

func (m *mockProducer) Send(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func online(v bool) *bool { return &v }

func TestUpdateAvailabilityPublishes(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("SetAvailability", mock.Anything, int64(5), true).Return(true, nil)
	producer.On("Send", mock.Anything, kafka.TopicDriverAvailability, "5", mock.Anything).Return(nil)

	err := svc.UpdateAvailability(context.Background(), &models.AvailabilityUpdate{DriverID: 5, IsOnline: online(true)})
	require.NoError(t, err)

	sent := producer.Calls[0].Arguments.Get(3).(kafka.DriverAvailabilityEvent)
	assert.Equal(t, int64(5), sent.DriverID)
	assert.True(t, sent.IsOnline)
	assert.Greater(t, sent.Timestamp, 0.0)
}

func TestUpdateAvailabilityUnknownDriver(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("SetAvailability", mock.Anything, int64(5), false).Return(false, nil)

	err := svc.UpdateAvailability(context.Background(), &models.AvailabilityUpdate{DriverID: 5, IsOnline: online(false)})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
	producer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAvailabilityPublishFailureSurfaced(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("SetAvailability", mock.Anything, int64(5), true).Return(true, nil)
	producer.On("Send", mock.Anything, kafka.TopicDriverAvailability, "5", mock.Anything).
		Return(errors.New("broker unreachable"))

	err := svc.UpdateAvailability(context.Background(), &models.AvailabilityUpdate{DriverID: 5, IsOnline: online(true)})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 500, appErr.Code)
}

func TestUpdateLocationPublishesWhenOnline(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("UpdateLocation", mock.Anything, int64(5), 40.7580, -73.9855).
		Return(true, models.VehicleSedan, nil)
	producer.On("Send", mock.Anything, kafka.TopicDriverLocations, "5", mock.Anything).Return(nil)

	published, err := svc.UpdateLocation(context.Background(), &models.LocationUpdate{DriverID: 5, Lat: 40.7580, Lon: -73.9855})
	require.NoError(t, err)
	assert.True(t, published)

	sent := producer.Calls[0].Arguments.Get(3).(kafka.DriverLocationEvent)
	assert.Equal(t, "sedan", sent.VehicleType)
	assert.Equal(t, 40.7580, sent.Lat)
}

func TestUpdateLocationSuppressedWhenOffline(t *testing.T) {
	repo := &mockRepo{}
	producer := &mockProducer{}
	svc := NewService(repo, producer)

	repo.On("UpdateLocation", mock.Anything, int64(5), 40.0, -73.0).
		Return(false, models.VehicleSedan, nil)

	published, err := svc.UpdateLocation(context.Background(), &models.LocationUpdate{DriverID: 5, Lat: 40.0, Lon: -73.0})
	require.NoError(t, err)
	assert.False(t, published)
	producer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateLocationUnknownDriver(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockProducer{})

	repo.On("UpdateLocation", mock.Anything, int64(5), 40.0, -73.0).
		Return(false, models.VehicleType(""), pgx.ErrNoRows)

	_, err := svc.UpdateLocation(context.Background(), &models.LocationUpdate{DriverID: 5, Lat: 40.0, Lon: -73.0})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

func TestRideActionsPublishExpectedStatus(t *testing.T) {
	tests := []struct {
		name   string
		call   func(*Service, context.Context, *models.RideAction) error
		status string
		fare   *float64
	}{
		{"accept", (*Service).AcceptRide, "accepted", nil},
		{"start", (*Service).StartRide, "started", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &mockProducer{}
			svc := NewService(&mockRepo{}, producer)
			producer.On("Send", mock.Anything, kafka.TopicRideUpdates, "42", mock.Anything).Return(nil)

			req := &models.RideAction{DriverID: 1, RideID: 42}
			require.NoError(t, tt.call(svc, context.Background(), req))

			sent := producer.Calls[0].Arguments.Get(3).(kafka.RideUpdateEvent)
			assert.Equal(t, tt.status, sent.Status)
			assert.Equal(t, int64(42), sent.RideID)
			assert.Nil(t, sent.Fare)
		})
	}
}

func TestCompleteRideRequiresFare(t *testing.T) {
	producer := &mockProducer{}
	svc := NewService(&mockRepo{}, producer)

	err := svc.CompleteRide(context.Background(), &models.RideAction{DriverID: 1, RideID: 42})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
	producer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteRideCarriesFare(t *testing.T) {
	producer := &mockProducer{}
	svc := NewService(&mockRepo{}, producer)
	producer.On("Send", mock.Anything, kafka.TopicRideUpdates, "42", mock.Anything).Return(nil)

	fare := 12.34
	req := &models.RideAction{DriverID: 1, RideID: 42, Fare: &fare}
	require.NoError(t, svc.CompleteRide(context.Background(), req))

	sent := producer.Calls[0].Arguments.Get(3).(kafka.RideUpdateEvent)
	assert.Equal(t, "completed", sent.Status)
	require.NotNil(t, sent.Fare)
	assert.Equal(t, 12.34, *sent.Fare)
}
