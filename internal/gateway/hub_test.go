package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(hub *Hub, kind SessionKind, id int64) *Session {
	return NewSession(kind, id, nil, hub)
}

func drain(s *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-s.Send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestHubRoutesByKindAndID(t *testing.T) {
	hub := NewHub()
	rider := newTestSession(hub, KindRider, 1)
	driver := newTestSession(hub, KindDriver, 1)
	otherRider := newTestSession(hub, KindRider, 2)
	hub.Add(rider)
	hub.Add(driver)
	hub.Add(otherRider)

	hub.SendToRider(1, []byte("hello"))

	require.Len(t, drain(rider), 1)
	assert.Empty(t, drain(driver))
	assert.Empty(t, drain(otherRider))
}

func TestHubMultipleSessionsSameID(t *testing.T) {
	hub := NewHub()
	a := newTestSession(hub, KindRide, 42)
	b := newTestSession(hub, KindRide, 42)
	hub.Add(a)
	hub.Add(b)

	hub.SendToRide(42, []byte("update"))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestHubBrowseFanout(t *testing.T) {
	hub := NewHub()
	browse := newTestSession(hub, KindBrowse, 0)
	rider := newTestSession(hub, KindRider, 1)
	hub.Add(browse)
	hub.Add(rider)

	hub.SendToBrowse([]byte("snapshot"))

	assert.Len(t, drain(browse), 1)
	assert.Empty(t, drain(rider))
}

func TestHubRemoveStopsDelivery(t *testing.T) {
	hub := NewHub()
	s := newTestSession(hub, KindDriver, 7)
	hub.Add(s)
	hub.Remove(s)

	hub.SendToDriver(7, []byte("late"))
	assert.Equal(t, 0, hub.SessionCount())

	// The Send channel is closed exactly once; a second Remove is safe.
	hub.Remove(s)
	_, open := <-s.Send
	assert.False(t, open)
}

func TestHubDropsSessionWithFullBuffer(t *testing.T) {
	hub := NewHub()
	s := newTestSession(hub, KindDriver, 7)
	hub.Add(s)

	// Nothing drains the channel, so filling it past capacity must evict
	// the session instead of blocking the fan-out.
	for i := 0; i <= sendBuffer; i++ {
		hub.SendToDriver(7, []byte("x"))
	}

	assert.Equal(t, 0, hub.SessionCount())
}

func TestSessionCount(t *testing.T) {
	hub := NewHub()
	hub.Add(newTestSession(hub, KindRider, 1))
	hub.Add(newTestSession(hub, KindDriver, 1))
	hub.Add(newTestSession(hub, KindBrowse, 0))
	assert.Equal(t, 3, hub.SessionCount())
}
