package gateway

import (
	"sync"

	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// InboundHandler processes a frame received from a session.
type InboundHandler func(*Session, []byte)

// Hub indexes live sessions by what they subscribe to: a rider id, a driver
// id, a ride id, or the browse feed. A session appears in exactly one index.
type Hub struct {
	mu      sync.RWMutex
	riders  map[int64]map[*Session]struct{}
	drivers map[int64]map[*Session]struct{}
	rides   map[int64]map[*Session]struct{}
	browse  map[*Session]struct{}

	inbound InboundHandler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		riders:  make(map[int64]map[*Session]struct{}),
		drivers: make(map[int64]map[*Session]struct{}),
		rides:   make(map[int64]map[*Session]struct{}),
		browse:  make(map[*Session]struct{}),
	}
}

// SetInboundHandler installs the handler for frames received from sessions.
func (h *Hub) SetInboundHandler(handler InboundHandler) {
	h.inbound = handler
}

func (h *Hub) handleInbound(s *Session, data []byte) {
	if h.inbound != nil {
		h.inbound(s, data)
	}
}

func (h *Hub) indexFor(kind SessionKind) map[int64]map[*Session]struct{} {
	switch kind {
	case KindRider:
		return h.riders
	case KindDriver:
		return h.drivers
	case KindRide:
		return h.rides
	}
	return nil
}

// Add registers a session in its index.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.Kind == KindBrowse {
		h.browse[s] = struct{}{}
	} else {
		idx := h.indexFor(s.Kind)
		if idx[s.ID] == nil {
			idx[s.ID] = make(map[*Session]struct{})
		}
		idx[s.ID][s] = struct{}{}
	}

	logger.Debug("session registered", zap.String("kind", string(s.Kind)), zap.Int64("id", s.ID))
}

// Remove drops a session from its index and closes its Send channel. Safe to
// call more than once for the same session.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	if s.Kind == KindBrowse {
		delete(h.browse, s)
	} else {
		idx := h.indexFor(s.Kind)
		if set, ok := idx[s.ID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(idx, s.ID)
			}
		}
	}
	h.mu.Unlock()

	s.closeSend()
	logger.Debug("session removed", zap.String("kind", string(s.Kind)), zap.Int64("id", s.ID))
}

// sendToSet queues a frame on every session in a set. The lock is released
// before queueing so a drop triggered by a full buffer can re-enter Remove.
func (h *Hub) sendToSet(kind SessionKind, id int64, payload []byte) {
	h.mu.RLock()
	var targets []*Session
	if set, ok := h.indexFor(kind)[id]; ok {
		targets = make([]*Session, 0, len(set))
		for s := range set {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.SendMessage(payload)
	}
}

// SendToRider queues a frame on every session watching a rider.
func (h *Hub) SendToRider(riderID int64, payload []byte) {
	h.sendToSet(KindRider, riderID, payload)
}

// SendToDriver queues a frame on every session watching a driver.
func (h *Hub) SendToDriver(driverID int64, payload []byte) {
	h.sendToSet(KindDriver, driverID, payload)
}

// SendToRide queues a frame on every session watching a ride.
func (h *Hub) SendToRide(rideID int64, payload []byte) {
	h.sendToSet(KindRide, rideID, payload)
}

// SendToBrowse queues a frame on every browse session.
func (h *Hub) SendToBrowse(payload []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.browse))
	for s := range h.browse {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.SendMessage(payload)
	}
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.browse)
	for _, idx := range []map[int64]map[*Session]struct{}{h.riders, h.drivers, h.rides} {
		for _, set := range idx {
			n += len(set)
		}
	}
	return n
}
