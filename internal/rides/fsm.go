package rides

import "github.com/openride/dispatch/pkg/models"

// Event is a ride lifecycle event applied against the ride FSM.
type Event string

const (
	EventMatch    Event = "match"
	EventAccept   Event = "accept"
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

// transitions maps the current status to the legal events and their
// resulting statuses. Any pair not listed here is an illegal transition and
// is applied as a logged no-op.
var transitions = map[models.RideStatus]map[Event]models.RideStatus{
	models.RideStatusRequested: {
		EventMatch:  models.RideStatusMatched,
		EventCancel: models.RideStatusCancelled,
	},
	models.RideStatusMatched: {
		EventAccept: models.RideStatusAccepted,
		EventCancel: models.RideStatusCancelled,
	},
	models.RideStatusAccepted: {
		EventStart:  models.RideStatusStarted,
		EventCancel: models.RideStatusCancelled,
	},
	models.RideStatusStarted: {
		EventComplete: models.RideStatusCompleted,
	},
}

// Next returns the status reached by applying ev from the given status, and
// whether the transition is legal.
func Next(from models.RideStatus, ev Event) (models.RideStatus, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// EventForStatus maps a ride-updates target status to the FSM event that
// produces it.
func EventForStatus(status models.RideStatus) (Event, bool) {
	switch status {
	case models.RideStatusAccepted:
		return EventAccept, true
	case models.RideStatusStarted:
		return EventStart, true
	case models.RideStatusCompleted:
		return EventComplete, true
	case models.RideStatusCancelled:
		return EventCancel, true
	}
	return "", false
}
