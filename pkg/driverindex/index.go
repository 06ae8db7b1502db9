// Package driverindex maintains the live in-memory view of online driver
// positions. An entry exists only while the driver's last availability event
// was online; updates carry event timestamps and strictly older observations
// are discarded.
package driverindex

import (
	"sort"
	"sync"

	"github.com/openride/dispatch/pkg/geo"
)

// DefaultRadiusKm is the search radius used when a nearby query does not
// specify one.
const DefaultRadiusKm = 5.0

// Entry is the last known observation for one driver.
type Entry struct {
	DriverID    int64   `json:"driver_id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	VehicleType string  `json:"vehicle_type"`
	Timestamp   float64 `json:"timestamp"`
}

// NearbyDriver is an index entry annotated with its distance from a query
// point, rounded to two decimals.
type NearbyDriver struct {
	Entry
	DistanceKm float64 `json:"distance_km"`
}

// Index is safe for concurrent use. Critical sections are short; queries
// iterate over a snapshot so long scans never block writers.
type Index struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	offline map[int64]bool // drivers whose last availability event was offline
}

// New creates an empty index.
func New() *Index {
	return &Index{
		entries: make(map[int64]Entry),
		offline: make(map[int64]bool),
	}
}

// Update records an observation. It is dropped when it is strictly older
// than the stored entry, or when the driver's last availability event was
// offline. Reports whether the entry was applied.
func (ix *Index) Update(e Entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.offline[e.DriverID] {
		return false
	}
	if cur, ok := ix.entries[e.DriverID]; ok && e.Timestamp < cur.Timestamp {
		return false
	}
	ix.entries[e.DriverID] = e
	return true
}

// SetAvailability records an availability event. Going offline removes the
// driver's entry and gates out any late location updates; going online lifts
// the gate (the entry reappears on the next location report).
func (ix *Index) SetAvailability(driverID int64, online bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if online {
		delete(ix.offline, driverID)
		return
	}
	ix.offline[driverID] = true
	delete(ix.entries, driverID)
}

// Get returns the entry for a driver, if present.
func (ix *Index) Get(driverID int64) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[driverID]
	return e, ok
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Snapshot returns a copy of all live entries, ordered by driver id.
func (ix *Index) Snapshot() []Entry {
	ix.mu.RLock()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

// Nearby returns every driver within radiusKm of the query point, sorted by
// ascending distance with ties broken by driver id. The scan runs over a
// snapshot of the index.
func (ix *Index) Nearby(lat, lon, radiusKm float64) []NearbyDriver {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}

	type scored struct {
		nd  NearbyDriver
		raw float64
	}

	entries := ix.Snapshot()
	hits := make([]scored, 0, len(entries))
	for _, e := range entries {
		d := geo.Haversine(lat, lon, e.Lat, e.Lon)
		if d <= radiusKm {
			hits = append(hits, scored{
				nd:  NearbyDriver{Entry: e, DistanceKm: geo.Round2(d)},
				raw: d,
			})
		}
	}

	// Sort on the unrounded distance so display rounding cannot reorder.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].raw != hits[j].raw {
			return hits[i].raw < hits[j].raw
		}
		return hits[i].nd.DriverID < hits[j].nd.DriverID
	})

	out := make([]NearbyDriver, len(hits))
	for i, h := range hits {
		out[i] = h.nd
	}
	return out
}
