package realtime

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/telehub/internal/pkg/geo"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

// Violated reports whether p lies outside an enabled, notifying fence, and
// the distance from the fence center in meters.
func Violated(f *model.GeoFence, p geo.Point) (bool, float64) {
	if f == nil {
		return false, 0
	}
	d := geo.Distance(geo.Point{Lat: f.CenterLat, Lng: f.CenterLng}, p)
	return f.Enabled && f.Notify && d > f.RadiusMeters, d
}

type fenceState struct {
	outside   bool
	lastAlert time.Time
}

// Debouncer turns a stream of positions into geofence alerts. A vehicle
// alerts when it crosses out of its fence and, with a cooldown, again while
// it stays out. It re-arms only after it is back inside by the hysteresis
// margin, so jitter on the boundary does not alert on every fix.
type Debouncer struct {
	clock      clock.PassiveClock
	hysteresis float64
	cooldown   time.Duration

	mu    sync.Mutex
	state map[string]*fenceState
}

func NewDebouncer(c clock.PassiveClock, hysteresis float64, cooldown time.Duration) *Debouncer {
	return &Debouncer{
		clock:      c,
		hysteresis: hysteresis,
		cooldown:   cooldown,
		state:      make(map[string]*fenceState),
	}
}

// Observe records a position of vehicleID and reports whether it alerts.
func (d *Debouncer) Observe(vehicleID string, f *model.GeoFence, p geo.Point) (bool, float64) {
	violated, distance := Violated(f, p)

	d.mu.Lock()
	defer d.mu.Unlock()

	if f == nil || !f.Enabled || !f.Notify {
		delete(d.state, vehicleID)
		return false, distance
	}

	st, ok := d.state[vehicleID]
	if !ok {
		st = &fenceState{}
		d.state[vehicleID] = st
	}
	now := d.clock.Now()

	if violated {
		if !st.outside {
			st.outside = true
			st.lastAlert = now
			return true, distance
		}
		if d.cooldown > 0 && now.Sub(st.lastAlert) >= d.cooldown {
			st.lastAlert = now
			return true, distance
		}
		return false, distance
	}

	if st.outside && distance <= f.RadiusMeters*(1-d.hysteresis) {
		st.outside = false
	}
	return false, distance
}

// Forget drops the state of vehicleID.
func (d *Debouncer) Forget(vehicleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.state, vehicleID)
}
