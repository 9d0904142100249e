package coordinator

import (
	"context"
	"sync"
	"time"
)

// EndpointClass is the pacing key for a category of upstream call.
type EndpointClass string

const (
	EndpointStatus  EndpointClass = "status"
	EndpointHealth  EndpointClass = "health"
	EndpointCommand EndpointClass = "command"
)

type pacerKey struct {
	vehicleID string
	class     EndpointClass
}

// Pacer spaces out upstream API calls for one account. Two delays apply:
// an endpoint delay between any two calls for the same vehicle, and a
// vehicle delay between calls targeting different vehicles (a larger
// delay when the waiting call is a health report). A single call slot
// serializes callers from a cleared wait until MarkCalled, so concurrent
// callers cannot start a call inside another call's spacing window. One
// Pacer instance is owned by the account's coordinator and passed
// explicitly to everything that calls upstream.
type Pacer struct {
	vehicleDelay       time.Duration
	endpointDelay      time.Duration
	healthVehicleDelay time.Duration

	// slot is the account-wide call reservation. It is taken by
	// WaitBefore and held until MarkCalled or a cancelled wait.
	slot chan struct{}

	mu                 sync.Mutex
	lastByVehicle      map[string]time.Time
	lastByVehicleClass map[pacerKey]time.Time
	lastCallAt         time.Time
	lastVehicleID      string

	now func() time.Time
}

// NewPacer creates a Pacer with the three configured delays.
func NewPacer(vehicleDelay, endpointDelay, healthVehicleDelay time.Duration) *Pacer {
	return &Pacer{
		vehicleDelay:       vehicleDelay,
		endpointDelay:      endpointDelay,
		healthVehicleDelay: healthVehicleDelay,
		slot:               make(chan struct{}, 1),
		lastByVehicle:      make(map[string]time.Time),
		lastByVehicleClass: make(map[pacerKey]time.Time),
		now:                time.Now,
	}
}

// WaitBefore blocks until the minimum spacing for the given vehicle and
// endpoint class has elapsed, or the context is cancelled. On success it
// returns holding the account call slot; the caller must invoke
// MarkCalled once the call has actually executed, which also releases
// the slot. A cancelled wait releases the slot without recording
// anything, so it never resets timing state.
func (p *Pacer) WaitBefore(ctx context.Context, vehicleID string, class EndpointClass) error {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// The slot is held, so no other caller can stamp the tables while we
	// sleep; one computation is exact.
	p.mu.Lock()
	wait := p.requiredWait(p.now(), vehicleID, class)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		<-p.slot
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MarkCalled records that a call for the vehicle and class has executed
// and releases the call slot taken by WaitBefore.
func (p *Pacer) MarkCalled(vehicleID string, class EndpointClass) {
	p.mu.Lock()
	now := p.now()
	p.lastByVehicle[vehicleID] = now
	p.lastByVehicleClass[pacerKey{vehicleID, class}] = now
	p.lastCallAt = now
	p.lastVehicleID = vehicleID
	p.mu.Unlock()

	select {
	case <-p.slot:
	default:
	}
}

func (p *Pacer) requiredWait(now time.Time, vehicleID string, class EndpointClass) time.Duration {
	var until time.Time

	if last, ok := p.lastByVehicle[vehicleID]; ok {
		if t := last.Add(p.endpointDelay); t.After(until) {
			until = t
		}
	}
	if last, ok := p.lastByVehicleClass[pacerKey{vehicleID, class}]; ok {
		if t := last.Add(p.endpointDelay); t.After(until) {
			until = t
		}
	}
	if !p.lastCallAt.IsZero() && p.lastVehicleID != vehicleID {
		gap := p.vehicleDelay
		if class == EndpointHealth {
			gap = p.healthVehicleDelay
		}
		if t := p.lastCallAt.Add(gap); t.After(until) {
			until = t
		}
	}

	if until.IsZero() {
		return 0
	}
	return until.Sub(now)
}
