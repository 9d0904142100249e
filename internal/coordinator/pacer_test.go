package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPacer returns a pacer with a manually advanced clock so the
// spacing math can be checked without sleeping.
func newTestPacer(vehicleDelay, endpointDelay, healthVehicleDelay time.Duration) (*Pacer, *time.Time) {
	p := NewPacer(vehicleDelay, endpointDelay, healthVehicleDelay)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }
	return p, &current
}

func TestPacer_FirstCallNeedsNoWait(t *testing.T) {
	p, _ := newTestPacer(2*time.Second, time.Second, 30*time.Second)
	assert.Equal(t, time.Duration(0), p.requiredWait(p.now(), "veh-1", EndpointStatus))
}

func TestPacer_SameVehicleEndpointDelay(t *testing.T) {
	p, clock := newTestPacer(2*time.Second, time.Second, 30*time.Second)

	p.MarkCalled("veh-1", EndpointStatus)

	// A second call for the same vehicle, any class, waits the endpoint
	// delay.
	assert.Equal(t, time.Second, p.requiredWait(*clock, "veh-1", EndpointStatus))
	assert.Equal(t, time.Second, p.requiredWait(*clock, "veh-1", EndpointCommand))

	*clock = clock.Add(time.Second)
	assert.Equal(t, time.Duration(0), p.requiredWait(*clock, "veh-1", EndpointStatus))
}

func TestPacer_DifferentVehicleDelay(t *testing.T) {
	p, clock := newTestPacer(2*time.Second, time.Second, 30*time.Second)

	p.MarkCalled("veh-1", EndpointStatus)

	// Switching to another vehicle costs the larger vehicle delay.
	assert.Equal(t, 2*time.Second, p.requiredWait(*clock, "veh-2", EndpointStatus))

	*clock = clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, p.requiredWait(*clock, "veh-2", EndpointStatus))
}

func TestPacer_HealthUsesLongerVehicleDelay(t *testing.T) {
	p, clock := newTestPacer(2*time.Second, time.Second, 30*time.Second)

	p.MarkCalled("veh-1", EndpointHealth)

	assert.Equal(t, 30*time.Second, p.requiredWait(*clock, "veh-2", EndpointHealth))
	// A status call to the other vehicle still only pays the regular
	// vehicle delay.
	assert.Equal(t, 2*time.Second, p.requiredWait(*clock, "veh-2", EndpointStatus))
}

func TestPacer_WaitDoesNotRecordCall(t *testing.T) {
	p, clock := newTestPacer(2*time.Second, time.Second, 30*time.Second)

	p.MarkCalled("veh-1", EndpointStatus)
	before := p.requiredWait(*clock, "veh-1", EndpointStatus)

	// Waiting (or a cancelled wait) must not advance the pacing state;
	// only MarkCalled does.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.WaitBefore(ctx, "veh-1", EndpointStatus)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, before, p.requiredWait(*clock, "veh-1", EndpointStatus))

	// The cancelled wait also released the call slot: once the spacing
	// has elapsed a fresh wait clears (a leaked slot would block here).
	*clock = clock.Add(time.Second)
	require.NoError(t, p.WaitBefore(context.Background(), "veh-1", EndpointStatus))
	p.MarkCalled("veh-1", EndpointStatus)
}

func TestPacer_WaitBeforeBlocksForSpacing(t *testing.T) {
	p := NewPacer(50*time.Millisecond, 30*time.Millisecond, 100*time.Millisecond)
	p.MarkCalled("veh-1", EndpointStatus)

	start := time.Now()
	err := p.WaitBefore(context.Background(), "veh-1", EndpointStatus)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	p.MarkCalled("veh-1", EndpointStatus)

	// Once the spacing has elapsed the wait returns immediately.
	time.Sleep(35 * time.Millisecond)
	start = time.Now()
	require.NoError(t, p.WaitBefore(context.Background(), "veh-1", EndpointStatus))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	p.MarkCalled("veh-1", EndpointStatus)
}

func TestPacer_BurstCallsStaySpaced(t *testing.T) {
	p := NewPacer(50*time.Millisecond, 60*time.Millisecond, 100*time.Millisecond)

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup

	// Each caller holds the slot for the duration of its simulated
	// upstream call before stamping the tables.
	call := func(inFlight time.Duration) {
		defer wg.Done()
		if err := p.WaitBefore(context.Background(), "veh-1", EndpointStatus); err != nil {
			t.Error(err)
			return
		}
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(inFlight)
		p.MarkCalled("veh-1", EndpointStatus)
	}

	wg.Add(2)
	go call(30 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	go call(0)
	wg.Wait()

	require.Len(t, starts, 2)
	gap := starts[1].Sub(starts[0])
	assert.GreaterOrEqual(t, gap, 60*time.Millisecond,
		"two calls of the same class for the same vehicle must never start inside the configured delay")
}

func TestPacer_SimultaneousStatusAndHealthSerialized(t *testing.T) {
	p := NewPacer(10*time.Millisecond, 40*time.Millisecond, 20*time.Millisecond)

	var mu sync.Mutex
	starts := make(map[EndpointClass]time.Time)
	var wg sync.WaitGroup

	run := func(class EndpointClass) {
		defer wg.Done()
		if err := p.WaitBefore(context.Background(), "veh-1", class); err != nil {
			t.Error(err)
			return
		}
		mu.Lock()
		starts[class] = time.Now()
		mu.Unlock()
		p.MarkCalled("veh-1", class)
	}

	wg.Add(2)
	go run(EndpointStatus)
	go run(EndpointHealth)
	wg.Wait()

	require.Len(t, starts, 2)
	gap := starts[EndpointHealth].Sub(starts[EndpointStatus])
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, 40*time.Millisecond,
		"status and health calls for one vehicle must be spaced even when requested together")
}
