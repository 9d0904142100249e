package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mazda-bridge-backend/config"
	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/metrics"
	"mazda-bridge-backend/internal/model"
	"mazda-bridge-backend/internal/notification"
	"mazda-bridge-backend/internal/store"
)

// VehicleAPI is the capability surface the coordinator needs from the
// Mazda client.
type VehicleAPI interface {
	Authenticate(ctx context.Context) error
	GetVehicles(ctx context.Context) ([]mazda.Vehicle, error)
	GetVehicleStatus(ctx context.Context, vehicleID string) (*mazda.StatusSnapshot, error)
	GetEVVehicleStatus(ctx context.Context, vehicleID string) (*mazda.EVSnapshot, error)
	GetHealthReport(ctx context.Context, vehicleID string) (*mazda.HealthSnapshot, error)
	SendCommand(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error)
	GetCommandStatus(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error)
}

// EventSink receives notification jobs. Satisfied by the notification
// worker pool.
type EventSink interface {
	Dispatch(evt notification.Event)
}

// ErrSweepInFlight is returned when a sweep is requested while the
// previous one for the same endpoint class has not finished.
var ErrSweepInFlight = errors.New("a poll sweep is already in flight")

// ErrUnknownVehicle is returned for an id not present in the registry.
var ErrUnknownVehicle = errors.New("unknown vehicle")

// Coordinator owns the polling schedule, pacing, retries and command
// tracking for one account. Snapshots are replaced whole on success and
// left untouched on failure, so readers see either the previous complete
// snapshot or the new one.
type Coordinator struct {
	client   VehicleAPI
	pacer    *Pacer
	retrier  *Retrier
	store    store.Store
	notifier EventSink
	log      zerolog.Logger

	statusInterval   time.Duration
	healthInterval   time.Duration
	failureThreshold int

	mu       sync.RWMutex
	vehicles []mazda.Vehicle
	status   map[string]*mazda.StatusSnapshot
	ev       map[string]*mazda.EVSnapshot
	health   map[string]*mazda.HealthSnapshot
	failures map[string]int

	statusSweeping atomic.Bool
	healthSweeping atomic.Bool

	runCtx atomic.Pointer[context.Context]
}

// New creates a coordinator for one account.
func New(client VehicleAPI, s store.Store, notifier EventSink, polling *config.PollingConfig, retry *config.RetryConfig, failureThreshold int, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		client: client,
		pacer:  NewPacer(polling.VehicleDelay, polling.EndpointDelay, polling.HealthVehicleDelay),
		retrier: &Retrier{
			MaxAttempts:  retry.MaxAttempts,
			InitialDelay: retry.InitialDelay,
			MaxBackoff:   retry.MaxBackoff,
		},
		store:            s,
		notifier:         notifier,
		log:              logger,
		statusInterval:   polling.StatusInterval,
		healthInterval:   polling.HealthInterval,
		failureThreshold: failureThreshold,
		status:           make(map[string]*mazda.StatusSnapshot),
		ev:               make(map[string]*mazda.EVSnapshot),
		health:           make(map[string]*mazda.HealthSnapshot),
		failures:         make(map[string]int),
	}
}

// Run drives the status and health poll schedules until the context is
// cancelled. An initial status sweep runs immediately so consumers have
// data as soon as possible.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx.Store(&ctx)
	c.log.Info().
		Dur("status_interval", c.statusInterval).
		Dur("health_interval", c.healthInterval).
		Msg("starting poll coordinator")

	if err := c.RefreshStatusOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error().Err(err).Msg("initial status sweep failed")
	}
	if err := c.RefreshHealthOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error().Err(err).Msg("initial health sweep failed")
	}

	statusTimer := time.NewTimer(c.statusInterval)
	healthTimer := time.NewTimer(c.healthInterval)
	defer statusTimer.Stop()
	defer healthTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("poll coordinator shutting down")
			return
		case <-statusTimer.C:
			if err := c.RefreshStatusOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Msg("status sweep failed")
			}
			statusTimer.Reset(c.statusInterval)
		case <-healthTimer.C:
			if err := c.RefreshHealthOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Msg("health sweep failed")
			}
			healthTimer.Reset(c.healthInterval)
		}
	}
}

// RefreshStatusOnce runs one status sweep over every vehicle on the
// account. At most one status sweep runs at a time; a second request
// while one is in flight returns ErrSweepInFlight. Per-vehicle failures
// do not abort the sweep.
func (c *Coordinator) RefreshStatusOnce(ctx context.Context) error {
	if !c.statusSweeping.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues(string(EndpointStatus), "rejected").Inc()
		return ErrSweepInFlight
	}
	defer c.statusSweeping.Store(false)

	return c.sweep(ctx, EndpointStatus)
}

// RefreshHealthOnce runs one health-report sweep, with the same
// single-flight and failure-isolation rules as RefreshStatusOnce.
func (c *Coordinator) RefreshHealthOnce(ctx context.Context) error {
	if !c.healthSweeping.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues(string(EndpointHealth), "rejected").Inc()
		return ErrSweepInFlight
	}
	defer c.healthSweeping.Store(false)

	return c.sweep(ctx, EndpointHealth)
}

// TriggerStatusSweep starts a status sweep in the background, detached
// from the caller's lifetime, and returns immediately. It returns
// ErrSweepInFlight when a status sweep is already running.
func (c *Coordinator) TriggerStatusSweep() error {
	if !c.statusSweeping.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues(string(EndpointStatus), "rejected").Inc()
		return ErrSweepInFlight
	}

	ctx := context.Background()
	if p := c.runCtx.Load(); p != nil {
		ctx = *p
	}
	go func() {
		defer c.statusSweeping.Store(false)
		if err := c.sweep(ctx, EndpointStatus); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Msg("manual status sweep failed")
		}
	}()
	return nil
}

func (c *Coordinator) sweep(ctx context.Context, class EndpointClass) error {
	vehicles, err := c.ensureVehicles(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues(string(class), "error").Inc()
		return err
	}

	for _, v := range vehicles {
		if err := ctx.Err(); err != nil {
			metrics.SweepsTotal.WithLabelValues(string(class), "cancelled").Inc()
			return err
		}
		if err := c.pollVehicle(ctx, v, class); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				metrics.SweepsTotal.WithLabelValues(string(class), "cancelled").Inc()
				return err
			}
			c.recordFailure(ctx, v, class, err)
			continue
		}
		c.clearFailures(v.ID)
	}

	metrics.SweepsTotal.WithLabelValues(string(class), "ok").Inc()
	return nil
}

// pollVehicle fetches one vehicle's data for the given endpoint class
// and atomically replaces the snapshot on success.
func (c *Coordinator) pollVehicle(ctx context.Context, v mazda.Vehicle, class EndpointClass) error {
	if err := c.pacer.WaitBefore(ctx, v.ID, class); err != nil {
		return err
	}

	var statusSnap *mazda.StatusSnapshot
	var healthSnap *mazda.HealthSnapshot
	var err error
	switch class {
	case EndpointStatus:
		err = c.callWithReauth(ctx, "vehicle_status", func(ctx context.Context) error {
			s, ferr := c.client.GetVehicleStatus(ctx, v.ID)
			if ferr != nil {
				return ferr
			}
			statusSnap = s
			return nil
		})
	case EndpointHealth:
		err = c.callWithReauth(ctx, "health_report", func(ctx context.Context) error {
			h, ferr := c.client.GetHealthReport(ctx, v.ID)
			if ferr != nil {
				return ferr
			}
			healthSnap = h
			return nil
		})
	}
	// The call has executed (possibly unsuccessfully); only now does the
	// pacing table advance.
	c.pacer.MarkCalled(v.ID, class)

	if err != nil {
		metrics.PollsTotal.WithLabelValues(string(class), "error").Inc()
		return err
	}

	c.mu.Lock()
	if statusSnap != nil {
		c.status[v.ID] = statusSnap
	}
	if healthSnap != nil {
		c.health[v.ID] = healthSnap
	}
	c.mu.Unlock()

	metrics.PollsTotal.WithLabelValues(string(class), "ok").Inc()

	// Electric vehicles carry an extra battery and climate payload,
	// fetched on the status cadence.
	if class == EndpointStatus && v.IsElectric {
		return c.pollEVStatus(ctx, v)
	}
	return nil
}

func (c *Coordinator) pollEVStatus(ctx context.Context, v mazda.Vehicle) error {
	if err := c.pacer.WaitBefore(ctx, v.ID, EndpointStatus); err != nil {
		return err
	}

	var snap *mazda.EVSnapshot
	err := c.callWithReauth(ctx, "ev_status", func(ctx context.Context) error {
		s, ferr := c.client.GetEVVehicleStatus(ctx, v.ID)
		if ferr != nil {
			return ferr
		}
		snap = s
		return nil
	})
	c.pacer.MarkCalled(v.ID, EndpointStatus)

	if err != nil {
		metrics.PollsTotal.WithLabelValues("ev_status", "error").Inc()
		return err
	}

	c.mu.Lock()
	c.ev[v.ID] = snap
	c.mu.Unlock()

	metrics.PollsTotal.WithLabelValues("ev_status", "ok").Inc()
	return nil
}

// ensureVehicles returns the cached vehicle list, fetching and persisting
// it on first use. The list fetch is paced like any other account call.
func (c *Coordinator) ensureVehicles(ctx context.Context) ([]mazda.Vehicle, error) {
	c.mu.RLock()
	cached := c.vehicles
	c.mu.RUnlock()
	if len(cached) > 0 {
		return cached, nil
	}

	if err := c.pacer.WaitBefore(ctx, "account", EndpointStatus); err != nil {
		return nil, err
	}
	var vehicles []mazda.Vehicle
	err := c.callWithReauth(ctx, "vehicle_list", func(ctx context.Context) error {
		vs, ferr := c.client.GetVehicles(ctx)
		if ferr != nil {
			return ferr
		}
		vehicles = vs
		return nil
	})
	c.pacer.MarkCalled("account", EndpointStatus)
	if err != nil {
		return nil, err
	}

	rows := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		rows = append(rows, model.Vehicle{
			ID:          v.ID,
			VIN:         v.VIN,
			Nickname:    v.Nickname,
			ModelYear:   v.ModelYear,
			CarlineName: v.CarlineName,
			IsElectric:  v.IsElectric,
		})
	}
	if err := c.store.UpsertVehicles(ctx, rows); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist vehicle registry")
	}

	c.mu.Lock()
	c.vehicles = vehicles
	c.mu.Unlock()
	return vehicles, nil
}

// callWithReauth executes a retried call; on an authentication failure it
// re-authenticates exactly once and re-executes. A second authentication
// failure is surfaced as-is.
func (c *Coordinator) callWithReauth(ctx context.Context, op string, call func(context.Context) error) error {
	err := c.retrier.Execute(ctx, op, call)
	var authErr *mazda.AuthError
	if !errors.As(err, &authErr) {
		return err
	}

	c.log.Warn().Str("op", op).Msg("authentication failure, re-authenticating")
	if aerr := c.client.Authenticate(ctx); aerr != nil {
		return aerr
	}
	return c.retrier.Execute(ctx, op, call)
}

func (c *Coordinator) recordFailure(ctx context.Context, v mazda.Vehicle, class EndpointClass, cause error) {
	c.log.Error().Err(cause).
		Str("vehicle_id", v.ID).
		Str("endpoint", string(class)).
		Msg("poll failed, keeping previous snapshot")

	failure := &model.PollFailure{
		VehicleID:     v.ID,
		EndpointClass: string(class),
		Cause:         cause.Error(),
		OccurredAt:    time.Now().UTC(),
	}
	if err := c.store.RecordPollFailure(ctx, failure); err != nil {
		c.log.Warn().Err(err).Str("vehicle_id", v.ID).Msg("failed to persist poll failure")
	}

	c.mu.Lock()
	c.failures[v.ID]++
	count := c.failures[v.ID]
	c.mu.Unlock()

	if count == c.failureThreshold && c.notifier != nil {
		c.notifier.Dispatch(notification.Event{
			Kind:      notification.EventPollFailure,
			VehicleID: v.ID,
		})
	}
}

func (c *Coordinator) clearFailures(vehicleID string) {
	c.mu.Lock()
	delete(c.failures, vehicleID)
	c.mu.Unlock()
}

// Vehicles returns a copy of the known vehicle list.
func (c *Coordinator) Vehicles() []mazda.Vehicle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mazda.Vehicle, len(c.vehicles))
	copy(out, c.vehicles)
	return out
}

// StatusSnapshot returns the current status snapshot for a vehicle, or
// false when none has been captured yet.
func (c *Coordinator) StatusSnapshot(vehicleID string) (*mazda.StatusSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.status[vehicleID]
	return snap, ok
}

// HealthSnapshot returns the current health snapshot for a vehicle, or
// false when none has been captured yet.
func (c *Coordinator) HealthSnapshot(vehicleID string) (*mazda.HealthSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.health[vehicleID]
	return snap, ok
}

// EVSnapshot returns the current EV snapshot for a vehicle, or false
// when none has been captured. Non-electric vehicles never get one.
func (c *Coordinator) EVSnapshot(vehicleID string) (*mazda.EVSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.ev[vehicleID]
	return snap, ok
}

func (c *Coordinator) knownVehicle(vehicleID string) bool {
	_, ok := c.vehicleByID(vehicleID)
	return ok
}

func (c *Coordinator) vehicleByID(vehicleID string) (mazda.Vehicle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.vehicles {
		if v.ID == vehicleID {
			return v, true
		}
	}
	return mazda.Vehicle{}, false
}
