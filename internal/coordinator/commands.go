package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/metrics"
	"mazda-bridge-backend/internal/model"
	"mazda-bridge-backend/internal/notification"
	"mazda-bridge-backend/internal/store"
)

// SendCommand dispatches a remote command, paced and retried like any
// other account call. On API-level acceptance a CommandRecord is created
// and persisted: state pending when the server returned a tracking
// identifier, unknown when it did not. The call never waits for the
// vehicle to actually execute the command.
func (c *Coordinator) SendCommand(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (*model.CommandRecord, error) {
	if !kind.Valid() {
		return nil, &mazda.ValidationError{Reason: "unknown command kind " + string(kind)}
	}
	if len(c.Vehicles()) > 0 && !c.knownVehicle(vehicleID) {
		return nil, ErrUnknownVehicle
	}
	if kind.ElectricOnly() {
		if v, ok := c.vehicleByID(vehicleID); ok && !v.IsElectric {
			return nil, &mazda.ValidationError{Reason: string(kind) + " requires an electric vehicle"}
		}
	}

	if err := c.pacer.WaitBefore(ctx, vehicleID, EndpointCommand); err != nil {
		return nil, err
	}
	var visitNo string
	err := c.callWithReauth(ctx, "send_command", func(ctx context.Context) error {
		vn, cerr := c.client.SendCommand(ctx, vehicleID, kind, poi)
		if cerr != nil {
			return cerr
		}
		visitNo = vn
		return nil
	})
	c.pacer.MarkCalled(vehicleID, EndpointCommand)

	if err != nil {
		metrics.CommandsTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}

	state := mazda.CommandStatePending
	if visitNo == "" {
		state = mazda.CommandStateUnknown
	}
	rec := &model.CommandRecord{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Kind:      string(kind),
		VisitNo:   visitNo,
		State:     string(state),
		IssuedAt:  time.Now().UTC(),
	}
	if err := c.store.CreateCommandRecord(ctx, rec); err != nil {
		// The command is already accepted upstream; a persistence failure
		// must not make the dispatch look failed.
		c.log.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("failed to persist command record")
	}

	c.log.Info().
		Str("vehicle_id", vehicleID).
		Str("kind", string(kind)).
		Str("visit_no", visitNo).
		Str("state", string(state)).
		Msg("command dispatched")
	metrics.CommandsTotal.WithLabelValues(string(kind), "ok").Inc()
	return rec, nil
}

// CheckCommandStatus queries the real-world completion state of a
// previously issued command. The visit number is the source of truth:
// checking an identifier with no local record is legal and returns the
// mapped state without persisting anything. When a local record exists
// and its state changes to succeeded or failed, subscribers are notified.
func (c *Coordinator) CheckCommandStatus(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error) {
	if visitNo == "" {
		return mazda.CommandStateUnknown, &mazda.ValidationError{Reason: "visit number must not be empty"}
	}

	if err := c.pacer.WaitBefore(ctx, vehicleID, EndpointCommand); err != nil {
		return mazda.CommandStateUnknown, err
	}
	var state mazda.CommandState
	err := c.callWithReauth(ctx, "command_status", func(ctx context.Context) error {
		s, cerr := c.client.GetCommandStatus(ctx, vehicleID, visitNo)
		if cerr != nil {
			return cerr
		}
		state = s
		return nil
	})
	c.pacer.MarkCalled(vehicleID, EndpointCommand)
	if err != nil {
		return mazda.CommandStateUnknown, err
	}

	metrics.CommandChecksTotal.WithLabelValues(string(state)).Inc()

	rec, err := c.store.GetCommandRecordByVisit(ctx, vehicleID, visitNo)
	if errors.Is(err, store.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		c.log.Warn().Err(err).Str("visit_no", visitNo).Msg("command record lookup failed")
		return state, nil
	}

	if rec.State != string(state) {
		if uerr := c.store.UpdateCommandState(ctx, rec.ID, string(state), time.Now().UTC()); uerr != nil {
			c.log.Warn().Err(uerr).Str("visit_no", visitNo).Msg("failed to update command record")
		}
		if (state == mazda.CommandStateSucceeded || state == mazda.CommandStateFailed) && c.notifier != nil {
			c.notifier.Dispatch(notification.Event{
				Kind:      notification.EventCommandCompleted,
				VehicleID: vehicleID,
				Command:   rec.Kind,
				VisitNo:   visitNo,
				State:     string(state),
			})
		}
	}
	return state, nil
}
