package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/notification"
)

func TestSendCommand_AcceptedWithVisitNo(t *testing.T) {
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			assert.Equal(t, "1001", vehicleID)
			assert.Equal(t, mazda.CommandLockDoors, kind)
			return "visit-42", nil
		},
	}
	st := &mockStore{}
	c := newTestCoordinator(api, st, nil)

	rec, err := c.SendCommand(context.Background(), "1001", mazda.CommandLockDoors, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "1001", rec.VehicleID)
	assert.Equal(t, "lock_doors", rec.Kind)
	assert.Equal(t, "visit-42", rec.VisitNo)
	assert.Equal(t, "pending", rec.State, "acceptance with a tracking id means pending, not succeeded")
	assert.False(t, rec.IssuedAt.IsZero())

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.commands, 1)
}

func TestSendCommand_AcceptedWithoutVisitNo(t *testing.T) {
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			return "", nil
		},
	}
	c := newTestCoordinator(api, nil, nil)

	rec, err := c.SendCommand(context.Background(), "1001", mazda.CommandHazardLightsOn, nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", rec.State, "no tracking id means the state cannot be pending")
	assert.Empty(t, rec.VisitNo)
}

func TestSendCommand_UnknownKindRejectedLocally(t *testing.T) {
	called := false
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			called = true
			return "", nil
		},
	}
	c := newTestCoordinator(api, nil, nil)

	_, err := c.SendCommand(context.Background(), "1001", mazda.CommandKind("self_destruct"), nil)

	var valErr *mazda.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.False(t, called, "an invalid kind never reaches the upstream API")
}

func TestSendCommand_UnknownVehicleRejected(t *testing.T) {
	api := &mockAPI{
		GetVehiclesFunc: func(ctx context.Context) ([]mazda.Vehicle, error) {
			return twoVehicles(), nil
		},
		GetVehicleStatusFunc: func(ctx context.Context, vehicleID string) (*mazda.StatusSnapshot, error) {
			return &mazda.StatusSnapshot{VehicleID: vehicleID}, nil
		},
	}
	c := newTestCoordinator(api, nil, nil)
	require.NoError(t, c.RefreshStatusOnce(context.Background()))

	_, err := c.SendCommand(context.Background(), "9999", mazda.CommandLockDoors, nil)
	assert.ErrorIs(t, err, ErrUnknownVehicle)
}

func TestSendCommand_RejectionNotPersisted(t *testing.T) {
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			return "", &mazda.CommandRejectedError{Kind: kind, ResultCode: "500S01"}
		},
	}
	st := &mockStore{}
	c := newTestCoordinator(api, st, nil)

	_, err := c.SendCommand(context.Background(), "1001", mazda.CommandStartEngine, nil)

	var rejErr *mazda.CommandRejectedError
	require.ErrorAs(t, err, &rejErr)
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.commands, "a rejected command leaves no record")
}

func TestSendCommand_PersistenceFailureDoesNotFailDispatch(t *testing.T) {
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			return "visit-7", nil
		},
	}
	st := &mockStore{CreateCommandRecordErr: assert.AnError}
	c := newTestCoordinator(api, st, nil)

	rec, err := c.SendCommand(context.Background(), "1001", mazda.CommandUnlockDoors, nil)
	require.NoError(t, err, "the command is already accepted upstream")
	assert.Equal(t, "visit-7", rec.VisitNo)
}

func TestSendCommand_ElectricOnlyRejectedForCombustion(t *testing.T) {
	called := false
	api := &mockAPI{
		GetVehiclesFunc: func(ctx context.Context) ([]mazda.Vehicle, error) {
			return twoVehicles(), nil
		},
		GetVehicleStatusFunc: func(ctx context.Context, vehicleID string) (*mazda.StatusSnapshot, error) {
			return &mazda.StatusSnapshot{VehicleID: vehicleID}, nil
		},
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			called = true
			return "", nil
		},
	}
	c := newTestCoordinator(api, nil, nil)
	require.NoError(t, c.RefreshStatusOnce(context.Background()))

	for _, kind := range []mazda.CommandKind{
		mazda.CommandStartCharging, mazda.CommandStopCharging,
		mazda.CommandHVACOn, mazda.CommandHVACOff,
	} {
		_, err := c.SendCommand(context.Background(), "1001", kind, nil)
		var valErr *mazda.ValidationError
		require.ErrorAs(t, err, &valErr, "%s must be rejected for a combustion vehicle", kind)
	}
	assert.False(t, called, "an EV command for a combustion vehicle never reaches the upstream API")
}

func TestSendCommand_ChargeAcceptedForElectric(t *testing.T) {
	api := &mockAPI{
		GetVehiclesFunc: func(ctx context.Context) ([]mazda.Vehicle, error) {
			return []mazda.Vehicle{{ID: "2001", VIN: "JMZDR1W7W00200001", IsElectric: true}}, nil
		},
		GetVehicleStatusFunc: func(ctx context.Context, vehicleID string) (*mazda.StatusSnapshot, error) {
			return &mazda.StatusSnapshot{VehicleID: vehicleID}, nil
		},
		GetEVVehicleStatusFunc: func(ctx context.Context, vehicleID string) (*mazda.EVSnapshot, error) {
			return &mazda.EVSnapshot{VehicleID: vehicleID}, nil
		},
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			assert.Equal(t, mazda.CommandStartCharging, kind)
			return "visit-9", nil
		},
	}
	c := newTestCoordinator(api, nil, nil)
	require.NoError(t, c.RefreshStatusOnce(context.Background()))

	rec, err := c.SendCommand(context.Background(), "2001", mazda.CommandStartCharging, nil)
	require.NoError(t, err)
	assert.Equal(t, "visit-9", rec.VisitNo)
	assert.Equal(t, "pending", rec.State)
}

func TestCheckCommandStatus_EmptyVisitNo(t *testing.T) {
	called := false
	api := &mockAPI{
		GetCommandStatusFunc: func(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error) {
			called = true
			return mazda.CommandStatePending, nil
		},
	}
	c := newTestCoordinator(api, nil, nil)

	state, err := c.CheckCommandStatus(context.Background(), "1001", "")

	var valErr *mazda.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, mazda.CommandStateUnknown, state)
	assert.False(t, called)
}

func TestCheckCommandStatus_UntrackedVisitNo(t *testing.T) {
	api := &mockAPI{
		GetCommandStatusFunc: func(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error) {
			assert.Equal(t, "visit-unseen", visitNo)
			return mazda.CommandStateSucceeded, nil
		},
	}
	st := &mockStore{}
	c := newTestCoordinator(api, st, nil)

	// Checking an identifier this process never issued is legal; the
	// visit number, not the local record, is the source of truth.
	state, err := c.CheckCommandStatus(context.Background(), "1001", "visit-unseen")
	require.NoError(t, err)
	assert.Equal(t, mazda.CommandStateSucceeded, state)

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.commands, "nothing is persisted for an untracked visit number")
}

func TestCheckCommandStatus_TransitionUpdatesRecordAndNotifies(t *testing.T) {
	upstreamState := mazda.CommandStatePending
	api := &mockAPI{
		SendCommandFunc: func(ctx context.Context, vehicleID string, kind mazda.CommandKind, poi *mazda.POI) (string, error) {
			return "visit-42", nil
		},
		GetCommandStatusFunc: func(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error) {
			return upstreamState, nil
		},
	}
	st := &mockStore{}
	sink := &mockSink{}
	c := newTestCoordinator(api, st, sink)

	rec, err := c.SendCommand(context.Background(), "1001", mazda.CommandLockDoors, nil)
	require.NoError(t, err)

	// Still pending: no update, no notification.
	state, err := c.CheckCommandStatus(context.Background(), "1001", "visit-42")
	require.NoError(t, err)
	assert.Equal(t, mazda.CommandStatePending, state)
	assert.Empty(t, sink.Events())

	upstreamState = mazda.CommandStateSucceeded
	state, err = c.CheckCommandStatus(context.Background(), "1001", "visit-42")
	require.NoError(t, err)
	assert.Equal(t, mazda.CommandStateSucceeded, state)

	stored, err := st.GetCommandRecordByVisit(context.Background(), "1001", "visit-42")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, "succeeded", stored.State)
	require.NotNil(t, stored.CheckedAt)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventCommandCompleted, events[0].Kind)
	assert.Equal(t, "lock_doors", events[0].Command)
	assert.Equal(t, "succeeded", events[0].State)
}

func TestCheckCommandStatus_UpstreamErrorReturnsUnknown(t *testing.T) {
	api := &mockAPI{
		GetCommandStatusFunc: func(ctx context.Context, vehicleID, visitNo string) (mazda.CommandState, error) {
			return mazda.CommandStateUnknown, assert.AnError
		},
	}
	c := newTestCoordinator(api, nil, nil)

	state, err := c.CheckCommandStatus(context.Background(), "1001", "visit-42")
	require.Error(t, err)
	assert.Equal(t, mazda.CommandStateUnknown, state)
}
