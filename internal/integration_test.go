package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mazda-bridge-backend/config"
	"mazda-bridge-backend/internal/coordinator"
	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/model"
	"mazda-bridge-backend/internal/store"
)

// TestCommandLifecycle drives the whole stack against a mock upstream:
// authenticate, sweep, dispatch a command, then confirm its completion,
// verifying the database state at each step.
func TestCommandLifecycle(t *testing.T) {
	// 1. In-memory SQLite database with migrations.
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, testDB.AutoMigrate(
		&model.Vehicle{},
		&model.CommandRecord{},
		&model.PollFailure{},
		&model.PushSubscription{},
	))

	// 2. Mock upstream API. The command starts out pending and flips to
	// SUCCESS after the first status check.
	var statusChecks int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/appapi/v1/user/login":
			json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"data": map[string]any{
					"accessToken":             "token-1",
					"accessTokenExpirationTs": time.Now().Add(time.Hour).Unix(),
				},
			})
		case "/prod/remoteServices/getVecBaseInfos/v4":
			json.NewEncoder(w).Encode(map[string]any{
				"resultCode": "200S00",
				"vecBaseInfos": []map[string]any{
					{"id": 1001, "vin": "JM3KFBDM0K0500001", "nickname": "Daily", "modelYear": "2021", "carlineName": "CX-5"},
				},
			})
		case "/prod/remoteServices/getVehicleStatus/v4":
			json.NewEncoder(w).Encode(map[string]any{
				"resultCode": "200S00",
				"alertInfos": []map[string]any{
					{"OccurrenceDate": "20260301120000", "Door": map[string]any{"LockLinkSwDrv": 1}},
				},
				"remoteInfos": []map[string]any{
					{"DriveInformation": map[string]any{"OdoDispValue": 48211.4}},
				},
			})
		case "/prod/remoteServices/doorLock/v4":
			json.NewEncoder(w).Encode(map[string]any{"resultCode": "200S00", "visitNo": "visit-1"})
		case "/prod/remoteServices/getVehicleCommandStatus/v4":
			statusChecks++
			status := "PENDING"
			if statusChecks > 1 {
				status = "SUCCESS"
			}
			json.NewEncoder(w).Encode(map[string]any{"resultCode": "200S00", "commandStatus": status})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	// 3. Real client, store and coordinator wired together.
	client, err := mazda.NewClient(&config.MazdaConfig{
		Email:    "driver@example.com",
		Password: "hunter2",
		Region:   "MNAO",
		BaseURL:  server.URL + "/prod/",
		UsherURL: server.URL + "/appapi/v1/",
	}, zerolog.Nop())
	require.NoError(t, err)

	appStore := store.NewGormStore(testDB)
	coord := coordinator.New(client, appStore, nil,
		&config.PollingConfig{StatusInterval: time.Hour, HealthInterval: time.Hour},
		&config.RetryConfig{MaxAttempts: 2, InitialDelay: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond},
		3, zerolog.Nop())

	ctx := context.Background()

	t.Run("sweep populates snapshot and registry", func(t *testing.T) {
		require.NoError(t, coord.RefreshStatusOnce(ctx))

		snap, ok := coord.StatusSnapshot("1001")
		require.True(t, ok)
		assert.Equal(t, 48211.4, snap.OdometerKm)
		assert.True(t, snap.Locks.DriverUnlocked)

		var vehicle model.Vehicle
		require.NoError(t, testDB.First(&vehicle, "id = ?", "1001").Error)
		assert.Equal(t, "Daily", vehicle.Nickname)
	})

	t.Run("dispatch creates a pending record", func(t *testing.T) {
		rec, err := coord.SendCommand(ctx, "1001", mazda.CommandLockDoors, nil)
		require.NoError(t, err)
		assert.Equal(t, "visit-1", rec.VisitNo)
		assert.Equal(t, "pending", rec.State)

		var stored model.CommandRecord
		require.NoError(t, testDB.First(&stored, "visit_no = ?", "visit-1").Error)
		assert.Equal(t, "lock_doors", stored.Kind)
		assert.Equal(t, "pending", stored.State)
		assert.Nil(t, stored.CheckedAt)
	})

	t.Run("status check confirms completion", func(t *testing.T) {
		state, err := coord.CheckCommandStatus(ctx, "1001", "visit-1")
		require.NoError(t, err)
		assert.Equal(t, mazda.CommandStatePending, state)

		state, err = coord.CheckCommandStatus(ctx, "1001", "visit-1")
		require.NoError(t, err)
		assert.Equal(t, mazda.CommandStateSucceeded, state)

		var stored model.CommandRecord
		require.NoError(t, testDB.First(&stored, "visit_no = ?", "visit-1").Error)
		assert.Equal(t, "succeeded", stored.State)
		require.NotNil(t, stored.CheckedAt)
		assert.WithinDuration(t, time.Now(), *stored.CheckedAt, 5*time.Second)
	})
}
