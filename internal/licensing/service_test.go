package licensing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyCode = "ABCD-EFGH-JKLM-NPQR"

func newTestService(t *testing.T, maxDevices int) (*Service, *memStore, *models.LicenseKey) {
	t.Helper()

	store := newMemStore()
	plan := models.NewPlan("monthly", models.DurationMonth, 1, maxDevices)
	store.addPlan(plan)

	key := models.NewLicenseKey(testKeyCode, plan)
	store.addKey(key)

	svc := NewService(store, store, zerolog.New(zerolog.NewTestWriter(t)))
	return svc, store, key
}

func testMeta() models.DeviceMeta {
	return models.DeviceMeta{
		DeviceName: "workstation",
		DeviceInfo: "linux amd64",
		IPAddress:  "203.0.113.10",
		UserAgent:  "client/1.0",
	}
}

func TestActivateFirstActivation(t *testing.T) {
	svc, store, key := newTestService(t, 2)
	ctx := context.Background()

	anchor := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return anchor }

	result, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
	require.NoError(t, err)

	assert.Equal(t, models.KeyStatusActive, result.Status)
	assert.Equal(t, 1, result.CurrentDevices)
	assert.Equal(t, 2, result.MaxDevices)
	assert.Equal(t, 1, result.TotalActivations)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, result.ExpiresAt.Equal(anchor.AddDate(0, 1, 0)), "expiration pinned at first activation")

	stored := store.getKey(testKeyCode)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, stored.ActivatedAt.Equal(anchor))
	assert.Equal(t, "203.0.113.10", stored.LastUsedIP)
	assert.Equal(t, HashHWID("device-a"), stored.LastHWID)

	logs := store.logsFor(key.ID, models.ActionActivate)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, HashHWID("device-a"), logs[0].HWID)
}

func TestActivateExpirationPinnedOnce(t *testing.T) {
	svc, store, _ := newTestService(t, 2)
	ctx := context.Background()

	anchor := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return anchor }

	_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
	require.NoError(t, err)

	// A later activation of a second device must not move the window.
	svc.now = func() time.Time { return anchor.Add(48 * time.Hour) }
	result, err := svc.Activate(ctx, testKeyCode, "device-b", testMeta())
	require.NoError(t, err)
	assert.True(t, result.ExpiresAt.Equal(anchor.AddDate(0, 1, 0)))

	stored := store.getKey(testKeyCode)
	assert.True(t, stored.ActivatedAt.Equal(anchor), "activatedAt is immutable after first activation")
}

func TestActivateReLoginIsIdempotent(t *testing.T) {
	svc, store, key := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
	require.NoError(t, err)

	result, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
	require.NoError(t, err)

	assert.Equal(t, 1, result.CurrentDevices, "re-login must not consume quota")
	assert.Equal(t, 2, result.TotalActivations, "re-login still counts as a successful activation")
	assert.Equal(t, 1, store.activationRows(key.ID), "re-login must not create a second activation row")

	assert.Len(t, store.logsFor(key.ID, models.ActionLogin), 1)
	assert.Len(t, store.logsFor(key.ID, models.ActionActivate), 1)
}

func TestActivateQuotaSequence(t *testing.T) {
	svc, store, key := newTestService(t, 2)
	ctx := context.Background()

	res, err := svc.Activate(ctx, testKeyCode, "hwid-a", testMeta())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentDevices)

	res, err = svc.Activate(ctx, testKeyCode, "hwid-b", testMeta())
	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentDevices)

	_, err = svc.Activate(ctx, testKeyCode, "hwid-c", testMeta())
	require.Error(t, err)
	assert.Equal(t, CodeMaxDevicesReached, CodeOf(err))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.CurrentDevices)
	assert.Equal(t, 2, perr.MaxDevices)

	failed := store.logsFor(key.ID, models.ActionActivate)
	require.Len(t, failed, 3)
	assert.False(t, failed[2].Success)
	assert.NotEmpty(t, failed[2].ErrorMessage)

	res, err = svc.Deactivate(ctx, testKeyCode, "hwid-a", testMeta())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentDevices)

	res, err = svc.Activate(ctx, testKeyCode, "hwid-c", testMeta())
	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentDevices)
}

func TestActivateConcurrentQuota(t *testing.T) {
	const (
		quota   = 3
		callers = 16
	)
	svc, store, key := newTestService(t, quota)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		quotaFail int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Activate(ctx, testKeyCode, fmt.Sprintf("device-%d", n), testMeta())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case IsCode(err, CodeMaxDevicesReached):
				quotaFail++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, quota, succeeded, "exactly quota activations must succeed")
	assert.Equal(t, callers-quota, quotaFail)
	assert.Equal(t, quota, store.activeCount(key.ID), "active bindings never exceed quota")
	assert.Equal(t, quota, store.getKey(testKeyCode).CurrentDevices)
}

func TestActivateBlockedStates(t *testing.T) {
	tests := []struct {
		status models.KeyStatus
		code   ErrorCode
	}{
		{models.KeyStatusRevoked, CodeKeyRevoked},
		{models.KeyStatusBanned, CodeKeyBanned},
		{models.KeyStatusSuspended, CodeKeySuspended},
		{models.KeyStatusExpired, CodeKeyExpired},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc, store, key := newTestService(t, 2)
			ctx := context.Background()

			stored := store.getKey(testKeyCode)
			stored.Status = tt.status
			store.addKey(stored)

			_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))

			logs := store.logsFor(key.ID, models.ActionActivate)
			require.Len(t, logs, 1)
			assert.False(t, logs[0].Success)
		})
	}
}

func TestActivateUnknownKey(t *testing.T) {
	svc, _, _ := newTestService(t, 2)

	_, err := svc.Activate(context.Background(), "ZZZZ-ZZZZ-ZZZZ-ZZZZ", "device-a", testMeta())
	require.Error(t, err)
	assert.Equal(t, CodeInvalidKey, CodeOf(err))
}

func TestActivateNormalizesKeyInput(t *testing.T) {
	svc, _, _ := newTestService(t, 2)

	_, err := svc.Activate(context.Background(), "  abcd-efgh-jklm-npqr ", "device-a", testMeta())
	require.NoError(t, err)
}

func TestLazyExpiration(t *testing.T) {
	svc, store, key := newTestService(t, 2)
	ctx := context.Background()

	anchor := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return anchor }
	_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
	require.NoError(t, err)

	// Jump past the one-month window.
	svc.now = func() time.Time { return anchor.AddDate(0, 2, 0) }

	_, err = svc.Validate(ctx, testKeyCode, "", models.DeviceMeta{})
	require.Error(t, err)
	assert.Equal(t, CodeKeyExpired, CodeOf(err))
	assert.Equal(t, models.KeyStatusExpired, store.getKey(testKeyCode).Status,
		"lazy transition must be persisted by the failing read")

	// Observing the expiration twice is harmless, and Activate agrees.
	_, err = svc.Activate(ctx, testKeyCode, "device-b", testMeta())
	require.Error(t, err)
	assert.Equal(t, CodeKeyExpired, CodeOf(err))
	assert.Equal(t, models.KeyStatusExpired, store.getKey(testKeyCode).Status)

	validateLogs := store.logsFor(key.ID, models.ActionValidate)
	require.Len(t, validateLogs, 1)
	assert.False(t, validateLogs[0].Success)
}

func TestValidate(t *testing.T) {
	t.Run("inactive key validates without hwid checks", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)

		result, err := svc.Validate(context.Background(), testKeyCode, "device-a", models.DeviceMeta{})
		require.NoError(t, err)
		assert.Equal(t, models.KeyStatusInactive, result.Status)
		assert.False(t, result.DeviceBound)
		assert.Empty(t, result.Warning)
	})

	t.Run("reports bound hwid", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		result, err := svc.Validate(ctx, testKeyCode, "device-a", models.DeviceMeta{})
		require.NoError(t, err)
		assert.True(t, result.DeviceBound)
		assert.Empty(t, result.Warning)
	})

	t.Run("unbound hwid with free quota carries no warning", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		result, err := svc.Validate(ctx, testKeyCode, "device-b", models.DeviceMeta{})
		require.NoError(t, err)
		assert.False(t, result.DeviceBound)
		assert.Empty(t, result.Warning)
	})

	t.Run("unbound hwid with full quota is distinguishable", func(t *testing.T) {
		svc, _, _ := newTestService(t, 1)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		result, err := svc.Validate(ctx, testKeyCode, "device-b", models.DeviceMeta{})
		require.NoError(t, err)
		assert.False(t, result.DeviceBound)
		assert.Equal(t, CodeHwidNotActivatedQuotaFull, result.Warning)
	})

	t.Run("never modifies activations", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Validate(ctx, testKeyCode, "device-a", models.DeviceMeta{})
		require.NoError(t, err)
		assert.Equal(t, 0, store.activationRows(key.ID))
		assert.Equal(t, 0, store.getKey(testKeyCode).CurrentDevices)
	})

	t.Run("always writes a ledger entry", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Validate(ctx, testKeyCode, "", models.DeviceMeta{})
		require.NoError(t, err)
		assert.Len(t, store.logsFor(key.ID, models.ActionValidate), 1)
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("refreshes liveness only", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		anchor := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return anchor }
		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		later := anchor.Add(time.Hour)
		svc.now = func() time.Time { return later }
		result, err := svc.Heartbeat(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		assert.Equal(t, 1, result.CurrentDevices, "heartbeat consumes no quota")
		assert.Equal(t, models.KeyStatusActive, result.Status)

		stored := store.getKey(testKeyCode)
		assert.True(t, stored.LastUsedAt.Equal(later))
		assert.Len(t, store.logsFor(key.ID, models.ActionHeartbeat), 1)
	})

	t.Run("never-activated hwid fails without side effects", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		_, err = svc.Heartbeat(ctx, testKeyCode, "device-unknown", testMeta())
		require.Error(t, err)
		assert.Equal(t, CodeHwidNotActivated, CodeOf(err))
		assert.Equal(t, 1, store.getKey(testKeyCode).CurrentDevices)

		logs := store.logsFor(key.ID, models.ActionHeartbeat)
		require.Len(t, logs, 1)
		assert.False(t, logs[0].Success)
	})

	t.Run("deactivated hwid fails", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		_, err = svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		_, err = svc.Heartbeat(ctx, testKeyCode, "device-a", testMeta())
		require.Error(t, err)
		assert.Equal(t, CodeHwidNotActivated, CodeOf(err))
	})

	t.Run("blocked key fails heartbeat", func(t *testing.T) {
		svc, store, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		stored := store.getKey(testKeyCode)
		stored.Status = models.KeyStatusSuspended
		store.addKey(stored)

		_, err = svc.Heartbeat(ctx, testKeyCode, "device-a", testMeta())
		require.Error(t, err)
		assert.Equal(t, CodeKeySuspended, CodeOf(err))
	})
}

func TestDeactivate(t *testing.T) {
	t.Run("releases the slot and keeps key status", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		result, err := svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		assert.Equal(t, 0, result.CurrentDevices)
		assert.Equal(t, models.KeyStatusActive, result.Status, "deactivate must not change key status")

		assert.Equal(t, 1, store.activationRows(key.ID), "the binding row is kept, not deleted")
		assert.Equal(t, 0, store.activeCount(key.ID))
		assert.Len(t, store.logsFor(key.ID, models.ActionDeactivate), 1)
	})

	t.Run("no active binding fails", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.Error(t, err)
		assert.Equal(t, CodeNotActivated, CodeOf(err))
	})

	t.Run("double deactivate fails", func(t *testing.T) {
		svc, _, _ := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		_, err = svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		_, err = svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.Error(t, err)
		assert.Equal(t, CodeNotActivated, CodeOf(err))
	})

	t.Run("rebinding reuses the deactivated row", func(t *testing.T) {
		svc, store, key := newTestService(t, 2)
		ctx := context.Background()

		_, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		_, err = svc.Deactivate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)

		result, err := svc.Activate(ctx, testKeyCode, "device-a", testMeta())
		require.NoError(t, err)
		assert.Equal(t, 1, result.CurrentDevices)
		assert.Equal(t, 1, store.activationRows(key.ID), "rebinding updates the existing row")
	})
}

func TestLedgerFailureIsSwallowed(t *testing.T) {
	svc, store, _ := newTestService(t, 2)
	store.failUsage = true

	result, err := svc.Activate(context.Background(), testKeyCode, "device-a", testMeta())
	require.NoError(t, err, "a ledger write failure must never fail the protocol operation")
	assert.Equal(t, 1, result.CurrentDevices)
}
