package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoad_EmptyStoreUsesDefaults(t *testing.T) {
	snap := Load(context.Background(), NewMemoryStore(nil), quiet)

	assert.Equal(t, 6, snap.MaxAttempts)
	assert.Equal(t, 30*time.Hour, snap.RescheduleDelay())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, snap.WorkingDays)
	assert.True(t, snap.DaemonEnabled)
	assert.Equal(t, 5*time.Minute, snap.Interval())
	assert.Equal(t, 10, snap.MaxCallsPerCycle)
	assert.Equal(t, "10:00-20:00", snap.Calendar(time.UTC).Describe())
	assert.Equal(t, "Ilocalizable", snap.ClosureReason("no_answer"))
	assert.Equal(t, "No colabora", snap.ClosureReason("hang_up"))
	assert.Equal(t, "Teléfono erróneo", snap.ClosureReason("invalid_phone"))
}

func TestLoad_ReadsConfiguredValues(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		KeyMaxAttempts:      "4",
		KeyRescheduleHours:  "1.5",
		KeyWorkingTimeSlots: `[{"start":"12:00","end":"14:00"},{"start":"18:00","end":"21:00"}]`,
		KeyWorkingDays:      `[1,2,3,4,5,6]`,
		KeyClosureReasons:   `{"no_answer":"Sin contacto"}`,
		KeyDaemonEnabled:    "false",
		KeyIntervalMinutes:  "2",
		KeyMaxCallsPerCycle: "25",
	})
	snap := Load(context.Background(), store, quiet)

	assert.Equal(t, 4, snap.MaxAttempts)
	assert.Equal(t, 90*time.Minute, snap.RescheduleDelay())
	assert.Equal(t, "12:00-14:00, 18:00-21:00", snap.Calendar(time.UTC).Describe())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, snap.WorkingDays)
	assert.False(t, snap.DaemonEnabled)
	assert.Equal(t, 2, snap.IntervalMinutes)
	assert.Equal(t, 25, snap.MaxCallsPerCycle)
	assert.Equal(t, "Sin contacto", snap.ClosureReason("no_answer"))
	assert.Equal(t, "Ilocalizable", snap.ClosureReason("busy"), "unconfigured reasons keep defaults")
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		KeyMaxAttempts:      "-1",
		KeyRescheduleHours:  "soon",
		KeyWorkingTimeSlots: `[{"start":"25:00","end":"26:00"}]`,
		KeyWorkingDays:      `[0, 9]`,
		KeyClosureReasons:   `{broken`,
		KeyDaemonEnabled:    "maybe",
	})
	snap := Load(context.Background(), store, quiet)
	def := Defaults()

	assert.Equal(t, def.MaxAttempts, snap.MaxAttempts)
	assert.Equal(t, def.RescheduleHours, snap.RescheduleHours)
	assert.Equal(t, def.Slots, snap.Slots)
	assert.Equal(t, def.WorkingDays, snap.WorkingDays)
	assert.Equal(t, def.ClosureReasons, snap.ClosureReasons)
	assert.True(t, snap.DaemonEnabled)
}

func TestLoad_LegacyWorkingHours(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		KeyWorkingHoursStart: "09:00",
		KeyWorkingHoursEnd:   "17:30",
	})
	snap := Load(context.Background(), store, quiet)
	assert.Equal(t, "09:00-17:30", snap.Calendar(time.UTC).Describe())

	// Slots win over legacy keys when both exist.
	store = NewMemoryStore(map[string]string{
		KeyWorkingTimeSlots:  `[{"start":"11:00","end":"12:00"}]`,
		KeyWorkingHoursStart: "09:00",
		KeyWorkingHoursEnd:   "17:30",
	})
	snap = Load(context.Background(), store, quiet)
	assert.Equal(t, "11:00-12:00", snap.Calendar(time.UTC).Describe())
}

func TestLoad_StoreErrorUsesDefaults(t *testing.T) {
	store := NewMemoryStore(map[string]string{KeyMaxAttempts: "3"})
	store.Err = errors.New("connection reset")

	snap := Load(context.Background(), store, quiet)
	assert.Equal(t, Defaults().MaxAttempts, snap.MaxAttempts)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(KeyMaxAttempts, "6"))
	require.NoError(t, Validate(KeyWorkingTimeSlots, `[{"start":"10:00","end":"20:00"}]`))
	require.NoError(t, Validate(KeyDaemonEnabled, "true"))
	require.NoError(t, Validate(KeyWorkingHoursStart, "09:30"))

	assert.ErrorIs(t, Validate("colour", "blue"), ErrUnknownKey)
	assert.ErrorIs(t, Validate(KeyMaxAttempts, "0"), ErrInvalidValue)
	assert.ErrorIs(t, Validate(KeyWorkingDays, "[]"), ErrInvalidValue)
	assert.ErrorIs(t, Validate(KeyClosureReasons, "{}"), ErrInvalidValue)
}
