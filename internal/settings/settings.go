package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"outbound-campaigns/internal/calendar"
)

// Recognized scheduler_config keys.
const (
	KeyMaxAttempts       = "max_attempts"
	KeyRescheduleHours   = "reschedule_hours"
	KeyWorkingTimeSlots  = "working_time_slots"
	KeyWorkingDays       = "working_days"
	KeyClosureReasons    = "closure_reasons"
	KeyDaemonEnabled     = "daemon_enabled"
	KeyIntervalMinutes   = "scheduled_calls_interval_minutes"
	KeyMaxCallsPerCycle  = "max_calls_per_cycle"
	KeyWorkingHoursStart = "working_hours_start"
	KeyWorkingHoursEnd   = "working_hours_end"
)

var (
	ErrUnknownKey   = errors.New("settings: unknown key")
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Store persists raw key/value pairs. Values are strings or JSON documents.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// Snapshot is the typed view of the configuration for one decision or tick.
type Snapshot struct {
	MaxAttempts      int               `json:"max_attempts"`
	RescheduleHours  float64           `json:"reschedule_hours"`
	Slots            []calendar.Slot   `json:"working_time_slots"`
	WorkingDays      []int             `json:"working_days"`
	ClosureReasons   map[string]string `json:"closure_reasons"`
	DaemonEnabled    bool              `json:"daemon_enabled"`
	IntervalMinutes  int               `json:"scheduled_calls_interval_minutes"`
	MaxCallsPerCycle int               `json:"max_calls_per_cycle"`
}

// DefaultClosureReasons maps outcome tags to the reason stored on closure.
func DefaultClosureReasons() map[string]string {
	return map[string]string{
		"invalid_phone": "Teléfono erróneo",
		"error":         "Teléfono erróneo",
		"no_answer":     "Ilocalizable",
		"busy":          "Ilocalizable",
		"hang_up":       "No colabora",
	}
}

func Defaults() Snapshot {
	return Snapshot{
		MaxAttempts:      6,
		RescheduleHours:  30,
		Slots:            calendar.DefaultSlots(),
		WorkingDays:      calendar.DefaultDays(),
		ClosureReasons:   DefaultClosureReasons(),
		DaemonEnabled:    true,
		IntervalMinutes:  5,
		MaxCallsPerCycle: 10,
	}
}

// RescheduleDelay is the base wait added to now before calendar adjustment.
func (s Snapshot) RescheduleDelay() time.Duration {
	return time.Duration(s.RescheduleHours * float64(time.Hour))
}

// Interval is the dispatcher poll period.
func (s Snapshot) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Calendar builds the working-time calendar for loc.
func (s Snapshot) Calendar(loc *time.Location) calendar.Calendar {
	return calendar.New(s.Slots, s.WorkingDays, loc)
}

// ClosureReason returns the configured reason for outcome, falling back to
// the built-in map and finally to the outcome tag itself.
func (s Snapshot) ClosureReason(outcome string) string {
	if r, ok := s.ClosureReasons[outcome]; ok && r != "" {
		return r
	}
	if r, ok := DefaultClosureReasons()[outcome]; ok {
		return r
	}
	return outcome
}

// Load reads every recognized key and returns a Snapshot. It never fails:
// read errors and malformed values are logged and replaced by defaults.
func Load(ctx context.Context, store Store, log *slog.Logger) Snapshot {
	if log == nil {
		log = slog.Default()
	}
	snap := Defaults()
	if store == nil {
		return snap
	}

	get := func(key string) (string, bool) {
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			log.Error("settings read failed, using default", "key", key, "err", err)
			return "", false
		}
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	fallback := func(key, value string, err error) {
		log.Warn("invalid setting, using default", "key", key, "value", value, "err", err)
	}

	if v, ok := get(KeyMaxAttempts); ok {
		if n, err := parsePositiveInt(v); err == nil {
			snap.MaxAttempts = n
		} else {
			fallback(KeyMaxAttempts, v, err)
		}
	}
	if v, ok := get(KeyRescheduleHours); ok {
		if f, err := parsePositiveFloat(v); err == nil {
			snap.RescheduleHours = f
		} else {
			fallback(KeyRescheduleHours, v, err)
		}
	}

	if v, ok := get(KeyWorkingTimeSlots); ok {
		if slots, err := calendar.ParseSlots(v); err == nil {
			snap.Slots = slots
		} else {
			fallback(KeyWorkingTimeSlots, v, err)
		}
	} else {
		start, okStart := get(KeyWorkingHoursStart)
		end, okEnd := get(KeyWorkingHoursEnd)
		if okStart && okEnd {
			if slot, err := calendar.LegacySlot(start, end); err == nil {
				snap.Slots = []calendar.Slot{slot}
			} else {
				fallback(KeyWorkingHoursStart, start+"-"+end, err)
			}
		}
	}

	if v, ok := get(KeyWorkingDays); ok {
		if days, err := calendar.ParseDays(v); err == nil {
			snap.WorkingDays = days
		} else {
			fallback(KeyWorkingDays, v, err)
		}
	}

	if v, ok := get(KeyClosureReasons); ok {
		if m, err := parseReasons(v); err == nil {
			for k, r := range m {
				snap.ClosureReasons[k] = r
			}
		} else {
			fallback(KeyClosureReasons, v, err)
		}
	}

	if v, ok := get(KeyDaemonEnabled); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			snap.DaemonEnabled = b
		} else {
			fallback(KeyDaemonEnabled, v, err)
		}
	}
	if v, ok := get(KeyIntervalMinutes); ok {
		if n, err := parsePositiveInt(v); err == nil {
			snap.IntervalMinutes = n
		} else {
			fallback(KeyIntervalMinutes, v, err)
		}
	}
	if v, ok := get(KeyMaxCallsPerCycle); ok {
		if n, err := parsePositiveInt(v); err == nil {
			snap.MaxCallsPerCycle = n
		} else {
			fallback(KeyMaxCallsPerCycle, v, err)
		}
	}
	return snap
}

// Validate checks a raw value before it is written through the admin API.
func Validate(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case KeyMaxAttempts, KeyIntervalMinutes, KeyMaxCallsPerCycle:
		_, err = parsePositiveInt(value)
	case KeyRescheduleHours:
		_, err = parsePositiveFloat(value)
	case KeyWorkingTimeSlots:
		_, err = calendar.ParseSlots(value)
	case KeyWorkingDays:
		_, err = calendar.ParseDays(value)
	case KeyClosureReasons:
		_, err = parseReasons(value)
	case KeyDaemonEnabled:
		_, err = strconv.ParseBool(value)
	case KeyWorkingHoursStart, KeyWorkingHoursEnd:
		_, err = calendar.ParseTimeOfDay(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return nil
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be > 0, got %d", n)
	}
	return n, nil
}

func parsePositiveFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("must be > 0, got %v", f)
	}
	return f, nil
}

func parseReasons(v string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("closure_reasons must not be empty")
	}
	return m, nil
}
