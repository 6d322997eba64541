package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
type TimeOfDay int

var ErrInvalidTime = errors.New("calendar: invalid time of day")

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		vals[i] = n
	}
	return TimeOfDay(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// Of returns the wall-clock time of t in t's own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

// String renders HH:MM, adding seconds only when they are set.
func (t TimeOfDay) String() string {
	if t.Second() != 0 {
		return t.Clock()
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Clock renders HH:MM:SS.
func (t TimeOfDay) Clock() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// On places t on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// Slot is a daily working window. End is inclusive; End < Start wraps past midnight.
type Slot struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (s Slot) Wraps() bool { return s.End < s.Start }

func (s Slot) Contains(t TimeOfDay) bool {
	if s.Wraps() {
		return t >= s.Start || t <= s.End
	}
	return t >= s.Start && t <= s.End
}

func (s Slot) String() string { return s.Start.String() + "-" + s.End.String() }

type slotJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{Start: s.Start.String(), End: s.End.String()})
}

func (s *Slot) UnmarshalJSON(b []byte) error {
	var raw slotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	start, err := ParseTimeOfDay(raw.Start)
	if err != nil {
		return err
	}
	end, err := ParseTimeOfDay(raw.End)
	if err != nil {
		return err
	}
	*s = Slot{Start: start, End: end}
	return nil
}

// DefaultSlots is the single 10:00-20:00 window used whenever the configured
// slots are missing or invalid.
func DefaultSlots() []Slot {
	return []Slot{{Start: 10 * 3600, End: 20 * 3600}}
}

// DefaultDays is Monday to Friday, ISO numbering.
func DefaultDays() []int { return []int{1, 2, 3, 4, 5} }

// ParseSlots decodes the working_time_slots JSON value and validates it.
func ParseSlots(raw string) ([]Slot, error) {
	var slots []Slot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("working_time_slots: %w", err)
	}
	if err := ValidateSlots(slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// LegacySlot builds one slot from the working_hours_start/end pair.
func LegacySlot(start, end string) (Slot, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Slot{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Slot{}, err
	}
	slot := Slot{Start: s, End: e}
	if err := ValidateSlots([]Slot{slot}); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// ValidateSlots rejects empty lists, zero-length slots and overlapping slots.
// A slot crossing midnight is checked against both ends of the day.
func ValidateSlots(slots []Slot) error {
	if len(slots) == 0 {
		return errors.New("working_time_slots: at least one slot is required")
	}
	var (
		daily   []Slot
		wrapped []Slot
	)
	for _, s := range sortSlots(slots) {
		switch {
		case s.Start == s.End:
			return fmt.Errorf("working_time_slots: slot %s has no duration", s)
		case s.Wraps():
			wrapped = append(wrapped, s)
		default:
			daily = append(daily, s)
		}
	}
	if len(wrapped) > 1 {
		return errors.New("working_time_slots: only one slot may cross midnight")
	}
	for i := 1; i < len(daily); i++ {
		if daily[i-1].End >= daily[i].Start {
			return fmt.Errorf("working_time_slots: slots %s and %s overlap", daily[i-1], daily[i])
		}
	}
	if len(wrapped) == 1 && len(daily) > 0 {
		w, first, last := wrapped[0], daily[0], daily[len(daily)-1]
		if first.Start <= w.End {
			return fmt.Errorf("working_time_slots: slots %s and %s overlap", w, first)
		}
		if last.End >= w.Start {
			return fmt.Errorf("working_time_slots: slots %s and %s overlap", last, w)
		}
	}
	return nil
}

// ParseDays decodes the working_days JSON value (ISO weekdays 1..7).
func ParseDays(raw string) ([]int, error) {
	var days []int
	if err := json.Unmarshal([]byte(raw), &days); err != nil {
		return nil, fmt.Errorf("working_days: %w", err)
	}
	if len(days) == 0 {
		return nil, errors.New("working_days: at least one day is required")
	}
	for _, d := range days {
		if d < 1 || d > 7 {
			return nil, fmt.Errorf("working_days: %d is not an ISO weekday", d)
		}
	}
	return days, nil
}

func sortSlots(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
