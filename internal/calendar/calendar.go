package calendar

import (
	"strings"
	"time"
)

// Horizon bounds how far NextWorking scans forward.
const Horizon = 14

// Calendar answers working-time questions for one timezone.
// It is immutable and safe for concurrent use.
type Calendar struct {
	slots []Slot
	days  [8]bool
	loc   *time.Location
}

// New builds a calendar. Empty slots or days fall back to the defaults;
// out-of-range weekdays are ignored. A nil loc means UTC.
func New(slots []Slot, days []int, loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if ValidateSlots(slots) != nil {
		slots = DefaultSlots()
	}
	c := Calendar{slots: sortSlots(slots), loc: loc}

	found := false
	for _, d := range days {
		if d >= 1 && d <= 7 {
			c.days[d] = true
			found = true
		}
	}
	if !found {
		for _, d := range DefaultDays() {
			c.days[d] = true
		}
	}
	return c
}

func (c Calendar) Location() *time.Location { return c.loc }

// Slots returns the working slots in start order.
func (c Calendar) Slots() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// IsWorkingDay reports whether t's weekday (in the calendar zone) is allowed.
func (c Calendar) IsWorkingDay(t time.Time) bool {
	return c.days[isoWeekday(t.In(c.loc))]
}

// IsWorking reports whether t falls on a working day inside some slot.
func (c Calendar) IsWorking(t time.Time) bool {
	_, ok := c.CurrentSlot(t)
	return ok
}

// CurrentSlot returns the slot containing t, if any.
func (c Calendar) CurrentSlot(t time.Time) (Slot, bool) {
	lt := t.In(c.loc)
	if !c.days[isoWeekday(lt)] {
		return Slot{}, false
	}
	tod := Of(lt)
	for _, s := range c.slots {
		if s.Contains(tod) {
			return s, true
		}
	}
	return Slot{}, false
}

// NextWorking returns t when it is already admissible, otherwise the earliest
// slot start after t on an allowed weekday. If nothing is found within
// Horizon days t is returned unchanged.
func (c Calendar) NextWorking(t time.Time) time.Time {
	next, _ := c.NextWorkingOK(t)
	return next
}

// NextWorkingOK is NextWorking with an explicit found flag.
func (c Calendar) NextWorkingOK(t time.Time) (time.Time, bool) {
	if c.IsWorking(t) {
		return t, true
	}
	lt := t.In(c.loc)
	for d := 0; d <= Horizon; d++ {
		day := lt.AddDate(0, 0, d)
		if !c.days[isoWeekday(day)] {
			continue
		}
		for _, s := range c.slots {
			candidate := s.Start.On(day, c.loc)
			if candidate.Before(t) {
				continue
			}
			return candidate, true
		}
	}
	return t, false
}

// Describe renders the slots for status logs, e.g. "12:00-14:00, 18:00-21:00".
func (c Calendar) Describe() string {
	parts := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ", ")
}

// Days returns the allowed ISO weekdays in order.
func (c Calendar) Days() []int {
	var out []int
	for d := 1; d <= 7; d++ {
		if c.days[d] {
			out = append(out, d)
		}
	}
	return out
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
