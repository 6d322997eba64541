package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func mustSlots(t *testing.T, raw string) []Slot {
	t.Helper()
	s, err := ParseSlots(raw)
	require.NoError(t, err)
	return s
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"10:00":    10 * 3600,
		"9:05":     9*3600 + 5*60,
		"17:00:00": 17 * 3600,
		"23:59:59": 23*3600 + 59*60 + 59,
	}
	for in, want := range cases {
		got, err := ParseTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "24:00", "10", "10:60", "aa:bb", "10:00:00:00", "100:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestSlot_EndIsInclusive(t *testing.T) {
	s := Slot{Start: 12 * 3600, End: 14 * 3600}
	assert.True(t, s.Contains(14*3600), "14:00:00 must be admitted")
	assert.True(t, s.Contains(12*3600))
	assert.False(t, s.Contains(14*3600+1))
	assert.False(t, s.Contains(12*3600-1))
}

func TestSlot_WrapsPastMidnight(t *testing.T) {
	s := Slot{Start: 22 * 3600, End: 6 * 3600}
	require.True(t, s.Wraps())
	assert.True(t, s.Contains(23*3600+30*60))
	assert.True(t, s.Contains(5*3600+30*60))
	assert.False(t, s.Contains(12*3600))
}

func TestParseSlots_RejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[]`,
		`[{"start":"25:00","end":"26:00"}]`,
		`[{"start":"10:00","end":"10:00"}]`,
		`[{"start":"10:00","end":"14:00"},{"start":"13:00","end":"18:00"}]`,
		`[{"start":"22:00","end":"02:00"},{"start":"23:00","end":"01:00"}]`,
		`[{"start":"22:00","end":"06:00"},{"start":"05:00","end":"07:00"}]`,
		`[{"start":"09:00","end":"12:00"},{"start":"22:00","end":"06:00"},{"start":"21:00","end":"22:30"}]`,
		`[{"start":"10:00","end":"14:00"},{"start":"22:00","end":"06:00"},{"start":"13:00","end":"15:00"}]`,
	} {
		_, err := ParseSlots(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseSlots_WrappedBesideDailySlots(t *testing.T) {
	slots, err := ParseSlots(`[{"start":"22:00","end":"06:00"},{"start":"07:00","end":"12:00"},{"start":"18:00","end":"21:00"}]`)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays(`[1,2,3]`)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, days)

	for _, raw := range []string{`[]`, `[0]`, `[8]`, `"mon"`} {
		_, err := ParseDays(raw)
		assert.Error(t, err, raw)
	}
}

func TestLegacySlot(t *testing.T) {
	s, err := LegacySlot("09:00", "18:00")
	require.NoError(t, err)
	assert.Equal(t, "09:00-18:00", s.String())

	_, err = LegacySlot("09:00", "nope")
	assert.Error(t, err)
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	c := New(nil, nil, nil)
	assert.Equal(t, "10:00-20:00", c.Describe())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, c.Days())
	assert.Equal(t, time.UTC, c.Location())

	bad := []Slot{{Start: 10 * 3600, End: 10 * 3600}}
	assert.Equal(t, "10:00-20:00", New(bad, []int{9}, nil).Describe())
}

func TestIsWorking_ChecksWeekdayAndSlot(t *testing.T) {
	loc := madrid(t)
	c := New(mustSlots(t, `[{"start":"12:00","end":"14:00"},{"start":"18:00","end":"21:00"}]`), []int{1, 2, 3, 4, 5}, loc)

	monday := time.Date(2025, 10, 6, 13, 0, 0, 0, loc)
	assert.True(t, c.IsWorking(monday))
	assert.False(t, c.IsWorking(monday.Add(2*time.Hour)), "15:00 sits between slots")
	assert.True(t, c.IsWorking(time.Date(2025, 10, 6, 14, 0, 0, 0, loc)))

	saturday := time.Date(2025, 10, 11, 13, 0, 0, 0, loc)
	assert.False(t, c.IsWorking(saturday))

	slot, ok := c.CurrentSlot(time.Date(2025, 10, 6, 19, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, "18:00-21:00", slot.String())
}

func TestIsWorking_UsesCalendarZone(t *testing.T) {
	loc := madrid(t)
	c := New(DefaultSlots(), DefaultDays(), loc)

	// 08:30 UTC is 10:30 in Madrid during summer time.
	assert.True(t, c.IsWorking(time.Date(2025, 10, 6, 8, 30, 0, 0, time.UTC)))
	// 19:30 UTC is 21:30 in Madrid.
	assert.False(t, c.IsWorking(time.Date(2025, 10, 6, 19, 30, 0, 0, time.UTC)))
}

func TestNextWorking_InsideSlotIsIdentity(t *testing.T) {
	loc := madrid(t)
	c := New(mustSlots(t, `[{"start":"12:00","end":"14:00"},{"start":"18:00","end":"21:00"}]`), DefaultDays(), loc)

	tuesday := time.Date(2025, 10, 7, 19, 0, 0, 0, loc)
	assert.True(t, c.NextWorking(tuesday).Equal(tuesday))
}

func TestNextWorking_NextSlotSameDay(t *testing.T) {
	loc := madrid(t)
	c := New(mustSlots(t, `[{"start":"12:00","end":"14:00"},{"start":"18:00","end":"21:00"}]`), DefaultDays(), loc)

	got := c.NextWorking(time.Date(2025, 10, 7, 15, 10, 0, 0, loc))
	assert.True(t, got.Equal(time.Date(2025, 10, 7, 18, 0, 0, 0, loc)), got.String())
}

func TestNextWorking_SkipsWeekend(t *testing.T) {
	loc := madrid(t)
	c := New(DefaultSlots(), DefaultDays(), loc)

	friday := time.Date(2025, 10, 10, 20, 30, 0, 0, loc)
	got := c.NextWorking(friday.Add(30 * time.Hour))
	assert.True(t, got.Equal(time.Date(2025, 10, 13, 10, 0, 0, 0, loc)), got.String())

	got = c.NextWorking(time.Date(2025, 10, 11, 2, 30, 0, 0, loc))
	assert.True(t, got.Equal(time.Date(2025, 10, 13, 10, 0, 0, 0, loc)), got.String())
}

func TestNextWorking_Idempotent(t *testing.T) {
	loc := madrid(t)
	c := New(mustSlots(t, `[{"start":"09:00","end":"11:00"},{"start":"22:00","end":"06:00"}]`), []int{1, 3, 5}, loc)

	start := time.Date(2025, 10, 6, 0, 0, 0, 0, loc)
	for i := 0; i < 7*24*4; i++ {
		at := start.Add(time.Duration(i) * 15 * time.Minute)
		once := c.NextWorking(at)
		require.True(t, c.IsWorking(once), "next_working(%s)=%s must be admissible", at, once)
		require.False(t, once.Before(at))
		require.True(t, c.NextWorking(once).Equal(once))
	}
}

func TestNextWorkingOK_ReportsFound(t *testing.T) {
	c := New(DefaultSlots(), []int{7}, time.UTC)
	got, ok := c.NextWorkingOK(time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Sunday, got.Weekday())
	assert.Equal(t, 10, got.Hour())
}
