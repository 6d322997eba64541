package outcome

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"outbound-campaigns/internal/calendar"
)

// Collected-info ids sent by the voice bot.
const (
	InfoDesiredDate  = "fechaDeseada"
	InfoDesiredTime  = "horaDeseada"
	InfoConPack      = "conPack"
	InfoCallResult   = "callResult"
	InfoPreferenceMT = "preferenciaMT"
)

var ErrMalformedAppointment = errors.New("outcome: malformed appointment")

// InfoItem is one {id, value} pair from the provider's collectedInfo array.
// Value may be a string, bool or number.
type InfoItem struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// Appointment is a booked visit. Date is a calendar date at 00:00 UTC.
type Appointment struct {
	Date    time.Time
	Time    *calendar.TimeOfDay
	ConPack *bool
}

// DateString renders Date as YYYY-MM-DD.
func (a Appointment) DateString() string { return a.Date.Format(time.DateOnly) }

// CollectedInfo is the typed view of the payload.
type CollectedInfo struct {
	HasDate       bool
	RawDate       string
	RawTime       string
	ConPack       *bool
	CallResult    string
	PreferenceMT  string
	NotInterested bool
}

var notInterestedMarkers = []string{
	"no interesado", "no interesada", "no le interesa", "no está interesad", "no esta interesad",
	"not interested", "no quiere", "rechaza",
}

// ParseCollectedInfo extracts known ids and scans string values for refusal markers.
// Ids are matched case-insensitively.
func ParseCollectedInfo(items []InfoItem) CollectedInfo {
	var out CollectedInfo
	for _, it := range items {
		s := valueString(it.Value)
		switch strings.ToLower(strings.TrimSpace(it.ID)) {
		case strings.ToLower(InfoDesiredDate):
			if strings.TrimSpace(s) != "" {
				out.HasDate = true
				out.RawDate = strings.TrimSpace(s)
			}
		case strings.ToLower(InfoDesiredTime):
			out.RawTime = strings.TrimSpace(s)
		case strings.ToLower(InfoConPack):
			if b, ok := parseBool(it.Value); ok {
				out.ConPack = &b
			}
		case strings.ToLower(InfoCallResult):
			out.CallResult = strings.TrimSpace(s)
		case strings.ToLower(InfoPreferenceMT):
			out.PreferenceMT = strings.TrimSpace(s)
		}
		if hasNotInterestedMarker(s) {
			out.NotInterested = true
		}
	}
	return out
}

// Appointment converts the raw date/time into an Appointment.
// A bad date fails the whole appointment; a bad time is dropped.
func (c CollectedInfo) Appointment() (*Appointment, error) {
	if !c.HasDate {
		return nil, nil
	}
	d, err := ParseDate(c.RawDate)
	if err != nil {
		return nil, err
	}
	a := &Appointment{Date: d, ConPack: c.ConPack}
	if c.RawTime != "" {
		if tod, err := calendar.ParseTimeOfDay(c.RawTime); err == nil {
			a.Time = &tod
		}
	}
	return a, nil
}

var dateLayouts = []string{"02-01-2006", "02/01/2006", "2006-01-02"}

// ParseDate accepts DD-MM-YYYY (the bot's format), DD/MM/YYYY and YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrMalformedAppointment, s)
}

func hasNotInterestedMarker(s string) bool {
	if s == "" {
		return false
	}
	l := strings.ToLower(s)
	for _, m := range notInterestedMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func parseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "si", "sí", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}
