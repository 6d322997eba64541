package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
)

// Provider is the calling-provider boundary used by the dispatcher and the
// call syncer.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic; the raw payload is kept
//   on CallDetails for logging.
type Provider interface {
	Name() string

	// PlaceCall asks the provider to dial req.Phone and returns its call id.
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
	GetCall(ctx context.Context, id string) (CallDetails, error)
	SearchCalls(ctx context.Context, q SearchQuery) (SearchPage, error)
}

var (
	ErrNotFound     = errors.New("telephony: call not found")
	ErrInvalidPhone = errors.New("telephony: invalid phone")
	ErrRejected     = errors.New("telephony: request rejected by provider")
	ErrCallTimeout  = errors.New("telephony: call did not finish in time")
)

// CallRequest is one outbound call. LeadID travels in the call data so that
// searches can map calls back to leads.
type CallRequest struct {
	LeadID    int64
	Phone     string
	FirstName string
	LastName  string
	Clinic    string

	// Extra is merged into the provider call data as-is.
	Extra map[string]string
}

// NewCallRequest builds the request for a lead. The phone is formatted for
// dialing; the lead's secondary number is not used.
func NewCallRequest(l leads.Lead) (CallRequest, error) {
	phone, err := FormatPhone(l.Phone)
	if err != nil {
		return CallRequest{}, err
	}
	return CallRequest{
		LeadID:    l.ID,
		Phone:     phone,
		FirstName: l.Nombre,
		LastName:  l.Apellidos,
		Clinic:    l.Clinic,
	}, nil
}

// FormatPhone returns +34XXXXXXXXX for any accepted Spanish number.
func FormatPhone(raw string) (string, error) {
	p, err := leads.E164(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidPhone, err)
	}
	return p, nil
}

// CallDetails is the provider view of one call.
type CallDetails struct {
	ID                 string
	LeadID             int64
	From               string
	To                 string
	StartTime          *time.Time
	DurationSeconds    int
	StatusCode         int
	ConversationStatus int
	Summary            string
	RecordingURL       string
	ErrorMessage       string
	CollectedInfo      []outcome.InfoItem

	// Raw is the untouched response body.
	Raw string
}

// Finished reports whether the provider is done with the call.
func (d CallDetails) Finished() bool { return outcome.IsTerminalCode(d.StatusCode) }

// Result is the classifier input for the call.
func (d CallDetails) Result() outcome.Result {
	return outcome.Result{
		StatusCode:    d.StatusCode,
		ErrorMessage:  d.ErrorMessage,
		CollectedInfo: d.CollectedInfo,
		Raw:           d.Raw,
	}
}

// Record is the audit row for the call, tagged with the classified outcome.
func (d CallDetails) Record(leadID int64, o outcome.Outcome) calls.Record {
	rec := calls.Record{
		ID:              d.ID,
		LeadID:          leadID,
		Phone:           d.To,
		StartTime:       d.StartTime,
		DurationSeconds: d.DurationSeconds,
		StatusCode:      d.StatusCode,
		Outcome:         string(o),
		Summary:         d.Summary,
		RecordingURL:    d.RecordingURL,
	}
	if n, err := leads.NormalizePhone(d.To); err == nil {
		rec.Phone = n
	}
	if d.StartTime != nil && d.DurationSeconds > 0 {
		end := d.StartTime.Add(time.Duration(d.DurationSeconds) * time.Second)
		rec.EndTime = &end
	}
	return rec
}

// SearchQuery pages through calls started in [From, To].
type SearchQuery struct {
	From  time.Time
	To    time.Time
	Skip  int
	Limit int
}

type SearchPage struct {
	Count   int
	Results []CallDetails
}

// flexString decodes a JSON string or number into its text form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(v))
		return nil
	}
	*f = flexString(s)
	return nil
}

func (f flexString) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
