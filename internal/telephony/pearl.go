package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aponysus/recourse/classify"
	integration "github.com/aponysus/recourse/integrations/http"
	"github.com/aponysus/recourse/policy"
	"github.com/aponysus/recourse/retry"

	"outbound-campaigns/internal/config"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/metrics"
)

const (
	pearlGetPolicy = "pearl.get"

	// searchPageLimit is the provider's maximum page size.
	searchPageLimit = 100

	// afternoonFrom switches the greeting sent to the voice bot.
	afternoonFrom = 14
)

// PearlClient talks to the NLPearl REST API.
//
// GET requests are retried on transport errors, 429 and 5xx. POST requests
// are sent once: a retried PlaceCall could dial the lead twice.
type PearlClient struct {
	baseURL    string
	outboundID string
	auth       string

	client  *http.Client
	exec    *retry.Executor
	loc     *time.Location
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPearlClient(cfg config.PearlConfig, loc *time.Location, m *metrics.Metrics) *PearlClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = config.DefaultPearlBaseURL
	}
	if loc == nil {
		loc = time.Local
	}
	exec := retry.NewDefaultExecutor(
		retry.WithPolicy(pearlGetPolicy,
			policy.MaxAttempts(3),
			policy.InitialBackoff(500*time.Millisecond),
			policy.MaxBackoff(5*time.Second),
			policy.Classifier(classify.ClassifierHTTP),
		),
	)
	return &PearlClient{
		baseURL:    base,
		outboundID: cfg.OutboundID,
		auth:       "Bearer " + cfg.AccountID + ":" + cfg.Secret,
		client:     &http.Client{Timeout: timeout},
		exec:       exec,
		loc:        loc,
		metrics:    m,
		now:        time.Now,
	}
}

func (c *PearlClient) Name() string { return "nlpearl" }

type placeCallBody struct {
	To       string            `json:"to"`
	CallData map[string]string `json:"callData"`
}

func (c *PearlClient) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	if req.Phone == "" || req.LeadID <= 0 {
		return "", ErrInvalidPhone
	}
	body := placeCallBody{To: req.Phone, CallData: c.callData(req)}

	var out struct {
		ID flexString `json:"id"`
	}
	err := c.post(ctx, "/Outbound/"+url.PathEscape(c.outboundID)+"/Call", body, &out)
	c.metrics.RecordProviderRequest("place_call", err)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: response without call id", ErrRejected)
	}
	logger.From(ctx).Info("provider call placed", "lead_id", req.LeadID, "call_id", string(out.ID))
	return string(out.ID), nil
}

func (c *PearlClient) callData(req CallRequest) map[string]string {
	greeting := "Buenos días"
	if c.now().In(c.loc).Hour() >= afternoonFrom {
		greeting = "Buenas tardes"
	}
	data := map[string]string{
		"firstName":     req.FirstName,
		"lastName":      req.LastName,
		"nombreClinica": req.Clinic,
		"orden":         strconv.FormatInt(req.LeadID, 10),
		"dias_tardes":   greeting,
	}
	for k, v := range req.Extra {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

func (c *PearlClient) GetCall(ctx context.Context, id string) (CallDetails, error) {
	if strings.TrimSpace(id) == "" {
		return CallDetails{}, ErrNotFound
	}
	var raw pearlCall
	body, err := c.get(ctx, "/Call/"+url.PathEscape(id), &raw)
	c.metrics.RecordProviderRequest("get_call", err)
	if err != nil {
		return CallDetails{}, err
	}
	d := raw.details()
	d.Raw = string(body)
	return d, nil
}

type searchBody struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
	Skip     int    `json:"skip"`
	Limit    int    `json:"limit"`
}

func (c *PearlClient) SearchCalls(ctx context.Context, q SearchQuery) (SearchPage, error) {
	if q.Limit <= 0 || q.Limit > searchPageLimit {
		q.Limit = searchPageLimit
	}
	body := searchBody{
		FromDate: q.From.UTC().Format(time.RFC3339),
		ToDate:   q.To.UTC().Format(time.RFC3339),
		Skip:     q.Skip,
		Limit:    q.Limit,
	}
	var out struct {
		Count   int         `json:"count"`
		Results []pearlCall `json:"results"`
	}
	err := c.post(ctx, "/Outbound/"+url.PathEscape(c.outboundID)+"/Calls", body, &out)
	c.metrics.RecordProviderRequest("search_calls", err)
	if err != nil {
		return SearchPage{}, err
	}
	page := SearchPage{Count: out.Count, Results: make([]CallDetails, 0, len(out.Results))}
	for _, r := range out.Results {
		page.Results = append(page.Results, r.details())
	}
	return page, nil
}

func (c *PearlClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.headers(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *PearlClient) get(ctx context.Context, path string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.headers(req)

	resp, tl, err := integration.DoHTTP(ctx, c.exec, policy.ParseKey(pearlGetPolicy), c.client, req)
	if len(tl.Attempts) > 1 {
		logger.From(ctx).Warn("provider request retried", "path", path, "attempts", len(tl.Attempts))
	}
	if err != nil {
		var se *integration.StatusError
		if errors.As(err, &se) && se.Code != 0 {
			return nil, statusError(se.Code, nil)
		}
		return nil, fmt.Errorf("telephony: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return body, json.Unmarshal(body, out)
}

func (c *PearlClient) headers(req *http.Request) {
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// HTTPError is a non-2xx provider answer.
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return "telephony: provider returned " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("telephony: provider returned %d: %s", e.Code, e.Body)
}

// Unwrap maps well-known codes onto package errors.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests:
		return ErrRejected
	default:
		return nil
	}
}

// Temporary reports whether trying again later may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &HTTPError{Code: code, Body: msg}
}

// pearlCall is the provider JSON for one call.
type pearlCall struct {
	ID                 flexString            `json:"id"`
	From               string                `json:"from"`
	To                 string                `json:"to"`
	StartTime          string                `json:"startTime"`
	Duration           float64               `json:"duration"`
	Status             int                   `json:"status"`
	ConversationStatus int                   `json:"conversationStatus"`
	Summary            json.RawMessage       `json:"summary"`
	Recording          string                `json:"recording"`
	RecordingURL       string                `json:"recordingUrl"`
	Error              string                `json:"error"`
	CollectedInfo      []outcome.InfoItem    `json:"collectedInfo"`
	CallData           map[string]flexString `json:"callData"`
}

func (p pearlCall) details() CallDetails {
	d := CallDetails{
		ID:                 string(p.ID),
		From:               p.From,
		To:                 p.To,
		DurationSeconds:    int(p.Duration),
		StatusCode:         p.Status,
		ConversationStatus: p.ConversationStatus,
		Summary:            summaryText(p.Summary),
		RecordingURL:       p.RecordingURL,
		ErrorMessage:       p.Error,
		CollectedInfo:      p.CollectedInfo,
	}
	if d.RecordingURL == "" {
		d.RecordingURL = p.Recording
	}
	if t, ok := parseProviderTime(p.StartTime); ok {
		d.StartTime = &t
	}
	if id, ok := p.CallData["orden"].Int64(); ok {
		d.LeadID = id
	}
	return d
}

// summaryText accepts either a plain string or {"text": "..."}.
func summaryText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Text)
	}
	return ""
}

var providerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseProviderTime reads provider timestamps; values without a zone are UTC.
func parseProviderTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range providerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
