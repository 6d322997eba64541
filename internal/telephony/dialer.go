package telephony

import (
	"context"
	"errors"
	"time"

	"outbound-campaigns/internal/leads"
	"outbound-campaigns/pkg/logger"
)

// PearlDialer runs one call to completion: place it, then poll the provider
// until the call reaches a terminal status.
type PearlDialer struct {
	provider     Provider
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewPearlDialer(p Provider, pollInterval, maxWait time.Duration) *PearlDialer {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 15 * time.Minute
	}
	return &PearlDialer{provider: p, pollInterval: pollInterval, maxWait: maxWait}
}

// Dial calls the lead's primary phone.
//
// Errors:
// - ErrInvalidPhone when the number cannot be dialed; nothing was sent.
// - Any PlaceCall error; the provider did not accept the call.
// - ErrCallTimeout with the last known details when the call was accepted
//   but did not finish within maxWait.
func (d *PearlDialer) Dial(ctx context.Context, l leads.Lead) (CallDetails, error) {
	log := logger.From(ctx).With("lead_id", l.ID, "provider", d.provider.Name())

	req, err := NewCallRequest(l)
	if err != nil {
		return CallDetails{}, err
	}
	id, err := d.provider.PlaceCall(ctx, req)
	if err != nil {
		return CallDetails{}, err
	}

	last := CallDetails{ID: id, LeadID: l.ID, To: req.Phone}
	deadline := time.NewTimer(d.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			log.Warn("call still running at max wait", "call_id", id, "status_code", last.StatusCode)
			return last, ErrCallTimeout
		case <-ticker.C:
		}

		det, err := d.provider.GetCall(ctx, id)
		if err != nil {
			// the provider can lag behind its own call id
			if !errors.Is(err, ErrNotFound) {
				log.Warn("call status poll failed", "call_id", id, "err", err)
			}
			continue
		}
		if det.LeadID == 0 {
			det.LeadID = l.ID
		}
		if det.To == "" {
			det.To = req.Phone
		}
		last = det
		if det.Finished() {
			log.Info("call finished", "call_id", id, "status_code", det.StatusCode, "duration", det.DurationSeconds)
			return det, nil
		}
	}
}
