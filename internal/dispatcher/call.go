package dispatcher

import (
	"context"
	"errors"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/telephony"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/utils"
)

// ErrBusy is returned by CallNow when every in-flight slot is taken.
var ErrBusy = errors.New("dispatcher: all call slots busy")

// CallNow dials a lead outside the schedule. Manually managed leads are
// allowed; closed leads are refused with scheduler.ErrLeadClosed. The call
// runs in the background and is applied like any other.
func (d *Daemon) CallNow(ctx context.Context, leadID int64) (leads.Lead, error) {
	ok, err := d.acquire(ctx)
	if err != nil {
		return leads.Lead{}, err
	}
	if !ok {
		return leads.Lead{}, ErrBusy
	}
	lead, err := d.sched.BeginCall(ctx, leadID, true)
	if err != nil {
		d.release(ctx)
		return leads.Lead{}, err
	}
	d.metrics.RecordDispatch("manual")
	d.launch(ctx, lead)
	return lead, nil
}

// dispatch hands one lead to the dialer. rowID is the schedule row being
// consumed, zero for selected leads. It returns false when no slot is free.
func (d *Daemon) dispatch(ctx context.Context, lead leads.Lead, rowID int64, source string) (bool, error) {
	log := logger.From(ctx).With("lead_id", lead.ID, "source", source)

	ok, err := d.acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Info("call slots exhausted", "max_inflight", d.maxInflight)
		return false, nil
	}

	var started leads.Lead
	if rowID > 0 {
		started, err = d.sched.BeginScheduledCall(ctx, rowID, lead.ID)
	} else {
		started, err = d.sched.BeginCall(ctx, lead.ID, false)
	}
	if err != nil {
		d.release(ctx)
		switch {
		case errors.Is(err, scheduler.ErrNotFound):
			log.Info("schedule row already consumed", "schedule_id", rowID)
			return true, nil
		case errors.Is(err, scheduler.ErrLeadClosed),
			errors.Is(err, scheduler.ErrManualLead),
			errors.Is(err, scheduler.ErrLeadNotFound):
			log.Info("lead skipped", "reason", err.Error())
			return true, nil
		}
		return false, err
	}

	d.metrics.RecordDispatch(source)
	d.launch(ctx, started)
	return true, nil
}

// launch runs the dial and the scheduler update in the background. The
// caller holds one in-flight slot, which launch releases.
func (d *Daemon) launch(ctx context.Context, lead leads.Lead) {
	d.calls.Add(1)
	d.inflight(1)

	base := context.WithoutCancel(ctx)
	go func() {
		defer d.calls.Done()
		defer d.inflight(-1)
		defer d.release(base)

		log := logger.From(base).With("lead_id", lead.ID)
		callCtx, cancel := context.WithTimeout(logger.With(base, log), d.callTimeout)
		defer cancel()

		det, err := d.dialer.Dial(callCtx, lead)
		in := d.input(callCtx, lead, det, err)
		res, err := d.sched.Apply(logger.With(base, log), in)
		if err != nil {
			log.Error("call result not applied", "err", err, "call_id", in.Call.ID)
			return
		}
		log.Info("call applied",
			"call_id", in.Call.ID,
			"outcome", res.Outcome,
			"action", string(res.Action),
			"call_attempts_count", res.Attempts,
		)
	}()
}

// input turns a dial into the scheduler input.
func (d *Daemon) input(ctx context.Context, lead leads.Lead, det telephony.CallDetails, err error) scheduler.Input {
	log := logger.From(ctx)
	in := scheduler.Input{LeadID: lead.ID}

	switch {
	case err == nil:
		in.Classification = outcome.Classify(ctx, det.Result())
		rec := det.Record(lead.ID, in.Classification.Outcome)
		in.Call = &rec

	case errors.Is(err, telephony.ErrInvalidPhone):
		log.Warn("lead phone cannot be dialed", "phone", lead.Phone)
		in.Classification = outcome.Classification{Outcome: outcome.InvalidPhone}
		in.Call = d.dispatchRecord(lead, outcome.InvalidPhone)

	case det.ID != "":
		// accepted by the provider but not finished in time
		log.Warn("call did not finish", "call_id", det.ID, "err", err)
		in.Classification = outcome.Classification{Outcome: outcome.Error}
		in.Transient = true
		rec := det.Record(lead.ID, outcome.Error)
		in.Call = &rec

	default:
		log.Error("call not placed", "err", err)
		in.Classification = outcome.Classification{Outcome: outcome.Error}
		in.Transient = true
		in.Call = d.dispatchRecord(lead, outcome.Error)
	}
	return in
}

func (d *Daemon) dispatchRecord(lead leads.Lead, o outcome.Outcome) *calls.Record {
	now := d.now()
	return &calls.Record{
		ID:        calls.DispatchIDPrefix + d.newCall(),
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		StartTime: &now,
		Outcome:   string(o),
	}
}

func (d *Daemon) slotTTL() time.Duration { return d.callTimeout + time.Minute }

func (d *Daemon) acquire(ctx context.Context) (bool, error) {
	if d.rdb != nil {
		return utils.AcquireConcurrencyCap(ctx, d.rdb, inflightKey, d.maxInflight, d.slotTTL())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.local >= d.maxInflight {
		return false, nil
	}
	d.local++
	return true, nil
}

func (d *Daemon) release(ctx context.Context) {
	if d.rdb != nil {
		if err := utils.ReleaseConcurrencyCap(ctx, d.rdb, inflightKey); err != nil {
			logger.From(ctx).Warn("call slot release failed", "err", err)
		}
		return
	}
	d.mu.Lock()
	if d.local > 0 {
		d.local--
	}
	d.mu.Unlock()
}

func (d *Daemon) inflight(delta int) {
	d.mu.Lock()
	d.status.Inflight += delta
	if delta > 0 {
		d.status.Dispatched += delta
	}
	d.mu.Unlock()
	d.metrics.AddInflight(float64(delta))
}
