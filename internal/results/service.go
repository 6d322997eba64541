package results

import (
	"context"
	"errors"
	"strings"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/pkg/logger"
)

// LeadFinder resolves the lead a notification is about.
type LeadFinder interface {
	FindByPhone(ctx context.Context, phone string) (leads.Lead, error)
}

// Applier commits the interpreted call through the retry scheduler.
type Applier interface {
	Apply(ctx context.Context, in scheduler.Input) (scheduler.Result, error)
}

// Service turns bot notifications into scheduler transitions. It never
// writes lead state itself.
type Service struct {
	leads     LeadFinder
	scheduler Applier
	loc       *time.Location
	clock     func() time.Time
}

func NewService(l LeadFinder, a Applier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{leads: l, scheduler: a, loc: loc, clock: time.Now}
}

func (s *Service) Handle(ctx context.Context, n Notification) (Response, error) {
	raw := strings.TrimSpace(n.Phone)
	if raw == "" {
		return Response{}, ErrPhoneRequired
	}
	phone, err := leads.NormalizePhone(raw)
	if err != nil {
		return Response{}, ErrInvalidPhone
	}
	log := logger.From(ctx).With("phone", phone)

	it, err := Interpret(n, s.loc, s.clock().In(s.loc))
	if err != nil {
		log.Warn("result notification rejected", "err", err)
		return Response{}, err
	}

	lead, err := s.leads.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			log.Warn("result notification for unknown phone")
			return Response{}, ErrLeadNotFound
		}
		return Response{}, err
	}

	in := scheduler.Input{
		LeadID:         lead.ID,
		Classification: it.Classification,
		RetryAt:        it.RetryAt,
		StatusLevel1:   it.StatusLevel1,
		StatusLevel2:   it.StatusLevel2,
	}
	if id := strings.TrimSpace(n.CallID); id != "" {
		in.Call = &calls.Record{ID: id, Phone: phone}
	}

	res, err := s.scheduler.Apply(ctx, in)
	if err != nil {
		return Response{}, err
	}
	log.Info("result notification applied",
		"lead_id", lead.ID,
		"outcome", res.Outcome,
		"action", string(res.Action),
		"status_level_1", it.StatusLevel1,
		"status_level_2", it.StatusLevel2,
	)

	out := Response{
		Success:      true,
		LeadID:       lead.ID,
		Outcome:      res.Outcome,
		Action:       string(res.Action),
		StatusLevel1: it.StatusLevel1,
		StatusLevel2: it.StatusLevel2,
		Attempts:     res.Attempts,
	}
	if res.Schedule != nil {
		at := res.Schedule.ScheduledAt
		out.ScheduledAt = &at
	}
	if res.Action == scheduler.ActionSkip {
		out.Message = "lead not updated"
	}
	return out, nil
}
