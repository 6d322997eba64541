package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}

// Service logs admin actions.
//
// IMPORTANT:
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// Recent returns the newest events first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

// LogConfigChange records a scheduler_config write with both values.
func (s *Service) LogConfigChange(ctx context.Context, a Actor, key, oldValue, newValue string) error {
	meta, err := json.Marshal(map[string]string{"old": oldValue, "new": newValue})
	if err != nil {
		return err
	}
	return s.Append(ctx, s.event(a, EventTypeConfigChange, key, "config updated", string(meta)))
}

// LogDispatcher records a dispatcher start or stop.
func (s *Service) LogDispatcher(ctx context.Context, a Actor, action string) error {
	return s.Append(ctx, s.event(a, EventTypeDispatcher, "dispatcher", "dispatcher "+action, ""))
}

// LogLeadFlags records a selection or manual-management change.
func (s *Service) LogLeadFlags(ctx context.Context, a Actor, flag string, value bool, ids []int64, changed int) error {
	meta, err := json.Marshal(map[string]any{"flag": flag, "value": value, "changed": changed})
	if err != nil {
		return err
	}
	return s.Append(ctx, s.event(a, EventTypeLeadFlags, joinIDs(ids), fmt.Sprintf("%s=%t", flag, value), string(meta)))
}

// LogManualCall records a call started from the admin API.
func (s *Service) LogManualCall(ctx context.Context, a Actor, leadID int64) error {
	return s.Append(ctx, s.event(a, EventTypeManualCall, strconv.FormatInt(leadID, 10), "manual call", ""))
}

// LogCallback records a call-back scheduled by hand.
func (s *Service) LogCallback(ctx context.Context, a Actor, leadID int64, at time.Time) error {
	meta, err := json.Marshal(map[string]string{"scheduled_at": at.Format(time.RFC3339)})
	if err != nil {
		return err
	}
	return s.Append(ctx, s.event(a, EventTypeCallback, strconv.FormatInt(leadID, 10), "callback scheduled", string(meta)))
}

func (s *Service) event(a Actor, t EventType, target, msg, meta string) Event {
	return Event{
		Type:        t,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		Target:      target,
		Message:     msg,
		Metadata:    meta,
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
