package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"outbound-campaigns/internal/leads"
	"outbound-campaigns/pkg/logger"
)

// Source lists booked appointments nobody was told about yet.
type Source interface {
	ListAppointmentsToNotify(ctx context.Context, limit int) ([]leads.Lead, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}

// Notifier e-mails the clinic team about every new appointment once.
type Notifier struct {
	source     Source
	sender     Sender
	recipients []string
	batch      int
	clock      func() time.Time
}

func NewNotifier(src Source, s Sender, recipients []string) *Notifier {
	return &Notifier{source: src, sender: s, recipients: recipients, batch: 50, clock: time.Now}
}

// Run sends one pass of notifications and returns how many were stamped.
// A lead whose e-mail fails stays unstamped and is retried on the next run.
func (n *Notifier) Run(ctx context.Context) (int, error) {
	log := logger.From(ctx).With("job", "appointment_notify")
	if len(n.recipients) == 0 {
		return 0, nil
	}
	pending, err := n.source.ListAppointmentsToNotify(ctx, n.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, l := range pending {
		if err := n.sender.Send(ctx, appointmentMessage(l, n.recipients)); err != nil {
			log.Error("appointment e-mail failed", "lead_id", l.ID, "err", err)
			continue
		}
		if err := n.source.MarkNotified(ctx, l.ID, n.clock()); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		log.Info("appointment notifications sent", "count", sent, "pending", len(pending))
	}
	return sent, nil
}

func appointmentMessage(l leads.Lead, to []string) Message {
	date := "sin fecha"
	if l.Cita != nil {
		date = l.Cita.Format("02/01/2006")
	}
	when := date
	if l.HoraCita != "" {
		when += " " + strings.TrimSuffix(l.HoraCita, ":00")
	}
	pack := "no indicado"
	if l.ConPack != nil {
		pack = "no"
		if *l.ConPack {
			pack = "sí"
		}
	}

	fields := [][2]string{
		{"Paciente", l.FullName()},
		{"Teléfono", l.Phone},
		{"Clínica", l.Clinic},
		{"Cita", when},
		{"Con pack", pack},
	}
	if l.StatusLevel2 != "" {
		fields = append(fields, [2]string{"Detalle", l.StatusLevel2})
	}

	var text, rows strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&text, "%s: %s\n", f[0], f[1])
		fmt.Fprintf(&rows, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", html.EscapeString(f[0]), html.EscapeString(f[1]))
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Nueva cita agendada: %s (%s)", l.FullName(), date),
		Text:    text.String(),
		HTML:    "<html><body><h2>Nueva cita agendada</h2><table>" + rows.String() + "</table></body></html>",
	}
}
