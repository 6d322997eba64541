package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbound-campaigns/internal/leads"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
	// fail rejects messages whose subject contains any of these names
	fail []string
}

func (c *captureSender) Send(ctx context.Context, m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.fail {
		if strings.Contains(m.Subject, name) {
			return errors.New("mailbox full")
		}
	}
	c.sent = append(c.sent, m)
	return nil
}

func TestNotifier_Run(t *testing.T) {
	repo := leads.NewMemoryRepo()
	cita := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	yes := true
	ana := repo.Put(leads.Lead{Nombre: "Ana", Apellidos: "Ruiz", Phone: "600112233", Clinic: "Centro",
		StatusLevel1: leads.LevelAppointment, StatusLevel2: "Con Pack", Cita: &cita, HoraCita: "10:30:00", ConPack: &yes})
	luis := repo.Put(leads.Lead{Nombre: "Luis", Phone: "600445566", StatusLevel1: leads.LevelAppointment})
	repo.Put(leads.Lead{Nombre: "Eva", Phone: "600778899", StatusLevel1: leads.LevelCallBack})

	sender := &captureSender{fail: []string{"Luis"}}
	n := NewNotifier(repo, sender, []string{"citas@example.com"})
	stamp := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	n.clock = func() time.Time { return stamp }

	sent, err := n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	assert.Equal(t, []string{"citas@example.com"}, m.To)
	assert.Equal(t, "Nueva cita agendada: Ana Ruiz (25/10/2025)", m.Subject)
	assert.Contains(t, m.Text, "Cita: 25/10/2025 10:30")
	assert.Contains(t, m.Text, "Con pack: sí")
	assert.Contains(t, m.HTML, "<td>Centro</td>")

	got, err := repo.Get(context.Background(), ana.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AppointmentNotifiedAt)
	assert.True(t, got.AppointmentNotifiedAt.Equal(stamp))

	got, err = repo.Get(context.Background(), luis.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AppointmentNotifiedAt, "failed sends are retried next run")

	// second run only retries the failed one
	sender.fail = nil
	sent, err = n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, sender.sent, 2)
}

func TestNotifier_NoRecipients(t *testing.T) {
	repo := leads.NewMemoryRepo()
	repo.Put(leads.Lead{Phone: "600112233", StatusLevel1: leads.LevelAppointment})
	sender := &captureSender{}

	sent, err := NewNotifier(repo, sender, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.sent)
}

func TestSendGridSender(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		payloads = append(payloads, body)
		n := len(payloads)
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"message":"bad address"}]}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("sg-key", "campaign@example.com", "Campaña")
	s.client.BaseURL = srv.URL + "/v3/mail/send"

	err := s.Send(context.Background(), Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Nueva cita",
		Text:    "hola",
		HTML:    "<p>hola</p>",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b@example.com")
	assert.Contains(t, err.Error(), "400")
	require.Len(t, payloads, 2)
	assert.Equal(t, "Nueva cita", payloads[0]["subject"])

	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrNoRecipients)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: []string{"x@example.com"}, Subject: "s"}))
}
