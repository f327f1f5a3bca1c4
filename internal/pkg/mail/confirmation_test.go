package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
)

type recordingMailer struct {
	sent []Message
}

func (r *recordingMailer) Send(ctx context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

type mapLoader map[uint]models.Appointment

func (m mapLoader) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	a, ok := m[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

type captureDispatcher struct {
	payloads []interface{}
}

func (c *captureDispatcher) Dispatch(ctx context.Context, jobType jobqueue.JobType, payload interface{}) {
	c.payloads = append(c.payloads, payload)
}

func TestConfirmations_SendRendersInLeadTimezone(t *testing.T) {
	loader := mapLoader{1: {
		ID:        1,
		StartTime: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
		Lead:      &models.User{Name: "Ana <b>", Email: "ana@example.com", Timezone: "Europe/Madrid"},
		Closer:    &models.User{Name: "Carl"},
	}}
	m := &recordingMailer{}
	c := NewConfirmations(m, loader, &captureDispatcher{}, nil)

	require.NoError(t, c.Send(context.Background(), 1))
	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Contains(t, msg.HTML, "16:00")
	assert.Contains(t, msg.HTML, "Europe/Madrid")
	assert.Contains(t, msg.HTML, "with Carl")
	assert.Contains(t, msg.HTML, "Ana &lt;b&gt;")
	assert.Contains(t, msg.Subject, "16:00")
}

func TestConfirmations_SkipsWithoutRecipient(t *testing.T) {
	loader := mapLoader{1: {ID: 1, Lead: &models.User{Name: "No Mail"}}}
	m := &recordingMailer{}
	c := NewConfirmations(m, loader, &captureDispatcher{}, time.UTC)

	assert.NoError(t, c.Send(context.Background(), 1))
	assert.NoError(t, c.Send(context.Background(), 42))
	assert.Empty(t, m.sent)
}

func TestConfirmAppointment_Dispatch(t *testing.T) {
	disp := &captureDispatcher{}
	NewConfirmations(&recordingMailer{}, mapLoader{}, disp, nil).ConfirmAppointment(7)
	require.Len(t, disp.payloads, 1)
	assert.Equal(t, jobqueue.ConfirmationEmailPayload{AppointmentID: 7}, disp.payloads[0])

	disabled := &captureDispatcher{}
	NewConfirmations(nil, mapLoader{}, disabled, nil).ConfirmAppointment(7)
	assert.Empty(t, disabled.payloads)

	var none *Confirmations
	assert.NotPanics(t, func() { none.ConfirmAppointment(7) })
}

func TestNewResendMailer_RequiresKeyAndSender(t *testing.T) {
	assert.Nil(t, NewResendMailer("", "a@b.c", "x"))
	assert.Nil(t, NewResendMailer("re_key", "", "x"))
	assert.NotNil(t, NewResendMailer("re_key", "a@b.c", "x"))
}
