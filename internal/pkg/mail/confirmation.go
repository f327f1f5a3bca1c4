package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
)

// AppointmentLoader returns an appointment with Lead and Closer loaded.
type AppointmentLoader interface {
	GetAppointment(ctx context.Context, id uint) (*models.Appointment, error)
}

type gormLoader struct {
	db *gorm.DB
}

func NewAppointmentLoader(db *gorm.DB) AppointmentLoader {
	return &gormLoader{db: db}
}

func (l *gormLoader) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	if err := l.db.WithContext(ctx).Preload("Lead").Preload("Closer").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

type Dispatcher interface {
	Dispatch(ctx context.Context, jobType jobqueue.JobType, payload interface{})
}

// Confirmations mails the lead whenever an appointment is booked or moved.
type Confirmations struct {
	mailer     Mailer
	loader     AppointmentLoader
	dispatcher Dispatcher
	defaultTZ  *time.Location
}

func NewConfirmations(mailer Mailer, loader AppointmentLoader, dispatcher Dispatcher, defaultTZ *time.Location) *Confirmations {
	if defaultTZ == nil {
		defaultTZ = time.UTC
	}
	return &Confirmations{mailer: mailer, loader: loader, dispatcher: dispatcher, defaultTZ: defaultTZ}
}

func (c *Confirmations) RegisterJobs() {
	jobqueue.Register(jobqueue.JobTypeConfirmationEmail, func(ctx context.Context, job *jobqueue.Job) error {
		var p jobqueue.ConfirmationEmailPayload
		if err := jobqueue.DecodePayload(job.Payload, &p); err != nil {
			return fmt.Errorf("decode confirmation payload: %w", err)
		}
		return c.Send(ctx, p.AppointmentID)
	})
}

// ConfirmAppointment queues the confirmation mail. Without a mailer it does nothing.
func (c *Confirmations) ConfirmAppointment(appointmentID uint) {
	if c == nil || c.mailer == nil {
		return
	}
	c.dispatcher.Dispatch(context.Background(), jobqueue.JobTypeConfirmationEmail,
		jobqueue.ConfirmationEmailPayload{AppointmentID: appointmentID})
}

func (c *Confirmations) Send(ctx context.Context, appointmentID uint) error {
	if c.mailer == nil {
		return nil
	}
	a, err := c.loader.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Mail] Appointment %d vanished before confirmation", appointmentID)
			return nil
		}
		return err
	}
	if a.Lead == nil || a.Lead.Email == "" {
		return nil
	}

	msg, err := c.render(a)
	if err != nil {
		return err
	}
	return c.mailer.Send(ctx, msg)
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="margin: 0 0 16px;">Your call is booked</h2>
  <p>Hi <strong>{{.LeadName}}</strong>,</p>
  <p>your call{{if .CloserName}} with {{.CloserName}}{{end}} is scheduled for
  <strong>{{.When}}</strong> ({{.Zone}}).</p>
  <p>If you need to change it, just reply to this email.</p>
</div>`))

type confirmationData struct {
	LeadName   string
	CloserName string
	When       string
	Zone       string
}

func (c *Confirmations) render(a *models.Appointment) (Message, error) {
	loc := c.defaultTZ
	if a.Lead.Timezone != "" {
		if l, err := time.LoadLocation(a.Lead.Timezone); err == nil {
			loc = l
		}
	}
	data := confirmationData{
		LeadName: a.Lead.Name,
		When:     a.StartTime.In(loc).Format("Monday, 02 Jan 2006 15:04"),
		Zone:     loc.String(),
	}
	if a.Closer != nil {
		data.CloserName = a.Closer.Name
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      a.Lead.Email,
		ToName:  a.Lead.Name,
		Subject: "Your call on " + a.StartTime.In(loc).Format("02 Jan 15:04"),
		HTML:    buf.String(),
	}, nil
}
