package intake

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

type LeadDetail struct {
	Lead    *models.User          `json:"lead"`
	Answers []models.SurveyAnswer `json:"answers"`
}

// LeadUpdate changes a lead from the back office. Nil fields are left alone.
type LeadUpdate struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=150"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
	Country  *string `json:"country" validate:"omitempty,max=80"`
	Timezone *string `json:"timezone" validate:"omitempty,max=64"`
	Notes    *string `json:"notes"`
	CloserID *uint   `json:"closer_id"`
	EventID  *uint   `json:"event_id"`
}

func (s *Service) ListLeads(ctx context.Context, f LeadFilter) ([]models.User, int64, error) {
	return s.repo.ListLeads(ctx, f)
}

func (s *Service) GetLead(ctx context.Context, id uint) (*LeadDetail, error) {
	lead, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return nil, leadNotFound(err)
	}
	answers, err := s.repo.ListAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LeadDetail{Lead: lead, Answers: answers}, nil
}

func (s *Service) UpdateLead(ctx context.Context, id uint, in LeadUpdate) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var lead *models.User
	var profile *models.LeadProfile
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		lead, err = tx.GetLead(ctx, id)
		if err != nil {
			return leadNotFound(err)
		}
		if in.Name != nil {
			lead.Name = strings.TrimSpace(*in.Name)
		}
		if in.Timezone != nil {
			tz := strings.TrimSpace(*in.Timezone)
			if tz != "" && !validTimezone(tz) {
				return ErrInvalidTimezone
			}
			lead.Timezone = tz
		}
		if err := tx.SaveUser(ctx, lead); err != nil {
			return err
		}

		profile, err = tx.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &models.LeadProfile{UserID: id, Status: models.LEAD_STATUS_NEW}
		}
		if in.Phone != nil {
			profile.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Country != nil {
			profile.Country = strings.TrimSpace(*in.Country)
		}
		if in.Notes != nil {
			profile.Notes = *in.Notes
		}
		if in.CloserID != nil {
			if *in.CloserID == 0 {
				profile.CloserID = nil
			} else {
				profile.CloserID = in.CloserID
			}
		}
		if in.EventID != nil {
			if *in.EventID == 0 {
				profile.EventID = nil
			} else {
				profile.EventID = in.EventID
			}
		}
		if err := tx.SaveProfile(ctx, profile); err != nil {
			return err
		}
		lead.LeadProfile = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventLeadUpdated, LeadPayload(lead, profile))
	return lead, nil
}

// DeleteLead soft-deletes the lead account; its history stays for reporting.
func (s *Service) DeleteLead(ctx context.Context, id uint) error {
	lead, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return leadNotFound(err)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, EventLeadDeleted, LeadPayload(lead, lead.LeadProfile))
	return nil
}

// RecomputeStatus re-derives the funnel status on demand.
func (s *Service) RecomputeStatus(ctx context.Context, id uint) (string, error) {
	if _, err := s.repo.GetLead(ctx, id); err != nil {
		return "", leadNotFound(err)
	}
	var status string
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		status, err = funnel.Recompute(ctx, tx, id, s.now())
		return err
	})
	return status, err
}

func leadNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLeadNotFound
	}
	return err
}

// ImportLead upserts a lead from a spreadsheet row. Survey answers and bookings are not
// part of imports; closerID is assigned only when the lead has no closer yet. A non-nil
// eventID takes precedence over in.Event.
func (s *Service) ImportLead(ctx context.Context, in LeadInput, closerID, eventID *uint) (*Result, error) {
	in.Email = models.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Answers = nil
	in.Booking = nil
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var res Result
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		if eventID == nil {
			event, err := s.resolveEvent(ctx, tx, in.Event)
			if err != nil {
				return err
			}
			if event != nil {
				eventID = &event.ID
			}
		}

		lead, created, err := s.upsertLead(ctx, tx, in)
		if err != nil {
			return err
		}
		profile, err := s.upsertProfile(ctx, tx, lead.ID, in, eventID)
		if err != nil {
			return err
		}
		if closerID != nil && profile.CloserID == nil {
			profile.CloserID = closerID
			if err := tx.SaveProfile(ctx, profile); err != nil {
				return err
			}
		}

		status, err := funnel.Recompute(ctx, tx, lead.ID, s.now())
		if err != nil {
			return err
		}
		profile.Status = status
		res = Result{Lead: lead, Profile: profile, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := EventLeadUpdated
	if res.Created {
		eventType = EventLeadCreated
	}
	s.publish(ctx, eventType, LeadPayload(res.Lead, res.Profile))
	return &res, nil
}
