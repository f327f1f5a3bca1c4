package funnel

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/closerdesk/closerdesk/app/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store over db, which may be a transaction handle.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

type enrollmentTotal struct {
	EnrollmentID uint
	Total        float64
}

// activeDebt sums what active enrollments still owe after completed payments.
// Overpaid enrollments count as zero, not as credit.
func activeDebt(enrollments []models.Enrollment, totals []enrollmentTotal) float64 {
	paid := make(map[uint]float64, len(totals))
	for _, t := range totals {
		paid[t.EnrollmentID] += t.Total
	}
	var debt float64
	for _, e := range enrollments {
		if e.Status != models.ENROLLMENT_ACTIVE {
			continue
		}
		if d := e.TotalAgreed - paid[e.ID]; d > 0 {
			debt += d
		}
	}
	return debt
}

func (s *gormStore) LoadFacts(ctx context.Context, userID uint, now time.Time) (Facts, error) {
	db := s.db.WithContext(ctx)
	var facts Facts

	var enrollments []models.Enrollment
	if err := db.Where("student_id = ? AND status IN ?", userID,
		[]string{models.ENROLLMENT_ACTIVE, models.ENROLLMENT_COMPLETED}).
		Find(&enrollments).Error; err != nil {
		return facts, err
	}
	facts.Enrollments = len(enrollments)

	if len(enrollments) > 0 {
		ids := make([]uint, 0, len(enrollments))
		for _, e := range enrollments {
			ids = append(ids, e.ID)
		}
		var totals []enrollmentTotal
		if err := db.Model(&models.Payment{}).
			Select("enrollment_id, COALESCE(SUM(amount), 0) AS total").
			Where("enrollment_id IN ? AND status = ?", ids, models.PAYMENT_STATUS_COMPLETED).
			Group("enrollment_id").
			Scan(&totals).Error; err != nil {
			return facts, err
		}
		facts.ActiveDebt = activeDebt(enrollments, totals)
	}

	var completed int64
	if err := db.Model(&models.Payment{}).
		Joins("JOIN enrollments ON enrollments.id = payments.enrollment_id").
		Where("enrollments.student_id = ? AND payments.status = ?", userID, models.PAYMENT_STATUS_COMPLETED).
		Count(&completed).Error; err != nil {
		return facts, err
	}
	facts.CompletedPayments = int(completed)

	var upcoming int64
	if err := db.Model(&models.Appointment{}).
		Where("lead_id = ? AND status IN ? AND start_time > ?", userID,
			[]string{models.APPOINTMENT_SCHEDULED, models.APPOINTMENT_CONFIRMED}, now.UTC()).
		Count(&upcoming).Error; err != nil {
		return facts, err
	}
	facts.HasUpcoming = upcoming > 0

	return facts, nil
}

func (s *gormStore) GetLeadStatus(ctx context.Context, userID uint) (string, error) {
	var profile models.LeadProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.LEAD_STATUS_NEW, nil
	}
	if err != nil {
		return "", err
	}
	if profile.Status == "" {
		return models.LEAD_STATUS_NEW, nil
	}
	return profile.Status, nil
}

func (s *gormStore) SetLeadStatus(ctx context.Context, userID uint, status string) error {
	profile := models.LeadProfile{UserID: userID, Status: status}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&profile).Error
}
