package statistics

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/closerdesk/closerdesk/app/models"
)

// PaymentRow is a payment joined with its enrollment, program, closer and method.
type PaymentRow struct {
	PaymentID       uint      `json:"payment_id"`
	Amount          float64   `json:"amount"`
	Status          string    `json:"status"`
	PaymentType     string    `json:"payment_type"`
	PaidAt          time.Time `json:"paid_at"`
	EnrollmentID    uint      `json:"enrollment_id"`
	StudentID       uint      `json:"student_id"`
	ProgramID       uint      `json:"program_id"`
	ProgramName     string    `json:"program_name"`
	CloserID        *uint     `json:"closer_id"`
	CloserName      string    `json:"closer_name"`
	CommissionPct   float64   `json:"commission_pct"`
	CommissionFixed float64   `json:"commission_fixed"`
}

// Balance is an active enrollment with its completed-payment total.
type Balance struct {
	EnrollmentID uint
	TotalAgreed  float64
	Paid         float64
}

type DailyFilter struct {
	CloserID *uint
	From     time.Time
	To       time.Time
}

type Repository interface {
	// ListAppointments returns appointments starting in [from, to).
	ListAppointments(ctx context.Context, from, to time.Time, closerID *uint) ([]models.Appointment, error)
	// CountAppointmentsCreated counts appointments booked (created) in [from, to).
	CountAppointmentsCreated(ctx context.Context, from, to time.Time, closerID *uint) (int64, error)
	// ListPayments returns payments with paid_at in [from, to), any status.
	ListPayments(ctx context.Context, from, to time.Time, closerID *uint) ([]PaymentRow, error)
	CountNewLeads(ctx context.Context, from, to time.Time, closerID *uint) (int64, error)
	LeadStatusCounts(ctx context.Context, closerID *uint) (map[string]int64, error)
	ActiveBalances(ctx context.Context, closerID *uint) ([]Balance, error)
	ListClosers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)

	ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error)
	ListRecurringExpenses(ctx context.Context) ([]models.RecurringExpense, error)

	// GetDailyStats returns nil without error when the closer has no report that day.
	GetDailyStats(ctx context.Context, closerID uint, date time.Time) (*models.CloserDailyStats, error)
	// SaveDailyStats upserts the row and replaces its answers.
	SaveDailyStats(ctx context.Context, s *models.CloserDailyStats) error
	ListDailyStats(ctx context.Context, f DailyFilter) ([]models.CloserDailyStats, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListAppointments(ctx context.Context, from, to time.Time, closerID *uint) ([]models.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC())
	if closerID != nil {
		q = q.Where("closer_id = ?", *closerID)
	}
	var list []models.Appointment
	err := q.Order("start_time ASC").Find(&list).Error
	return list, err
}

func (r *gormRepository) CountAppointmentsCreated(ctx context.Context, from, to time.Time, closerID *uint) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Where("status <> ?", models.APPOINTMENT_RESCHEDULED)
	if closerID != nil {
		q = q.Where("closer_id = ?", *closerID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r *gormRepository) ListPayments(ctx context.Context, from, to time.Time, closerID *uint) ([]PaymentRow, error) {
	q := r.db.WithContext(ctx).Table("payments").
		Select(`payments.id AS payment_id, payments.amount, payments.status, payments.payment_type,
			payments.paid_at, payments.enrollment_id, enrollments.student_id, enrollments.program_id,
			COALESCE(programs.name, '') AS program_name, enrollments.closer_id,
			COALESCE(closers.name, '') AS closer_name,
			COALESCE(payment_methods.commission_pct, 0) AS commission_pct,
			COALESCE(payment_methods.commission_fixed, 0) AS commission_fixed`).
		Joins("JOIN enrollments ON enrollments.id = payments.enrollment_id").
		Joins("LEFT JOIN programs ON programs.id = enrollments.program_id").
		Joins("LEFT JOIN users closers ON closers.id = enrollments.closer_id").
		Joins("LEFT JOIN payment_methods ON payment_methods.id = payments.payment_method_id").
		Where("payments.paid_at >= ? AND payments.paid_at < ?", from.UTC(), to.UTC())
	if closerID != nil {
		q = q.Where("enrollments.closer_id = ?", *closerID)
	}
	var rows []PaymentRow
	err := q.Order("payments.paid_at ASC").Scan(&rows).Error
	return rows, err
}

func (r *gormRepository) CountNewLeads(ctx context.Context, from, to time.Time, closerID *uint) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).
		Where("users.role IN ?", []string{models.ROLE_LEAD, models.ROLE_STUDENT}).
		Where("users.created_at >= ? AND users.created_at < ?", from.UTC(), to.UTC())
	if closerID != nil {
		q = q.Joins("JOIN lead_profiles ON lead_profiles.user_id = users.id").
			Where("lead_profiles.closer_id = ?", *closerID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r *gormRepository) LeadStatusCounts(ctx context.Context, closerID *uint) (map[string]int64, error) {
	q := r.db.WithContext(ctx).Model(&models.LeadProfile{}).
		Select("lead_profiles.status, COUNT(*) AS total").
		Joins("JOIN users ON users.id = lead_profiles.user_id AND users.deleted_at IS NULL")
	if closerID != nil {
		q = q.Where("lead_profiles.closer_id = ?", *closerID)
	}
	var rows []struct {
		Status string
		Total  int64
	}
	if err := q.Group("lead_profiles.status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *gormRepository) ActiveBalances(ctx context.Context, closerID *uint) ([]Balance, error) {
	paid := r.db.Model(&models.Payment{}).
		Select("enrollment_id, SUM(amount) AS paid").
		Where("status = ?", models.PAYMENT_STATUS_COMPLETED).
		Group("enrollment_id")

	q := r.db.WithContext(ctx).Table("enrollments").
		Select("enrollments.id AS enrollment_id, enrollments.total_agreed, COALESCE(p.paid, 0) AS paid").
		Joins("LEFT JOIN (?) AS p ON p.enrollment_id = enrollments.id", paid).
		Where("enrollments.status = ?", models.ENROLLMENT_ACTIVE)
	if closerID != nil {
		q = q.Where("enrollments.closer_id = ?", *closerID)
	}
	var rows []Balance
	err := q.Scan(&rows).Error
	return rows, err
}

func (r *gormRepository) ListClosers(ctx context.Context) ([]models.User, error) {
	var list []models.User
	err := r.db.WithContext(ctx).
		Where("role = ?", models.ROLE_CLOSER).
		Order("name ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	var list []models.Expense
	err := r.db.WithContext(ctx).
		Where("spent_at >= ? AND spent_at < ?", from.UTC(), to.UTC()).
		Order("spent_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) ListRecurringExpenses(ctx context.Context) ([]models.RecurringExpense, error) {
	var list []models.RecurringExpense
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *gormRepository) GetDailyStats(ctx context.Context, closerID uint, date time.Time) (*models.CloserDailyStats, error) {
	var s models.CloserDailyStats
	err := r.db.WithContext(ctx).Preload("Answers").
		Where("closer_id = ? AND date = ?", closerID, datatypes.Date(date)).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) SaveDailyStats(ctx context.Context, s *models.CloserDailyStats) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		answers := s.Answers
		var err error
		if s.ID != 0 {
			err = tx.Omit("Answers").Save(s).Error
		} else {
			err = tx.Omit("Answers").Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "closer_id"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"calls_made", "appointments_booked", "appointments_completed", "no_shows",
					"presentations", "sales_count", "revenue", "notes", "updated_at",
				}),
			}).Create(s).Error
		}
		if err != nil {
			return err
		}
		if s.ID == 0 {
			if err := tx.Where("closer_id = ? AND date = ?", s.CloserID, s.Date).First(s).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("closer_daily_stats_id = ?", s.ID).Delete(&models.DailyReportAnswer{}).Error; err != nil {
			return err
		}
		for i := range answers {
			answers[i].ID = 0
			answers[i].CloserDailyStatsID = s.ID
		}
		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}
		s.Answers = answers
		return nil
	})
}

func (r *gormRepository) ListDailyStats(ctx context.Context, f DailyFilter) ([]models.CloserDailyStats, error) {
	q := r.db.WithContext(ctx).Preload("Answers")
	if f.CloserID != nil {
		q = q.Where("closer_id = ?", *f.CloserID)
	}
	if !f.From.IsZero() {
		q = q.Where("date >= ?", datatypes.Date(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("date < ?", datatypes.Date(f.To))
	}
	var list []models.CloserDailyStats
	err := q.Order("date DESC, closer_id ASC").Limit(500).Find(&list).Error
	return list, err
}
