package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

// PaymentFilter narrows a payment listing. Zero values are ignored.
type PaymentFilter struct {
	From      time.Time
	To        time.Time
	StudentID uint
	CloserID  uint
	Status    string
	Limit     int
	Offset    int
}

type Repository interface {
	funnel.Store
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	GetUser(ctx context.Context, id uint) (*models.User, error)
	SetUserRole(ctx context.Context, id uint, role string) error
	LeadCloser(ctx context.Context, userID uint) (*uint, error)
	GetProgram(ctx context.Context, id uint) (*models.Program, error)
	DeleteProgram(ctx context.Context, id uint) error
	CountProgramEnrollments(ctx context.Context, programID uint) (int64, error)
	GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error)

	// FindActiveEnrollment returns nil without error when none exists.
	FindActiveEnrollment(ctx context.Context, studentID, programID uint) (*models.Enrollment, error)
	GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, studentID uint) ([]models.Enrollment, error)
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	SaveEnrollment(ctx context.Context, e *models.Enrollment) error
	// DeleteEnrollment removes the enrollment and all of its payments.
	DeleteEnrollment(ctx context.Context, id uint) error

	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	SavePayment(ctx context.Context, p *models.Payment) error
	DeletePayment(ctx context.Context, id uint) error
	CountPayments(ctx context.Context, enrollmentID uint) (int64, error)
	// PaidTotals sums completed payments per enrollment id.
	PaidTotals(ctx context.Context, enrollmentIDs []uint) (map[uint]float64, error)
}

type gormRepository struct {
	funnel.Store
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Store: funnel.NewGormStore(db), db: db}
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetUserRole(ctx context.Context, id uint, role string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role).Error
}

func (r *gormRepository) LeadCloser(ctx context.Context, userID uint) (*uint, error) {
	var profile models.LeadProfile
	err := r.db.WithContext(ctx).Select("closer_id").Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile.CloserID, nil
}

func (r *gormRepository) GetProgram(ctx context.Context, id uint) (*models.Program, error) {
	var p models.Program
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) DeleteProgram(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Program{}, id).Error
}

func (r *gormRepository) CountProgramEnrollments(ctx context.Context, programID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).Where("program_id = ?", programID).Count(&n).Error
	return n, err
}

func (r *gormRepository) GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindActiveEnrollment(ctx context.Context, studentID, programID uint) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND program_id = ? AND status = ?", studentID, programID, models.ENROLLMENT_ACTIVE).
		Order("id ASC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.WithContext(ctx).Preload("Program").First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) ListEnrollments(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var list []models.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Program").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("paid_at ASC") }).
		Where("student_id = ?", studentID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return r.db.WithContext(ctx).Omit("Program", "Payments").Create(e).Error
}

func (r *gormRepository) SaveEnrollment(ctx context.Context, e *models.Enrollment) error {
	return r.db.WithContext(ctx).Omit("Program", "Payments").Save(e).Error
}

func (r *gormRepository) DeleteEnrollment(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("enrollment_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Enrollment{}, id).Error
}

func (r *gormRepository) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Preload("PaymentMethod").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{}).
		Preload("PaymentMethod").
		Joins("JOIN enrollments ON enrollments.id = payments.enrollment_id").
		Order("payments.paid_at DESC")
	if !f.From.IsZero() {
		q = q.Where("payments.paid_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("payments.paid_at < ?", f.To.UTC())
	}
	if f.StudentID != 0 {
		q = q.Where("enrollments.student_id = ?", f.StudentID)
	}
	if f.CloserID != 0 {
		q = q.Where("enrollments.closer_id = ?", f.CloserID)
	}
	if f.Status != "" {
		q = q.Where("payments.status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var list []models.Payment
	err := q.Find(&list).Error
	return list, err
}

func (r *gormRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Omit("PaymentMethod").Create(p).Error
}

func (r *gormRepository) SavePayment(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Omit("PaymentMethod").Save(p).Error
}

func (r *gormRepository) DeletePayment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Payment{}, id).Error
}

func (r *gormRepository) CountPayments(ctx context.Context, enrollmentID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("enrollment_id = ?", enrollmentID).Count(&n).Error
	return n, err
}

func (r *gormRepository) PaidTotals(ctx context.Context, enrollmentIDs []uint) (map[uint]float64, error) {
	out := make(map[uint]float64, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EnrollmentID uint
		Total        float64
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("enrollment_id, COALESCE(SUM(amount), 0) AS total").
		Where("enrollment_id IN ? AND status = ?", enrollmentIDs, models.PAYMENT_STATUS_COMPLETED).
		Group("enrollment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EnrollmentID] = row.Total
	}
	return out, nil
}
