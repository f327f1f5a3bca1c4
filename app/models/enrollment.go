package models

import "time"

const (
	ENROLLMENT_ACTIVE    = "active"
	ENROLLMENT_COMPLETED = "completed"
	ENROLLMENT_DROPPED   = "dropped"

	PAYMENT_FULL         = "full"
	PAYMENT_DOWN_PAYMENT = "down_payment"
	PAYMENT_INSTALLMENT  = "installment"
	PAYMENT_RENEWAL      = "renewal"
	PAYMENT_DEPOSIT      = "deposit"

	PAYMENT_STATUS_COMPLETED = "completed"
	PAYMENT_STATUS_PENDING   = "pending"
	PAYMENT_STATUS_FAILED    = "failed"
)

// Enrollment is a student's purchase of a program. Its payments are removed
// together with it by the ledger.
type Enrollment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StudentID   uint      `gorm:"index" json:"student_id"`
	ProgramID   uint      `gorm:"index" json:"program_id"`
	CloserID    *uint     `gorm:"index" json:"closer_id"`
	Status      string    `gorm:"type:varchar(20);default:'active';index" json:"status" validate:"oneof=active completed dropped"`
	TotalAgreed float64   `gorm:"type:decimal(12,2)" json:"total_agreed" validate:"gte=0"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Program  *Program  `gorm:"foreignKey:ProgramID" json:"program,omitempty"`
	Payments []Payment `gorm:"foreignKey:EnrollmentID" json:"payments,omitempty"`
}

type Payment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	EnrollmentID    uint           `gorm:"index" json:"enrollment_id"`
	Amount          float64        `gorm:"type:decimal(12,2)" json:"amount" validate:"gt=0"`
	PaymentType     string         `gorm:"type:varchar(20)" json:"payment_type" validate:"oneof=full down_payment installment renewal deposit"`
	Status          string         `gorm:"type:varchar(20);default:'completed';index" json:"status" validate:"oneof=completed pending failed"`
	PaymentMethodID *uint          `gorm:"index" json:"payment_method_id"`
	PaidAt          time.Time      `gorm:"index" json:"paid_at"`
	Reference       string         `gorm:"type:varchar(120);default:null" json:"reference"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	PaymentMethod   *PaymentMethod `gorm:"foreignKey:PaymentMethodID" json:"payment_method,omitempty"`
}

// IsPaymentType reports whether t is one of the supported payment types.
func IsPaymentType(t string) bool {
	switch t {
	case PAYMENT_FULL, PAYMENT_DOWN_PAYMENT, PAYMENT_INSTALLMENT, PAYMENT_RENEWAL, PAYMENT_DEPOSIT:
		return true
	}
	return false
}
