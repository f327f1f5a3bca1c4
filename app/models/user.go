package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_ADMIN   = "admin"
	ROLE_CLOSER  = "closer"
	ROLE_LEAD    = "lead"
	ROLE_AGENDA  = "agenda"
	ROLE_STUDENT = "student"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
)

type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email       string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password    string         `gorm:"type:text" json:"-"`
	Role        string         `gorm:"type:varchar(20);default:'lead';index" json:"role" validate:"oneof=admin closer lead agenda student"`
	Status      string         `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active inactive"`
	Timezone    string         `gorm:"type:varchar(64);default:null" json:"timezone" validate:"omitempty,max=64"`
	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	LeadProfile *LeadProfile `gorm:"foreignKey:UserID" json:"lead_profile,omitempty"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewStaffUser builds a closer/admin/agenda account with a hashed password.
func NewStaffUser(name, email, password, role string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     strings.TrimSpace(name),
		Email:    NormalizeEmail(email),
		Password: pw,
		Role:     role,
		Status:   STATUS_ACTIVE,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IsStaff reports whether the user may sign in to the back office.
func (u *User) IsStaff() bool {
	switch u.Role {
	case ROLE_ADMIN, ROLE_CLOSER, ROLE_AGENDA:
		return true
	}
	return false
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// Location returns the user's timezone, falling back to def when unset or unknown.
func (u *User) Location(def *time.Location) *time.Location {
	return LoadLocationOr(u.Timezone, def)
}

// LoadLocationOr never fails: an empty or invalid name yields def (or UTC when def is nil).
func LoadLocationOr(name string, def *time.Location) *time.Location {
	if def == nil {
		def = time.UTC
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return def
	}
	return loc
}
