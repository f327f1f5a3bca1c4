package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

var staffRoles = []string{models.ROLE_ADMIN, models.ROLE_CLOSER, models.ROLE_AGENDA}

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// ListStaff retrieves a paginated list of back-office users
func (r *userRepository) ListStaff(ctx context.Context, f StaffFilter) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("role IN ?", staffRoles)
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		searchPattern := "%" + s + "%"
		q = q.Where("name LIKE ? OR email LIKE ?", searchPattern, searchPattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var users []models.User
	err := q.Order("name ASC, id ASC").Offset(f.Offset).Limit(limit).Find(&users).Error
	return users, total, err
}
