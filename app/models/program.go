package models

import "time"

type Program struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150);uniqueIndex" json:"name" validate:"required,max=150"`
	Price     float64   `gorm:"type:decimal(12,2)" json:"price" validate:"gte=0"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentMethod struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(100);uniqueIndex" json:"name" validate:"required,max=100"`
	CommissionPct   float64   `gorm:"type:decimal(6,3);default:0" json:"commission_pct" validate:"gte=0,lte=100"`
	CommissionFixed float64   `gorm:"type:decimal(12,2);default:0" json:"commission_fixed" validate:"gte=0"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
