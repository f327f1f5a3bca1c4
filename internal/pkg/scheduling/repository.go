package scheduling

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

type windowRow struct {
	CloserID  uint
	Timezone  string
	Date      time.Time
	StartTime string
	EndTime   string
}

func (r *gormRepository) ListWindows(ctx context.Context, fromDate, toDate time.Time) ([]Window, error) {
	var rows []windowRow
	err := r.db.WithContext(ctx).
		Table("availabilities").
		Select("availabilities.closer_id, COALESCE(users.timezone, '') AS timezone, availabilities.date, availabilities.start_time, availabilities.end_time").
		Joins("JOIN users ON users.id = availabilities.closer_id AND users.deleted_at IS NULL").
		Where("users.status = ? AND users.role = ?", models.STATUS_ACTIVE, models.ROLE_CLOSER).
		Where("availabilities.date BETWEEN ? AND ?", fromDate.UTC().Format("2006-01-02"), toDate.UTC().Format("2006-01-02")).
		Order("availabilities.date, availabilities.start_time").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(rows))
	for _, row := range rows {
		windows = append(windows, Window{
			CloserID: row.CloserID,
			Timezone: row.Timezone,
			Date:     row.Date,
			Start:    row.StartTime,
			End:      row.EndTime,
		})
	}
	return windows, nil
}

func (r *gormRepository) ListBooked(ctx context.Context, from, to time.Time) ([]Booking, error) {
	var appts []models.Appointment
	err := r.db.WithContext(ctx).
		Select("closer_id", "start_time").
		Where("status NOT IN ? AND start_time >= ? AND start_time < ?",
			[]string{models.APPOINTMENT_CANCELED, models.APPOINTMENT_RESCHEDULED}, from.UTC(), to.UTC()).
		Find(&appts).Error
	if err != nil {
		return nil, err
	}

	booked := make([]Booking, 0, len(appts))
	for _, a := range appts {
		booked = append(booked, Booking{CloserID: a.CloserID, Start: a.StartTime})
	}
	return booked, nil
}
