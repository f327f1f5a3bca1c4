package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

type memAvailability struct {
	rows   []models.Availability
	nextID uint
}

func (m *memAvailability) List(ctx context.Context, closerID uint, from, to time.Time) ([]models.Availability, error) {
	var out []models.Availability
	for _, w := range m.rows {
		if closerID == 0 || w.CloserID == closerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memAvailability) GetByID(ctx context.Context, id uint) (*models.Availability, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			w := m.rows[i]
			return &w, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memAvailability) CreateMany(ctx context.Context, windows []models.Availability) error {
	for i := range windows {
		m.nextID++
		windows[i].ID = m.nextID
		m.rows = append(m.rows, windows[i])
	}
	return nil
}

func (m *memAvailability) Delete(ctx context.Context, id uint) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func TestAvailabilityCreate_WindowBounds(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		status     int
		errCode    string
	}{
		{"morning hour", "09:00", "10:00", http.StatusCreated, ""},
		{"whole day", "00:00", "23:30", http.StatusCreated, ""},
		{"inverted", "10:00", "09:30", http.StatusUnprocessableEntity, "invalid_window"},
		{"zero length", "14:00", "14:00", http.StatusUnprocessableEntity, "invalid_window"},
		{"unpadded start", "9:00", "10:00", http.StatusBadRequest, "validation_failed"},
		{"unpadded end", "10:00", "9:30", http.StatusBadRequest, "validation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memAvailability{}
			app := newTestApp(closerUser(7))
			app.Post("/availability", NewAvailabilityController(repo).HandleCreate)

			resp, body := doJSON(t, app, http.MethodPost, "/availability", map[string]interface{}{
				"windows": []map[string]string{{"date": "2025-01-10", "start_time": tt.start, "end_time": tt.end}},
			})
			require.Equal(t, tt.status, resp.StatusCode, body)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, body["error"])
				assert.Empty(t, repo.rows)
				return
			}
			require.Len(t, repo.rows, 1)
			assert.Equal(t, uint(7), repo.rows[0].CloserID)
			assert.Equal(t, tt.start, repo.rows[0].StartTime)
			assert.Equal(t, tt.end, repo.rows[0].EndTime)
		})
	}
}

func TestAvailabilityCreate_OneBadWindowRejectsBatch(t *testing.T) {
	repo := &memAvailability{}
	app := newTestApp(closerUser(7))
	app.Post("/availability", NewAvailabilityController(repo).HandleCreate)

	resp, body := doJSON(t, app, http.MethodPost, "/availability", map[string]interface{}{
		"windows": []map[string]string{
			{"date": "2025-01-10", "start_time": "09:00", "end_time": "10:00"},
			{"date": "2025-01-10", "start_time": "12:00", "end_time": "11:00"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["message"], "window 1")
	assert.Empty(t, repo.rows)
}
