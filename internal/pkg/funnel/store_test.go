package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/closerdesk/closerdesk/app/models"
)

func TestActiveDebt(t *testing.T) {
	active := func(id uint, agreed float64) models.Enrollment {
		return models.Enrollment{ID: id, Status: models.ENROLLMENT_ACTIVE, TotalAgreed: agreed}
	}

	tests := []struct {
		name        string
		enrollments []models.Enrollment
		totals      []enrollmentTotal
		want        float64
	}{
		{name: "nothing paid", enrollments: []models.Enrollment{active(1, 1500)}, want: 1500},
		{
			name:        "partial payment",
			enrollments: []models.Enrollment{active(1, 1500)},
			totals:      []enrollmentTotal{{EnrollmentID: 1, Total: 500}},
			want:        1000,
		},
		{
			name:        "overpaid counts as zero",
			enrollments: []models.Enrollment{active(1, 1000), active(2, 300)},
			totals:      []enrollmentTotal{{EnrollmentID: 1, Total: 1200}},
			want:        300,
		},
		{
			name: "completed enrollment ignored",
			enrollments: []models.Enrollment{
				{ID: 1, Status: models.ENROLLMENT_COMPLETED, TotalAgreed: 900},
				active(2, 400),
			},
			totals: []enrollmentTotal{{EnrollmentID: 2, Total: 100}},
			want:   300,
		},
		{
			name:        "totals for unknown enrollments ignored",
			enrollments: []models.Enrollment{active(1, 200)},
			totals:      []enrollmentTotal{{EnrollmentID: 9, Total: 200}},
			want:        200,
		},
		{name: "no enrollments", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, activeDebt(tt.enrollments, tt.totals), 0.001)
		})
	}
}
