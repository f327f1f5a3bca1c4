package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

var testCfg = Config{SlotLength: time.Hour, DefaultLocation: time.UTC}

func TestResolve_LocalWindowConvertsToUTC(t *testing.T) {
	windows := []Window{{CloserID: 1, Timezone: "America/La_Paz", Date: day(2025, 1, 10), Start: "09:00", End: "10:00"}}
	q := Query{From: utc(2025, 1, 10, 0, 0), To: utc(2025, 1, 11, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, utc(2025, 1, 10, 13, 0), slots[0].Start)
	assert.Equal(t, uint(1), slots[0].CloserID)

	booked := []Booking{{CloserID: 1, Start: utc(2025, 1, 10, 13, 0)}}
	assert.Empty(t, Resolve(windows, booked, q, testCfg))

	// a booking for another closer at the same instant does not hide the slot
	booked = []Booking{{CloserID: 2, Start: utc(2025, 1, 10, 13, 0)}}
	assert.Len(t, Resolve(windows, booked, q, testCfg), 1)
}

func TestResolve_InvalidTimezoneFallsBack(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)
	cfg := Config{SlotLength: time.Hour, DefaultLocation: bogota}

	windows := []Window{
		{CloserID: 1, Timezone: "Not/AZone", Date: day(2025, 3, 3), Start: "10:00", End: "11:00"},
		{CloserID: 2, Timezone: "", Date: day(2025, 3, 3), Start: "12:00", End: "13:00"},
	}
	q := Query{From: utc(2025, 3, 3, 0, 0), To: utc(2025, 3, 4, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, cfg)
	require.Len(t, slots, 2)
	assert.Equal(t, utc(2025, 3, 3, 15, 0), slots[0].Start)
	assert.Equal(t, utc(2025, 3, 3, 17, 0), slots[1].Start)
}

func TestResolve_DedupePrefersPreferredCloser(t *testing.T) {
	windows := []Window{
		{CloserID: 3, Timezone: "UTC", Date: day(2025, 5, 5), Start: "09:00", End: "10:00"},
		{CloserID: 5, Timezone: "UTC", Date: day(2025, 5, 5), Start: "09:00", End: "10:00"},
		{CloserID: 4, Timezone: "UTC", Date: day(2025, 5, 5), Start: "09:00", End: "10:00"},
	}
	q := Query{From: utc(2025, 5, 5, 0, 0), To: utc(2025, 5, 6, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, uint(3), slots[0].CloserID)

	q.PreferredCloserID = 5
	slots = Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, uint(5), slots[0].CloserID)

	// preferred closer already booked: another closer still offers the instant
	slots = Resolve(windows, []Booking{{CloserID: 5, Start: utc(2025, 5, 5, 9, 0)}}, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, uint(3), slots[0].CloserID)
}

func TestResolve_SortedAndStepped(t *testing.T) {
	windows := []Window{
		{CloserID: 2, Timezone: "UTC", Date: day(2025, 6, 2), Start: "14:00", End: "16:00"},
		{CloserID: 1, Timezone: "UTC", Date: day(2025, 6, 2), Start: "09:00", End: "11:30"},
	}
	q := Query{From: utc(2025, 6, 2, 0, 0), To: utc(2025, 6, 3, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, testCfg)
	var starts []time.Time
	for _, s := range slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []time.Time{
		utc(2025, 6, 2, 9, 0),
		utc(2025, 6, 2, 10, 0),
		utc(2025, 6, 2, 14, 0),
		utc(2025, 6, 2, 15, 0),
	}, starts)
}

func TestResolve_ShortWindowYieldsStart(t *testing.T) {
	windows := []Window{{CloserID: 1, Timezone: "UTC", Date: day(2025, 6, 2), Start: "09:00", End: "09:30"}}
	q := Query{From: utc(2025, 6, 2, 0, 0), To: utc(2025, 6, 3, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, utc(2025, 6, 2, 9, 0), slots[0].Start)
}

func TestResolve_EmptyOrInvertedWindowYieldsNothing(t *testing.T) {
	q := Query{From: utc(2025, 1, 10, 0, 0), To: utc(2025, 1, 11, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	tests := []struct {
		name       string
		start, end string
	}{
		{"inverted", "10:00", "09:30"},
		{"unpadded inverted", "10:00", "9:30"},
		{"zero length", "10:00", "10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := []Window{{CloserID: 7, Timezone: "UTC", Date: day(2025, 1, 10), Start: tt.start, End: tt.end}}
			assert.Empty(t, Resolve(windows, nil, q, testCfg))
		})
	}
}

func TestResolve_FiltersPastAndOutOfRange(t *testing.T) {
	windows := []Window{
		{CloserID: 1, Timezone: "UTC", Date: day(2025, 6, 2), Start: "08:00", End: "12:00"},
		{CloserID: 1, Timezone: "UTC", Date: day(2025, 6, 3), Start: "08:00", End: "09:00"},
	}
	q := Query{From: utc(2025, 6, 2, 0, 0), To: utc(2025, 6, 3, 0, 0), Now: utc(2025, 6, 2, 9, 30)}

	slots := Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 2)
	assert.Equal(t, utc(2025, 6, 2, 10, 0), slots[0].Start)
	assert.Equal(t, utc(2025, 6, 2, 11, 0), slots[1].Start)
}

func TestResolve_MalformedWindowSkipped(t *testing.T) {
	windows := []Window{
		{CloserID: 1, Timezone: "UTC", Date: day(2025, 6, 2), Start: "9am", End: "10:00"},
		{CloserID: 2, Timezone: "UTC", Date: day(2025, 6, 2), Start: "09:00", End: "10:00"},
	}
	q := Query{From: utc(2025, 6, 2, 0, 0), To: utc(2025, 6, 3, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Resolve(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, uint(2), slots[0].CloserID)
}

func TestExpand_KeepsEveryCloser(t *testing.T) {
	windows := []Window{
		{CloserID: 2, Timezone: "UTC", Date: day(2025, 5, 5), Start: "09:00", End: "10:00"},
		{CloserID: 1, Timezone: "UTC", Date: day(2025, 5, 5), Start: "09:00", End: "10:00"},
	}
	q := Query{From: utc(2025, 5, 5, 0, 0), To: utc(2025, 5, 6, 0, 0), Now: utc(2025, 1, 1, 0, 0)}

	slots := Expand(windows, nil, q, testCfg)
	require.Len(t, slots, 2)
	assert.Equal(t, uint(1), slots[0].CloserID)
	assert.Equal(t, uint(2), slots[1].CloserID)

	q.CloserID = 2
	slots = Expand(windows, nil, q, testCfg)
	require.Len(t, slots, 1)
	assert.Equal(t, uint(2), slots[0].CloserID)
}

type fakeRepo struct {
	windows []Window
	booked  []Booking
	from    time.Time
	to      time.Time
}

func (f *fakeRepo) ListWindows(ctx context.Context, fromDate, toDate time.Time) ([]Window, error) {
	f.from, f.to = fromDate, toDate
	return f.windows, nil
}

func (f *fakeRepo) ListBooked(ctx context.Context, from, to time.Time) ([]Booking, error) {
	return f.booked, nil
}

func TestService_FindSlots(t *testing.T) {
	repo := &fakeRepo{windows: []Window{{CloserID: 1, Timezone: "America/La_Paz", Date: day(2025, 1, 10), Start: "09:00", End: "10:00"}}}
	svc := NewService(repo, testCfg)
	svc.now = func() time.Time { return utc(2025, 1, 1, 0, 0) }

	slots, err := svc.FindSlots(context.Background(), Query{From: utc(2025, 1, 10, 0, 0), To: utc(2025, 1, 11, 0, 0)})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, utc(2025, 1, 9, 0, 0), repo.from)
	assert.Equal(t, utc(2025, 1, 12, 0, 0), repo.to)

	ok, err := svc.IsOffered(context.Background(), 1, utc(2025, 1, 10, 13, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsOffered(context.Background(), 2, utc(2025, 1, 10, 13, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.FindSlots(context.Background(), Query{From: utc(2025, 1, 10, 0, 0), To: utc(2025, 1, 9, 0, 0)})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.FindSlots(context.Background(), Query{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 6, 1, 0, 0)})
	assert.ErrorIs(t, err, ErrRangeTooWide)
}
