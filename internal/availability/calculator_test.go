package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioskin/internal/calendar"
	"bioskin/internal/calendar/memstore"
	"bioskin/internal/domain"
	"bioskin/internal/interval"
	"bioskin/internal/slots"
)

var clinicTZ = time.FixedZone("CST", -6*60*60)

func clock(y int, m time.Month, d, h, min int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, h, min, 0, 0, clinicTZ) }
}

func seed(t *testing.T, cal *calendar.Calendar, kind calendar.Kind, date time.Time, h1, h2 int) {
	t.Helper()
	_, err := cal.Create(context.Background(), calendar.Draft{
		Interval: interval.TimeInterval{
			Start: date.Add(time.Duration(h1) * time.Hour),
			End:   date.Add(time.Duration(h2) * time.Hour),
		},
		Kind: kind,
	})
	require.NoError(t, err)
}

func newCalc(store *memstore.Store, now func() time.Time) (*Calculator, *calendar.Calendar) {
	cal := calendar.New(store, nil)
	return NewCalculator(cal, slots.DefaultGrid(clinicTZ), nil).WithClock(now), cal
}

func stateAt(d *DayAvailability, hour int) slots.State {
	for i, s := range d.Slots {
		if s.StartHour == hour {
			return d.States[i]
		}
	}
	return ""
}

func TestCalculator_Day(t *testing.T) {
	store := memstore.New()
	calc, cal := newCalc(store, clock(2026, 1, 15, 12, 0))
	date := time.Date(2026, 1, 20, 0, 0, 0, 0, clinicTZ)
	seed(t, cal, calendar.KindAppointment, date, 10, 12)

	day, err := calc.Day(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, day.Slots, 14)

	assert.Equal(t, slots.StateFree, stateAt(day, 8))
	assert.Equal(t, slots.StateOccupied, stateAt(day, 9))
	assert.Equal(t, slots.StateOccupied, stateAt(day, 11))
	assert.Equal(t, slots.StateFree, stateAt(day, 12))
	assert.Len(t, day.Free(), 11)
	assert.Equal(t, "occupied", string(day.Info()[2].State))
}

func TestCalculator_BlocksConsumeSlotsLikeAppointments(t *testing.T) {
	store := memstore.New()
	calc, cal := newCalc(store, clock(2026, 1, 15, 12, 0))
	date := time.Date(2026, 1, 20, 0, 0, 0, 0, clinicTZ)
	seed(t, cal, calendar.KindBlock, date, 15, 16)

	day, err := calc.Day(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, slots.StateOccupied, stateAt(day, 14))
	assert.Equal(t, slots.StateOccupied, stateAt(day, 15))
	assert.Equal(t, slots.StateFree, stateAt(day, 16))
}

func TestCalculator_TodayMarksPast(t *testing.T) {
	store := memstore.New()
	calc, cal := newCalc(store, clock(2026, 1, 15, 11, 0))
	today := time.Date(2026, 1, 15, 0, 0, 0, 0, clinicTZ)
	seed(t, cal, calendar.KindAppointment, today, 8, 9)

	day, err := calc.Day(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, slots.StateOccupied, stateAt(day, 7), "occupied wins over past")
	assert.Equal(t, slots.StatePast, stateAt(day, 9))
	assert.Equal(t, slots.StatePast, stateAt(day, 11))
	assert.Equal(t, slots.StateFree, stateAt(day, 12))
}

func TestCalculator_FetchFailureBlocksGrid(t *testing.T) {
	store := memstore.New()
	boom := errors.New("calendar unavailable")
	store.SetFaults(memstore.Faults{List: func(_, _ time.Time) error { return boom }})
	calc, _ := newCalc(store, clock(2026, 1, 15, 12, 0))

	day, err := calc.Day(context.Background(), time.Date(2026, 1, 20, 0, 0, 0, 0, clinicTZ))
	assert.Nil(t, day, "no grid may be rendered when the fetch fails")
	require.Error(t, err)
	assert.True(t, domain.IsFetch(err))
	assert.ErrorIs(t, err, boom)
}

func TestCalculator_Recheck(t *testing.T) {
	store := memstore.New()
	calc, cal := newCalc(store, clock(2026, 1, 15, 12, 0))
	date := time.Date(2026, 1, 20, 0, 0, 0, 0, clinicTZ)
	slot := calc.Grid().SlotAt(date, 9)

	require.NoError(t, calc.Recheck(context.Background(), slot))

	// Someone books between render and submit.
	seed(t, cal, calendar.KindAppointment, date, 10, 11)

	err := calc.Recheck(context.Background(), slot)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 9, conflict.Hour)
}

func TestCalculator_ReadsCivilDate(t *testing.T) {
	store := memstore.New()
	calc, _ := newCalc(store, clock(2026, 1, 15, 12, 0))
	date, err := time.Parse("2006-01-02", "2026-01-20")
	require.NoError(t, err)

	day, err := calc.Day(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, clinicTZ), day.Date)
}
