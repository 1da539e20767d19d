package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clinicTZ = time.FixedZone("CST", -6*60*60)

func TestGenerateSlots(t *testing.T) {
	grid := DefaultGrid(clinicTZ)
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, clinicTZ)

	got := grid.GenerateSlots(date)
	require.Len(t, got, 14)

	first := got[0]
	assert.Equal(t, 7, first.StartHour)
	assert.Equal(t, time.Date(2026, 1, 15, 7, 0, 0, 0, clinicTZ), first.Interval.Start)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, clinicTZ), first.Interval.End)

	last := got[len(got)-1]
	assert.Equal(t, 20, last.StartHour)
	assert.Equal(t, time.Date(2026, 1, 15, 22, 0, 0, 0, clinicTZ), last.Interval.End)

	for i, s := range got {
		assert.Equal(t, DefaultFirstHour+i, s.StartHour)
		assert.Equal(t, 2*time.Hour, s.Interval.Duration())
		assert.Equal(t, date, s.Date)
	}
}

func TestGenerateSlots_ReadsCivilDate(t *testing.T) {
	grid := DefaultGrid(clinicTZ)
	// Parsed dates arrive in UTC; the calendar day must not shift.
	date, err := time.Parse("2006-01-02", "2026-03-01")
	require.NoError(t, err)

	got := grid.GenerateSlots(date)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].Interval.Start.Day())
	assert.Equal(t, clinicTZ, got[0].Interval.Start.Location())
}

func TestGenerateSlots_IdenticalAcrossCalls(t *testing.T) {
	grid := DefaultGrid(clinicTZ)
	date := time.Date(2026, 5, 2, 0, 0, 0, 0, clinicTZ)
	assert.Equal(t, grid.GenerateSlots(date), grid.GenerateSlots(date))
}

func TestGridValidate(t *testing.T) {
	assert.NoError(t, DefaultGrid(clinicTZ).Validate())
	assert.Error(t, Grid{FirstHour: 9, LastHour: 8, Duration: time.Hour}.Validate())
	assert.Error(t, Grid{FirstHour: -1, LastHour: 8, Duration: time.Hour}.Validate())
	assert.Error(t, Grid{FirstHour: 7, LastHour: 24, Duration: time.Hour}.Validate())
	assert.Error(t, Grid{FirstHour: 7, LastHour: 20}.Validate())
}

func TestOnGrid(t *testing.T) {
	grid := DefaultGrid(clinicTZ)
	assert.True(t, grid.OnGrid(7))
	assert.True(t, grid.OnGrid(20))
	assert.False(t, grid.OnGrid(6))
	assert.False(t, grid.OnGrid(21))
}

func TestToSlotInfo(t *testing.T) {
	grid := DefaultGrid(clinicTZ)
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, clinicTZ)
	s := grid.GenerateSlots(date)[:2]

	infos := ToSlotInfo(s, []State{StateFree, StateOccupied})
	require.Len(t, infos, 2)
	assert.Equal(t, SlotInfo{Date: "2026-01-15", Hour: 7, Start: "07:00", End: "09:00", State: StateFree}, infos[0])
	assert.Equal(t, StateOccupied, infos[1].State)
}
