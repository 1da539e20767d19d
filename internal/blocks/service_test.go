package blocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bioskin/internal/agenda"
	"bioskin/internal/availability"
	"bioskin/internal/calendar"
	"bioskin/internal/calendar/memstore"
	"bioskin/internal/domain"
	"bioskin/internal/events"
	"bioskin/internal/interval"
	"bioskin/internal/lock"
	"bioskin/internal/slots"
)

var clinicTZ = time.FixedZone("CST", -6*60*60)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(eventType string, payload any) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}

type lockedDate struct{}

func (lockedDate) Lock(context.Context, time.Time) (func(), error) {
	return nil, domain.ErrDateLocked
}

type fixture struct {
	store *memstore.Store
	cal   *calendar.Calendar
	svc   *Service
}

func now() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, clinicTZ) }

func date() time.Time { return time.Date(2026, 5, 6, 0, 0, 0, 0, clinicTZ) }

func newFixture(t *testing.T, bus events.Publisher, locker lock.DateLocker) *fixture {
	t.Helper()
	store := memstore.New()
	cal := calendar.New(store, nil)
	calc := availability.NewCalculator(cal, slots.DefaultGrid(clinicTZ), nil).WithClock(now)
	agg := agenda.New(cal, clinicTZ, agenda.Config{}, nil, nil).WithClock(now)
	svc := NewService(cal, calc, agg, locker, bus, 0, nil)
	svc.newID = func() string { return "batch-1" }
	return &fixture{store: store, cal: cal, svc: svc}
}

func (f *fixture) appointment(t *testing.T, h1, h2 int) {
	t.Helper()
	_, err := f.cal.Create(context.Background(), calendar.Draft{
		Interval: interval.TimeInterval{
			Start: date().Add(time.Duration(h1) * time.Hour),
			End:   date().Add(time.Duration(h2) * time.Hour),
		},
		Kind: calendar.KindAppointment,
		Meta: calendar.Metadata{Patient: "Ana"},
	})
	require.NoError(t, err)
}

func TestCreate_SkipsConflictingHour(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.appointment(t, 10, 11)

	res, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10, 11}, Reason: "Capacitación"})
	require.NoError(t, err)

	assert.Equal(t, StatePartiallyCreated, res.State)
	assert.Equal(t, []int{9, 11}, res.Period.Hours())
	require.Len(t, res.Outcomes, 3)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.True(t, domain.IsConflict(res.Outcomes[1].Err))
	assert.NoError(t, res.Outcomes[2].Err)

	var be *domain.PartialBatchError
	require.ErrorAs(t, res.Err(), &be)
	assert.Equal(t, 2, be.Succeeded)
	require.Len(t, be.Failed, 1)
	assert.Equal(t, "10:00", be.Failed[0].Unit)

	assert.Equal(t, 3, f.store.Len())
	for _, id := range res.Period.EventIDs() {
		raw, ok := f.store.Get(id)
		require.True(t, ok)
		ev := calendar.Decode(raw)
		assert.Equal(t, calendar.KindBlock, ev.Kind)
		assert.Equal(t, "Capacitación", ev.Meta.Reason)
		assert.Equal(t, "batch-1", ev.Meta.BatchID)
		assert.Equal(t, time.Hour, ev.Interval.Duration())
	}
}

func TestCreate_SlotLengthAppointmentCoversTwoHours(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.appointment(t, 10, 12)

	res, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10, 11}, Reason: "Capacitación"})
	require.NoError(t, err)

	assert.Equal(t, StatePartiallyCreated, res.State)
	assert.Equal(t, []int{9}, res.Period.Hours())

	var be *domain.PartialBatchError
	require.ErrorAs(t, res.Err(), &be)
	assert.Equal(t, 1, be.Succeeded)
	require.Len(t, be.Failed, 2)
	assert.Equal(t, "10:00", be.Failed[0].Unit)
	assert.Equal(t, "11:00", be.Failed[1].Unit)
}

func TestCreate_AllHours(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishJSON", events.BlockCreated, mock.MatchedBy(func(m events.Mutation) bool {
		return m.Date == "2026-05-06" && len(m.Hours) == 2 && m.BatchID == "batch-1"
	})).Return(nil).Once()

	f := newFixture(t, pub, nil)
	res, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{14, 13, 13}, Reason: "Comida"})
	require.NoError(t, err)

	assert.Equal(t, StateCreated, res.State)
	assert.Equal(t, []int{13, 14}, res.Period.Hours())
	assert.NoError(t, res.Err())
	pub.AssertExpectations(t)
}

func TestCreate_AllConflictingIsFailed(t *testing.T) {
	pub := new(MockPublisher)
	f := newFixture(t, pub, nil)
	f.appointment(t, 9, 12)

	res, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10}, Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Period.Entries)
	assert.Error(t, res.Err())
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestCreate_StoreFailureIsPerHour(t *testing.T) {
	f := newFixture(t, nil, nil)
	boom := errors.New("rate limited")
	f.store.SetFaults(memstore.Faults{Create: func(ev calendar.RawEvent) error {
		if ev.Start.Hour() == 12 {
			return boom
		}
		return nil
	}})

	res, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{11, 12, 13}, Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyCreated, res.State)
	assert.Equal(t, []int{11, 13}, res.Period.Hours())
	assert.ErrorIs(t, res.Err(), boom)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, nil, nil)
	cases := map[string]Request{
		"no date":     {Hours: []int{9}, Reason: "x"},
		"no reason":   {Date: date(), Hours: []int{9}, Reason: "  "},
		"no hours":    {Date: date(), Reason: "x"},
		"before grid": {Date: date(), Hours: []int{6}, Reason: "x"},
		"after grid":  {Date: date(), Hours: []int{21}, Reason: "x"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), req)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestCreate_FetchFailureWritesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.SetFaults(memstore.Faults{List: func(time.Time, time.Time) error { return errors.New("timeout") }})

	_, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9}, Reason: "x"})
	assert.True(t, domain.IsFetch(err))
	assert.Equal(t, 0, f.store.Len())
}

func TestCreate_DateLocked(t *testing.T) {
	f := newFixture(t, nil, lockedDate{})
	_, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9}, Reason: "x"})
	assert.ErrorIs(t, err, domain.ErrDateLocked)
}

func TestList_GroupsBatches(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.appointment(t, 16, 17)
	_, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10, 11}, Reason: "Curso"})
	require.NoError(t, err)

	f.svc.newID = func() string { return "batch-2" }
	_, err = f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{18}, Reason: "Junta"})
	require.NoError(t, err)

	periods, err := f.svc.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, []int{9, 10, 11}, periods[0].Hours())
	assert.Equal(t, "Curso", periods[0].Reason)
	assert.Equal(t, date(), periods[0].Date)
	assert.Equal(t, []int{18}, periods[1].Hours())
}

func TestList_MergesBatchesWithSameReason(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9}, Reason: "Comida"})
	require.NoError(t, err)

	f.svc.newID = func() string { return "batch-2" }
	_, err = f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{15}, Reason: "Comida"})
	require.NoError(t, err)

	periods, err := f.svc.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "Comida", periods[0].Reason)
	assert.Equal(t, []int{9, 15}, periods[0].Hours())
	assert.Equal(t, "batch-1", periods[0].BatchID)

	res, err := f.svc.Delete(context.Background(), periods[0])
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, res.State)
	assert.Equal(t, 0, f.store.Len())
}

func TestGroupPeriods_KeepsEarliestBatch(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, clinicTZ)
	block := func(id string, hour int, created time.Time, batch string) calendar.Event {
		return calendar.Event{
			ID:       id,
			Kind:     calendar.KindBlock,
			Interval: interval.TimeInterval{Start: date().Add(time.Duration(hour) * time.Hour), End: date().Add(time.Duration(hour+1) * time.Hour)},
			Meta:     calendar.Metadata{Reason: "Comida", CreatedAt: created, BatchID: batch},
		}
	}
	periods := GroupPeriods([]calendar.Event{
		block("late", 14, first.Add(time.Hour), "b-2"),
		block("early", 13, first, "b-1"),
	}, clinicTZ)
	require.Len(t, periods, 1)
	assert.Equal(t, "b-1", periods[0].BatchID)
	assert.True(t, periods[0].CreatedAt.Equal(first))
	assert.Equal(t, []string{"early", "late"}, periods[0].EventIDs())
}

func TestRemove_OneHourLeavesPartiallyDeleted(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishJSON", events.BlockCreated, mock.Anything).Return(nil)
	pub.On("PublishJSON", events.BlockHourRemoved, mock.MatchedBy(func(m events.Mutation) bool {
		return len(m.EventIDs) == 1 && m.Hours[0] == 10
	})).Return(nil).Once()

	f := newFixture(t, pub, nil)
	created, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10, 11}, Reason: "Curso"})
	require.NoError(t, err)
	period := created.Period

	res, err := f.svc.Remove(context.Background(), period, []string{period.Entries[1].EventID})
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Equal(t, StatePartiallyDeleted, res.State)
	assert.Equal(t, []int{9, 11}, res.Remaining.Hours())

	_, ok := f.store.Get(period.Entries[0].EventID)
	assert.True(t, ok)
	_, ok = f.store.Get(period.Entries[2].EventID)
	assert.True(t, ok)

	periods, err := f.svc.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, []int{9, 11}, periods[0].Hours())
	pub.AssertExpectations(t)
}

func TestDelete_WholePeriodIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	created, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10}, Reason: "x"})
	require.NoError(t, err)

	// one hour already removed elsewhere
	require.NoError(t, f.cal.Delete(context.Background(), created.Period.Entries[0].EventID))

	res, err := f.svc.Delete(context.Background(), created.Period)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, res.State)
	assert.Empty(t, res.Remaining.Entries)
	assert.Equal(t, 0, f.store.Len())
}

func TestRemove_PartialFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	created, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{9, 10}, Reason: "x"})
	require.NoError(t, err)

	failing := created.Period.Entries[1].EventID
	boom := errors.New("backend down")
	f.store.SetFaults(memstore.Faults{Delete: func(id string) error {
		if id == failing {
			return boom
		}
		return nil
	}})

	res, err := f.svc.Delete(context.Background(), created.Period)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyDeleted, res.State)
	assert.Equal(t, []int{10}, res.Remaining.Hours())
	assert.ErrorIs(t, res.Err(), boom)
}

func TestRemove_Validation(t *testing.T) {
	f := newFixture(t, nil, nil)
	period := BlockedPeriod{Date: date(), Entries: []Entry{{Hour: 9, EventID: "a"}}}

	_, err := f.svc.Remove(context.Background(), period, nil)
	assert.True(t, domain.IsValidation(err))
	_, err = f.svc.Remove(context.Background(), period, []string{"b"})
	assert.True(t, domain.IsValidation(err))
	_, err = f.svc.Delete(context.Background(), BlockedPeriod{})
	assert.True(t, domain.IsValidation(err))
}

func TestFindPeriod(t *testing.T) {
	f := newFixture(t, nil, nil)
	created, err := f.svc.Create(context.Background(), Request{Date: date(), Hours: []int{15, 16}, Reason: "x"})
	require.NoError(t, err)

	p, ok, err := f.svc.FindPeriod(context.Background(), created.Period.Entries[1].EventID, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{15, 16}, p.Hours())

	_, ok, err = f.svc.FindPeriod(context.Background(), "missing", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupPeriods_LegacyEvents(t *testing.T) {
	evs := []calendar.Event{
		calendar.Decode(calendar.RawEvent{ID: "b", Summary: "BLOQUEO: Vacaciones",
			Start: date().Add(11 * time.Hour), End: date().Add(12 * time.Hour)}),
		calendar.Decode(calendar.RawEvent{ID: "a", Summary: "BLOQUEO: Vacaciones",
			Start: date().Add(10 * time.Hour), End: date().Add(11 * time.Hour)}),
		calendar.Decode(calendar.RawEvent{ID: "c", Summary: "Cita: Ana",
			Start: date().Add(13 * time.Hour), End: date().Add(14 * time.Hour)}),
	}
	periods := GroupPeriods(evs, clinicTZ)
	require.Len(t, periods, 1)
	assert.Equal(t, "Vacaciones", periods[0].Reason)
	assert.Equal(t, []string{"a", "b"}, periods[0].EventIDs())
}

func TestParseHours(t *testing.T) {
	hours, err := ParseHours("9, 10,11,")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10, 11}, hours)

	_, err = ParseHours("9,x")
	assert.True(t, domain.IsValidation(err))
}
