package slots

import "time"

// EndTime is a wall-clock end position: a calendar day plus hour and minute.
type EndTime struct {
	Date   time.Time
	Hour   int
	Minute int
}

// ResolveEnd adds d to hour:minute on date. When the result passes midnight
// the date advances, across month and year boundaries if needed.
func ResolveEnd(date time.Time, hour, minute int, d time.Duration) EndTime {
	// Civil arithmetic in UTC keeps DST transitions out of the rollover.
	start := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)
	end := start.Add(d)
	return EndTime{
		Date:   time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, date.Location()),
		Hour:   end.Hour(),
		Minute: end.Minute(),
	}
}

// At returns the end as an instant in loc.
func (e EndTime) At(loc *time.Location) time.Time {
	return time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), e.Hour, e.Minute, 0, 0, loc)
}

// Clock formats the end as "HH:MM".
func (e EndTime) Clock() string {
	return time.Date(2000, 1, 1, e.Hour, e.Minute, 0, 0, time.UTC).Format("15:04")
}
