// Package schedule computes run times for recurring jobs. All fixed-time
// schedules are evaluated in UTC so worker restarts across timezones do
// not shift digest or maintenance windows.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next run time strictly after the given instant.
type Schedule interface {
	Next(from time.Time) time.Time
}

type interval time.Duration

// Every runs at a fixed interval from the previous run.
func Every(d time.Duration) Schedule {
	return interval(d)
}

func (iv interval) Next(from time.Time) time.Time {
	return from.Add(time.Duration(iv))
}

type daily struct {
	hour, minute int
}

// Daily runs once a day at the given UTC wall-clock time.
func Daily(hour, minute int) Schedule {
	return daily{hour: hour, minute: minute}
}

func (d daily) Next(from time.Time) time.Time {
	at := atClock(from.UTC(), d.hour, d.minute)
	if !at.After(from) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

type weekly struct {
	day          time.Weekday
	hour, minute int
}

// Weekly runs once a week on the given weekday at the given UTC time.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return weekly{day: day, hour: hour, minute: minute}
}

func (w weekly) Next(from time.Time) time.Time {
	from = from.UTC()
	ahead := (int(w.day) - int(from.Weekday()) + 7) % 7
	at := atClock(from.AddDate(0, 0, ahead), w.hour, w.minute)
	if !at.After(from) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

// atClock keeps the date of t and replaces the time of day.
func atClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.UTC)
}

type cronExpr struct {
	inner cron.Schedule
}

// Cron parses a standard five-field cron expression. It panics on a
// malformed expression since schedules are registered at startup from
// constants, not user input.
func Cron(expr string) Schedule {
	parsed, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(expr)
	if err != nil {
		panic("invalid cron expression " + expr + ": " + err.Error())
	}
	return cronExpr{inner: parsed}
}

func (c cronExpr) Next(from time.Time) time.Time {
	return c.inner.Next(from)
}
