// Package rtc provides the calendar clock used for log timestamps and the
// date/time commands.
package rtc

import (
	"fmt"
	"sync"
	"time"
)

// TimeOfDay is a wall clock time with second resolution.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// Valid tells whether all fields are in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 &&
		t.Minute >= 0 && t.Minute < 60 &&
		t.Second >= 0 && t.Second < 60
}

// String formats hh:mm:ss. Out-of-range fields print as "??".
func (t TimeOfDay) String() string {
	return twoDigits(t.Hour, 0, 23) + ":" + twoDigits(t.Minute, 0, 59) + ":" + twoDigits(t.Second, 0, 59)
}

// Date is a calendar date with a two-digit year in 2000-2099.
type Date struct {
	Day, Month, Year int
}

// Valid tells whether the date exists.
func (d Date) Valid() bool {
	if d.Year < 0 || d.Year > 99 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	return d.Day <= daysIn(d.Month, 2000+d.Year)
}

// String formats dd/mm/yy. Out-of-range fields print as "??".
func (d Date) String() string {
	return twoDigits(d.Day, 1, 31) + "/" + twoDigits(d.Month, 1, 12) + "/" + twoDigits(d.Year, 0, 99)
}

func twoDigits(v, min, max int) string {
	if v < min || v > max {
		return "??"
	}
	return fmt.Sprintf("%02d", v)
}

func daysIn(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TimeSource provides the time of day.
type TimeSource interface {
	TimeOfDay() TimeOfDay
}

// Clock is a settable calendar clock.
type Clock interface {
	TimeSource
	Date() Date
	SetTime(TimeOfDay) error
	SetDate(Date) error
}

// Default calendar value after reset: 12:00:00 01/01/22.
var (
	DefaultTime = TimeOfDay{Hour: 12}
	DefaultDate = Date{Day: 1, Month: 1, Year: 22}
)

// SoftClock keeps calendar time as an offset from a monotonic source.
type SoftClock struct {
	// Now is the underlying time source, time.Now if nil.
	Now func() time.Time

	lock   sync.RWMutex
	offset time.Duration
}

// NewSoftClock creates a SoftClock set to the default calendar value.
func NewSoftClock() *SoftClock {
	c := &SoftClock{}
	c.set(DefaultDate, DefaultTime)
	return c
}

func (c *SoftClock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *SoftClock) current() time.Time {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.now().UTC().Add(c.offset)
}

// TimeOfDay implements TimeSource.
func (c *SoftClock) TimeOfDay() TimeOfDay {
	t := c.current()
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// Date implements Clock.
func (c *SoftClock) Date() Date {
	t := c.current()
	return Date{Day: t.Day(), Month: int(t.Month()), Year: t.Year() % 100}
}

// SetTime implements Clock. The date is kept.
func (c *SoftClock) SetTime(t TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("invalid time %s", t)
	}
	c.set(c.Date(), t)
	return nil
}

// SetDate implements Clock. The time of day is kept.
func (c *SoftClock) SetDate(d Date) error {
	if !d.Valid() {
		return fmt.Errorf("invalid date %s", d)
	}
	c.set(d, c.TimeOfDay())
	return nil
}

func (c *SoftClock) set(d Date, t TimeOfDay) {
	cal := time.Date(2000+d.Year, time.Month(d.Month), d.Day, t.Hour, t.Minute, t.Second, 0, time.UTC)
	c.lock.Lock()
	c.offset = cal.Sub(c.now().UTC().Truncate(time.Second))
	c.lock.Unlock()
}
