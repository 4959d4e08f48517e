package symbol

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// SessionZone is the zone trading session times are expressed in.
var SessionZone = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClockTime is a wall-clock time of day ("HH:MM" or "HH:MM:SS").
type ClockTime struct {
	d   time.Duration
	set bool
}

// Clock builds a ClockTime from hour and minute.
func Clock(hour, min int) ClockTime {
	return ClockTime{d: time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute, set: true}
}

func (c ClockTime) IsZero() bool { return !c.set }

func (c ClockTime) String() string {
	if !c.set {
		return ""
	}
	h := int(c.d / time.Hour)
	m := int((c.d % time.Hour) / time.Minute)
	s := int((c.d % time.Minute) / time.Second)
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = ClockTime{}
		return nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, string(b))
		if err == nil {
			*c = ClockTime{d: clockOf(t), set: true}
			return nil
		}
	}
	return fmt.Errorf("%w: bad clock time %q", ErrInvalidSession, string(b))
}

// TradingSession holds the day and optional night session windows.
type TradingSession struct {
	DayOpen    ClockTime `json:"day_open,omitempty" yaml:"day_open,omitempty"`
	DayClose   ClockTime `json:"day_close,omitempty" yaml:"day_close,omitempty"`
	NightOpen  ClockTime `json:"night_open,omitempty" yaml:"night_open,omitempty"`
	NightClose ClockTime `json:"night_close,omitempty" yaml:"night_close,omitempty"`
}

func (ts TradingSession) hasDay() bool   { return ts.DayOpen.set && ts.DayClose.set }
func (ts TradingSession) hasNight() bool { return ts.NightOpen.set && ts.NightClose.set }

// Validate requires each window to be complete and at least one window.
func (ts TradingSession) Validate() error {
	if ts.DayOpen.set != ts.DayClose.set {
		return fmt.Errorf("%w: both day_open and day_close must be set", ErrInvalidSession)
	}
	if ts.NightOpen.set != ts.NightClose.set {
		return fmt.Errorf("%w: both night_open and night_close must be set", ErrInvalidSession)
	}
	if !ts.hasDay() && !ts.hasNight() {
		return fmt.Errorf("%w: one session (day or night) must be defined", ErrInvalidSession)
	}
	return nil
}

// timeOfDay is the wall-clock offset of t in the session zone.
func timeOfDay(t time.Time) time.Duration {
	return clockOf(t.In(SessionZone))
}

func clockOf(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}
