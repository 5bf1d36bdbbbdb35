package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MinutesPerDay is the number of minute-of-day values, 0 through 1439.
const MinutesPerDay = 24 * 60

// Clock supplies the current instant. Services take a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

var weekdays = [...]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// WeekdayName returns the lowercase English name of d.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ParseWeekday accepts a weekday name in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, w := range weekdays {
		if w == name {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS" into a minute of day.
// Seconds are validated and then truncated.
func ParseClockTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
	}
	limits := [...]int{23, 59, 59}
	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time %q: expected two digits per field", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = n
	}
	return vals[0]*60 + vals[1], nil
}

// FormatClock renders a minute of day as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// LocalTime is an instant projected onto a zone's wall clock.
type LocalTime struct {
	// Minutes since local midnight, 0..1439.
	Minutes int
	// Weekday is the lowercase local weekday name.
	Weekday string
	// Instant is the original instant expressed in the zone.
	Instant time.Time
}

var (
	zoneMu    sync.RWMutex
	zoneCache = map[string]*time.Location{}
)

// LoadZone resolves an IANA zone name. Results are cached since rules
// are re-evaluated on every check.
func LoadZone(name string) (*time.Location, error) {
	zoneMu.RLock()
	loc, ok := zoneCache[name]
	zoneMu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	zoneMu.Lock()
	zoneCache[name] = loc
	zoneMu.Unlock()
	return loc, nil
}

// Normalize converts t to the wall clock of loc.
func Normalize(loc *time.Location, t time.Time) LocalTime {
	lt := t.In(loc)
	return LocalTime{
		Minutes: lt.Hour()*60 + lt.Minute(),
		Weekday: WeekdayName(lt.Weekday()),
		Instant: lt,
	}
}

// NormalizeZone is Normalize with zone lookup. An empty zone uses fallback.
// An unknown zone is returned as an error rather than silently replaced.
func NormalizeZone(zone string, fallback *time.Location, t time.Time) (LocalTime, error) {
	if zone == "" {
		if fallback == nil {
			fallback = time.UTC
		}
		return Normalize(fallback, t), nil
	}
	loc, err := LoadZone(zone)
	if err != nil {
		return LocalTime{}, err
	}
	return Normalize(loc, t), nil
}
