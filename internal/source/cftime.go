package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"forest/internal/models"
)

var unitSeconds = map[string]float64{
	"seconds": 1, "second": 1, "secs": 1, "sec": 1, "s": 1,
	"minutes": 60, "minute": 60, "mins": 60, "min": 60,
	"hours": 3600, "hour": 3600, "hrs": 3600, "hr": 3600, "h": 3600,
	"days": 86400, "day": 86400, "d": 86400,
}

var supportedCalendars = map[string]bool{
	"":                    true,
	"standard":            true,
	"gregorian":           true,
	"proleptic_gregorian": true,
}

// DecodeTimes converts the numeric values of a CF time variable into
// UTC timestamps using its "units" ("<unit> since <reference>") and
// "calendar" attributes. A scalar variable yields one timestamp.
func DecodeTimes(path string, v *Variable) ([]time.Time, error) {
	units, ok := v.StringAttribute("units")
	if !ok || strings.TrimSpace(units) == "" {
		return nil, &models.MalformedSourceError{Path: path, Variable: v.Name, Reason: "time coordinate has no units"}
	}

	calendar, _ := v.StringAttribute("calendar")
	if !supportedCalendars[strings.ToLower(strings.TrimSpace(calendar))] {
		return nil, &models.MalformedSourceError{
			Path: path, Variable: v.Name,
			Reason: fmt.Sprintf("unsupported calendar %q", calendar),
		}
	}

	step, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, &models.MalformedSourceError{Path: path, Variable: v.Name, Reason: "invalid time units", Err: err}
	}

	values, err := Float64s(v.Values)
	if err != nil {
		return nil, &models.MalformedSourceError{Path: path, Variable: v.Name, Reason: "unreadable time values", Err: err}
	}

	out := make([]time.Time, len(values))
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &models.MalformedSourceError{
				Path: path, Variable: v.Name,
				Reason: fmt.Sprintf("non-finite time value at index %d", i),
			}
		}
		out[i] = offset(ref, value*step)
	}
	return out, nil
}

// DecodePressures returns the values of a pressure coordinate.
func DecodePressures(path string, v *Variable) ([]float64, error) {
	values, err := Float64s(v.Values)
	if err != nil {
		return nil, &models.MalformedSourceError{Path: path, Variable: v.Name, Reason: "unreadable pressure values", Err: err}
	}
	return values, nil
}

// ParseTimeUnits splits "hours since 1970-01-01 00:00:00" into the length
// of one unit in seconds and the reference instant.
func ParseTimeUnits(units string) (seconds float64, reference time.Time, err error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("expected \"<unit> since <reference>\", got %q", units)
	}

	seconds, ok := unitSeconds[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unknown time unit %q", parts[0])
	}

	reference, err = parseReference(parts[1])
	if err != nil {
		return 0, time.Time{}, err
	}
	return seconds, reference, nil
}

// parseReference accepts the loose ISO forms found in CF files, including
// unpadded fields ("1970-1-1 0:0:0"), a "T" separator and a UTC suffix.
func parseReference(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"UTC", "utc", "Z", "+00:00", "+0:00", "+00"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
	}

	datePart, clockPart := s, ""
	if i := strings.IndexAny(s, "T "); i >= 0 {
		datePart, clockPart = s[:i], strings.TrimSpace(s[i+1:])
	}

	ymd := strings.Split(datePart, "-")
	if len(ymd) != 3 {
		return time.Time{}, fmt.Errorf("invalid reference date %q", datePart)
	}
	year, err1 := strconv.Atoi(ymd[0])
	month, err2 := strconv.Atoi(ymd[1])
	day, err3 := strconv.Atoi(ymd[2])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid reference date %q", datePart)
	}

	var hour, minute int
	var second float64
	if clockPart != "" {
		hms := strings.Split(clockPart, ":")
		if len(hms) < 2 || len(hms) > 3 {
			return time.Time{}, fmt.Errorf("invalid reference clock %q", clockPart)
		}
		var errH, errM, errS error
		hour, errH = strconv.Atoi(hms[0])
		minute, errM = strconv.Atoi(hms[1])
		if len(hms) == 3 {
			second, errS = strconv.ParseFloat(hms[2], 64)
		}
		if errH != nil || errM != nil || errS != nil {
			return time.Time{}, fmt.Errorf("invalid reference clock %q", clockPart)
		}
	}

	whole := math.Floor(second)
	nanos := int(math.Round((second - whole) * 1e9))
	return time.Date(year, time.Month(month), day, hour, minute, int(whole), nanos, time.UTC), nil
}

// offset adds seconds to ref at microsecond resolution without going
// through time.Duration, whose range is too small for old references.
func offset(ref time.Time, seconds float64) time.Time {
	micros := int64(math.Round(seconds * 1e6))
	secs := micros / 1e6
	rem := micros % 1e6
	if rem < 0 {
		rem += 1e6
		secs--
	}
	return time.Unix(ref.Unix()+secs, int64(ref.Nanosecond())+rem*1000).UTC()
}
