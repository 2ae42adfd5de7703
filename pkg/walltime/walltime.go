// Package walltime parses and formats wall-clock durations in the notations
// used by benchmark logs and batch schedulers.
package walltime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse converts a wall time string into a duration.
//
// Accepted forms:
//   - "H:MM:SS", "MM:SS"                     (clock notation, as printed by /usr/bin/time)
//   - "D-HH", "D-HH:MM", "D-HH:MM:SS"        (Slurm day notation)
//   - "1h30m", "45m", "90s"                  (Go durations)
//   - "2700", "2700.5"                       (bare seconds)
//
// Fractional seconds are allowed in the last clock field ("0:00:01.25").
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty wall time")
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return seconds(s, secs)
	}

	if !strings.ContainsAny(s, ":-") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid wall time %q: %w", s, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("invalid wall time %q: negative", s)
		}
		return d, nil
	}

	days := 0.0
	clock := s
	if dayPart, rest, ok := strings.Cut(s, "-"); ok {
		d, err := strconv.Atoi(dayPart)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("invalid day field in wall time %q", s)
		}
		days = float64(d)
		clock = rest
	}

	fields := strings.Split(clock, ":")
	var h, m, sec float64
	var err error
	switch {
	case strings.Contains(s, "-"):
		// Slurm: D-HH, D-HH:MM, D-HH:MM:SS
		if len(fields) > 3 {
			return 0, fmt.Errorf("invalid wall time %q", s)
		}
		vals := [3]float64{}
		for i, f := range fields {
			if vals[i], err = field(s, f, i == 2); err != nil {
				return 0, err
			}
		}
		h, m, sec = vals[0], vals[1], vals[2]
	case len(fields) == 2:
		if m, err = field(s, fields[0], false); err != nil {
			return 0, err
		}
		if sec, err = field(s, fields[1], true); err != nil {
			return 0, err
		}
	case len(fields) == 3:
		if h, err = field(s, fields[0], false); err != nil {
			return 0, err
		}
		if m, err = field(s, fields[1], false); err != nil {
			return 0, err
		}
		if sec, err = field(s, fields[2], true); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("invalid wall time %q", s)
	}

	if m >= 60 && h+days > 0 || sec >= 60 {
		return 0, fmt.Errorf("invalid wall time %q: minutes and seconds must be < 60", s)
	}

	return seconds(s, days*86400+h*3600+m*60+sec)
}

// ParseSeconds is Parse returning float seconds.
func ParseSeconds(s string) (float64, error) {
	d, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func field(s, f string, fractional bool) (float64, error) {
	if fractional {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid field %q in wall time %q", f, s)
		}
		return v, nil
	}
	v, err := strconv.Atoi(f)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid field %q in wall time %q", f, s)
	}
	return float64(v), nil
}

func seconds(s string, secs float64) (time.Duration, error) {
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid wall time %q", s)
	}
	if secs > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("wall time %q overflows", s)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// FromSeconds converts float seconds to a duration, rounding to the
// nanosecond. Values beyond the time.Duration range saturate at its maximum;
// negative and NaN values yield 0. Use FormatSeconds and FormatSlurmSeconds
// to render such values exactly.
func FromSeconds(secs float64) time.Duration {
	switch {
	case math.IsNaN(secs) || secs <= 0:
		return 0
	case secs >= maxSeconds:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// Format renders d as H:MM:SS, rounding to the nearest second.
func Format(d time.Duration) string {
	return FormatSeconds(d.Seconds())
}

// FormatSeconds renders secs as H:MM:SS, rounding to the nearest second.
// Hours are not bounded, so arbitrarily large estimates stay exact.
func FormatSeconds(secs float64) string {
	total := wholeSeconds(secs)
	rem := math.Mod(total, 3600)
	hours := (total - rem) / 3600
	return fmt.Sprintf("%.0f:%02d:%02d", hours, int(rem)/60, int(rem)%60)
}

// FormatSlurm renders d as a Slurm time limit D-HH:MM:SS. d is rounded to
// the second and then up to the whole minute so the limit never undercuts
// the estimate.
func FormatSlurm(d time.Duration) string {
	return FormatSlurmSeconds(d.Seconds())
}

// FormatSlurmSeconds is FormatSlurm for float seconds.
func FormatSlurmSeconds(secs float64) string {
	minutes := math.Ceil(wholeSeconds(secs) / 60)
	if minutes < 1 {
		minutes = 1
	}
	rem := math.Mod(minutes, 24*60)
	days := (minutes - rem) / (24 * 60)
	return fmt.Sprintf("%.0f-%02d:%02d:00", days, int(rem)/60, int(rem)%60)
}

// wholeSeconds rounds secs to the second; negative and NaN values become 0
// and +Inf the largest finite float.
func wholeSeconds(secs float64) float64 {
	switch {
	case math.IsNaN(secs) || secs < 0:
		return 0
	case math.IsInf(secs, 1):
		return math.MaxFloat64
	}
	return math.Round(secs)
}
