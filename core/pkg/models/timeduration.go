package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 52 * week
)

// TimeDuration is a time.Duration that also understands days (d), weeks (w)
// and years (y, 52 weeks).
type TimeDuration time.Duration

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(DurationToString(time.Duration(d))), nil
}

func (d *TimeDuration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TimeDuration(parsed)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(DurationToString(time.Duration(d)))
}

func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func DurationToString(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}

	units := []struct {
		suffix string
		size   time.Duration
	}{
		{"y", year}, {"w", week}, {"d", day}, {"h", time.Hour}, {"m", time.Minute},
		{"s", time.Second}, {"ms", time.Millisecond}, {"us", time.Microsecond}, {"ns", time.Nanosecond},
	}

	var sb strings.Builder
	sb.WriteString(sign)
	for _, u := range units {
		if n := d / u.size; n > 0 {
			sb.WriteString(strconv.FormatInt(int64(n), 10))
			sb.WriteString(u.suffix)
			d -= n * u.size
		}
	}
	return sb.String()
}

// ParseDuration parses a duration string as time.ParseDuration does, adding
// the d, w and y units. Those units only accept integer values.
func ParseDuration(s string) (time.Duration, error) {
	invalid := fmt.Errorf("time: invalid duration %q", s)
	if s == "" {
		return 0, invalid
	}

	rest := s
	neg := false
	if rest[0] == '-' || rest[0] == '+' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if rest == "0" {
		return 0, nil
	}

	var long time.Duration
	var std strings.Builder
	for rest != "" {
		i := 0
		for i < len(rest) && (rest[i] == '.' || (rest[i] >= '0' && rest[i] <= '9')) {
			i++
		}
		j := i
		for j < len(rest) && !(rest[j] == '.' || (rest[j] >= '0' && rest[j] <= '9')) {
			j++
		}
		if i == 0 || j == i {
			return 0, invalid
		}

		number, unit := rest[:i], rest[i:j]
		rest = rest[j:]

		var size time.Duration
		switch unit {
		case "y":
			size = year
		case "w":
			size = week
		case "d":
			size = day
		default:
			std.WriteString(number)
			std.WriteString(unit)
			continue
		}

		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			return 0, invalid
		}
		long += time.Duration(n) * size
	}

	var short time.Duration
	if std.Len() > 0 {
		var err error
		short, err = time.ParseDuration(std.String())
		if err != nil {
			return 0, invalid
		}
	}

	total := long + short
	if neg {
		total = -total
	}
	return total, nil
}
