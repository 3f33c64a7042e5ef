package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

func Check(e error) {
	if e != nil {
		log.Fatal(e)
	}
}

// ParseEpoch converts fractional epoch seconds ("1718700000.123456") to a timestamp with
// microsecond precision.
func ParseEpoch(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	secondsPart, fractionPart, _ := strings.Cut(ts, ".")
	seconds, err := strconv.ParseInt(secondsPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}

	micros := int64(0)
	if fractionPart != "" {
		fraction, err := strconv.ParseFloat("0."+fractionPart, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		micros = int64(math.Round(fraction * 1e6))
	}

	return time.Unix(seconds, micros*int64(time.Microsecond)), nil
}

// EpochFromFloat converts epoch seconds carried as a JSON number.
func EpochFromFloat(ts float64) time.Time {
	seconds, fraction := math.Modf(ts)
	return time.Unix(int64(seconds), int64(math.Round(fraction*1e6))*int64(time.Microsecond))
}

// FormatEpoch is the inverse of ParseEpoch.
func FormatEpoch(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}

func DurationToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func MinTime(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}

	return a
}

func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}

	return a
}
