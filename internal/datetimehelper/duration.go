// Package datetimehelper implements the "datetime" helper module: stateless
// date/time operations that never touch the registry, plus one
// natural-language convenience operation backed by github.com/olebedev/when.
package datetimehelper

import (
	"regexp"
	"time"

	"github.com/helperd/helperd/internal/modules"
)

var compactDurationPattern = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether s is a compact relative-duration
// expression ("+6h", "-1d", "2w", "3m", "1y").
func IsCompactDuration(s string) bool {
	return compactDurationPattern.MatchString(s)
}

// ParseCompactDuration applies a compact relative-duration expression to
// base, returning the resulting time. Unsigned input is treated as positive.
func ParseCompactDuration(s string, base time.Time) (time.Time, error) {
	m := compactDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, modules.NewError(modules.KindInvalidParams, "%q is not a compact duration expression", s)
	}

	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	amount := 0
	for _, c := range m[2] {
		amount = amount*10 + int(c-'0')
	}
	amount *= sign

	switch m[3] {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return base.AddDate(0, 0, amount), nil
	case "w":
		return base.AddDate(0, 0, amount*7), nil
	case "m":
		return base.AddDate(0, amount, 0), nil
	case "y":
		return base.AddDate(amount, 0, 0), nil
	default:
		return time.Time{}, modules.NewError(modules.KindInvalidParams, "%q has an unrecognized unit", s)
	}
}
