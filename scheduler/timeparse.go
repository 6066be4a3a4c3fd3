package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Time expressions parse in layers:
//  1. Compact duration (+30m, +6h, 1d, +2w, 3mo)
//  2. Natural language (tomorrow 9am, next monday)
//  3. Absolute timestamp (RFC3339, date-only)

// compactDurationRe matches compact duration patterns. Units: m minutes,
// h hours, d days, w weeks, mo months, y years.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)(mo|[mhdwy])$`)

var nlParser = newNLParser()

func newNLParser() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}

// ParseWhen parses a scheduling time expression relative to now.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	if compactDurationRe.MatchString(s) {
		return parseCompactDuration(s, now)
	}

	if r, err := nlParser.Parse(s, now); err == nil && r != nil {
		return r.Time, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time expression: %q", s)
}

// parseCompactDuration parses compact duration offsets from now.
func parseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "m":
		return now.Add(time.Duration(amount) * time.Minute), nil
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "mo":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	default:
		return now, nil
	}
}
