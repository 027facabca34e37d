// Package timeparse turns user-supplied timestamps into times.
//
// Accepted forms, tried in order:
//
//	2016-04-12 14:01:00     local time
//	2016-04-12 14:01        local time
//	2016-04-12              local midnight
//	2016-04-12T14:01:00Z    RFC 3339
//	-3d, +6h, -2w, 90m      offsets from now (s, m, h, d, w)
//	yesterday, last friday  natural language
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnrecognized indicates the input matched no accepted form.
var ErrUnrecognized = errors.New("unrecognized time")

var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var offsetPattern = regexp.MustCompile(`^([+-]?)(\d+)([smhdw])$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

var natural = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse interprets s relative to now. Layout forms are read in now's location.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnrecognized)
	}

	loc := now.Location()
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if m := offsetPattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
		}
		d := time.Duration(n) * unitDurations[m[3]]
		if m[1] == "-" {
			d = -d
		}
		return now.Add(d), nil
	}

	r, err := natural.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnrecognized, s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return r.Time, nil
}

// ParseOrNow returns now for an empty s and Parse(s, now) otherwise.
func ParseOrNow(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return now, nil
	}
	return Parse(s, now)
}
