package ical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"
)

// AppleEpoch is the reference point of X-APPLE-SORT-ORDER values.
var AppleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// AppleSeconds returns the whole seconds between the Apple epoch and t.
func AppleSeconds(t time.Time) int64 {
	return int64(t.Sub(AppleEpoch) / time.Second)
}

type property struct {
	Name   string
	Params map[string]string
	Value  string
}

func (p property) param(name string) string {
	return p.Params[name]
}

// parseProperty splits a logical content line into name, parameters and value.
// Parameter values may be double-quoted and then contain ';', ':' and ','.
func parseProperty(line string) (property, bool) {
	p := property{Params: map[string]string{}}

	i := strings.IndexAny(line, ";:")
	if i <= 0 {
		return p, false
	}
	p.Name = strings.ToUpper(line[:i])

	for line[i] == ';' {
		i++
		eq := strings.IndexByte(line[i:], '=')
		if eq < 0 {
			return p, false
		}
		key := strings.ToUpper(line[i : i+eq])
		i += eq + 1

		var val string
		if i < len(line) && line[i] == '"' {
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return p, false
			}
			val = line[i+1 : i+1+end]
			i += end + 2
		} else {
			end := strings.IndexAny(line[i:], ";:")
			if end < 0 {
				return p, false
			}
			val = line[i : i+end]
			i += end
		}
		p.Params[key] = val
		if i >= len(line) {
			return p, false
		}
	}

	if line[i] != ':' {
		return p, false
	}
	p.Value = line[i+1:]
	return p, true
}

// parseDateTime decodes a DATE or DATE-TIME value. Date-only values and
// floating date-times are interpreted in UTC; TZID-qualified ones in their
// named zone when it can be loaded.
func parseDateTime(p property) (t time.Time, allDay bool, err error) {
	v := strings.TrimSpace(p.Value)
	if strings.EqualFold(p.param("VALUE"), "DATE") || len(v) == len(dateLayout) {
		t, err = time.Parse(dateLayout, v)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err = time.Parse(utcLayout, v)
		return t, false, err
	}

	loc := time.UTC
	if tzid := p.param("TZID"); tzid != "" {
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			loc = l
		}
	}
	t, err = time.ParseInLocation(dateTimeLayout, v, loc)
	return t.UTC(), false, err
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(utcLayout)
}

var durationRegex = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration parses an RFC 5545 DURATION such as -PT15M or P1DT2H.
func parseDuration(s string) (time.Duration, error) {
	m := durationRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %q", s)
		}
		total += time.Duration(n) * unit
	}
	if m[1] == "-" {
		total = -total
	}
	return total, nil
}
