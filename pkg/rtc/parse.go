package rtc

import (
	"fmt"
)

// ParseError reports a malformed date or time parameter.
type ParseError struct {
	Input  string
	Layout string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%q does not match %s", e.Input, e.Layout)
}

// ParseTime parses "hh:mm:ss".
func ParseTime(s string) (TimeOfDay, error) {
	a, b, c, ok := parseTriple(s, ':')
	t := TimeOfDay{Hour: a, Minute: b, Second: c}
	if !ok || !t.Valid() {
		return TimeOfDay{}, &ParseError{Input: s, Layout: "hh:mm:ss"}
	}
	return t, nil
}

// ParseDate parses "dd/mm/yy".
func ParseDate(s string) (Date, error) {
	a, b, c, ok := parseTriple(s, '/')
	d := Date{Day: a, Month: b, Year: c}
	if !ok || !d.Valid() {
		return Date{}, &ParseError{Input: s, Layout: "dd/mm/yy"}
	}
	return d, nil
}

// parseTriple accepts exactly eight characters: three two-digit fields
// separated by sep at index 2 and 5.
func parseTriple(s string, sep byte) (a, b, c int, ok bool) {
	if len(s) != 8 || s[2] != sep || s[5] != sep {
		return
	}
	var fields [3]int
	for n := range fields {
		hi, lo := s[n*3], s[n*3+1]
		if !isDigit(hi) || !isDigit(lo) {
			return
		}
		fields[n] = int(hi-'0')*10 + int(lo-'0')
	}
	return fields[0], fields[1], fields[2], true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
