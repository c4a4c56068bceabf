// Package dateutil converts human date layouts to Go layouts and formats
// publication dates for front matter.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateFormat indicates an invalid date format string.
var ErrInvalidDateFormat = errors.New("invalid date format")

// MaxDateFormatLength limits format string length.
const MaxDateFormatLength = 50

// ArticleDateFormat is the layout published dates are written in.
const ArticleDateFormat = "MMM DD, YYYY"

// Longest tokens first so "MMMM" wins over "MM".
var dateTokens = []struct {
	token string
	goFmt string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"M", "1"},
	{"D", "2"},
}

// DatePresets are named layouts accepted anywhere a format is.
var DatePresets = map[string]string{
	"article":  ArticleDateFormat,
	"iso":      "YYYY-MM-DD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

// ParseDateFormat converts a token layout (YYYY, YY, MMMM, MMM, MM, M, DD, D)
// to a Go time layout. Text inside brackets is copied literally, so
// "[Rev] YYYY" yields "Rev 2006".
func ParseDateFormat(format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("%w: format cannot be empty", ErrInvalidDateFormat)
	}
	if len(format) > MaxDateFormatLength {
		return "", fmt.Errorf("%w: format exceeds %d characters", ErrInvalidDateFormat, MaxDateFormatLength)
	}

	var out strings.Builder
	out.Grow(len(format) + 8)

	for i := 0; i < len(format); {
		if format[i] == '[' {
			end := strings.IndexByte(format[i+1:], ']')
			if end == -1 {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, i)
			}
			out.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}

		n := matchToken(format[i:], &out)
		if n == 0 {
			out.WriteByte(format[i])
			n = 1
		}
		i += n
	}

	return out.String(), nil
}

func matchToken(s string, out *strings.Builder) int {
	for _, t := range dateTokens {
		if strings.HasPrefix(s, t.token) {
			out.WriteString(t.goFmt)
			return len(t.token)
		}
	}
	return 0
}

// Format renders t with a preset name or a token layout.
// An empty layout means ArticleDateFormat.
func Format(layout string, t time.Time) (string, error) {
	if layout == "" {
		layout = ArticleDateFormat
	}
	if preset, ok := DatePresets[strings.ToLower(layout)]; ok {
		layout = preset
	}
	goFmt, err := ParseDateFormat(layout)
	if err != nil {
		return "", err
	}
	return t.Format(goFmt), nil
}

// ResolveDate expands "auto" and "auto:LAYOUT" to t formatted with the
// article layout or LAYOUT. Any other value is returned unchanged, which
// lets static front matter carry literal dates.
func ResolveDate(value string, t time.Time) (string, error) {
	lower := strings.ToLower(value)
	switch {
	case !strings.HasPrefix(lower, "auto"):
		return value, nil
	case lower == "auto":
		return Format(ArticleDateFormat, t)
	case !strings.HasPrefix(lower, "auto:"):
		return "", fmt.Errorf("%w: invalid auto syntax %q, use \"auto\" or \"auto:FORMAT\"", ErrInvalidDateFormat, value)
	}

	layout := value[len("auto:"):]
	if layout == "" {
		return "", fmt.Errorf("%w: format cannot be empty after \"auto:\"", ErrInvalidDateFormat)
	}
	return Format(layout, t)
}
