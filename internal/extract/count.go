// Package extract turns rendered profile pages into follower counts and avatar URLs.
package extract

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoCount is returned when text contains no parseable number.
var ErrNoCount = errors.New("no follower count in text")

var (
	nonCountChars  = regexp.MustCompile(`(?i)[^\d.,kmb]`)
	leadingDecimal = regexp.MustCompile(`^\d*\.?\d+`)
	leadingInteger = regexp.MustCompile(`^\d+`)
)

type magnitude struct {
	suffix     string
	multiplier float64
}

// Checked in this order; "1.2K" never reaches the M or B branch.
var magnitudes = []magnitude{
	{suffix: "K", multiplier: 1e3},
	{suffix: "M", multiplier: 1e6},
	{suffix: "B", multiplier: 1e9},
}

// ParseCount normalizes display text such as "1,234", "1.2K" or "2.1B followers"
// into an integer count. It returns ErrNoCount when no digits are present.
func ParseCount(text string) (int64, error) {
	cleaned := strings.ToUpper(nonCountChars.ReplaceAllString(text, ""))
	if !strings.ContainsAny(cleaned, "0123456789") {
		return 0, ErrNoCount
	}

	for _, m := range magnitudes {
		if !strings.Contains(cleaned, m.suffix) {
			continue
		}
		raw := leadingDecimal.FindString(strings.Replace(cleaned, m.suffix, "", 1))
		if raw == "" {
			return 0, fmt.Errorf("parse %q: %w", text, ErrNoCount)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", text, err)
		}
		scaled := math.Round(value * m.multiplier)
		if scaled > math.MaxInt64 {
			return 0, fmt.Errorf("parse %q: value out of range", text)
		}
		return int64(scaled), nil
	}

	raw := leadingInteger.FindString(strings.ReplaceAll(cleaned, ",", ""))
	if raw == "" {
		return 0, fmt.Errorf("parse %q: %w", text, ErrNoCount)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	return value, nil
}
