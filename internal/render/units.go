package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Pixels per unit at the CSS reference density of 96 dpi.
var unitToPixels = map[string]float64{
	"px": 1,
	"in": 96,
	"cm": 37.8,
	"mm": 3.78,
}

// ToInches converts a length such as "8.5in", "250cm" or "12" (pixels) into
// inches, the unit the DevTools print command expects.
func ToInches(length string) (float64, error) {
	text := strings.TrimSpace(length)
	unit := "px"
	if len(text) > 2 {
		if _, ok := unitToPixels[strings.ToLower(text[len(text)-2:])]; ok {
			unit = strings.ToLower(text[len(text)-2:])
			text = text[:len(text)-2]
		}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", length, err)
	}
	return value * unitToPixels[unit] / 96, nil
}

// Pixels formats a measured pixel height as a length string.
func Pixels(px float64) string {
	return strconv.FormatFloat(px, 'f', -1, 64) + "px"
}
