package feedsettings

import (
	"errors"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

const (
	// MaxRecentColors bounds the recently used colors list.
	MaxRecentColors = 8

	hexColorPattern        = `^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`
	errMessageInvalidColor = "color must be a hex string such as #ff8800"
)

var (
	// ErrInvalidColor rejects a color that is not a hex string.
	ErrInvalidColor = errors.New(errMessageInvalidColor)

	hexColorRegex = regexp.MustCompile(hexColorPattern)
)

// IsHexColor reports whether color is a #rgb, #rrggbb or #rrggbbaa string.
func IsHexColor(color string) bool {
	return hexColorRegex.MatchString(strings.TrimSpace(color))
}

// NormalizeHexColor trims and lowercases a hex color, expanding the #rgb shorthand.
func NormalizeHexColor(color string) (string, error) {
	trimmedColor := strings.TrimSpace(color)
	if !IsHexColor(trimmedColor) {
		return "", ErrInvalidColor
	}
	lowered := strings.ToLower(trimmedColor)
	if len(lowered) == 4 {
		var builder strings.Builder
		builder.WriteByte('#')
		for _, digit := range lowered[1:] {
			builder.WriteRune(digit)
			builder.WriteRune(digit)
		}
		return builder.String(), nil
	}
	return lowered, nil
}

// PushRecentColor moves color to the front of the recent colors list, dropping
// duplicates and trimming the list to MaxRecentColors.
func PushRecentColor(recentColors []string, color string) ([]string, error) {
	normalizedColor, err := NormalizeHexColor(color)
	if err != nil {
		return recentColors, err
	}
	updated := make([]string, 0, MaxRecentColors)
	updated = append(updated, normalizedColor)
	for _, existing := range recentColors {
		if strings.EqualFold(existing, normalizedColor) {
			continue
		}
		updated = append(updated, existing)
	}
	return lo.Slice(updated, 0, MaxRecentColors), nil
}
