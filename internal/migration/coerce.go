package migration

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

// present reports whether a value exists and is not null, the counterpart of "??".
func present(value gjson.Result) bool {
	return value.Exists() && value.Type != gjson.Null
}

// truthy coerces any stored value to a boolean. Arrays count as true only when
// they hold at least one element, which is how legacy lists map onto switches.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True:
		return true
	case gjson.False, gjson.Null:
		return false
	case gjson.Number:
		return value.Num != 0 && !math.IsNaN(value.Num)
	case gjson.String:
		return value.Str != ""
	case gjson.JSON:
		if value.IsArray() {
			return len(value.Array()) > 0
		}
		return true
	default:
		return false
	}
}

// boolOr keeps a present value and falls back otherwise.
func boolOr(value gjson.Result, fallback bool) bool {
	if !present(value) {
		return fallback
	}
	if value.IsBool() {
		return value.Bool()
	}
	return truthy(value)
}

// stringOr keeps present scalars as strings and falls back for objects, arrays and absence.
func stringOr(value gjson.Result, fallback string) string {
	switch value.Type {
	case gjson.String:
		return value.Str
	case gjson.Number, gjson.True, gjson.False:
		return value.String()
	default:
		return fallback
	}
}

// nonEmptyStringOr behaves like stringOr but also replaces blank strings.
func nonEmptyStringOr(value gjson.Result, fallback string) string {
	converted := stringOr(value, fallback)
	if strings.TrimSpace(converted) == "" {
		return fallback
	}
	return converted
}

// intOr parses numbers and numeric strings, falling back for everything else,
// including values outside the int range.
func intOr(value gjson.Result, fallback int) int {
	switch value.Type {
	case gjson.Number:
		return roundedIntOr(value.Num, fallback)
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil {
			return fallback
		}
		return roundedIntOr(parsed, fallback)
	default:
		return fallback
	}
}

func roundedIntOr(number float64, fallback int) int {
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return fallback
	}
	rounded := math.Round(number)
	if rounded >= float64(math.MaxInt) || rounded < float64(math.MinInt) {
		return fallback
	}
	return int(rounded)
}

// soundVolumeOr reads a volume and clamps it onto the volume scale.
func soundVolumeOr(value gjson.Result, fallback int) int {
	return feedsettings.ClampSoundVolume(intOr(value, fallback))
}

func boolPointer(value gjson.Result) *bool {
	if !present(value) {
		return nil
	}
	converted := boolOr(value, false)
	return &converted
}

func stringPointer(value gjson.Result) *string {
	if value.Type != gjson.String && value.Type != gjson.Number {
		return nil
	}
	converted := stringOr(value, "")
	return &converted
}

func intPointer(value gjson.Result) *int {
	if value.Type != gjson.Number && value.Type != gjson.String {
		return nil
	}
	const sentinel = math.MinInt
	converted := intOr(value, sentinel)
	if converted == sentinel {
		return nil
	}
	return &converted
}

func soundVolumePointer(value gjson.Result) *int {
	volume := intPointer(value)
	if volume == nil {
		return nil
	}
	clamped := feedsettings.ClampSoundVolume(*volume)
	return &clamped
}
