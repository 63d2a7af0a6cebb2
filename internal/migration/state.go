package migration

import (
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	// KeyGroups is the storage key of the group list.
	KeyGroups = "groups"
	// KeyGlobalSettings is the storage key of the global settings.
	KeyGlobalSettings = "globalSettings"
	// KeyRecentColors is the storage key of the recent color list.
	KeyRecentColors = "recentColors"
)

// StorageKeys lists every key the feed configuration occupies.
var StorageKeys = []string{KeyGroups, KeyGlobalSettings, KeyRecentColors}

// RecentColors converts a stored recent color list, keeping valid hex colors
// only, most recent first and without duplicates.
func RecentColors(value gjson.Result) []string {
	colors := []string{}
	if !value.IsArray() {
		return colors
	}
	for _, element := range value.Array() {
		if element.Type != gjson.String {
			continue
		}
		normalized, err := feedsettings.NormalizeHexColor(element.Str)
		if err != nil {
			continue
		}
		colors = append(colors, normalized)
	}
	colors = lo.Uniq(colors)
	if len(colors) > feedsettings.MaxRecentColors {
		colors = colors[:feedsettings.MaxRecentColors]
	}
	return colors
}

// State converts the three stored values into a complete configuration.
func State(groups gjson.Result, globalSettings gjson.Result, recentColors gjson.Result) feedsettings.State {
	return feedsettings.State{
		Groups:         Groups(groups),
		GlobalSettings: GlobalSettings(globalSettings),
		RecentColors:   RecentColors(recentColors),
	}
}

// Document converts a single exported object holding the storage keys.
func Document(value gjson.Result) feedsettings.State {
	return State(value.Get(KeyGroups), value.Get(KeyGlobalSettings), value.Get(KeyRecentColors))
}
