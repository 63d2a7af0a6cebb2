package migration

import (
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	keyAutoTranslate     = "autoTranslate"
	keyTranslateLanguage = "translateLanguage"
	keySoundVolume       = "soundVolume"
	keyPauseOnHover      = "pauseOnHover"
	keyFilters           = "filters"
	keyUseGlobalSettings = "useGlobalSettings"
)

// GlobalSettings converts stored global settings. The result is always complete.
func GlobalSettings(value gjson.Result) feedsettings.GlobalFeedSettings {
	return feedsettings.GlobalFeedSettings{FeedSettings: feedSettings(value)}
}

// GroupSettings converts stored group settings. Missing useGlobalSettings keeps
// the group deferring to the global settings.
func GroupSettings(value gjson.Result) feedsettings.FeedGroupSettings {
	defaults := feedsettings.DefaultGroupSettings()
	settings := feedsettings.FeedGroupSettings{FeedSettings: feedSettings(value)}
	switch DetectFeedSettingsSchema(value) {
	case SchemaCurrent:
		settings.UseGlobalSettings = boolOr(value.Get(keyUseGlobalSettings), defaults.UseGlobalSettings)
	case SchemaLegacy:
		settings.UseGlobalSettings = legacyBool(value.Get(keyUseGlobalSettings), defaults.UseGlobalSettings)
	default:
		settings.UseGlobalSettings = defaults.UseGlobalSettings
	}
	return settings
}

func feedSettings(value gjson.Result) feedsettings.FeedSettings {
	switch DetectFeedSettingsSchema(value) {
	case SchemaCurrent:
		return currentFeedSettings(value)
	case SchemaLegacy:
		return legacyFeedSettings(value)
	default:
		return feedsettings.DefaultFeedSettings()
	}
}

func currentFeedSettings(value gjson.Result) feedsettings.FeedSettings {
	defaults := feedsettings.DefaultFeedSettings()
	return feedsettings.FeedSettings{
		AutoTranslate:     boolOr(value.Get(keyAutoTranslate), defaults.AutoTranslate),
		TranslateLanguage: stringOr(value.Get(keyTranslateLanguage), defaults.TranslateLanguage),
		SoundVolume:       soundVolumeOr(value.Get(keySoundVolume), defaults.SoundVolume),
		LaunchPlatform:    stringOr(value.Get(keyLaunchPlatform), defaults.LaunchPlatform),
		PauseOnHover:      boolOr(value.Get(keyPauseOnHover), defaults.PauseOnHover),
		TweetTypes:        TweetTypeSettings(value.Get(keyTweetTypes)),
		Filters:           OptionalFilters(value.Get(keyFilters)),
	}
}

func legacyFeedSettings(value gjson.Result) feedsettings.FeedSettings {
	defaults := feedsettings.DefaultFeedSettings()
	return feedsettings.FeedSettings{
		AutoTranslate:     truthy(value.Get(keyAutoTranslate)),
		TranslateLanguage: nonEmptyStringOr(value.Get(keyTranslateLanguage), defaults.TranslateLanguage),
		SoundVolume:       soundVolumeOr(value.Get(keySoundVolume), defaults.SoundVolume),
		LaunchPlatform:    nonEmptyStringOr(value.Get(keyLaunchPlatform), defaults.LaunchPlatform),
		PauseOnHover:      legacyBool(value.Get(keyPauseOnHover), defaults.PauseOnHover),
		TweetTypes:        TweetTypeSettings(value.Get(keyTweetTypes)),
		Filters:           OptionalFilters(value.Get(keyFilters)),
	}
}

// legacyBool coerces a stored value by truthiness and keeps the fallback when it is missing.
func legacyBool(value gjson.Result, fallback bool) bool {
	if !present(value) {
		return fallback
	}
	return truthy(value)
}

// AccountSettings converts stored account overrides. Only stored fields become
// overrides; a missing or non-object value yields nil.
func AccountSettings(value gjson.Result) *feedsettings.AccountSettings {
	switch DetectAccountSchema(value) {
	case SchemaCurrent:
		return currentAccountSettings(value)
	case SchemaLegacy:
		return legacyAccountSettings(value)
	default:
		return nil
	}
}

func currentAccountSettings(value gjson.Result) *feedsettings.AccountSettings {
	return &feedsettings.AccountSettings{
		AutoTranslate:     boolPointer(value.Get(keyAutoTranslate)),
		TranslateLanguage: stringPointer(value.Get(keyTranslateLanguage)),
		SoundVolume:       soundVolumePointer(value.Get(keySoundVolume)),
		LaunchPlatform:    stringPointer(value.Get(keyLaunchPlatform)),
		PauseOnHover:      boolPointer(value.Get(keyPauseOnHover)),
		TweetTypes:        TweetTypeOverrides(value.Get(keyTweetTypes)),
		Filters:           OptionalFilters(value.Get(keyFilters)),
	}
}

func legacyAccountSettings(value gjson.Result) *feedsettings.AccountSettings {
	settings := currentAccountSettings(value)
	settings.TranslateLanguage = nonEmptyStringPointer(value.Get(keyTranslateLanguage))
	settings.LaunchPlatform = nonEmptyStringPointer(value.Get(keyLaunchPlatform))
	return settings
}
