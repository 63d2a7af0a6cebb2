package feedsettings

import (
	"strings"

	"github.com/samber/lo"
)

const handlePrefix = "@"

// NormalizeHandle lowercases a handle and strips surrounding whitespace and a leading "@".
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), handlePrefix))
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	return lo.ToPtr(*value)
}

func cloneSlice[T any](values []T, cloneValue func(T) T) []T {
	if values == nil {
		return nil
	}
	return lo.Map(values, func(value T, _ int) T {
		return cloneValue(value)
	})
}

// Clone returns a deep copy of the keyword.
func (keyword Keyword) Clone() Keyword {
	keyword.AutoBuy = clonePointer(keyword.AutoBuy)
	return keyword
}

// Clone returns a deep copy of the filters.
func (filters ContentFilters) Clone() ContentFilters {
	filters.Keywords = cloneSlice(filters.Keywords, Keyword.Clone)
	return filters
}

// Clone returns a deep copy of the tweet type settings.
func (settings TweetTypeSettings) Clone() TweetTypeSettings {
	settings.LaunchPlatform = clonePointer(settings.LaunchPlatform)
	return settings
}

// Clone returns a deep copy of the map.
func (settings TweetTypeSettingsMap) Clone() TweetTypeSettingsMap {
	if settings == nil {
		return nil
	}
	cloned := make(TweetTypeSettingsMap, len(settings))
	for tweetType, typeSettings := range settings {
		cloned[tweetType] = typeSettings.Clone()
	}
	return cloned
}

// Clone returns a deep copy of the override.
func (override TweetTypeOverride) Clone() TweetTypeOverride {
	override.Enabled = clonePointer(override.Enabled)
	override.HighlightEnabled = clonePointer(override.HighlightEnabled)
	override.HighlightColor = clonePointer(override.HighlightColor)
	override.LaunchPlatform = clonePointer(override.LaunchPlatform)
	if override.Notification != nil {
		override.Notification = &NotificationOverride{
			Desktop: clonePointer(override.Notification.Desktop),
			Sound:   clonePointer(override.Notification.Sound),
			SoundID: clonePointer(override.Notification.SoundID),
		}
	}
	return override
}

// Clone returns a deep copy of the settings.
func (settings FeedSettings) Clone() FeedSettings {
	settings.TweetTypes = settings.TweetTypes.Clone()
	if settings.Filters != nil {
		settings.Filters = lo.ToPtr(settings.Filters.Clone())
	}
	return settings
}

// Clone returns a deep copy of the settings.
func (settings GlobalFeedSettings) Clone() GlobalFeedSettings {
	return GlobalFeedSettings{FeedSettings: settings.FeedSettings.Clone()}
}

// Clone returns a deep copy of the settings.
func (settings FeedGroupSettings) Clone() FeedGroupSettings {
	return FeedGroupSettings{UseGlobalSettings: settings.UseGlobalSettings, FeedSettings: settings.FeedSettings.Clone()}
}

// Clone returns a deep copy of the settings.
func (settings AccountSettings) Clone() AccountSettings {
	settings.AutoTranslate = clonePointer(settings.AutoTranslate)
	settings.TranslateLanguage = clonePointer(settings.TranslateLanguage)
	settings.SoundVolume = clonePointer(settings.SoundVolume)
	settings.LaunchPlatform = clonePointer(settings.LaunchPlatform)
	settings.PauseOnHover = clonePointer(settings.PauseOnHover)
	if settings.TweetTypes != nil {
		overrides := make(map[TweetType]TweetTypeOverride, len(settings.TweetTypes))
		for tweetType, override := range settings.TweetTypes {
			overrides[tweetType] = override.Clone()
		}
		settings.TweetTypes = overrides
	}
	if settings.Filters != nil {
		settings.Filters = lo.ToPtr(settings.Filters.Clone())
	}
	return settings
}

// Clone returns a deep copy of the account.
func (account Account) Clone() Account {
	if account.Settings != nil {
		account.Settings = lo.ToPtr(account.Settings.Clone())
	}
	return account
}

// Clone returns a deep copy of the group.
func (group FeedGroup) Clone() FeedGroup {
	group.Accounts = cloneSlice(group.Accounts, Account.Clone)
	group.Settings = group.Settings.Clone()
	return group
}

// Clone returns a deep copy of the state.
func (state State) Clone() State {
	return State{
		Groups:         cloneSlice(state.Groups, FeedGroup.Clone),
		GlobalSettings: state.GlobalSettings.Clone(),
		RecentColors:   cloneSlice(state.RecentColors, func(color string) string { return color }),
	}
}
