package feedsettings

import (
	"github.com/samber/lo"
)

// EffectiveSettings returns the settings that apply to a group.
//
// Group-level inheritance is all-or-nothing: a group that uses the global
// settings receives the global settings wholesale and its own fields are
// ignored, otherwise it receives its own settings unchanged.
func EffectiveSettings(group FeedGroup, global GlobalFeedSettings) FeedSettings {
	if group.Settings.UseGlobalSettings {
		return global.FeedSettings.Clone()
	}
	return group.Settings.FeedSettings.Clone()
}

// ResolveAccountSettings returns the fully resolved settings of an account tracked in group.
//
// Account-level inheritance is per field: every field the account leaves unset
// comes from the group's effective settings, and tweet type entries resolve
// sub-field by sub-field. Account filters replace the group filters wholesale.
func ResolveAccountSettings(account Account, group FeedGroup, global GlobalFeedSettings) FeedSettings {
	return ApplyAccountSettings(account.Settings, EffectiveSettings(group, global))
}

// ApplyAccountSettings layers account overrides on top of already effective group settings.
func ApplyAccountSettings(accountSettings *AccountSettings, groupSettings FeedSettings) FeedSettings {
	if accountSettings == nil {
		return groupSettings.Clone()
	}
	resolved := FeedSettings{
		AutoTranslate:     lo.FromPtrOr(accountSettings.AutoTranslate, groupSettings.AutoTranslate),
		TranslateLanguage: lo.FromPtrOr(accountSettings.TranslateLanguage, groupSettings.TranslateLanguage),
		SoundVolume:       ClampSoundVolume(lo.FromPtrOr(accountSettings.SoundVolume, groupSettings.SoundVolume)),
		LaunchPlatform:    lo.FromPtrOr(accountSettings.LaunchPlatform, groupSettings.LaunchPlatform),
		PauseOnHover:      lo.FromPtrOr(accountSettings.PauseOnHover, groupSettings.PauseOnHover),
		TweetTypes:        make(TweetTypeSettingsMap, len(TweetTypes)),
		Filters:           groupSettings.Filters,
	}
	if accountSettings.Filters != nil {
		resolved.Filters = accountSettings.Filters
	}
	if resolved.Filters != nil {
		resolved.Filters = lo.ToPtr(resolved.Filters.Clone())
	}
	for _, tweetType := range TweetTypes {
		resolved.TweetTypes[tweetType] = resolveTweetType(accountSettings.TweetTypes[tweetType], groupTweetType(groupSettings, tweetType))
	}
	return resolved
}

// EffectiveTweetType returns the resolved configuration of one tweet type for an account.
func EffectiveTweetType(account Account, groupSettings FeedSettings, tweetType TweetType) TweetTypeSettings {
	var override TweetTypeOverride
	if account.Settings != nil {
		override = account.Settings.TweetTypes[tweetType]
	}
	return resolveTweetType(override, groupTweetType(groupSettings, tweetType))
}

// EffectiveSoundVolume returns the account's sound volume, falling back to the
// group's effective volume. The result always lies on the volume scale.
func EffectiveSoundVolume(account Account, groupSettings FeedSettings) int {
	if account.Settings == nil {
		return ClampSoundVolume(groupSettings.SoundVolume)
	}
	return ClampSoundVolume(lo.FromPtrOr(account.Settings.SoundVolume, groupSettings.SoundVolume))
}

// EffectiveLaunchPlatform returns the platform used for a tweet type's token actions.
// A tweet type's own platform wins over the account and group platforms.
func EffectiveLaunchPlatform(resolved FeedSettings, tweetType TweetType) string {
	if typeSettings, exists := resolved.TweetTypes[tweetType]; exists && typeSettings.LaunchPlatform != nil {
		return *typeSettings.LaunchPlatform
	}
	return resolved.LaunchPlatform
}

func groupTweetType(groupSettings FeedSettings, tweetType TweetType) TweetTypeSettings {
	if typeSettings, exists := groupSettings.TweetTypes[tweetType]; exists {
		return typeSettings
	}
	return DefaultTweetTypeSetting(tweetType)
}

func resolveTweetType(override TweetTypeOverride, inherited TweetTypeSettings) TweetTypeSettings {
	resolved := TweetTypeSettings{
		Enabled:          lo.FromPtrOr(override.Enabled, inherited.Enabled),
		Notification:     inherited.Notification,
		HighlightEnabled: lo.FromPtrOr(override.HighlightEnabled, inherited.HighlightEnabled),
		HighlightColor:   lo.FromPtrOr(override.HighlightColor, inherited.HighlightColor),
		LaunchPlatform:   clonePointer(inherited.LaunchPlatform),
	}
	if override.LaunchPlatform != nil {
		resolved.LaunchPlatform = clonePointer(override.LaunchPlatform)
	}
	if override.Notification != nil {
		resolved.Notification = NotificationSettings{
			Desktop: lo.FromPtrOr(override.Notification.Desktop, inherited.Notification.Desktop),
			Sound:   lo.FromPtrOr(override.Notification.Sound, inherited.Notification.Sound),
			SoundID: lo.FromPtrOr(override.Notification.SoundID, inherited.Notification.SoundID),
		}
	}
	return resolved
}
