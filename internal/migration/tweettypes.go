package migration

import (
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	keyHighlightEnabled = "highlightEnabled"
	keyHighlightColor   = "highlightColor"
	keyLaunchPlatform   = "launchPlatform"
)

// TweetTypeSettings converts a stored tweet type map into a complete map. Object
// entries keep their present sub-fields, boolean entries set only the enabled
// flag and every other entry takes the factory configuration.
func TweetTypeSettings(value gjson.Result) feedsettings.TweetTypeSettingsMap {
	settings := make(feedsettings.TweetTypeSettingsMap, len(feedsettings.TweetTypes))
	for _, tweetType := range feedsettings.TweetTypes {
		settings[tweetType] = tweetTypeSetting(tweetType, value.Get(tweetTypeKey(tweetType)))
	}
	return settings
}

func tweetTypeSetting(tweetType feedsettings.TweetType, entry gjson.Result) feedsettings.TweetTypeSettings {
	defaults := feedsettings.DefaultTweetTypeSetting(tweetType)
	switch {
	case entry.IsObject():
		return feedsettings.TweetTypeSettings{
			Enabled:          boolOr(entry.Get(keyEnabled), defaults.Enabled),
			Notification:     Notification(entry.Get(keyNotification), defaults.Notification),
			HighlightEnabled: boolOr(entry.Get(keyHighlightEnabled), defaults.HighlightEnabled),
			HighlightColor:   stringOr(entry.Get(keyHighlightColor), defaults.HighlightColor),
			LaunchPlatform:   nonEmptyStringPointer(entry.Get(keyLaunchPlatform)),
		}
	case entry.IsBool():
		defaults.Enabled = entry.Bool()
		return defaults
	default:
		return defaults
	}
}

// TweetTypeOverrides converts a stored account-level tweet type map. Only the
// sub-fields actually stored become overrides; entries that override nothing are
// dropped and an empty result is nil.
func TweetTypeOverrides(value gjson.Result) map[feedsettings.TweetType]feedsettings.TweetTypeOverride {
	if !value.IsObject() {
		return nil
	}
	overrides := map[feedsettings.TweetType]feedsettings.TweetTypeOverride{}
	for _, tweetType := range feedsettings.TweetTypes {
		override, ok := tweetTypeOverride(value.Get(tweetTypeKey(tweetType)))
		if ok {
			overrides[tweetType] = override
		}
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

func tweetTypeOverride(entry gjson.Result) (feedsettings.TweetTypeOverride, bool) {
	switch {
	case entry.IsBool():
		enabled := entry.Bool()
		return feedsettings.TweetTypeOverride{Enabled: &enabled}, true
	case entry.IsObject():
		override := feedsettings.TweetTypeOverride{
			Enabled:          boolPointer(entry.Get(keyEnabled)),
			Notification:     notificationOverride(entry.Get(keyNotification)),
			HighlightEnabled: boolPointer(entry.Get(keyHighlightEnabled)),
			HighlightColor:   stringPointer(entry.Get(keyHighlightColor)),
			LaunchPlatform:   nonEmptyStringPointer(entry.Get(keyLaunchPlatform)),
		}
		empty := override.Enabled == nil && override.Notification == nil && override.HighlightEnabled == nil &&
			override.HighlightColor == nil && override.LaunchPlatform == nil
		return override, !empty
	default:
		return feedsettings.TweetTypeOverride{}, false
	}
}

func notificationOverride(value gjson.Result) *feedsettings.NotificationOverride {
	if !value.IsObject() {
		return nil
	}
	override := feedsettings.NotificationOverride{
		Desktop: boolPointer(value.Get(keyDesktop)),
		Sound:   boolPointer(value.Get(keySound)),
		SoundID: stringPointer(value.Get(keySoundID)),
	}
	if override.Desktop == nil && override.Sound == nil && override.SoundID == nil {
		return nil
	}
	return &override
}

func nonEmptyStringPointer(value gjson.Result) *string {
	converted := nonEmptyStringOr(value, "")
	if converted == "" {
		return nil
	}
	return &converted
}
