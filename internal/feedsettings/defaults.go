package feedsettings

import (
	"github.com/samber/lo"
)

const (
	// DefaultSoundVolume is the notification volume applied when nothing else is configured.
	DefaultSoundVolume = 75
	// DefaultLaunchPlatform is the launch platform used for token actions.
	DefaultLaunchPlatform = "pump"
	// DefaultTranslateLanguage is the target language for auto-translation.
	DefaultTranslateLanguage = "en"
	// DefaultKeywordColor is the highlight color given to new keywords.
	DefaultKeywordColor = "#facc15"
	// DefaultKeywordSoundID is the sound played for keyword matches.
	DefaultKeywordSoundID = "ding"
	// DefaultTokenSymbolColor highlights $SYMBOL mentions.
	DefaultTokenSymbolColor = "#22d3ee"
	// DefaultMintAddressColor highlights mint addresses.
	DefaultMintAddressColor = "#a3e635"
	// DefaultFilterSoundID is the sound played for token symbol and mint address matches.
	DefaultFilterSoundID = "coin"
	// DefaultGroupIcon is the icon given to groups stored without one.
	DefaultGroupIcon = "users"
	// MaxSoundVolume is the upper bound of the volume scale.
	MaxSoundVolume = 100
)

// KnownLaunchPlatforms lists the launch platforms a token action can target.
var KnownLaunchPlatforms = []string{"pump", "bonk", "bags", "believe", "moonshot"}

// ClampSoundVolume limits volume to the range 0 through MaxSoundVolume.
func ClampSoundVolume(volume int) int {
	return lo.Clamp(volume, 0, MaxSoundVolume)
}

type tweetTypeDefault struct {
	enabled        bool
	highlightColor string
	soundID        string
}

var tweetTypeDefaults = map[TweetType]tweetTypeDefault{
	TweetTypePosts:     {enabled: true, highlightColor: "#3b82f6", soundID: "ping"},
	TweetTypeReplies:   {enabled: true, highlightColor: "#8b5cf6", soundID: "pop"},
	TweetTypeQuotes:    {enabled: true, highlightColor: "#10b981", soundID: "chime"},
	TweetTypeReposts:   {enabled: true, highlightColor: "#f59e0b", soundID: "swoosh"},
	TweetTypeDeleted:   {enabled: false, highlightColor: "#ef4444", soundID: "alert"},
	TweetTypeFollowing: {enabled: false, highlightColor: "#ec4899", soundID: "bell"},
}

// DefaultTweetTypeSetting returns the factory configuration of a single tweet type.
func DefaultTweetTypeSetting(tweetType TweetType) TweetTypeSettings {
	defaults := tweetTypeDefaults[tweetType]
	return TweetTypeSettings{
		Enabled:          defaults.enabled,
		Notification:     NotificationSettings{SoundID: defaults.soundID},
		HighlightEnabled: false,
		HighlightColor:   defaults.highlightColor,
	}
}

// DefaultTweetTypeSettings returns a fresh map with the factory configuration of every tweet type.
func DefaultTweetTypeSettings() TweetTypeSettingsMap {
	settings := make(TweetTypeSettingsMap, len(TweetTypes))
	for _, tweetType := range TweetTypes {
		settings[tweetType] = DefaultTweetTypeSetting(tweetType)
	}
	return settings
}

// DefaultKeywordNotification returns the notification triple given to new keywords.
func DefaultKeywordNotification() NotificationSettings {
	return NotificationSettings{Desktop: true, Sound: true, SoundID: DefaultKeywordSoundID}
}

// DefaultFilterNotification returns the notification triple of the token symbol and mint address detectors.
func DefaultFilterNotification() NotificationSettings {
	return NotificationSettings{Desktop: false, Sound: false, SoundID: DefaultFilterSoundID}
}

// DefaultContentFilters returns empty filters with both detectors off.
func DefaultContentFilters() ContentFilters {
	return ContentFilters{
		FilterTokenSymbols:      false,
		TokenSymbolColor:        DefaultTokenSymbolColor,
		TokenSymbolNotification: DefaultFilterNotification(),
		FilterMintAddresses:     false,
		MintAddressColor:        DefaultMintAddressColor,
		MintAddressNotification: DefaultFilterNotification(),
		Keywords:                []Keyword{},
	}
}

// DefaultFeedSettings returns the factory configuration shared by both tiers.
func DefaultFeedSettings() FeedSettings {
	return FeedSettings{
		AutoTranslate:     false,
		TranslateLanguage: DefaultTranslateLanguage,
		SoundVolume:       DefaultSoundVolume,
		LaunchPlatform:    DefaultLaunchPlatform,
		PauseOnHover:      true,
		TweetTypes:        DefaultTweetTypeSettings(),
	}
}

// DefaultGlobalSettings returns a fresh global configuration.
func DefaultGlobalSettings() GlobalFeedSettings {
	return GlobalFeedSettings{FeedSettings: DefaultFeedSettings()}
}

// DefaultGroupSettings returns a fresh group configuration deferring to the global settings.
func DefaultGroupSettings() FeedGroupSettings {
	return FeedGroupSettings{UseGlobalSettings: true, FeedSettings: DefaultFeedSettings()}
}

// DefaultState returns the configuration of a fresh installation.
func DefaultState() State {
	return State{
		Groups:         []FeedGroup{},
		GlobalSettings: DefaultGlobalSettings(),
		RecentColors:   []string{},
	}
}
