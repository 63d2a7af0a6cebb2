package feedsettings

// TweetType identifies a category of tracked content.
type TweetType string

const (
	// TweetTypePosts covers original posts.
	TweetTypePosts TweetType = "posts"
	// TweetTypeReplies covers replies to other posts.
	TweetTypeReplies TweetType = "replies"
	// TweetTypeQuotes covers quote posts.
	TweetTypeQuotes TweetType = "quotes"
	// TweetTypeReposts covers reposts.
	TweetTypeReposts TweetType = "reposts"
	// TweetTypeDeleted covers posts removed after being observed.
	TweetTypeDeleted TweetType = "deleted"
	// TweetTypeFollowing covers follow events of a tracked account.
	TweetTypeFollowing TweetType = "following"
)

// TweetTypes lists every tweet type in display order.
var TweetTypes = []TweetType{
	TweetTypePosts,
	TweetTypeReplies,
	TweetTypeQuotes,
	TweetTypeReposts,
	TweetTypeDeleted,
	TweetTypeFollowing,
}

// Valid reports whether the tweet type is one of the known categories.
func (tweetType TweetType) Valid() bool {
	for _, knownType := range TweetTypes {
		if knownType == tweetType {
			return true
		}
	}
	return false
}

// NotificationSettings describes how a match is announced.
type NotificationSettings struct {
	Desktop bool   `json:"desktop"`
	Sound   bool   `json:"sound"`
	SoundID string `json:"soundId"`
}

// AutoBuySettings describes a purchase triggered by a keyword match.
type AutoBuySettings struct {
	Enabled      bool   `json:"enabled"`
	TokenAddress string `json:"tokenAddress"`
	BuyAmount    string `json:"buyAmount"`
}

// Keyword is a user-defined highlight and notification trigger.
type Keyword struct {
	ID            string               `json:"id"`
	Text          string               `json:"text"`
	Color         string               `json:"color"`
	CaseSensitive bool                 `json:"caseSensitive"`
	WholeWord     bool                 `json:"wholeWord"`
	Enabled       bool                 `json:"enabled"`
	Notification  NotificationSettings `json:"notification"`
	AutoBuy       *AutoBuySettings     `json:"autoBuy,omitempty"`
}

// ContentFilters groups the token symbol and mint address detectors with the keyword list.
type ContentFilters struct {
	FilterTokenSymbols      bool                 `json:"filterTokenSymbols"`
	TokenSymbolColor        string               `json:"tokenSymbolColor"`
	TokenSymbolNotification NotificationSettings `json:"tokenSymbolNotification"`
	FilterMintAddresses     bool                 `json:"filterMintAddresses"`
	MintAddressColor        string               `json:"mintAddressColor"`
	MintAddressNotification NotificationSettings `json:"mintAddressNotification"`
	Keywords                []Keyword            `json:"keywords"`
}

// TweetTypeSettings configures a single tweet type.
type TweetTypeSettings struct {
	Enabled          bool                 `json:"enabled"`
	Notification     NotificationSettings `json:"notification"`
	HighlightEnabled bool                 `json:"highlightEnabled"`
	HighlightColor   string               `json:"highlightColor"`
	LaunchPlatform   *string              `json:"launchPlatform,omitempty"`
}

// TweetTypeSettingsMap holds a complete configuration for every tweet type.
type TweetTypeSettingsMap map[TweetType]TweetTypeSettings

// NotificationOverride carries the notification sub-fields an account overrides.
type NotificationOverride struct {
	Desktop *bool   `json:"desktop,omitempty"`
	Sound   *bool   `json:"sound,omitempty"`
	SoundID *string `json:"soundId,omitempty"`
}

// TweetTypeOverride carries the tweet type sub-fields an account overrides.
// A nil field inherits the effective group value.
type TweetTypeOverride struct {
	Enabled          *bool                 `json:"enabled,omitempty"`
	Notification     *NotificationOverride `json:"notification,omitempty"`
	HighlightEnabled *bool                 `json:"highlightEnabled,omitempty"`
	HighlightColor   *string               `json:"highlightColor,omitempty"`
	LaunchPlatform   *string               `json:"launchPlatform,omitempty"`
}

// FeedSettings is the concrete configuration shape shared by the global and group tiers.
type FeedSettings struct {
	AutoTranslate     bool                 `json:"autoTranslate"`
	TranslateLanguage string               `json:"translateLanguage"`
	SoundVolume       int                  `json:"soundVolume"`
	LaunchPlatform    string               `json:"launchPlatform"`
	PauseOnHover      bool                 `json:"pauseOnHover"`
	TweetTypes        TweetTypeSettingsMap `json:"tweetTypes"`
	Filters           *ContentFilters      `json:"filters,omitempty"`
}

// GlobalFeedSettings is the top-level default configuration.
type GlobalFeedSettings struct {
	FeedSettings
}

// FeedGroupSettings is a group's configuration. When UseGlobalSettings is set the
// remaining fields are ignored and the global settings apply wholesale.
type FeedGroupSettings struct {
	UseGlobalSettings bool `json:"useGlobalSettings"`
	FeedSettings
}

// AccountSettings holds per-account overrides; a nil field inherits.
type AccountSettings struct {
	AutoTranslate     *bool                           `json:"autoTranslate,omitempty"`
	TranslateLanguage *string                         `json:"translateLanguage,omitempty"`
	SoundVolume       *int                            `json:"soundVolume,omitempty"`
	LaunchPlatform    *string                         `json:"launchPlatform,omitempty"`
	PauseOnHover      *bool                           `json:"pauseOnHover,omitempty"`
	TweetTypes        map[TweetType]TweetTypeOverride `json:"tweetTypes,omitempty"`
	Filters           *ContentFilters                 `json:"filters,omitempty"`
}

// Account is a tracked social handle.
type Account struct {
	Handle      string           `json:"handle"`
	DisplayName string           `json:"displayName,omitempty"`
	Avatar      string           `json:"avatar,omitempty"`
	Settings    *AccountSettings `json:"settings,omitempty"`
}

// FeedGroup is a named collection of tracked accounts sharing configuration.
type FeedGroup struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Icon     string            `json:"icon"`
	Accounts []Account         `json:"accounts"`
	Settings FeedGroupSettings `json:"settings"`
}

// State is the complete persisted feed configuration.
type State struct {
	Groups         []FeedGroup        `json:"groups"`
	GlobalSettings GlobalFeedSettings `json:"globalSettings"`
	RecentColors   []string           `json:"recentColors"`
}

// FindGroup returns the group with the supplied identifier.
func (state State) FindGroup(groupID string) (FeedGroup, bool) {
	for _, group := range state.Groups {
		if group.ID == groupID {
			return group, true
		}
	}
	return FeedGroup{}, false
}

// FindAccount returns the account tracked under handle, compared case-insensitively
// and ignoring a leading "@".
func (group FeedGroup) FindAccount(handle string) (Account, bool) {
	normalizedHandle := NormalizeHandle(handle)
	for _, account := range group.Accounts {
		if NormalizeHandle(account.Handle) == normalizedHandle {
			return account, true
		}
	}
	return Account{}, false
}
