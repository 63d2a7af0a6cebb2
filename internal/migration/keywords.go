package migration

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	keyID            = "id"
	keyText          = "text"
	keyColor         = "color"
	keyCaseSensitive = "caseSensitive"
	keyWholeWord     = "wholeWord"
	keyEnabled       = "enabled"
	keyNotification  = "notification"
	keyDesktop       = "desktop"
	keySound         = "sound"
	keySoundID       = "soundId"
	keyAutoBuy       = "autoBuy"
	keyTokenAddress  = "tokenAddress"
	keyBuyAmount     = "buyAmount"
)

// Keywords converts a stored keyword list. Plain strings become full keywords,
// objects with a non-null text field get their missing sub-fields filled, and every other
// element is dropped. Identifiers are generated only for entries lacking one.
func Keywords(value gjson.Result) []feedsettings.Keyword {
	keywords := []feedsettings.Keyword{}
	if !value.IsArray() {
		return keywords
	}
	for _, element := range value.Array() {
		if keyword, ok := migrateKeyword(element); ok {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

func migrateKeyword(element gjson.Result) (feedsettings.Keyword, bool) {
	switch {
	case element.Type == gjson.String:
		return feedsettings.NewKeyword(element.Str), true
	case element.IsObject() && present(element.Get(keyText)):
		keyword := feedsettings.Keyword{
			ID:            nonEmptyStringOr(element.Get(keyID), ""),
			Text:          stringOr(element.Get(keyText), ""),
			Color:         nonEmptyStringOr(element.Get(keyColor), feedsettings.DefaultKeywordColor),
			CaseSensitive: boolOr(element.Get(keyCaseSensitive), false),
			WholeWord:     boolOr(element.Get(keyWholeWord), false),
			Enabled:       boolOr(element.Get(keyEnabled), true),
			Notification:  Notification(element.Get(keyNotification), feedsettings.DefaultKeywordNotification()),
			AutoBuy:       autoBuy(element.Get(keyAutoBuy)),
		}
		if strings.TrimSpace(keyword.ID) == "" {
			keyword.ID = feedsettings.NewKeywordID()
		}
		return keyword, true
	default:
		return feedsettings.Keyword{}, false
	}
}

// Notification fills a notification triple from a stored object, keeping every
// present sub-field and taking the rest from fallback.
func Notification(value gjson.Result, fallback feedsettings.NotificationSettings) feedsettings.NotificationSettings {
	if !value.IsObject() {
		return fallback
	}
	return feedsettings.NotificationSettings{
		Desktop: boolOr(value.Get(keyDesktop), fallback.Desktop),
		Sound:   boolOr(value.Get(keySound), fallback.Sound),
		SoundID: stringOr(value.Get(keySoundID), fallback.SoundID),
	}
}

func autoBuy(value gjson.Result) *feedsettings.AutoBuySettings {
	if !value.IsObject() {
		return nil
	}
	return &feedsettings.AutoBuySettings{
		Enabled:      boolOr(value.Get(keyEnabled), false),
		TokenAddress: stringOr(value.Get(keyTokenAddress), ""),
		BuyAmount:    stringOr(value.Get(keyBuyAmount), ""),
	}
}
