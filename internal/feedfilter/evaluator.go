// Package feedfilter evaluates incoming posts against resolved feed settings.
package feedfilter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

// MatchKind identifies which detector produced a match.
type MatchKind string

const (
	// MatchKindKeyword marks a span matched by a user keyword.
	MatchKindKeyword MatchKind = "keyword"
	// MatchKindTokenSymbol marks a $SYMBOL mention.
	MatchKindTokenSymbol MatchKind = "tokenSymbol"
	// MatchKindMintAddress marks a token mint address.
	MatchKindMintAddress MatchKind = "mintAddress"

	wordBoundaryPrefix  = `(^|[^\pL\pN_])(`
	wordBoundarySuffix  = `)($|[^\pL\pN_])`
	caseInsensitiveFlag = "(?i)"
	cacheKeyFormat      = "%t:%t:%s"
)

var (
	tokenSymbolPattern = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9_]{0,15}\b`)
	mintAddressPattern = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
)

// Post is the content evaluated against feed settings.
type Post struct {
	Author    string                 `json:"author"`
	TweetType feedsettings.TweetType `json:"tweetType"`
	Text      string                 `json:"text"`
}

// Match is a highlighted span of a post.
type Match struct {
	Kind      MatchKind `json:"kind"`
	Text      string    `json:"text"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Color     string    `json:"color"`
	KeywordID string    `json:"keywordId,omitempty"`
}

// AutoBuyTrigger is a purchase requested by a matching keyword.
type AutoBuyTrigger struct {
	KeywordID    string `json:"keywordId"`
	TokenAddress string `json:"tokenAddress"`
	BuyAmount    string `json:"buyAmount"`
}

// Result describes how a post is presented.
type Result struct {
	Visible        bool                              `json:"visible"`
	HighlightColor string                            `json:"highlightColor,omitempty"`
	Matches        []Match                           `json:"matches"`
	Notification   feedsettings.NotificationSettings `json:"notification"`
	Notify         bool                              `json:"notify"`
	SoundVolume    int                               `json:"soundVolume"`
	LaunchPlatform string                            `json:"launchPlatform"`
	AutoBuys       []AutoBuyTrigger                  `json:"autoBuys"`
}

// Evaluator matches posts against settings, caching compiled keyword patterns.
type Evaluator struct {
	regexCache map[string]*regexp.Regexp
	regexMutex sync.RWMutex
}

// NewEvaluator creates an evaluator with an empty pattern cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{regexCache: make(map[string]*regexp.Regexp)}
}

// Evaluate applies resolved settings to a post. Posts of a disabled or unknown
// tweet type are hidden and produce no matches. A known tweet type missing from
// settings takes its factory configuration.
func (evaluator *Evaluator) Evaluate(post Post, settings feedsettings.FeedSettings) Result {
	result := Result{
		Matches:        []Match{},
		AutoBuys:       []AutoBuyTrigger{},
		SoundVolume:    feedsettings.ClampSoundVolume(settings.SoundVolume),
		LaunchPlatform: feedsettings.EffectiveLaunchPlatform(settings, post.TweetType),
	}
	if !post.TweetType.Valid() {
		return result
	}
	typeSettings, configured := settings.TweetTypes[post.TweetType]
	if !configured {
		typeSettings = feedsettings.DefaultTweetTypeSetting(post.TweetType)
	}
	if !typeSettings.Enabled {
		return result
	}
	result.Visible = true

	notifications := []feedsettings.NotificationSettings{}
	highlightColors := []string{}

	if filters := settings.Filters; filters != nil {
		for _, keyword := range filters.Keywords {
			if !keyword.Enabled || strings.TrimSpace(keyword.Text) == "" {
				continue
			}
			keywordMatches := evaluator.matchKeyword(keyword, post.Text)
			if len(keywordMatches) == 0 {
				continue
			}
			result.Matches = append(result.Matches, keywordMatches...)
			highlightColors = append(highlightColors, keyword.Color)
			notifications = append(notifications, keyword.Notification)
			if keyword.AutoBuy != nil && keyword.AutoBuy.Enabled {
				result.AutoBuys = append(result.AutoBuys, AutoBuyTrigger{
					KeywordID:    keyword.ID,
					TokenAddress: keyword.AutoBuy.TokenAddress,
					BuyAmount:    keyword.AutoBuy.BuyAmount,
				})
			}
		}
		if filters.FilterTokenSymbols {
			symbolMatches := patternMatches(tokenSymbolPattern, post.Text, MatchKindTokenSymbol, filters.TokenSymbolColor)
			if len(symbolMatches) > 0 {
				result.Matches = append(result.Matches, symbolMatches...)
				highlightColors = append(highlightColors, filters.TokenSymbolColor)
				notifications = append(notifications, filters.TokenSymbolNotification)
			}
		}
		if filters.FilterMintAddresses {
			addressMatches := patternMatches(mintAddressPattern, post.Text, MatchKindMintAddress, filters.MintAddressColor)
			if len(addressMatches) > 0 {
				result.Matches = append(result.Matches, addressMatches...)
				highlightColors = append(highlightColors, filters.MintAddressColor)
				notifications = append(notifications, filters.MintAddressNotification)
			}
		}
	}

	if typeSettings.HighlightEnabled {
		highlightColors = append(highlightColors, typeSettings.HighlightColor)
	}
	notifications = append(notifications, typeSettings.Notification)

	result.HighlightColor, _ = lo.Find(highlightColors, func(color string) bool { return color != "" })
	result.Notification = mergeNotifications(notifications)
	result.Notify = result.Notification.Desktop || result.Notification.Sound
	sort.SliceStable(result.Matches, func(left, right int) bool {
		return result.Matches[left].Start < result.Matches[right].Start
	})
	return result
}

// ClearCache drops every compiled keyword pattern.
func (evaluator *Evaluator) ClearCache() {
	evaluator.regexMutex.Lock()
	evaluator.regexCache = make(map[string]*regexp.Regexp)
	evaluator.regexMutex.Unlock()
}

func (evaluator *Evaluator) matchKeyword(keyword feedsettings.Keyword, text string) []Match {
	pattern := evaluator.keywordPattern(keyword)
	matches := []Match{}
	group := 0
	if keyword.WholeWord {
		group = 2
	}
	for _, indexes := range pattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := indexes[2*group], indexes[2*group+1]
		matches = append(matches, Match{
			Kind:      MatchKindKeyword,
			Text:      text[start:end],
			Start:     start,
			End:       end,
			Color:     keyword.Color,
			KeywordID: keyword.ID,
		})
	}
	return matches
}

// keywordPattern retrieves or compiles the pattern of a keyword.
func (evaluator *Evaluator) keywordPattern(keyword feedsettings.Keyword) *regexp.Regexp {
	text := strings.TrimSpace(keyword.Text)
	cacheKey := fmt.Sprintf(cacheKeyFormat, keyword.CaseSensitive, keyword.WholeWord, text)

	evaluator.regexMutex.RLock()
	if pattern, exists := evaluator.regexCache[cacheKey]; exists {
		evaluator.regexMutex.RUnlock()
		return pattern
	}
	evaluator.regexMutex.RUnlock()

	evaluator.regexMutex.Lock()
	defer evaluator.regexMutex.Unlock()
	if pattern, exists := evaluator.regexCache[cacheKey]; exists {
		return pattern
	}

	expression := regexp.QuoteMeta(text)
	if keyword.WholeWord {
		expression = wordBoundaryPrefix + expression + wordBoundarySuffix
	}
	if !keyword.CaseSensitive {
		expression = caseInsensitiveFlag + expression
	}
	// Quoted literals always compile.
	pattern := regexp.MustCompile(expression)
	evaluator.regexCache[cacheKey] = pattern
	return pattern
}

func patternMatches(pattern *regexp.Regexp, text string, kind MatchKind, color string) []Match {
	return lo.Map(pattern.FindAllStringIndex(text, -1), func(indexes []int, _ int) Match {
		return Match{Kind: kind, Text: text[indexes[0]:indexes[1]], Start: indexes[0], End: indexes[1], Color: color}
	})
}

// mergeNotifications combines the notification triples of every source that
// fired. Desktop and sound are enabled when any source enables them; the sound
// comes from the first source that plays one.
func mergeNotifications(notifications []feedsettings.NotificationSettings) feedsettings.NotificationSettings {
	merged := feedsettings.NotificationSettings{}
	for _, notification := range notifications {
		merged.Desktop = merged.Desktop || notification.Desktop
		if notification.Sound && !merged.Sound {
			merged.Sound = true
			merged.SoundID = notification.SoundID
		}
	}
	return merged
}
