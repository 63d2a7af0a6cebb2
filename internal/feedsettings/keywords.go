package feedsettings

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	errMessageKeywordTextEmpty = "keyword text cannot be empty"
	errMessageKeywordDuplicate = "keyword already exists"
	errMessageKeywordNotFound  = "keyword not found"
)

var (
	// ErrKeywordTextEmpty rejects a keyword whose text is blank.
	ErrKeywordTextEmpty = errors.New(errMessageKeywordTextEmpty)
	// ErrKeywordDuplicate rejects a keyword whose text is already in the list.
	ErrKeywordDuplicate = errors.New(errMessageKeywordDuplicate)
	// ErrKeywordNotFound reports an update or removal of an unknown keyword.
	ErrKeywordNotFound = errors.New(errMessageKeywordNotFound)
)

// KeywordDraft is the content of the keyword form before it is accepted.
type KeywordDraft struct {
	Text          string                `json:"text"`
	Color         string                `json:"color"`
	CaseSensitive bool                  `json:"caseSensitive"`
	WholeWord     bool                  `json:"wholeWord"`
	Notification  *NotificationSettings `json:"notification,omitempty"`
	AutoBuy       *AutoBuySettings      `json:"autoBuy,omitempty"`
}

// NewKeywordID generates a stable identifier for a keyword.
func NewKeywordID() string {
	return uuid.NewString()
}

// NewKeyword builds an enabled keyword from text using the default color and notification.
func NewKeyword(text string) Keyword {
	return Keyword{
		ID:           NewKeywordID(),
		Text:         text,
		Color:        DefaultKeywordColor,
		Enabled:      true,
		Notification: DefaultKeywordNotification(),
	}
}

// ValidateKeywordText checks draft text against the existing keywords. Duplicates are
// detected case-insensitively; the keyword identified by editingID is ignored so an
// edit can keep its own text.
func ValidateKeywordText(existing []Keyword, text string, editingID string) error {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ErrKeywordTextEmpty
	}
	duplicate := lo.ContainsBy(existing, func(keyword Keyword) bool {
		return keyword.ID != editingID && strings.EqualFold(strings.TrimSpace(keyword.Text), trimmedText)
	})
	if duplicate {
		return ErrKeywordDuplicate
	}
	return nil
}

// AddKeyword validates a draft and appends the resulting keyword to filters.
func AddKeyword(filters ContentFilters, draft KeywordDraft) (ContentFilters, Keyword, error) {
	if err := ValidateKeywordText(filters.Keywords, draft.Text, ""); err != nil {
		return filters, Keyword{}, err
	}
	color, colorErr := normalizeDraftColor(draft.Color)
	if colorErr != nil {
		return filters, Keyword{}, colorErr
	}

	keyword := NewKeyword(strings.TrimSpace(draft.Text))
	keyword.Color = color
	keyword.CaseSensitive = draft.CaseSensitive
	keyword.WholeWord = draft.WholeWord
	if draft.Notification != nil {
		keyword.Notification = *draft.Notification
	}
	keyword.AutoBuy = clonePointer(draft.AutoBuy)

	updated := filters.Clone()
	updated.Keywords = append(updated.Keywords, keyword)
	return updated, keyword, nil
}

// UpdateKeyword replaces the keyword with the same identifier after validating its text.
func UpdateKeyword(filters ContentFilters, keyword Keyword) (ContentFilters, error) {
	_, index, found := lo.FindIndexOf(filters.Keywords, func(existing Keyword) bool {
		return existing.ID == keyword.ID
	})
	if !found {
		return filters, ErrKeywordNotFound
	}
	if err := ValidateKeywordText(filters.Keywords, keyword.Text, keyword.ID); err != nil {
		return filters, err
	}
	color, colorErr := normalizeDraftColor(keyword.Color)
	if colorErr != nil {
		return filters, colorErr
	}
	keyword.Text = strings.TrimSpace(keyword.Text)
	keyword.Color = color

	updated := filters.Clone()
	updated.Keywords[index] = keyword.Clone()
	return updated, nil
}

// SetKeywordEnabled toggles a keyword in place.
func SetKeywordEnabled(filters ContentFilters, keywordID string, enabled bool) (ContentFilters, error) {
	_, index, found := lo.FindIndexOf(filters.Keywords, func(existing Keyword) bool {
		return existing.ID == keywordID
	})
	if !found {
		return filters, ErrKeywordNotFound
	}
	updated := filters.Clone()
	updated.Keywords[index].Enabled = enabled
	return updated, nil
}

// RemoveKeyword deletes the keyword with the supplied identifier.
func RemoveKeyword(filters ContentFilters, keywordID string) (ContentFilters, error) {
	if !lo.ContainsBy(filters.Keywords, func(existing Keyword) bool { return existing.ID == keywordID }) {
		return filters, ErrKeywordNotFound
	}
	updated := filters.Clone()
	updated.Keywords = lo.Filter(updated.Keywords, func(existing Keyword, _ int) bool {
		return existing.ID != keywordID
	})
	return updated, nil
}

func normalizeDraftColor(color string) (string, error) {
	if strings.TrimSpace(color) == "" {
		return DefaultKeywordColor, nil
	}
	return NormalizeHexColor(color)
}
