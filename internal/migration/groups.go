package migration

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	keyName        = "name"
	keyIcon        = "icon"
	keyAccounts    = "accounts"
	keySettings    = "settings"
	keyHandle      = "handle"
	keyDisplayName = "displayName"
	keyAvatar      = "avatar"

	defaultGroupNameFormat = "Group %d"
)

var (
	handleKeys      = []string{keyHandle, "username", "screenName"}
	displayNameKeys = []string{keyDisplayName, keyName}
	avatarKeys      = []string{keyAvatar, "avatarUrl", "profileImageUrl"}
)

// Groups converts a stored group list. Non-object elements are dropped and
// groups stored without an id or name receive generated ones.
func Groups(value gjson.Result) []feedsettings.FeedGroup {
	groups := []feedsettings.FeedGroup{}
	if !value.IsArray() {
		return groups
	}
	for _, element := range value.Array() {
		if !element.IsObject() {
			continue
		}
		groups = append(groups, group(element, len(groups)+1))
	}
	return groups
}

func group(value gjson.Result, position int) feedsettings.FeedGroup {
	groupID := nonEmptyStringOr(value.Get(keyID), "")
	if groupID == "" {
		groupID = uuid.NewString()
	}
	return feedsettings.FeedGroup{
		ID:       groupID,
		Name:     nonEmptyStringOr(value.Get(keyName), fmt.Sprintf(defaultGroupNameFormat, position)),
		Icon:     nonEmptyStringOr(value.Get(keyIcon), feedsettings.DefaultGroupIcon),
		Accounts: Accounts(value.Get(keyAccounts)),
		Settings: GroupSettings(value.Get(keySettings)),
	}
}

// Accounts converts a stored account list. Bare strings are treated as handles;
// entries without a usable handle are dropped.
func Accounts(value gjson.Result) []feedsettings.Account {
	accounts := []feedsettings.Account{}
	if !value.IsArray() {
		return accounts
	}
	for _, element := range value.Array() {
		if account, ok := migrateAccount(element); ok {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

func migrateAccount(element gjson.Result) (feedsettings.Account, bool) {
	switch {
	case element.Type == gjson.String:
		handle := cleanHandle(element.Str)
		return feedsettings.Account{Handle: handle}, handle != ""
	case element.IsObject():
		handle := cleanHandle(firstAvailable(element, handleKeys))
		if handle == "" {
			return feedsettings.Account{}, false
		}
		return feedsettings.Account{
			Handle:      handle,
			DisplayName: firstAvailable(element, displayNameKeys),
			Avatar:      firstAvailable(element, avatarKeys),
			Settings:    AccountSettings(element.Get(keySettings)),
		}, true
	default:
		return feedsettings.Account{}, false
	}
}

func firstAvailable(value gjson.Result, keys []string) string {
	for _, key := range keys {
		if candidate := strings.TrimSpace(stringOr(value.Get(key), "")); candidate != "" {
			return candidate
		}
	}
	return ""
}

func cleanHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}
