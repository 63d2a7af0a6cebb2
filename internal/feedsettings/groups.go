package feedsettings

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

const (
	errMessageGroupNotFound      = "feed group not found"
	errMessageAccountNotFound    = "account not found in feed group"
	errMessageAccountDuplicate   = "account already tracked in feed group"
	errMessageAccountHandleBlank = "account handle cannot be empty"
)

var (
	// ErrGroupNotFound reports a reference to an unknown group.
	ErrGroupNotFound = errors.New(errMessageGroupNotFound)
	// ErrAccountNotFound reports a reference to an account the group does not track.
	ErrAccountNotFound = errors.New(errMessageAccountNotFound)
	// ErrAccountDuplicate rejects tracking the same handle twice in one group.
	ErrAccountDuplicate = errors.New(errMessageAccountDuplicate)
	// ErrAccountHandleBlank rejects an account without a handle.
	ErrAccountHandleBlank = errors.New(errMessageAccountHandleBlank)
)

// ReplaceGroup returns a copy of groups with the group of the same identifier replaced.
func ReplaceGroup(groups []FeedGroup, group FeedGroup) ([]FeedGroup, error) {
	_, index, found := lo.FindIndexOf(groups, func(existing FeedGroup) bool {
		return existing.ID == group.ID
	})
	if !found {
		return groups, ErrGroupNotFound
	}
	updated := cloneSlice(groups, FeedGroup.Clone)
	updated[index] = group.Clone()
	return updated, nil
}

// AddAccount returns a copy of group tracking one more account.
func AddAccount(group FeedGroup, account Account) (FeedGroup, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(account.Handle), handlePrefix)
	if handle == "" {
		return group, ErrAccountHandleBlank
	}
	if _, exists := group.FindAccount(handle); exists {
		return group, ErrAccountDuplicate
	}
	account.Handle = handle
	updated := group.Clone()
	updated.Accounts = append(updated.Accounts, account.Clone())
	return updated, nil
}

// UpdateAccount returns a copy of group with the account of the same handle replaced.
func UpdateAccount(group FeedGroup, account Account) (FeedGroup, error) {
	normalizedHandle := NormalizeHandle(account.Handle)
	_, index, found := lo.FindIndexOf(group.Accounts, func(existing Account) bool {
		return NormalizeHandle(existing.Handle) == normalizedHandle
	})
	if !found {
		return group, ErrAccountNotFound
	}
	updated := group.Clone()
	updated.Accounts[index] = account.Clone()
	return updated, nil
}

// RemoveAccount returns a copy of group without the account tracked under handle.
func RemoveAccount(group FeedGroup, handle string) (FeedGroup, error) {
	if _, exists := group.FindAccount(handle); !exists {
		return group, ErrAccountNotFound
	}
	normalizedHandle := NormalizeHandle(handle)
	updated := group.Clone()
	updated.Accounts = lo.Filter(updated.Accounts, func(existing Account, _ int) bool {
		return NormalizeHandle(existing.Handle) != normalizedHandle
	})
	return updated, nil
}

// TrackedHandles lists the distinct handles across all groups in first-seen order.
func TrackedHandles(groups []FeedGroup) []string {
	handles := make([]string, 0)
	for _, group := range groups {
		for _, account := range group.Accounts {
			handles = append(handles, account.Handle)
		}
	}
	return lo.UniqBy(handles, NormalizeHandle)
}
