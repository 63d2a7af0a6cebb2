// Package persistence loads, saves and synchronizes the feed configuration
// through a key-value store.
package persistence

import (
	"context"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

// Change is delivered to subscribers after another context wrote the store.
type Change struct {
	// Keys lists the storage keys that changed.
	Keys []string
	// State is the complete configuration after the change.
	State feedsettings.State
}

// Port is the persistence boundary the rest of the application depends on.
type Port interface {
	// Load reads and migrates the stored configuration. The returned state is
	// always usable, even when an error is reported.
	Load(ctx context.Context) (feedsettings.State, error)
	SaveGroups(ctx context.Context, groups []feedsettings.FeedGroup) error
	SaveGlobalSettings(ctx context.Context, globalSettings feedsettings.GlobalFeedSettings) error
	SaveRecentColors(ctx context.Context, recentColors []string) error
	// Subscribe registers a listener for changes written by other contexts.
	Subscribe(listener func(Change)) (unsubscribe func())
}
