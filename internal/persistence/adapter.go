package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/kvstore"
	"github.com/launchkol/kolfeed/internal/migration"
)

const (
	errMessageLoadState   = "failed to load stored feed settings"
	errMessageEncodeValue = "failed to encode feed settings"
	errMessageStampValue  = "failed to stamp schema version"
	errMessageSaveValue   = "failed to save feed settings"

	logMessageStoreUnavailable = "storage unavailable, keeping feed settings in memory"
	logMessageWatchFailed      = "failed to watch storage"
	logMessageStoreChanged     = "applied feed settings written by another context"
	logFieldKey                = "key"
	logFieldKeys               = "keys"

	schemaVersionPathFormat = "%s." + migration.SchemaVersionKey
)

// Adapter implements Port over a kvstore.Store and keeps the last known state in
// memory. With a nil or unavailable store every operation succeeds against the
// in-memory state only.
type Adapter struct {
	store  kvstore.Store
	logger *zap.Logger

	stateMutex sync.RWMutex
	state      feedsettings.State

	subscriberMutex  sync.Mutex
	subscribers      map[int]func(Change)
	nextSubscriberID int
	stopWatch        func()
}

// NewAdapter creates an adapter; the in-memory state starts at the defaults.
func NewAdapter(store kvstore.Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		store:       store,
		logger:      logger,
		state:       feedsettings.DefaultState(),
		subscribers: make(map[int]func(Change)),
	}
}

// State returns a copy of the last loaded or saved configuration.
func (adapter *Adapter) State() feedsettings.State {
	adapter.stateMutex.RLock()
	defer adapter.stateMutex.RUnlock()
	return adapter.state.Clone()
}

// Load reads every storage key and runs it through migration.
func (adapter *Adapter) Load(ctx context.Context) (feedsettings.State, error) {
	if adapter.store == nil {
		return adapter.State(), nil
	}
	values, err := adapter.store.Get(ctx, migration.StorageKeys)
	if err != nil {
		if errors.Is(err, kvstore.ErrUnavailable) {
			adapter.logger.Debug(logMessageStoreUnavailable)
			return adapter.State(), nil
		}
		return adapter.State(), fmt.Errorf("%s: %w", errMessageLoadState, err)
	}

	state := migration.State(
		parseStored(values[migration.KeyGroups]),
		parseStored(values[migration.KeyGlobalSettings]),
		parseStored(values[migration.KeyRecentColors]),
	)
	adapter.stateMutex.Lock()
	adapter.state = state
	adapter.stateMutex.Unlock()
	return state.Clone(), nil
}

// SaveGroups replaces the stored group list.
func (adapter *Adapter) SaveGroups(ctx context.Context, groups []feedsettings.FeedGroup) error {
	cloned := feedsettings.State{Groups: groups}.Clone().Groups
	if cloned == nil {
		cloned = []feedsettings.FeedGroup{}
	}
	encoded, err := json.Marshal(cloned)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeValue, err)
	}
	encoded, err = stampSchemaVersions(encoded, groupSchemaPaths(cloned))
	if err != nil {
		return err
	}
	return adapter.write(ctx, migration.KeyGroups, encoded, func(state *feedsettings.State) {
		state.Groups = cloned
	})
}

// SaveGlobalSettings replaces the stored global settings.
func (adapter *Adapter) SaveGlobalSettings(ctx context.Context, globalSettings feedsettings.GlobalFeedSettings) error {
	cloned := globalSettings.Clone()

	encoded, err := json.Marshal(cloned)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeValue, err)
	}
	paths := []string{""}
	if cloned.Filters != nil {
		paths = append(paths, "filters")
	}
	encoded, err = stampSchemaVersions(encoded, paths)
	if err != nil {
		return err
	}
	return adapter.write(ctx, migration.KeyGlobalSettings, encoded, func(state *feedsettings.State) {
		state.GlobalSettings = cloned
	})
}

// SaveRecentColors replaces the stored recent color list.
func (adapter *Adapter) SaveRecentColors(ctx context.Context, recentColors []string) error {
	cloned := append([]string{}, recentColors...)

	encoded, err := json.Marshal(cloned)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeValue, err)
	}
	return adapter.write(ctx, migration.KeyRecentColors, encoded, func(state *feedsettings.State) {
		state.RecentColors = cloned
	})
}

// Subscribe registers listener and starts watching the store with the first subscriber.
func (adapter *Adapter) Subscribe(listener func(Change)) func() {
	adapter.subscriberMutex.Lock()
	defer adapter.subscriberMutex.Unlock()

	subscriberID := adapter.nextSubscriberID
	adapter.nextSubscriberID++
	adapter.subscribers[subscriberID] = listener
	if adapter.stopWatch == nil && adapter.store != nil {
		stop, err := adapter.store.Watch(adapter.applyStoreChanges)
		switch {
		case err == nil:
			adapter.stopWatch = stop
		case errors.Is(err, kvstore.ErrUnavailable):
			adapter.logger.Debug(logMessageStoreUnavailable)
		default:
			adapter.logger.Warn(logMessageWatchFailed, zap.Error(err))
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			adapter.subscriberMutex.Lock()
			delete(adapter.subscribers, subscriberID)
			adapter.subscriberMutex.Unlock()
		})
	}
}

// Close stops watching the store.
func (adapter *Adapter) Close() {
	adapter.subscriberMutex.Lock()
	stop := adapter.stopWatch
	adapter.stopWatch = nil
	adapter.subscriberMutex.Unlock()
	if stop != nil {
		stop()
	}
}

// write stores encoded under key and applies commit to the in-memory state once
// the value is stored. A failed write leaves the in-memory state unchanged.
func (adapter *Adapter) write(ctx context.Context, key string, encoded []byte, commit func(state *feedsettings.State)) error {
	if adapter.store != nil {
		err := adapter.store.Set(ctx, map[string]json.RawMessage{key: encoded})
		switch {
		case errors.Is(err, kvstore.ErrUnavailable):
			adapter.logger.Debug(logMessageStoreUnavailable, zap.String(logFieldKey, key))
		case err != nil:
			return fmt.Errorf("%s: %w", errMessageSaveValue, err)
		}
	}
	adapter.stateMutex.Lock()
	commit(&adapter.state)
	adapter.stateMutex.Unlock()
	return nil
}

// applyStoreChanges migrates foreign writes into the in-memory state and
// forwards them to subscribers.
func (adapter *Adapter) applyStoreChanges(changes map[string]kvstore.Change) {
	keys := make([]string, 0, len(changes))
	adapter.stateMutex.Lock()
	for key, change := range changes {
		value := parseStored(change.NewValue)
		switch key {
		case migration.KeyGroups:
			adapter.state.Groups = migration.Groups(value)
		case migration.KeyGlobalSettings:
			adapter.state.GlobalSettings = migration.GlobalSettings(value)
		case migration.KeyRecentColors:
			adapter.state.RecentColors = migration.RecentColors(value)
		default:
			continue
		}
		keys = append(keys, key)
	}
	state := adapter.state.Clone()
	adapter.stateMutex.Unlock()

	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	adapter.logger.Debug(logMessageStoreChanged, zap.Strings(logFieldKeys, keys))

	adapter.subscriberMutex.Lock()
	listeners := make([]func(Change), 0, len(adapter.subscribers))
	for _, listener := range adapter.subscribers {
		listeners = append(listeners, listener)
	}
	adapter.subscriberMutex.Unlock()

	for _, listener := range listeners {
		listener(Change{Keys: keys, State: state.Clone()})
	}
}

func parseStored(value json.RawMessage) gjson.Result {
	if len(value) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(value)
}

// groupSchemaPaths lists every settings object of a group list that carries a version stamp.
func groupSchemaPaths(groups []feedsettings.FeedGroup) []string {
	paths := []string{}
	for groupIndex, group := range groups {
		settingsPath := fmt.Sprintf("%d.settings", groupIndex)
		paths = append(paths, settingsPath)
		if group.Settings.Filters != nil {
			paths = append(paths, settingsPath+".filters")
		}
		for accountIndex, account := range group.Accounts {
			if account.Settings == nil {
				continue
			}
			accountPath := fmt.Sprintf("%d.accounts.%d.settings", groupIndex, accountIndex)
			paths = append(paths, accountPath)
			if account.Settings.Filters != nil {
				paths = append(paths, accountPath+".filters")
			}
		}
	}
	return paths
}

// stampSchemaVersions writes the current schema version into each object at
// paths; the empty path is the document root.
func stampSchemaVersions(encoded []byte, paths []string) ([]byte, error) {
	for _, path := range paths {
		versionPath := migration.SchemaVersionKey
		if path != "" {
			versionPath = fmt.Sprintf(schemaVersionPathFormat, path)
		}
		stamped, err := sjson.SetBytes(encoded, versionPath, migration.CurrentSchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageStampValue, err)
		}
		encoded = stamped
	}
	return encoded, nil
}

var _ Port = (*Adapter)(nil)
