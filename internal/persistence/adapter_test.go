package persistence_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/kvstore"
	"github.com/launchkol/kolfeed/internal/migration"
	"github.com/launchkol/kolfeed/internal/persistence"
)

type failingStore struct {
	kvstore.Unavailable
}

func (failingStore) Get(context.Context, []string) (map[string]json.RawMessage, error) {
	return nil, errors.New("disk on fire")
}

type rejectingWriteStore struct {
	*kvstore.MemoryContext
}

func (rejectingWriteStore) Set(context.Context, map[string]json.RawMessage) error {
	return errors.New("disk full")
}

func sampleGroups() []feedsettings.FeedGroup {
	accountFilters := feedsettings.DefaultContentFilters()
	return []feedsettings.FeedGroup{{
		ID:   "alpha",
		Name: "Alpha",
		Icon: "rocket",
		Accounts: []feedsettings.Account{
			{Handle: "caller", Settings: &feedsettings.AccountSettings{SoundVolume: lo.ToPtr(90), Filters: &accountFilters}},
			{Handle: "quiet"},
		},
		Settings: feedsettings.DefaultGroupSettings(),
	}}
}

func TestAdapterLoadMigratesLegacyValues(t *testing.T) {
	view := kvstore.NewMemoryArea().Context("popup")
	require.NoError(t, view.Set(context.Background(), map[string]json.RawMessage{
		migration.KeyGlobalSettings: json.RawMessage(`{"autoTranslate":true,"tweetTypes":{"posts":true,"replies":false}}`),
		migration.KeyGroups:         json.RawMessage(`[{"id":"g","name":"G","accounts":["@kol"]}]`),
	}))

	state, err := persistence.NewAdapter(view, nil).Load(context.Background())
	require.NoError(t, err)

	assert.True(t, state.GlobalSettings.AutoTranslate)
	assert.False(t, state.GlobalSettings.TweetTypes[feedsettings.TweetTypeReplies].Enabled)
	assert.True(t, state.GlobalSettings.TweetTypes[feedsettings.TweetTypeQuotes].Enabled)
	require.Len(t, state.Groups, 1)
	assert.Equal(t, "kol", state.Groups[0].Accounts[0].Handle)
	assert.Equal(t, []string{}, state.RecentColors)
}

func TestAdapterSaveStampsSchemaVersion(t *testing.T) {
	view := kvstore.NewMemoryArea().Context("server")
	adapter := persistence.NewAdapter(view, nil)
	ctx := context.Background()

	globalSettings := feedsettings.DefaultGlobalSettings()
	globalSettings.Filters = lo.ToPtr(feedsettings.DefaultContentFilters())
	require.NoError(t, adapter.SaveGlobalSettings(ctx, globalSettings))
	require.NoError(t, adapter.SaveGroups(ctx, sampleGroups()))

	values, err := view.Get(ctx, migration.StorageKeys)
	require.NoError(t, err)

	global := gjson.ParseBytes(values[migration.KeyGlobalSettings])
	assert.EqualValues(t, migration.CurrentSchemaVersion, global.Get(migration.SchemaVersionKey).Int())
	assert.EqualValues(t, migration.CurrentSchemaVersion, global.Get("filters.schemaVersion").Int())

	groups := gjson.ParseBytes(values[migration.KeyGroups])
	assert.EqualValues(t, migration.CurrentSchemaVersion, groups.Get("0.settings.schemaVersion").Int())
	assert.EqualValues(t, migration.CurrentSchemaVersion, groups.Get("0.accounts.0.settings.schemaVersion").Int())
	assert.EqualValues(t, migration.CurrentSchemaVersion, groups.Get("0.accounts.0.settings.filters.schemaVersion").Int())
	assert.False(t, groups.Get("0.accounts.1.settings").Exists())
}

func TestAdapterRoundTrip(t *testing.T) {
	area := kvstore.NewMemoryArea()
	writer := persistence.NewAdapter(area.Context("popup"), nil)
	ctx := context.Background()

	globalSettings := feedsettings.DefaultGlobalSettings()
	globalSettings.SoundVolume = 33
	require.NoError(t, writer.SaveGlobalSettings(ctx, globalSettings))
	require.NoError(t, writer.SaveGroups(ctx, sampleGroups()))
	require.NoError(t, writer.SaveRecentColors(ctx, []string{"#ffffff"}))

	state, err := persistence.NewAdapter(area.Context("sidepanel"), nil).Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, globalSettings, state.GlobalSettings)
	assert.Equal(t, sampleGroups(), state.Groups)
	assert.Equal(t, []string{"#ffffff"}, state.RecentColors)
	assert.Equal(t, writer.State(), state)
}

func TestAdapterSubscribeReceivesForeignWrites(t *testing.T) {
	area := kvstore.NewMemoryArea()
	popup := persistence.NewAdapter(area.Context("popup"), nil)
	sidepanel := persistence.NewAdapter(area.Context("sidepanel"), nil)
	defer popup.Close()
	defer sidepanel.Close()

	var popupChanges, sidepanelChanges []persistence.Change
	unsubscribePopup := popup.Subscribe(func(change persistence.Change) { popupChanges = append(popupChanges, change) })
	defer unsubscribePopup()
	sidepanel.Subscribe(func(change persistence.Change) { sidepanelChanges = append(sidepanelChanges, change) })

	globalSettings := feedsettings.DefaultGlobalSettings()
	globalSettings.SoundVolume = 5
	require.NoError(t, popup.SaveGlobalSettings(context.Background(), globalSettings))

	assert.Empty(t, popupChanges)
	require.Len(t, sidepanelChanges, 1)
	assert.Equal(t, []string{migration.KeyGlobalSettings}, sidepanelChanges[0].Keys)
	assert.Equal(t, 5, sidepanelChanges[0].State.GlobalSettings.SoundVolume)
	assert.Equal(t, 5, sidepanel.State().GlobalSettings.SoundVolume)
}

func TestAdapterDegradesToMemory(t *testing.T) {
	testCases := []struct {
		name  string
		store kvstore.Store
	}{
		{name: "unavailable store", store: kvstore.Unavailable{}},
		{name: "no store", store: nil},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			adapter := persistence.NewAdapter(testCase.store, nil)
			ctx := context.Background()

			require.NoError(t, adapter.SaveRecentColors(ctx, []string{"#123456"}))
			require.NoError(t, adapter.SaveGroups(ctx, sampleGroups()))
			unsubscribe := adapter.Subscribe(func(persistence.Change) {})
			unsubscribe()

			state, err := adapter.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"#123456"}, state.RecentColors)
			assert.Equal(t, sampleGroups(), state.Groups)
		})
	}
}

func TestAdapterLoadReportsBackendFailures(t *testing.T) {
	state, err := persistence.NewAdapter(failingStore{}, nil).Load(context.Background())

	require.Error(t, err)
	assert.Equal(t, feedsettings.DefaultState(), state)
}

func TestAdapterFailedSaveKeepsState(t *testing.T) {
	adapter := persistence.NewAdapter(rejectingWriteStore{kvstore.NewMemoryArea().Context("popup")}, nil)
	ctx := context.Background()

	globalSettings := feedsettings.DefaultGlobalSettings()
	globalSettings.SoundVolume = 12

	assert.Error(t, adapter.SaveGlobalSettings(ctx, globalSettings))
	assert.Error(t, adapter.SaveGroups(ctx, sampleGroups()))
	assert.Error(t, adapter.SaveRecentColors(ctx, []string{"#123456"}))
	assert.Equal(t, feedsettings.DefaultState(), adapter.State())
}
