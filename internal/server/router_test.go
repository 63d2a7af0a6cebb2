package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedfilter"
	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/kvstore"
	"github.com/launchkol/kolfeed/internal/migration"
	"github.com/launchkol/kolfeed/internal/persistence"
	"github.com/launchkol/kolfeed/internal/profiles"
	"github.com/launchkol/kolfeed/internal/server"
)

const (
	testGroupID             = "alpha"
	testGroupsPayload       = `[{"id":"alpha","name":"Alpha","icon":"rocket","accounts":[{"handle":"Caller"},"watcher"],"settings":{"useGlobalSettings":false,"soundVolume":40,"tweetTypes":{"posts":{"enabled":true}}}}]`
	profileRefreshWait      = 2 * time.Second
	profileRefreshPollDelay = 10 * time.Millisecond
	eventStreamReadTimeout  = 2 * time.Second
	concurrentWriteTimeout  = 10 * time.Second
	serverContextName       = "server"
	otherContextName        = "panel"
	errorResponseField      = "error"
)

type profileResolverStub struct {
	mutex   sync.Mutex
	results map[string]profiles.Result
	calls   [][]string
}

func (stub *profileResolverStub) ResolveMany(_ context.Context, handles []string) map[string]profiles.Result {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.calls = append(stub.calls, append([]string{}, handles...))
	return stub.results
}

type routerFixture struct {
	engine *gin.Engine
	area   *kvstore.MemoryArea
}

func newRouterFixture(t *testing.T, resolver server.ProfileResolver) routerFixture {
	t.Helper()
	area := kvstore.NewMemoryArea()
	return routerFixture{engine: newRouterOnStore(t, area.Context(serverContextName), resolver), area: area}
}

func newRouterOnStore(t *testing.T, store kvstore.Store, resolver server.ProfileResolver) *gin.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	adapter := persistence.NewAdapter(store, nil)
	t.Cleanup(adapter.Close)

	engine, err := server.NewRouter(ctx, server.RouterConfig{
		Port:      adapter,
		Evaluator: feedfilter.NewEvaluator(),
		Profiles:  resolver,
	})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	return engine
}

type rejectingWriteStore struct {
	*kvstore.MemoryContext
}

func (rejectingWriteStore) Set(context.Context, map[string]json.RawMessage) error {
	return errors.New("disk full")
}

func (fixture routerFixture) perform(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	return performRequest(fixture.engine, method, path, body)
}

func performRequest(engine *gin.Engine, method string, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)
	return recorder
}

func (fixture routerFixture) seedGroups(t *testing.T) {
	t.Helper()
	recorder := fixture.perform(t, http.MethodPut, "/api/groups", testGroupsPayload)
	if recorder.Code != http.StatusOK {
		t.Fatalf("seeding groups returned %d: %s", recorder.Code, recorder.Body.String())
	}
}

func (fixture routerFixture) storedValue(t *testing.T, key string) gjson.Result {
	t.Helper()
	values, err := fixture.area.Context(otherContextName).Get(context.Background(), []string{key})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return gjson.ParseBytes(values[key])
}

func decodeResponse[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var decoded T
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func TestNewRouterRequiresPort(t *testing.T) {
	_, err := server.NewRouter(context.Background(), server.RouterConfig{})
	if !errors.Is(err, server.ErrMissingPort) {
		t.Fatalf("expected missing port error, got %v", err)
	}
}

func TestHealthStatus(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	recorder := fixture.perform(t, http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if status := gjson.Get(recorder.Body.String(), "status").String(); status != "ok" {
		t.Fatalf("unexpected health status %q", status)
	}
}

func TestServeStateReturnsDefaults(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	recorder := fixture.perform(t, http.MethodGet, "/api/state", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	state := decodeResponse[feedsettings.State](t, recorder)
	if len(state.Groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(state.Groups))
	}
	if state.GlobalSettings.SoundVolume != feedsettings.DefaultGlobalSettings().SoundVolume {
		t.Fatalf("unexpected default volume %d", state.GlobalSettings.SoundVolume)
	}
}

func TestReplaceGlobalSettingsMigratesLegacyPayload(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder := fixture.perform(t, http.MethodPut, "/api/settings/global", `{"soundVolume":"30","tweetTypes":{"posts":false,"replies":true}}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	globalSettings := decodeResponse[feedsettings.GlobalFeedSettings](t, recorder)
	if globalSettings.SoundVolume != 30 {
		t.Fatalf("expected volume 30, got %d", globalSettings.SoundVolume)
	}
	if globalSettings.TweetTypes[feedsettings.TweetTypePosts].Enabled {
		t.Fatalf("expected posts to be disabled")
	}

	stored := fixture.storedValue(t, migration.KeyGlobalSettings)
	if version := stored.Get(migration.SchemaVersionKey).Int(); version != migration.CurrentSchemaVersion {
		t.Fatalf("expected stored schema version %d, got %d", migration.CurrentSchemaVersion, version)
	}
	if !stored.Get("tweetTypes.posts").IsObject() {
		t.Fatalf("expected stored tweet types in current shape: %s", stored.Raw)
	}
}

func TestRequestValidation(t *testing.T) {
	testCases := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "malformed settings body",
			method:         http.MethodPut,
			path:           "/api/settings/global",
			body:           `{"soundVolume":`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "request body must be valid JSON",
		},
		{
			name:           "empty keyword text",
			method:         http.MethodPost,
			path:           "/api/settings/global/keywords",
			body:           `{"text":"   "}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  feedsettings.ErrKeywordTextEmpty.Error(),
		},
		{
			name:           "invalid keyword color",
			method:         http.MethodPost,
			path:           "/api/settings/global/keywords",
			body:           `{"text":"moon","color":"blue"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  feedsettings.ErrInvalidColor.Error(),
		},
		{
			name:           "unknown group keyword",
			method:         http.MethodPost,
			path:           "/api/groups/missing/keywords",
			body:           `{"text":"moon"}`,
			expectedStatus: http.StatusNotFound,
			expectedError:  feedsettings.ErrGroupNotFound.Error(),
		},
		{
			name:           "unknown group effective settings",
			method:         http.MethodGet,
			path:           "/api/groups/missing/effective",
			expectedStatus: http.StatusNotFound,
			expectedError:  feedsettings.ErrGroupNotFound.Error(),
		},
		{
			name:           "invalid recent color",
			method:         http.MethodPost,
			path:           "/api/colors/recent",
			body:           `{"color":"#12"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  feedsettings.ErrInvalidColor.Error(),
		},
		{
			name:           "toggle without enabled flag",
			method:         http.MethodPatch,
			path:           "/api/settings/global/keywords/any",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request payload",
		},
		{
			name:           "unknown account launch platform",
			method:         http.MethodPut,
			path:           "/api/groups/alpha/accounts/caller/settings",
			body:           `{"launchPlatform":"nowhere"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  `unknown launch platform: "nowhere"`,
		},
		{
			name:           "unknown evaluated tweet type",
			method:         http.MethodPost,
			path:           "/api/evaluate",
			body:           `{"post":{"author":"a","tweetType":"stories","text":"moon"}}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  feedsettings.ErrUnknownTweetType.Error(),
		},
		{
			name:           "unknown profile refresh task",
			method:         http.MethodGet,
			path:           "/api/profiles/refresh/task-99",
			expectedStatus: http.StatusNotFound,
			expectedError:  "profile refresh task not found",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newRouterFixture(t, nil)
			recorder := fixture.perform(t, testCase.method, testCase.path, testCase.body)
			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedStatus, recorder.Code, recorder.Body.String())
			}
			if message := gjson.Get(recorder.Body.String(), errorResponseField).String(); message != testCase.expectedError {
				t.Fatalf("expected error %q, got %q", testCase.expectedError, message)
			}
		})
	}
}

func TestGlobalKeywordLifecycle(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder := fixture.perform(t, http.MethodPost, "/api/settings/global/keywords", `{"text":" Moon ","color":"#F0F","wholeWord":true}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	keyword := decodeResponse[feedsettings.Keyword](t, recorder)
	if keyword.Text != "Moon" || keyword.Color != "#ff00ff" || !keyword.Enabled {
		t.Fatalf("unexpected keyword %+v", keyword)
	}

	duplicate := fixture.perform(t, http.MethodPost, "/api/settings/global/keywords", `{"text":"moon"}`)
	if duplicate.Code != http.StatusBadRequest {
		t.Fatalf("expected duplicate rejection, got %d", duplicate.Code)
	}
	if message := gjson.Get(duplicate.Body.String(), errorResponseField).String(); message != feedsettings.ErrKeywordDuplicate.Error() {
		t.Fatalf("unexpected duplicate message %q", message)
	}

	state := decodeResponse[feedsettings.State](t, fixture.perform(t, http.MethodGet, "/api/state", ""))
	if len(state.RecentColors) == 0 || state.RecentColors[0] != "#ff00ff" {
		t.Fatalf("expected keyword color to lead recent colors, got %v", state.RecentColors)
	}
	storedColors := fixture.storedValue(t, migration.KeyRecentColors)
	if storedColors.Get("0").String() != "#ff00ff" {
		t.Fatalf("expected recent colors to be stored, got %s", storedColors.Raw)
	}

	toggled := fixture.perform(t, http.MethodPatch, "/api/settings/global/keywords/"+keyword.ID, `{"enabled":false}`)
	if toggled.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", toggled.Code, toggled.Body.String())
	}
	if decodeResponse[feedsettings.Keyword](t, toggled).Enabled {
		t.Fatalf("expected keyword to be disabled")
	}

	removed := fixture.perform(t, http.MethodDelete, "/api/settings/global/keywords/"+keyword.ID, "")
	if removed.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", removed.Code)
	}
	missing := fixture.perform(t, http.MethodDelete, "/api/settings/global/keywords/"+keyword.ID, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}

	stored := fixture.storedValue(t, migration.KeyGlobalSettings)
	if stored.Get("filters.keywords.#").Int() != 0 {
		t.Fatalf("expected stored keywords to be empty: %s", stored.Raw)
	}
	if stored.Get("filters." + migration.SchemaVersionKey).Int() != migration.CurrentSchemaVersion {
		t.Fatalf("expected stored filters to carry schema version: %s", stored.Raw)
	}
}

func TestGroupKeywordsAndEffectiveSettings(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.seedGroups(t)

	recorder := fixture.perform(t, http.MethodPost, "/api/groups/"+testGroupID+"/keywords", `{"text":"pump"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	effective := decodeResponse[feedsettings.FeedSettings](t, fixture.perform(t, http.MethodGet, "/api/groups/"+testGroupID+"/effective", ""))
	if effective.SoundVolume != 40 {
		t.Fatalf("expected group volume 40, got %d", effective.SoundVolume)
	}
	if effective.Filters == nil || len(effective.Filters.Keywords) != 1 || effective.Filters.Keywords[0].Text != "pump" {
		t.Fatalf("expected group keyword in effective settings, got %+v", effective.Filters)
	}

	stored := fixture.storedValue(t, migration.KeyGroups)
	if stored.Get("0.settings.filters.keywords.0.text").String() != "pump" {
		t.Fatalf("expected keyword to be stored with the group: %s", stored.Raw)
	}
}

func TestAccountEndpoints(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.seedGroups(t)

	added := fixture.perform(t, http.MethodPost, "/api/groups/"+testGroupID+"/accounts", `{"handle":"@Newcomer"}`)
	if added.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", added.Code, added.Body.String())
	}
	if handle := decodeResponse[feedsettings.Account](t, added).Handle; handle != "Newcomer" {
		t.Fatalf("expected stripped handle, got %q", handle)
	}
	duplicate := fixture.perform(t, http.MethodPost, "/api/groups/"+testGroupID+"/accounts", `{"handle":"newcomer"}`)
	if duplicate.Code != http.StatusBadRequest {
		t.Fatalf("expected duplicate rejection, got %d", duplicate.Code)
	}

	overrides := fixture.perform(t, http.MethodPut, "/api/groups/"+testGroupID+"/accounts/caller/settings", `{"soundVolume":90,"tweetTypes":{"posts":{"highlightColor":"#123456"}}}`)
	if overrides.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", overrides.Code, overrides.Body.String())
	}

	resolved := decodeResponse[feedsettings.FeedSettings](t, fixture.perform(t, http.MethodGet, "/api/groups/"+testGroupID+"/accounts/CALLER/effective", ""))
	if resolved.SoundVolume != 90 {
		t.Fatalf("expected account volume 90, got %d", resolved.SoundVolume)
	}
	posts := resolved.TweetTypes[feedsettings.TweetTypePosts]
	if posts.HighlightColor != "#123456" || !posts.Enabled {
		t.Fatalf("expected per-field tweet type override, got %+v", posts)
	}

	removed := fixture.perform(t, http.MethodDelete, "/api/groups/"+testGroupID+"/accounts/watcher", "")
	if removed.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", removed.Code)
	}
	missing := fixture.perform(t, http.MethodGet, "/api/groups/"+testGroupID+"/accounts/watcher/effective", "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}
}

func TestEvaluatePost(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.seedGroups(t)
	fixture.perform(t, http.MethodPost, "/api/groups/"+testGroupID+"/keywords", `{"text":"launch","color":"#00ff00"}`)
	fixture.perform(t, http.MethodPut, "/api/groups/"+testGroupID+"/accounts/caller/settings", `{"soundVolume":75}`)

	testCases := []struct {
		name            string
		body            string
		expectedVisible bool
		expectedVolume  int
		expectedColor   string
	}{
		{
			name:            "tracked account resolves overrides",
			body:            `{"groupId":"alpha","post":{"author":"Caller","tweetType":"posts","text":"The LAUNCH is live"}}`,
			expectedVisible: true,
			expectedVolume:  75,
			expectedColor:   "#00ff00",
		},
		{
			name:            "untracked author uses group settings",
			body:            `{"groupId":"alpha","post":{"author":"stranger","tweetType":"posts","text":"launch soon"}}`,
			expectedVisible: true,
			expectedVolume:  40,
			expectedColor:   "#00ff00",
		},
		{
			name:            "disabled tweet type is hidden",
			body:            `{"post":{"author":"stranger","tweetType":"deleted","text":"gone"}}`,
			expectedVisible: false,
			expectedVolume:  feedsettings.DefaultGlobalSettings().SoundVolume,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			recorder := fixture.perform(t, http.MethodPost, "/api/evaluate", testCase.body)
			if recorder.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
			}
			result := decodeResponse[feedfilter.Result](t, recorder)
			if result.Visible != testCase.expectedVisible {
				t.Fatalf("expected visible %t, got %t", testCase.expectedVisible, result.Visible)
			}
			if !testCase.expectedVisible {
				return
			}
			if result.SoundVolume != testCase.expectedVolume {
				t.Fatalf("expected volume %d, got %d", testCase.expectedVolume, result.SoundVolume)
			}
			if result.HighlightColor != testCase.expectedColor {
				t.Fatalf("expected highlight %q, got %q", testCase.expectedColor, result.HighlightColor)
			}
		})
	}
}

func TestStateFollowsOtherContextWrites(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	otherContext := fixture.area.Context(otherContextName)
	err := otherContext.Set(context.Background(), map[string]json.RawMessage{
		migration.KeyGroups: json.RawMessage(testGroupsPayload),
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	state := decodeResponse[feedsettings.State](t, fixture.perform(t, http.MethodGet, "/api/state", ""))
	if len(state.Groups) != 1 || len(state.Groups[0].Accounts) != 2 {
		t.Fatalf("expected groups written by another context, got %+v", state.Groups)
	}
}

func TestConcurrentWritesFromTwoSurfaces(t *testing.T) {
	area := kvstore.NewMemoryArea()
	popup := newRouterOnStore(t, area.Context(serverContextName), nil)
	sidepanel := newRouterOnStore(t, area.Context(otherContextName), nil)

	const writesPerSurface = 200
	var waitGroup sync.WaitGroup
	failures := make(chan string, 2*writesPerSurface)
	for surfaceIndex, engine := range []*gin.Engine{popup, sidepanel} {
		waitGroup.Add(1)
		go func(engine *gin.Engine, volumeBase int) {
			defer waitGroup.Done()
			for writeIndex := 0; writeIndex < writesPerSurface; writeIndex++ {
				body := fmt.Sprintf(`{"soundVolume":%d,"tweetTypes":{"posts":{}}}`, volumeBase+writeIndex%50)
				recorder := performRequest(engine, http.MethodPut, "/api/settings/global", body)
				if recorder.Code != http.StatusOK {
					failures <- recorder.Body.String()
				}
			}
		}(engine, surfaceIndex*50)
	}

	finished := make(chan struct{})
	go func() {
		waitGroup.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(concurrentWriteTimeout):
		t.Fatalf("concurrent writes from two surfaces did not finish within %s", concurrentWriteTimeout)
	}
	close(failures)
	for failure := range failures {
		t.Fatalf("unexpected write failure: %s", failure)
	}

	values, err := area.Context(serverContextName).Get(context.Background(), []string{migration.KeyGlobalSettings})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	storedVolume := gjson.GetBytes(values[migration.KeyGlobalSettings], "soundVolume").Int()
	if storedVolume < 0 || storedVolume >= 100 {
		t.Fatalf("unexpected stored volume %d", storedVolume)
	}
	for _, engine := range []*gin.Engine{popup, sidepanel} {
		if recorder := performRequest(engine, http.MethodGet, "/api/state", ""); recorder.Code != http.StatusOK {
			t.Fatalf("expected state after concurrent writes, got %d", recorder.Code)
		}
	}
}

func TestFailedSaveLeavesStateUntouched(t *testing.T) {
	engine := newRouterOnStore(t, rejectingWriteStore{kvstore.NewMemoryArea().Context(serverContextName)}, nil)

	recorder := performRequest(engine, http.MethodPut, "/api/settings/global", `{"soundVolume":12,"tweetTypes":{"posts":{}}}`)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", recorder.Code, recorder.Body.String())
	}

	state := decodeResponse[feedsettings.State](t, performRequest(engine, http.MethodGet, "/api/state", ""))
	if state.GlobalSettings.SoundVolume != feedsettings.DefaultSoundVolume {
		t.Fatalf("expected failed save to keep volume %d, got %d", feedsettings.DefaultSoundVolume, state.GlobalSettings.SoundVolume)
	}

	keyword := performRequest(engine, http.MethodPost, "/api/settings/global/keywords", `{"text":"moon","color":"#123456"}`)
	if keyword.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", keyword.Code)
	}
	state = decodeResponse[feedsettings.State](t, performRequest(engine, http.MethodGet, "/api/state", ""))
	if state.GlobalSettings.Filters != nil && len(state.GlobalSettings.Filters.Keywords) != 0 {
		t.Fatalf("expected failed keyword save to leave no keywords, got %+v", state.GlobalSettings.Filters.Keywords)
	}
	if len(state.RecentColors) != 0 {
		t.Fatalf("expected failed keyword save to leave no recent colors, got %v", state.RecentColors)
	}
}

func TestProfileRefresh(t *testing.T) {
	resolver := &profileResolverStub{results: map[string]profiles.Result{
		"caller":  {Profile: profiles.Profile{Handle: "Caller", DisplayName: "The Caller", AvatarURL: "https://cdn.example/caller.png"}},
		"watcher": {Err: profiles.ErrMissingProfile},
	}}
	fixture := newRouterFixture(t, resolver)
	fixture.seedGroups(t)

	started := fixture.perform(t, http.MethodPost, "/api/profiles/refresh", "")
	if started.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", started.Code, started.Body.String())
	}
	taskID := gjson.Get(started.Body.String(), "taskId").String()
	if taskID == "" {
		t.Fatalf("expected task identifier in %s", started.Body.String())
	}

	deadline := time.Now().Add(profileRefreshWait)
	var task gjson.Result
	for {
		task = gjson.Parse(fixture.perform(t, http.MethodGet, "/api/profiles/refresh/"+taskID, "").Body.String())
		if task.Get("status").String() != "running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("profile refresh did not finish: %s", task.Raw)
		}
		time.Sleep(profileRefreshPollDelay)
	}

	if status := task.Get("status").String(); status != "completed" {
		t.Fatalf("expected completed task, got %s", task.Raw)
	}
	if task.Get("total").Int() != 2 || task.Get("updated").Int() != 1 {
		t.Fatalf("unexpected task counters: %s", task.Raw)
	}
	if task.Get("errors.watcher").String() == "" {
		t.Fatalf("expected missing profile error for watcher: %s", task.Raw)
	}

	stored := fixture.storedValue(t, migration.KeyGroups)
	if stored.Get("0.accounts.0.displayName").String() != "The Caller" {
		t.Fatalf("expected enriched display name to be stored: %s", stored.Raw)
	}
	if stored.Get("0.accounts.1.displayName").Exists() {
		t.Fatalf("expected failed lookup to leave the account untouched: %s", stored.Raw)
	}
}

func TestProfileRefreshWithoutResolver(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	recorder := fixture.perform(t, http.MethodPost, "/api/profiles/refresh", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", recorder.Code)
	}
}

func TestEventStream(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	testServer := httptest.NewServer(fixture.engine)
	defer testServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), eventStreamReadTimeout)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, testServer.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	defer response.Body.Close()

	reader := bufio.NewReader(response.Body)
	snapshot := readEventData(t, reader)
	if origin := snapshot.Get("origin").String(); origin != "snapshot" {
		t.Fatalf("expected snapshot event first, got %s", snapshot.Raw)
	}

	colorRecorder := fixture.perform(t, http.MethodPost, "/api/colors/recent", `{"color":"#ABCDEF"}`)
	if colorRecorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", colorRecorder.Code)
	}

	change := readEventData(t, reader)
	if origin := change.Get("origin").String(); origin != "local" {
		t.Fatalf("expected local change event, got %s", change.Raw)
	}
	if change.Get("keys.0").String() != migration.KeyRecentColors {
		t.Fatalf("expected recent colors key, got %s", change.Raw)
	}
	if change.Get("state.recentColors.0").String() != "#abcdef" {
		t.Fatalf("expected normalized color in event, got %s", change.Raw)
	}
}

func readEventData(t *testing.T, reader *bufio.Reader) gjson.Result {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event stream: %v", err)
		}
		if data, found := strings.CutPrefix(strings.TrimSpace(line), "data:"); found {
			return gjson.Parse(data)
		}
	}
}
