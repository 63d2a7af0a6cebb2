package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/feedfilter"
	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/migration"
	"github.com/launchkol/kolfeed/internal/persistence"
)

const (
	errMessagePersistState = "failed to persist feed settings"
	logFieldPath           = "path"

	eventOriginLocal   = "local"
	eventOriginStorage = "storage"
)

var errInvalidJSON = errors.New(errorMessageInvalidJSON)

// settingsHandler serves the feed configuration. Mutations are serialized by
// writeMutex; stateMutex is never held while persisting. The state only takes
// keys that were stored, then the change is broadcast to event streams.
type settingsHandler struct {
	ctx       context.Context
	port      persistence.Port
	evaluator *feedfilter.Evaluator
	profiles  ProfileResolver
	logger    *zap.Logger
	events    *eventHub
	tracker   *profileRefreshTracker

	writeMutex sync.Mutex
	stateMutex sync.Mutex
	state      feedsettings.State
}

func (handler *settingsHandler) snapshot() feedsettings.State {
	handler.stateMutex.Lock()
	defer handler.stateMutex.Unlock()
	return handler.state.Clone()
}

// mutate applies change to a copy of the state and persists the keys it names.
// Keys are committed to the state and published as they are stored; a failed
// change or save leaves the remaining keys untouched.
func (handler *settingsHandler) mutate(ctx context.Context, keys []string, change func(state *feedsettings.State) error) (feedsettings.State, error) {
	handler.writeMutex.Lock()
	defer handler.writeMutex.Unlock()

	updated := handler.snapshot()
	if err := change(&updated); err != nil {
		return handler.snapshot(), err
	}
	storedKeys := make([]string, 0, len(keys))
	var persistErr error
	for _, key := range keys {
		if persistErr = handler.persistKey(ctx, key, updated); persistErr != nil {
			break
		}
		storedKeys = append(storedKeys, key)
	}
	state := handler.commit(eventOriginLocal, storedKeys, updated)
	if persistErr != nil {
		return state, fmt.Errorf("%s: %w", errMessagePersistState, persistErr)
	}
	return state, nil
}

// commit copies keys from source into the state and publishes the result.
func (handler *settingsHandler) commit(origin string, keys []string, source feedsettings.State) feedsettings.State {
	handler.stateMutex.Lock()
	for _, key := range keys {
		switch key {
		case migration.KeyGroups:
			handler.state.Groups = feedsettings.State{Groups: source.Groups}.Clone().Groups
		case migration.KeyGlobalSettings:
			handler.state.GlobalSettings = source.GlobalSettings.Clone()
		case migration.KeyRecentColors:
			handler.state.RecentColors = append([]string{}, source.RecentColors...)
		}
	}
	state := handler.state.Clone()
	handler.stateMutex.Unlock()

	if len(keys) > 0 {
		handler.events.publish(stateEvent{Origin: origin, Keys: keys, State: state.Clone()})
	}
	return state
}

func (handler *settingsHandler) persistKey(ctx context.Context, key string, state feedsettings.State) error {
	switch key {
	case migration.KeyGroups:
		return handler.port.SaveGroups(ctx, state.Groups)
	case migration.KeyGlobalSettings:
		return handler.port.SaveGlobalSettings(ctx, state.GlobalSettings)
	case migration.KeyRecentColors:
		return handler.port.SaveRecentColors(ctx, state.RecentColors)
	default:
		return nil
	}
}

// applyStoredChange adopts the keys another context wrote. It may run on the
// goroutine of a concurrent mutation and therefore never takes writeMutex.
func (handler *settingsHandler) applyStoredChange(change persistence.Change) {
	handler.commit(eventOriginStorage, change.Keys, change.State)
}

func (handler *settingsHandler) serveState(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, handler.snapshot())
}

func (handler *settingsHandler) replaceGlobalSettings(ginContext *gin.Context) {
	body, err := readJSONBody(ginContext)
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	globalSettings := migration.GlobalSettings(body)
	state, err := handler.mutate(ginContext.Request.Context(), []string{migration.KeyGlobalSettings}, func(state *feedsettings.State) error {
		state.GlobalSettings = globalSettings
		return nil
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, state.GlobalSettings)
}

func (handler *settingsHandler) replaceGroups(ginContext *gin.Context) {
	body, err := readJSONBody(ginContext)
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	groups := migration.Groups(body)
	state, err := handler.mutate(ginContext.Request.Context(), []string{migration.KeyGroups}, func(state *feedsettings.State) error {
		state.Groups = groups
		return nil
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, state.Groups)
}

func (handler *settingsHandler) serveGroupEffective(ginContext *gin.Context) {
	state := handler.snapshot()
	group, found := state.FindGroup(ginContext.Param(groupIDParam))
	if !found {
		respondError(ginContext, http.StatusNotFound, feedsettings.ErrGroupNotFound.Error())
		return
	}
	ginContext.JSON(http.StatusOK, feedsettings.EffectiveSettings(group, state.GlobalSettings))
}

func (handler *settingsHandler) serveAccountEffective(ginContext *gin.Context) {
	state := handler.snapshot()
	group, found := state.FindGroup(ginContext.Param(groupIDParam))
	if !found {
		respondError(ginContext, http.StatusNotFound, feedsettings.ErrGroupNotFound.Error())
		return
	}
	account, found := group.FindAccount(ginContext.Param(handleParam))
	if !found {
		respondError(ginContext, http.StatusNotFound, feedsettings.ErrAccountNotFound.Error())
		return
	}
	ginContext.JSON(http.StatusOK, feedsettings.ResolveAccountSettings(account, group, state.GlobalSettings))
}

type accountRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

func (handler *settingsHandler) addAccount(ginContext *gin.Context) {
	var request accountRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageInvalidRequest)
		return
	}
	groupID := ginContext.Param(groupIDParam)
	var added feedsettings.Account
	_, err := handler.mutate(ginContext.Request.Context(), []string{migration.KeyGroups}, func(state *feedsettings.State) error {
		return updateGroup(state, groupID, func(group feedsettings.FeedGroup) (feedsettings.FeedGroup, error) {
			updated, addErr := feedsettings.AddAccount(group, feedsettings.Account{
				Handle:      request.Handle,
				DisplayName: request.DisplayName,
				Avatar:      request.Avatar,
			})
			if addErr == nil {
				added = updated.Accounts[len(updated.Accounts)-1]
			}
			return updated, addErr
		})
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusCreated, added)
}

func (handler *settingsHandler) removeAccount(ginContext *gin.Context) {
	groupID := ginContext.Param(groupIDParam)
	handle := ginContext.Param(handleParam)
	_, err := handler.mutate(ginContext.Request.Context(), []string{migration.KeyGroups}, func(state *feedsettings.State) error {
		return updateGroup(state, groupID, func(group feedsettings.FeedGroup) (feedsettings.FeedGroup, error) {
			return feedsettings.RemoveAccount(group, handle)
		})
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (handler *settingsHandler) replaceAccountSettings(ginContext *gin.Context) {
	body, err := readJSONBody(ginContext)
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	accountSettings := migration.AccountSettings(body)
	if accountSettings != nil {
		if err := accountSettings.Validate(); err != nil {
			handler.respondMutationError(ginContext, err)
			return
		}
	}
	groupID := ginContext.Param(groupIDParam)
	handle := ginContext.Param(handleParam)
	var updatedAccount feedsettings.Account
	_, err = handler.mutate(ginContext.Request.Context(), []string{migration.KeyGroups}, func(state *feedsettings.State) error {
		return updateGroup(state, groupID, func(group feedsettings.FeedGroup) (feedsettings.FeedGroup, error) {
			account, found := group.FindAccount(handle)
			if !found {
				return group, feedsettings.ErrAccountNotFound
			}
			account.Settings = accountSettings
			updatedAccount = account
			return feedsettings.UpdateAccount(group, account)
		})
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, updatedAccount)
}

type recentColorRequest struct {
	Color string `json:"color"`
}

func (handler *settingsHandler) pushRecentColor(ginContext *gin.Context) {
	var request recentColorRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageInvalidRequest)
		return
	}
	state, err := handler.mutate(ginContext.Request.Context(), []string{migration.KeyRecentColors}, func(state *feedsettings.State) error {
		recentColors, pushErr := feedsettings.PushRecentColor(state.RecentColors, request.Color)
		if pushErr != nil {
			return pushErr
		}
		state.RecentColors = recentColors
		return nil
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, state.RecentColors)
}

type evaluateRequest struct {
	GroupID string          `json:"groupId"`
	Post    feedfilter.Post `json:"post"`
}

func (handler *settingsHandler) evaluatePost(ginContext *gin.Context) {
	var request evaluateRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageInvalidRequest)
		return
	}
	if !request.Post.TweetType.Valid() {
		respondError(ginContext, http.StatusBadRequest, feedsettings.ErrUnknownTweetType.Error())
		return
	}
	state := handler.snapshot()
	settings := state.GlobalSettings.FeedSettings
	if request.GroupID != "" {
		group, found := state.FindGroup(request.GroupID)
		if !found {
			respondError(ginContext, http.StatusNotFound, feedsettings.ErrGroupNotFound.Error())
			return
		}
		settings = feedsettings.EffectiveSettings(group, state.GlobalSettings)
		if account, tracked := group.FindAccount(request.Post.Author); tracked {
			settings = feedsettings.ResolveAccountSettings(account, group, state.GlobalSettings)
		}
	}
	ginContext.JSON(http.StatusOK, handler.evaluator.Evaluate(request.Post, settings))
}

func (handler *settingsHandler) respondMutationError(ginContext *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error(logMessageRequestFailed, zap.String(logFieldPath, ginContext.FullPath()), zap.Error(err))
		respondError(ginContext, status, errorMessageInternal)
		return
	}
	respondError(ginContext, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, feedsettings.ErrGroupNotFound),
		errors.Is(err, feedsettings.ErrAccountNotFound),
		errors.Is(err, feedsettings.ErrKeywordNotFound):
		return http.StatusNotFound
	case errors.Is(err, feedsettings.ErrKeywordTextEmpty),
		errors.Is(err, feedsettings.ErrKeywordDuplicate),
		errors.Is(err, feedsettings.ErrInvalidColor),
		errors.Is(err, feedsettings.ErrAccountDuplicate),
		errors.Is(err, feedsettings.ErrAccountHandleBlank),
		errors.Is(err, feedsettings.ErrUnknownLaunchPlatform),
		errors.Is(err, feedsettings.ErrUnknownTweetType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// updateGroup replaces the group identified by groupID with the result of change.
func updateGroup(state *feedsettings.State, groupID string, change func(feedsettings.FeedGroup) (feedsettings.FeedGroup, error)) error {
	group, found := state.FindGroup(groupID)
	if !found {
		return feedsettings.ErrGroupNotFound
	}
	updated, err := change(group)
	if err != nil {
		return err
	}
	groups, err := feedsettings.ReplaceGroup(state.Groups, updated)
	if err != nil {
		return err
	}
	state.Groups = groups
	return nil
}

// readJSONBody returns the request body for migration; migration accepts any
// shape, so only syntax is checked here.
func readJSONBody(ginContext *gin.Context) (gjson.Result, error) {
	body, err := ginContext.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		return gjson.Result{}, errInvalidJSON
	}
	return gjson.ParseBytes(body), nil
}
