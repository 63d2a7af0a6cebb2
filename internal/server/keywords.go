package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/migration"
)

// keywordScope locates the content filters a keyword request edits.
type keywordScope struct {
	key   string
	read  func(state feedsettings.State) (feedsettings.ContentFilters, error)
	write func(state *feedsettings.State, filters feedsettings.ContentFilters) error
}

func globalKeywordScope() keywordScope {
	return keywordScope{
		key: migration.KeyGlobalSettings,
		read: func(state feedsettings.State) (feedsettings.ContentFilters, error) {
			return filtersOrDefault(state.GlobalSettings.Filters), nil
		},
		write: func(state *feedsettings.State, filters feedsettings.ContentFilters) error {
			state.GlobalSettings.Filters = &filters
			return nil
		},
	}
}

func groupKeywordScope(groupID string) keywordScope {
	return keywordScope{
		key: migration.KeyGroups,
		read: func(state feedsettings.State) (feedsettings.ContentFilters, error) {
			group, found := state.FindGroup(groupID)
			if !found {
				return feedsettings.ContentFilters{}, feedsettings.ErrGroupNotFound
			}
			return filtersOrDefault(group.Settings.Filters), nil
		},
		write: func(state *feedsettings.State, filters feedsettings.ContentFilters) error {
			return updateGroup(state, groupID, func(group feedsettings.FeedGroup) (feedsettings.FeedGroup, error) {
				group.Settings.Filters = &filters
				return group, nil
			})
		},
	}
}

func filtersOrDefault(filters *feedsettings.ContentFilters) feedsettings.ContentFilters {
	if filters == nil {
		return feedsettings.DefaultContentFilters()
	}
	return filters.Clone()
}

type keywordToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (handler *settingsHandler) addGlobalKeyword(ginContext *gin.Context) {
	handler.addKeyword(ginContext, globalKeywordScope())
}

func (handler *settingsHandler) toggleGlobalKeyword(ginContext *gin.Context) {
	handler.toggleKeyword(ginContext, globalKeywordScope())
}

func (handler *settingsHandler) removeGlobalKeyword(ginContext *gin.Context) {
	handler.removeKeyword(ginContext, globalKeywordScope())
}

func (handler *settingsHandler) addGroupKeyword(ginContext *gin.Context) {
	handler.addKeyword(ginContext, groupKeywordScope(ginContext.Param(groupIDParam)))
}

func (handler *settingsHandler) toggleGroupKeyword(ginContext *gin.Context) {
	handler.toggleKeyword(ginContext, groupKeywordScope(ginContext.Param(groupIDParam)))
}

func (handler *settingsHandler) removeGroupKeyword(ginContext *gin.Context) {
	handler.removeKeyword(ginContext, groupKeywordScope(ginContext.Param(groupIDParam)))
}

// addKeyword accepts a keyword form. A chosen color is also pushed onto the
// recent color list.
func (handler *settingsHandler) addKeyword(ginContext *gin.Context, scope keywordScope) {
	var draft feedsettings.KeywordDraft
	if err := ginContext.ShouldBindJSON(&draft); err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageInvalidRequest)
		return
	}
	keys := []string{scope.key}
	if draft.Color != "" {
		keys = append(keys, migration.KeyRecentColors)
	}

	var added feedsettings.Keyword
	_, err := handler.mutate(ginContext.Request.Context(), keys, func(state *feedsettings.State) error {
		filters, err := scope.read(*state)
		if err != nil {
			return err
		}
		updatedFilters, keyword, err := feedsettings.AddKeyword(filters, draft)
		if err != nil {
			return err
		}
		if draft.Color != "" {
			recentColors, err := feedsettings.PushRecentColor(state.RecentColors, keyword.Color)
			if err != nil {
				return err
			}
			state.RecentColors = recentColors
		}
		added = keyword
		return scope.write(state, updatedFilters)
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusCreated, added)
}

func (handler *settingsHandler) toggleKeyword(ginContext *gin.Context, scope keywordScope) {
	var request keywordToggleRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil || request.Enabled == nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageInvalidRequest)
		return
	}
	keywordID := ginContext.Param(keywordIDParam)
	state, err := handler.mutate(ginContext.Request.Context(), []string{scope.key}, func(state *feedsettings.State) error {
		filters, err := scope.read(*state)
		if err != nil {
			return err
		}
		updatedFilters, err := feedsettings.SetKeywordEnabled(filters, keywordID, *request.Enabled)
		if err != nil {
			return err
		}
		return scope.write(state, updatedFilters)
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	filters, _ := scope.read(state)
	for _, keyword := range filters.Keywords {
		if keyword.ID == keywordID {
			ginContext.JSON(http.StatusOK, keyword)
			return
		}
	}
	respondError(ginContext, http.StatusNotFound, feedsettings.ErrKeywordNotFound.Error())
}

func (handler *settingsHandler) removeKeyword(ginContext *gin.Context, scope keywordScope) {
	keywordID := ginContext.Param(keywordIDParam)
	_, err := handler.mutate(ginContext.Request.Context(), []string{scope.key}, func(state *feedsettings.State) error {
		filters, err := scope.read(*state)
		if err != nil {
			return err
		}
		updatedFilters, err := feedsettings.RemoveKeyword(filters, keywordID)
		if err != nil {
			return err
		}
		return scope.write(state, updatedFilters)
	})
	if err != nil {
		handler.respondMutationError(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}
