package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/feedfilter"
	"github.com/launchkol/kolfeed/internal/persistence"
	"github.com/launchkol/kolfeed/internal/profiles"
)

const (
	healthRoutePath                 = "/healthz"
	stateRoutePath                  = "/api/state"
	globalSettingsRoutePath         = "/api/settings/global"
	globalKeywordsRoutePath         = "/api/settings/global/keywords"
	globalKeywordRoutePath          = "/api/settings/global/keywords/:keywordID"
	groupsRoutePath                 = "/api/groups"
	groupEffectiveRoutePath         = "/api/groups/:groupID/effective"
	groupKeywordsRoutePath          = "/api/groups/:groupID/keywords"
	groupKeywordRoutePath           = "/api/groups/:groupID/keywords/:keywordID"
	groupAccountsRoutePath          = "/api/groups/:groupID/accounts"
	groupAccountRoutePath           = "/api/groups/:groupID/accounts/:handle"
	accountSettingsRoutePath        = "/api/groups/:groupID/accounts/:handle/settings"
	accountEffectiveRoutePath       = "/api/groups/:groupID/accounts/:handle/effective"
	recentColorsRoutePath           = "/api/colors/recent"
	evaluateRoutePath               = "/api/evaluate"
	eventsRoutePath                 = "/api/events"
	profileRefreshRoutePath         = "/api/profiles/refresh"
	profileRefreshTaskRoutePath     = "/api/profiles/refresh/:taskID"
	groupIDParam                    = "groupID"
	keywordIDParam                  = "keywordID"
	handleParam                     = "handle"
	taskIDParam                     = "taskID"
	healthStatusKey                 = "status"
	healthStatusOK                  = "ok"
	errorResponseKey                = "error"
	ginModeRelease                  = "release"
	errorMessageMissingPort         = "persistence port is required"
	errorMessageInvalidJSON         = "request body must be valid JSON"
	errorMessageInvalidRequest      = "invalid request payload"
	errorMessageInternal            = "internal server error"
	errorMessageProfilesUnavailable = "profile lookup is not configured"
	errorMessageTaskNotFound        = "profile refresh task not found"
	logMessageInitialLoadFailed     = "failed to load feed settings, serving defaults"
	logMessageRequestFailed         = "request failed"
)

// ErrMissingPort indicates that NewRouter was called without persistence.
var ErrMissingPort = errors.New(errorMessageMissingPort)

// ProfileResolver looks up the public profiles of tracked handles.
type ProfileResolver interface {
	ResolveMany(ctx context.Context, handles []string) map[string]profiles.Result
}

// RouterConfig configures the HTTP routing for the feed settings API.
type RouterConfig struct {
	Port      persistence.Port
	Evaluator *feedfilter.Evaluator
	Profiles  ProfileResolver
	Logger    *zap.Logger
}

// NewRouter loads the stored configuration and constructs a Gin engine serving it.
// Store subscriptions and background profile refreshes end when ctx is done.
func NewRouter(ctx context.Context, configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Port == nil {
		return nil, ErrMissingPort
	}
	evaluator := configuration.Evaluator
	if evaluator == nil {
		evaluator = feedfilter.NewEvaluator()
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	state, err := configuration.Port.Load(ctx)
	if err != nil {
		logger.Warn(logMessageInitialLoadFailed, zap.Error(err))
	}

	handler := &settingsHandler{
		ctx:       ctx,
		port:      configuration.Port,
		evaluator: evaluator,
		profiles:  configuration.Profiles,
		logger:    logger,
		state:     state,
		events:    newEventHub(),
		tracker:   newProfileRefreshTracker(),
	}
	unsubscribe := configuration.Port.Subscribe(handler.applyStoredChange)
	go func() {
		<-ctx.Done()
		unsubscribe()
		handler.events.closeAll()
	}()

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET(healthRoutePath, handler.healthStatus)
	engine.GET(stateRoutePath, handler.serveState)
	engine.PUT(globalSettingsRoutePath, handler.replaceGlobalSettings)
	engine.PUT(groupsRoutePath, handler.replaceGroups)
	engine.GET(groupEffectiveRoutePath, handler.serveGroupEffective)
	engine.POST(groupAccountsRoutePath, handler.addAccount)
	engine.DELETE(groupAccountRoutePath, handler.removeAccount)
	engine.PUT(accountSettingsRoutePath, handler.replaceAccountSettings)
	engine.GET(accountEffectiveRoutePath, handler.serveAccountEffective)
	engine.POST(globalKeywordsRoutePath, handler.addGlobalKeyword)
	engine.PATCH(globalKeywordRoutePath, handler.toggleGlobalKeyword)
	engine.DELETE(globalKeywordRoutePath, handler.removeGlobalKeyword)
	engine.POST(groupKeywordsRoutePath, handler.addGroupKeyword)
	engine.PATCH(groupKeywordRoutePath, handler.toggleGroupKeyword)
	engine.DELETE(groupKeywordRoutePath, handler.removeGroupKeyword)
	engine.POST(recentColorsRoutePath, handler.pushRecentColor)
	engine.POST(evaluateRoutePath, handler.evaluatePost)
	engine.GET(eventsRoutePath, handler.streamEvents)
	engine.POST(profileRefreshRoutePath, handler.startProfileRefresh)
	engine.GET(profileRefreshTaskRoutePath, handler.serveProfileRefreshTask)

	return engine, nil
}

func (handler *settingsHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func respondError(ginContext *gin.Context, status int, message string) {
	ginContext.AbortWithStatusJSON(status, map[string]string{errorResponseKey: message})
}
