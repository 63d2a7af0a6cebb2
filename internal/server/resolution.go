package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/migration"
	"github.com/launchkol/kolfeed/internal/profiles"
)

const (
	profileRefreshTaskPrefix      = "task-"
	profileRefreshStatusRunning   = profileRefreshStatus("running")
	profileRefreshStatusCompleted = profileRefreshStatus("completed")
	profileRefreshStatusFailed    = profileRefreshStatus("failed")

	logMessageProfileRefreshFailed   = "profile refresh failed to save accounts"
	logMessageProfileRefreshFinished = "profile refresh finished"
	logFieldTaskID                   = "task_id"
	logFieldUpdatedAccounts          = "updated_accounts"
)

// profileRefreshStatus represents the lifecycle state of a profile refresh task.
type profileRefreshStatus string

type profileRefreshTask struct {
	identifier string
	total      int
	completed  int
	updated    int
	status     profileRefreshStatus
	errors     map[string]string
}

// profileRefreshTaskSnapshot copies the public portions of a task for serialization.
type profileRefreshTaskSnapshot struct {
	Identifier string               `json:"taskId"`
	Total      int                  `json:"total"`
	Completed  int                  `json:"completed"`
	Updated    int                  `json:"updated"`
	Status     profileRefreshStatus `json:"status"`
	Errors     map[string]string    `json:"errors"`
}

// profileRefreshTracker tracks active and completed profile refresh tasks.
type profileRefreshTracker struct {
	mutex        sync.Mutex
	tasks        map[string]*profileRefreshTask
	nextSequence int
}

func newProfileRefreshTracker() *profileRefreshTracker {
	return &profileRefreshTracker{tasks: make(map[string]*profileRefreshTask)}
}

// CreateTask registers a new refresh task over total handles and returns its snapshot.
func (tracker *profileRefreshTracker) CreateTask(total int) profileRefreshTaskSnapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.nextSequence++
	identifier := fmt.Sprintf("%s%d", profileRefreshTaskPrefix, tracker.nextSequence)
	task := &profileRefreshTask{
		identifier: identifier,
		total:      total,
		status:     profileRefreshStatusRunning,
		errors:     make(map[string]string),
	}
	tracker.tasks[identifier] = task
	return tracker.snapshotTask(task)
}

// RecordResolution updates task progress for a handle and its optional error.
func (tracker *profileRefreshTracker) RecordResolution(taskIdentifier string, handle string, resolutionErr error) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	if resolutionErr != nil {
		task.errors[handle] = resolutionErr.Error()
	}
	task.completed++
	if task.completed > task.total {
		task.completed = task.total
	}
}

// CompleteTask transitions a task to its terminal status.
func (tracker *profileRefreshTracker) CompleteTask(taskIdentifier string, updated int, failed bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	task.updated = updated
	if failed {
		task.status = profileRefreshStatusFailed
	} else {
		task.status = profileRefreshStatusCompleted
	}
	if task.completed < task.total {
		task.completed = task.total
	}
}

// TaskSnapshot returns a copy of the task state for external observers.
func (tracker *profileRefreshTracker) TaskSnapshot(taskIdentifier string) (profileRefreshTaskSnapshot, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return profileRefreshTaskSnapshot{}, false
	}
	return tracker.snapshotTask(task), true
}

func (tracker *profileRefreshTracker) snapshotTask(task *profileRefreshTask) profileRefreshTaskSnapshot {
	clonedErrors := make(map[string]string, len(task.errors))
	for handle, message := range task.errors {
		clonedErrors[handle] = message
	}
	return profileRefreshTaskSnapshot{
		Identifier: task.identifier,
		Total:      task.total,
		Completed:  task.completed,
		Updated:    task.updated,
		Status:     task.status,
		Errors:     clonedErrors,
	}
}

func (handler *settingsHandler) startProfileRefresh(ginContext *gin.Context) {
	if handler.profiles == nil {
		respondError(ginContext, http.StatusServiceUnavailable, errorMessageProfilesUnavailable)
		return
	}
	handles := feedsettings.TrackedHandles(handler.snapshot().Groups)
	task := handler.tracker.CreateTask(len(handles))
	go handler.refreshProfiles(task.Identifier, handles)
	ginContext.JSON(http.StatusAccepted, task)
}

func (handler *settingsHandler) serveProfileRefreshTask(ginContext *gin.Context) {
	task, exists := handler.tracker.TaskSnapshot(ginContext.Param(taskIDParam))
	if !exists {
		respondError(ginContext, http.StatusNotFound, errorMessageTaskNotFound)
		return
	}
	ginContext.JSON(http.StatusOK, task)
}

// refreshProfiles resolves handles and writes display names and avatars back
// into every group tracking them.
func (handler *settingsHandler) refreshProfiles(taskIdentifier string, handles []string) {
	results := handler.profiles.ResolveMany(handler.ctx, handles)
	for _, handle := range handles {
		result, exists := results[feedsettings.NormalizeHandle(handle)]
		if !exists {
			handler.tracker.RecordResolution(taskIdentifier, handle, handler.ctx.Err())
			continue
		}
		handler.tracker.RecordResolution(taskIdentifier, handle, result.Err)
	}

	updatedAccounts := 0
	_, err := handler.mutate(handler.ctx, []string{migration.KeyGroups}, func(state *feedsettings.State) error {
		for index, group := range state.Groups {
			accounts, updated := profiles.EnrichAccounts(group.Accounts, results)
			state.Groups[index].Accounts = accounts
			updatedAccounts += updated
		}
		return nil
	})
	if err != nil {
		handler.logger.Error(logMessageProfileRefreshFailed, zap.String(logFieldTaskID, taskIdentifier), zap.Error(err))
	}
	handler.tracker.CompleteTask(taskIdentifier, updatedAccounts, err != nil)
	handler.logger.Info(logMessageProfileRefreshFinished, zap.String(logFieldTaskID, taskIdentifier), zap.Int(logFieldUpdatedAccounts, updatedAccounts))
}
