package server

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	stateEventName        = "state"
	eventSubscriberBuffer = 16
	eventOriginSnapshot   = "snapshot"
)

// stateEvent is streamed to clients after every configuration change.
type stateEvent struct {
	Origin string             `json:"origin"`
	Keys   []string           `json:"keys"`
	State  feedsettings.State `json:"state"`
}

// eventHub fans state events out to connected streams. A subscriber that falls
// behind loses events rather than blocking mutations.
type eventHub struct {
	mutex        sync.Mutex
	subscribers  map[int]chan stateEvent
	nextSequence int
	closed       bool
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[int]chan stateEvent)}
}

func (hub *eventHub) subscribe() (<-chan stateEvent, func()) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	events := make(chan stateEvent, eventSubscriberBuffer)
	if hub.closed {
		close(events)
		return events, func() {}
	}
	identifier := hub.nextSequence
	hub.nextSequence++
	hub.subscribers[identifier] = events
	return events, func() {
		hub.mutex.Lock()
		defer hub.mutex.Unlock()
		if subscriber, exists := hub.subscribers[identifier]; exists {
			delete(hub.subscribers, identifier)
			close(subscriber)
		}
	}
}

func (hub *eventHub) publish(event stateEvent) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for _, subscriber := range hub.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}

func (hub *eventHub) closeAll() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.closed = true
	for identifier, subscriber := range hub.subscribers {
		delete(hub.subscribers, identifier)
		close(subscriber)
	}
}

// streamEvents sends the current state, then every change, as server-sent events.
func (handler *settingsHandler) streamEvents(ginContext *gin.Context) {
	events, unsubscribe := handler.events.subscribe()
	defer unsubscribe()

	ginContext.Status(http.StatusOK)
	ginContext.SSEvent(stateEventName, stateEvent{Origin: eventOriginSnapshot, Keys: []string{}, State: handler.snapshot()})
	ginContext.Writer.Flush()

	requestDone := ginContext.Request.Context().Done()
	ginContext.Stream(func(_ io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			ginContext.SSEvent(stateEventName, event)
			return true
		case <-requestDone:
			return false
		}
	})
}
