package oidc

import "sync"

// EventType names a client notification.
type EventType string

const (
	EventReady              EventType = "ready"
	EventAuthSuccess        EventType = "auth-success"
	EventAuthError          EventType = "auth-error"
	EventAuthRefreshSuccess EventType = "auth-refresh-success"
	EventAuthRefreshError   EventType = "auth-refresh-error"
	EventAuthLogout         EventType = "auth-logout"
	EventTokenExpired       EventType = "token-expired"
)

// Event is delivered to the handlers subscribed to its Type. Authenticated
// is set for EventReady; Err for the error events.
type Event struct {
	Type          EventType
	Authenticated bool
	Err           error
}

// EventHandler handles an Event. Handlers run synchronously on the
// goroutine that emitted the event and may call back into the Client.
type EventHandler func(Event)

type subscription struct {
	id int
	fn EventHandler
}

type events struct {
	mu       sync.Mutex
	next     int
	handlers map[EventType][]subscription
}

func newEvents() *events {
	return &events{handlers: map[EventType][]subscription{}}
}

func (e *events) subscribe(t EventType, fn EventHandler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	id := e.next
	e.handlers[t] = append(e.handlers[t], subscription{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.handlers[t]
		for i, s := range subs {
			if s.id == id {
				e.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (e *events) emit(ev Event) {
	e.mu.Lock()
	subs := append([]subscription(nil), e.handlers[ev.Type]...)
	e.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
