// Package notify carries user-visible outcome notifications out of the
// gate flow.  Sinks subscribe explicitly; there is no module-level
// listener registry.
package notify

import (
	"log"
	"sync"
)

// Level distinguishes success from error notifications.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level Level
	Title string
	Body  string
}

// Bus fans notifications out to subscribed sinks.  Subscribe returns
// an unsubscribe func; sinks that forget to call it leak, so callers
// should defer it for the lifetime of the component that rendered the
// notification surface.
type Bus struct {
	mu    sync.Mutex
	next  int
	sinks map[int]func(Notification)
}

// NewBus returns an empty notification bus.
func NewBus() *Bus {
	return &Bus{sinks: make(map[int]func(Notification))}
}

// Subscribe registers a sink and returns its unsubscribe func.
func (b *Bus) Subscribe(fn func(Notification)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.sinks[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.sinks, id)
		b.mu.Unlock()
	}
}

func (b *Bus) publish(n Notification) {
	b.mu.Lock()
	sinks := make([]func(Notification), 0, len(b.sinks))
	for _, fn := range b.sinks {
		sinks = append(sinks, fn)
	}
	b.mu.Unlock()
	for _, fn := range sinks {
		fn(n)
	}
}

// NotifySuccess publishes a success notification.
func (b *Bus) NotifySuccess(title, body string) {
	b.publish(Notification{Level: LevelSuccess, Title: title, Body: body})
}

// NotifyError publishes an error notification.
func (b *Bus) NotifyError(title, body string) {
	b.publish(Notification{Level: LevelError, Title: title, Body: body})
}

// Log is a sink-less notifier that writes to the process log.  Useful
// for headless deployments and as the default wiring in cmd/server.
type Log struct{}

// NotifySuccess logs the notification at info level.
func (Log) NotifySuccess(title, body string) { log.Printf("notify: %s: %s", title, body) }

// NotifyError logs the notification as an error line.
func (Log) NotifyError(title, body string) { log.Printf("notify: ERROR: %s: %s", title, body) }
