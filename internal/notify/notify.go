// Package notify carries user-facing status messages from the action layer
// to whatever presents them.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/listen"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notification is one message shown to the user.
type Notification struct {
	ID      uuid.UUID
	Kind    Kind
	Title   string
	Message string
	Time    time.Time
}

// Sink receives notifications. Implementations must be safe for
// concurrent use and must not block for long.
type Sink interface {
	Show(kind Kind, title, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(kind Kind, title, message string)

// Show calls f.
func (f SinkFunc) Show(kind Kind, title, message string) { f(kind, title, message) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Kind, string, string) {})

// Fanout delivers to every sink in order.
type Fanout []Sink

// Show delivers to each sink.
func (f Fanout) Show(kind Kind, title, message string) {
	for _, s := range f {
		if s != nil {
			s.Show(kind, title, message)
		}
	}
}

// LogSink writes notifications to a logger.
type LogSink struct{ Log zerolog.Logger }

// Show logs at a level matching kind.
func (s LogSink) Show(kind Kind, title, message string) {
	var ev *zerolog.Event
	switch kind {
	case KindError:
		ev = s.Log.Error()
	case KindWarning:
		ev = s.Log.Warn()
	default:
		ev = s.Log.Info()
	}
	ev.Str("kind", string(kind)).Str("title", title).Msg(message)
}

// DefaultQueueSize bounds a Queue created with size <= 0.
const DefaultQueueSize = 50

// Queue keeps the most recent notifications and fans them out to
// subscribers. When full, the oldest entry is dropped.
type Queue struct {
	mu    sync.Mutex
	max   int
	items []Notification
	subs  listen.Registry[Notification]
	now   func() time.Time
}

// NewQueue returns a queue holding at most size entries.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{max: size, now: time.Now}
}

// Show records a notification and notifies subscribers outside the lock.
func (q *Queue) Show(kind Kind, title, message string) {
	n := Notification{ID: uuid.New(), Kind: kind, Title: title, Message: message, Time: q.now()}

	q.mu.Lock()
	q.items = append(q.items, n)
	if over := len(q.items) - q.max; over > 0 {
		q.items = append([]Notification(nil), q.items[over:]...)
	}
	q.mu.Unlock()

	q.subs.Emit(n)
}

// Items returns a copy of the queued notifications, oldest first.
func (q *Queue) Items() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// Dismiss removes one notification. It reports whether it was present.
func (q *Queue) Dismiss(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe registers fn for every new notification. The returned func
// removes it and is safe to call more than once.
func (q *Queue) Subscribe(fn func(Notification)) (unsubscribe func()) {
	return q.subs.Add(fn)
}
