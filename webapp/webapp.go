package webapp

import (
	"errors"
	"sync"
)

// AppName is shown on the landing view.
const AppName = "Si Catat"

const (
	LandingRoute   = "/"
	DashboardRoute = "/dashboard"
)

type contextKey string

// SessionIDContextKey holds the browser session id decoded by the transport.
const SessionIDContextKey contextKey = "SessionID"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient message for the user, a toast in the browser.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

func Success(msg string) Notification { return Notification{Level: LevelSuccess, Message: msg} }
func Failure(msg string) Notification { return Notification{Level: LevelError, Message: msg} }

// Toasts queues notifications until the next response drains them.
type Toasts struct {
	mu    sync.Mutex
	items []Notification
}

func (t *Toasts) Notify(n Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = append(t.items, n)
}

// Drain returns the queued notifications and empties the queue.
func (t *Toasts) Drain() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := t.items
	t.items = nil
	if items == nil {
		items = []Notification{}
	}
	return items
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSignedIn     = errors.New("not signed in")
	ErrSessionMissing  = errors.New("session was not passed through the context")
)
