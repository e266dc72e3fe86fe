// Package tasklist implements the task view: it follows the session's auth
// state, loads the signed-in user's tasks and applies add, delete, toggle and
// filter actions to its local copy.
package tasklist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
	"github.com/ichigozero/sicatat/webapp"
)

type State int

const (
	StateUninitialized State = iota
	StateUserUnknown
	StateLoading
	StateLoaded
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateUserUnknown:    "user-unknown",
	StateLoading:        "user-known-tasks-loading",
	StateLoaded:         "tasks-loaded",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown view state %q", b)
}

// AuthSource is satisfied by *session.Bridge.
type AuthSource interface {
	OnAuthStateChanged(ctx context.Context, fn session.Observer) (unsubscribe func())
}

const (
	msgAdded        = "Task added successfully"
	msgAddFailed    = "Failed to add task"
	msgDeleted      = "Task deleted successfully"
	msgDeleteFailed = "Failed to delete task"
	msgUpdated      = "Task updated successfully"
	msgUpdateFailed = "Failed to update task"
)

// Draft is the content of the new-task input.
type Draft struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// View is a snapshot of the controller for rendering.
type View struct {
	State  State             `json:"state"`
	Filter tasksvc.Filter    `json:"filter"`
	Tasks  []tasksvc.Task    `json:"tasks"`
	Total  int               `json:"total"`
	Draft  Draft             `json:"draft"`
	User   *identitysvc.User `json:"-"`
}

type Option func(*Controller)

// KeepDraftOnFailure leaves the draft untouched when adding a task fails.
// By default the draft text is cleared whatever the outcome.
func KeepDraftOnFailure() Option {
	return func(c *Controller) { c.keepDraft = true }
}

// WithNavigator sets the function called with the landing route whenever the
// session has no signed-in user.
func WithNavigator(navigate func(route string)) Option {
	return func(c *Controller) { c.navigate = navigate }
}

type Controller struct {
	svc       taskservice.Service
	notifier  webapp.Notifier
	logger    log.Logger
	keepDraft bool
	navigate  func(route string)

	mu          sync.Mutex
	state       State
	mounted     bool
	user        *identitysvc.User
	tasks       []tasksvc.Task
	filter      tasksvc.Filter
	draft       Draft
	generation  uint64
	unsubscribe func()
}

func New(svc taskservice.Service, notifier webapp.Notifier, logger log.Logger, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		notifier: notifier,
		logger:   log.With(logger, "component", "tasklist"),
		navigate: func(string) {},
		filter:   tasksvc.FilterAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount subscribes the controller to src. Mounting twice is a no-op.
func (c *Controller) Mount(ctx context.Context, src AuthSource) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.state = StateUserUnknown
	c.mu.Unlock()

	unsubscribe := src.OnAuthStateChanged(ctx, c.onAuthStateChanged)

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// Unmount releases the auth subscription and forgets all view state.
func (c *Controller) Unmount() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mounted = false
	c.state = StateUninitialized
	c.user = nil
	c.tasks = nil
	c.generation++
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) onAuthStateChanged(ctx context.Context, u *identitysvc.User) {
	if u == nil {
		c.mu.Lock()
		c.user = nil
		c.tasks = nil
		c.state = StateUserUnknown
		c.generation++
		c.mu.Unlock()

		c.navigate(webapp.LandingRoute)
		return
	}

	c.mu.Lock()
	c.user = u
	c.mu.Unlock()

	c.Refresh(ctx)
}

// Refresh reloads the task collection of the current user. A failed load is
// logged and leaves the collection as it was. Replies to superseded loads
// are dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return tasksvc.ErrNoUser
	}
	c.generation++
	gen := c.generation
	user := *c.user
	c.state = StateLoading
	c.mu.Unlock()

	tasks, err := c.svc.Tasks(withToken(ctx, user), user.Email)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Log("method", "Refresh", "user_id", user.Email, "stale", true)
		return nil
	}
	c.state = StateLoaded
	if err != nil {
		c.logger.Log("method", "Refresh", "user_id", user.Email, "err", err)
		return nil
	}

	owned := make([]tasksvc.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.UserID != "" && t.UserID != user.Email {
			continue
		}
		owned = append(owned, t)
	}
	c.tasks = owned
	return nil
}

func (c *Controller) SetDraft(text, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draft = Draft{Text: text, Category: category}
}

// Add creates a task from the draft. An empty or whitespace-only text, or a
// missing category, returns ErrInvalidArgument without any request.
func (c *Controller) Add(ctx context.Context) (tasksvc.Task, error) {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return tasksvc.Task{}, tasksvc.ErrNoUser
	}
	draft := c.draft
	if strings.TrimSpace(draft.Text) == "" || !tasksvc.IsCategory(draft.Category) {
		c.mu.Unlock()
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	user := *c.user
	c.mu.Unlock()

	t, err := c.svc.CreateTask(withToken(ctx, user), tasksvc.NewTask{
		Name:     draft.Text,
		Category: draft.Category,
		UserID:   user.Email,
	})

	c.mu.Lock()
	if err == nil || !c.keepDraft {
		c.draft.Text = ""
	}
	if err == nil && c.isCurrent(user) {
		c.tasks = append(c.tasks, t)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Log("method", "Add", "err", err)
		c.notifier.Notify(webapp.Failure(msgAddFailed))
		return tasksvc.Task{}, err
	}
	c.notifier.Notify(webapp.Success(msgAdded))
	return t, nil
}

// Delete removes the task once the backend call returns without error.
func (c *Controller) Delete(ctx context.Context, id tasksvc.TaskID) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return tasksvc.ErrNoUser
	}
	if c.indexOf(id) < 0 {
		c.mu.Unlock()
		return tasksvc.ErrTaskNotFound
	}
	user := *c.user
	c.mu.Unlock()

	if err := c.svc.DeleteTask(withToken(ctx, user), id); err != nil {
		c.logger.Log("method", "Delete", "task_id", id, "err", err)
		c.notifier.Notify(webapp.Failure(msgDeleteFailed))
		return err
	}

	c.mu.Lock()
	if i := c.indexOf(id); i >= 0 {
		c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
	}
	c.mu.Unlock()

	c.notifier.Notify(webapp.Success(msgDeleted))
	return nil
}

// Toggle flips the finish flag of the task. The local record updated is the
// one matching the id in the backend's reply.
func (c *Controller) Toggle(ctx context.Context, id tasksvc.TaskID) (tasksvc.Task, error) {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return tasksvc.Task{}, tasksvc.ErrNoUser
	}
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	finish := !c.tasks[i].Finish
	user := *c.user
	c.mu.Unlock()

	t, err := c.svc.ToggleTask(withToken(ctx, user), id, finish)
	if err != nil {
		c.logger.Log("method", "Toggle", "task_id", id, "err", err)
		c.notifier.Notify(webapp.Failure(msgUpdateFailed))
		return tasksvc.Task{}, err
	}

	c.mu.Lock()
	if j := c.indexOf(t.ID); j >= 0 {
		c.tasks[j] = patch(c.tasks[j], t)
		t = c.tasks[j]
	}
	c.mu.Unlock()

	c.notifier.Notify(webapp.Success(msgUpdated))
	return t, nil
}

func (c *Controller) SetFilter(f tasksvc.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter = f
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:  c.state,
		Filter: c.filter,
		Tasks:  c.filter.Apply(c.tasks),
		Total:  len(c.tasks),
		Draft:  c.draft,
	}
	if c.user != nil {
		u := *c.user
		v.User = &u
	}
	return v
}

// indexOf must be called with c.mu held.
func (c *Controller) indexOf(id tasksvc.TaskID) int {
	for i, t := range c.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// isCurrent must be called with c.mu held.
func (c *Controller) isCurrent(user identitysvc.User) bool {
	return c.user != nil && c.user.Email == user.Email
}

// patch applies the backend's reply to the local record, keeping the fields
// the reply left empty.
func patch(local, reply tasksvc.Task) tasksvc.Task {
	local.Finish = reply.Finish
	if reply.Name != "" {
		local.Name = reply.Name
	}
	if reply.Category != "" {
		local.Category = reply.Category
	}
	if reply.UserID != "" {
		local.UserID = reply.UserID
	}
	return local
}

func withToken(ctx context.Context, user identitysvc.User) context.Context {
	if user.IDToken == "" {
		return ctx
	}
	return context.WithValue(ctx, kitjwt.JWTContextKey, user.IDToken)
}
