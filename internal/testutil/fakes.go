// Package testutil provides in-memory fakes of the identity provider and the
// task backend.
package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp"
)

// FakeIdentity is an in-memory identity provider.
type FakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]account

	SignInCalls        []Credentials
	SignUpCalls        []Credentials
	UpdateProfileCalls []string

	// Error injection
	SignInErr        error
	SignUpErr        error
	UpdateProfileErr error
}

type account struct {
	password string
	user     identitysvc.User
}

// Credentials records the values a sign-in or sign-up was called with.
type Credentials struct {
	Email    string
	Password string
}

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{accounts: make(map[string]account)}
}

// AddAccount registers an existing account.
func (f *FakeIdentity) AddAccount(email, password, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.accounts[email] = account{password, newUser(email, displayName)}
}

func (f *FakeIdentity) SignIn(_ context.Context, email, password string) (identitysvc.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SignInCalls = append(f.SignInCalls, Credentials{email, password})
	if f.SignInErr != nil {
		return identitysvc.User{}, f.SignInErr
	}

	a, ok := f.accounts[email]
	if !ok || a.password != password {
		return identitysvc.User{}, &identitysvc.Error{
			Code:    identitysvc.CodeInvalidCredential,
			Message: "INVALID_LOGIN_CREDENTIALS",
		}
	}
	return a.user, nil
}

func (f *FakeIdentity) SignUp(_ context.Context, email, password string) (identitysvc.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SignUpCalls = append(f.SignUpCalls, Credentials{email, password})
	if f.SignUpErr != nil {
		return identitysvc.User{}, f.SignUpErr
	}

	if _, ok := f.accounts[email]; ok {
		return identitysvc.User{}, &identitysvc.Error{
			Code:    identitysvc.CodeEmailAlreadyInUse,
			Message: "EMAIL_EXISTS",
		}
	}
	u := newUser(email, "")
	f.accounts[email] = account{password, u}
	return u, nil
}

func (f *FakeIdentity) UpdateProfile(_ context.Context, user identitysvc.User, displayName string) (identitysvc.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.UpdateProfileCalls = append(f.UpdateProfileCalls, displayName)
	if f.UpdateProfileErr != nil {
		return identitysvc.User{}, f.UpdateProfileErr
	}

	a, ok := f.accounts[user.Email]
	if !ok {
		return identitysvc.User{}, identitysvc.ErrNoUser
	}
	a.user.DisplayName = displayName
	f.accounts[user.Email] = a
	return a.user, nil
}

func newUser(email, displayName string) identitysvc.User {
	return identitysvc.User{
		UID:         "uid-" + email,
		Email:       email,
		DisplayName: displayName,
		IDToken:     "token-" + email,
	}
}

// FakeTasks is an in-memory task backend. New tasks get increasing numeric
// ids starting at NextID.
type FakeTasks struct {
	mu     sync.Mutex
	tasks  []tasksvc.Task
	NextID int

	TasksCalls  []string
	CreateCalls []tasksvc.NewTask
	DeleteCalls []tasksvc.TaskID
	ToggleCalls []Toggle

	// Error injection
	TasksErr  error
	CreateErr error
	DeleteErr error
	ToggleErr error
}

// Toggle records a ToggleTask call.
type Toggle struct {
	ID     tasksvc.TaskID
	Finish bool
}

func NewFakeTasks() *FakeTasks {
	return &FakeTasks{NextID: 1}
}

// Add stores t as if it had been created earlier.
func (f *FakeTasks) Add(t tasksvc.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tasks = append(f.tasks, t)
}

// All returns every stored task.
func (f *FakeTasks) All() []tasksvc.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := make([]tasksvc.Task, len(f.tasks))
	copy(tasks, f.tasks)
	return tasks
}

// Tasks returns every stored task, whoever owns it, the way the REST
// backend does when the userID query is ignored.
func (f *FakeTasks) Tasks(_ context.Context, userID string) ([]tasksvc.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TasksCalls = append(f.TasksCalls, userID)
	if f.TasksErr != nil {
		return nil, f.TasksErr
	}
	tasks := make([]tasksvc.Task, len(f.tasks))
	copy(tasks, f.tasks)
	return tasks, nil
}

func (f *FakeTasks) CreateTask(_ context.Context, nt tasksvc.NewTask) (tasksvc.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls = append(f.CreateCalls, nt)
	if f.CreateErr != nil {
		return tasksvc.Task{}, f.CreateErr
	}

	t := tasksvc.Task{
		ID:       tasksvc.TaskID(strconv.Itoa(f.NextID)),
		Name:     nt.Name,
		Category: nt.Category,
		UserID:   nt.UserID,
	}
	f.NextID++
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *FakeTasks) DeleteTask(_ context.Context, taskID tasksvc.TaskID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls = append(f.DeleteCalls, taskID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &tasksvc.StatusError{Method: "DELETE", Code: 404, Status: "404 Not Found"}
}

func (f *FakeTasks) ToggleTask(_ context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ToggleCalls = append(f.ToggleCalls, Toggle{taskID, finish})
	if f.ToggleErr != nil {
		return tasksvc.Task{}, f.ToggleErr
	}

	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks[i].Finish = finish
			return f.tasks[i], nil
		}
	}
	return tasksvc.Task{}, &tasksvc.StatusError{Method: "PATCH", Code: 404, Status: "404 Not Found"}
}

// Notifications collects notifications for assertions.
type Notifications struct {
	mu    sync.Mutex
	items []string
}

func (n *Notifications) Notify(note webapp.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.items = append(n.items, string(note.Level)+": "+note.Message)
}

// Messages returns the collected notifications as "level: message".
func (n *Notifications) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	items := make([]string, len(n.items))
	copy(items, n.items)
	return items
}
