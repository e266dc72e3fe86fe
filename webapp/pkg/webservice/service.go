package webservice

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/tasklist"
)

// Service is the web front. Every method acts on behalf of the browser
// session sid.
type Service interface {
	Landing(ctx context.Context, sid string, form string) (Landing, error)
	Login(ctx context.Context, sid string, in credential.LoginInput) (Outcome, error)
	Register(ctx context.Context, sid string, in credential.RegisterInput) (Outcome, error)
	Logout(ctx context.Context, sid string) (Outcome, error)
	Dashboard(ctx context.Context, sid string, q DashboardQuery) (Dashboard, error)
	AddTask(ctx context.Context, sid string, d tasklist.Draft) (TaskOutcome, error)
	ToggleTask(ctx context.Context, sid string, id tasksvc.TaskID) (TaskOutcome, error)
	DeleteTask(ctx context.Context, sid string, id tasksvc.TaskID) (TaskOutcome, error)
}

const (
	FormRegister = "register"
	FormLogin    = "login"
)

type Landing struct {
	AppName  string `json:"appName"`
	Form     string `json:"form"`
	Redirect string `json:"redirect,omitempty"`
}

// Outcome is the result of a credential action. SessionID is set when the
// action moved the browser to a new session.
type Outcome struct {
	Redirect      string                `json:"redirect,omitempty"`
	SessionID     string                `json:"-"`
	Notifications []webapp.Notification `json:"notifications"`
}

type DashboardQuery struct {
	Filter  string
	Refresh bool
}

type Dashboard struct {
	User          *Account              `json:"user,omitempty"`
	View          tasklist.View         `json:"view"`
	Categories    []tasksvc.Category    `json:"categories"`
	Redirect      string                `json:"redirect,omitempty"`
	Notifications []webapp.Notification `json:"notifications"`
}

type TaskOutcome struct {
	Task          *tasksvc.Task         `json:"task,omitempty"`
	View          tasklist.View         `json:"view"`
	Notifications []webapp.Notification `json:"notifications"`
}

// Account is the part of the signed-in user shown to the browser.
type Account struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func New(
	forms *credential.Forms,
	sessions *session.Manager,
	tasks taskservice.Service,
	logger log.Logger,
	opts ...tasklist.Option,
) Service {
	var svc Service
	{
		svc = NewBasicService(forms, sessions, tasks, logger, opts...)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

// view is the task view of one session, alive from the first dashboard visit
// to sign-out.
type view struct {
	controller *tasklist.Controller
	toasts     *webapp.Toasts
	mount      sync.Once
}

type basicService struct {
	forms    *credential.Forms
	sessions *session.Manager
	tasks    taskservice.Service
	logger   log.Logger
	opts     []tasklist.Option

	mu    sync.Mutex
	views map[string]*view
}

func NewBasicService(
	forms *credential.Forms,
	sessions *session.Manager,
	tasks taskservice.Service,
	logger log.Logger,
	opts ...tasklist.Option,
) Service {
	return &basicService{
		forms:    forms,
		sessions: sessions,
		tasks:    tasks,
		logger:   logger,
		opts:     opts,
		views:    make(map[string]*view),
	}
}

func (s *basicService) Landing(_ context.Context, sid string, form string) (Landing, error) {
	b, err := s.sessions.Bridge(sid)
	if err != nil {
		return Landing{}, err
	}
	if b.CurrentUser() != nil {
		return Landing{AppName: webapp.AppName, Redirect: webapp.DashboardRoute}, nil
	}
	s.forget(sid)

	if form != FormLogin {
		form = FormRegister
	}
	return Landing{AppName: webapp.AppName, Form: form}, nil
}

func (s *basicService) Login(ctx context.Context, sid string, in credential.LoginInput) (Outcome, error) {
	return s.signIn(ctx, sid, func(b *session.Bridge, toasts *webapp.Toasts) (credential.Result, error) {
		return s.forms.Login(ctx, b, in, toasts)
	})
}

func (s *basicService) Register(ctx context.Context, sid string, in credential.RegisterInput) (Outcome, error) {
	return s.signIn(ctx, sid, func(b *session.Bridge, toasts *webapp.Toasts) (credential.Result, error) {
		return s.forms.Register(ctx, b, in, toasts)
	})
}

// signIn runs submit against a fresh session so that a successful sign-in
// never reuses the id the browser arrived with.
func (s *basicService) signIn(
	_ context.Context,
	sid string,
	submit func(*session.Bridge, *webapp.Toasts) (credential.Result, error),
) (Outcome, error) {
	next := session.NewID()
	b, err := s.sessions.Bridge(next)
	if err != nil {
		return Outcome{}, err
	}

	var toasts webapp.Toasts
	result, err := submit(b, &toasts)
	if err != nil {
		s.sessions.Release(next)
		return Outcome{Notifications: toasts.Drain()}, err
	}

	if sid != "" {
		s.forget(sid)
		if err := s.sessions.Discard(sid); err != nil {
			s.logger.Log("method", "signIn", "session", sid, "err", err)
		}
	}
	return Outcome{
		Redirect:      result.Redirect,
		SessionID:     next,
		Notifications: toasts.Drain(),
	}, nil
}

func (s *basicService) Logout(ctx context.Context, sid string) (Outcome, error) {
	b, err := s.sessions.Bridge(sid)
	if err != nil {
		return Outcome{}, err
	}

	var toasts webapp.Toasts
	result, err := s.forms.SignOut(ctx, b, &toasts)
	if err != nil {
		return Outcome{Notifications: toasts.Drain()}, err
	}

	s.forget(sid)
	return Outcome{Redirect: result.Redirect, Notifications: toasts.Drain()}, nil
}

func (s *basicService) Dashboard(ctx context.Context, sid string, q DashboardQuery) (Dashboard, error) {
	filter, err := tasksvc.ParseFilter(q.Filter)
	if err != nil {
		return Dashboard{}, err
	}

	v, user, err := s.mountedView(ctx, sid)
	if err == webapp.ErrNotSignedIn {
		return Dashboard{Redirect: webapp.LandingRoute, Categories: tasksvc.Categories}, nil
	}
	if err != nil {
		return Dashboard{}, err
	}

	if q.Filter != "" {
		v.controller.SetFilter(filter)
	}
	if q.Refresh {
		v.controller.Refresh(ctx)
	}

	return Dashboard{
		User:          account(user),
		View:          v.controller.View(),
		Categories:    tasksvc.Categories,
		Notifications: v.toasts.Drain(),
	}, nil
}

func (s *basicService) AddTask(ctx context.Context, sid string, d tasklist.Draft) (TaskOutcome, error) {
	v, _, err := s.mountedView(ctx, sid)
	if err != nil {
		return TaskOutcome{}, err
	}

	v.controller.SetDraft(d.Text, d.Category)
	t, err := v.controller.Add(ctx)
	return s.taskOutcome(v, t, err)
}

func (s *basicService) ToggleTask(ctx context.Context, sid string, id tasksvc.TaskID) (TaskOutcome, error) {
	v, _, err := s.mountedView(ctx, sid)
	if err != nil {
		return TaskOutcome{}, err
	}

	t, err := v.controller.Toggle(ctx, id)
	return s.taskOutcome(v, t, err)
}

func (s *basicService) DeleteTask(ctx context.Context, sid string, id tasksvc.TaskID) (TaskOutcome, error) {
	v, _, err := s.mountedView(ctx, sid)
	if err != nil {
		return TaskOutcome{}, err
	}

	err = v.controller.Delete(ctx, id)
	return s.taskOutcome(v, tasksvc.Task{}, err)
}

func (s *basicService) taskOutcome(v *view, t tasksvc.Task, err error) (TaskOutcome, error) {
	out := TaskOutcome{
		View:          v.controller.View(),
		Notifications: v.toasts.Drain(),
	}
	if err == nil && t.ID != "" {
		out.Task = &t
	}
	return out, err
}

// mountedView returns the task view of sid, mounting it on first use. Callers
// racing the first mount wait for it to finish. ErrNotSignedIn is returned
// when the session has no user.
func (s *basicService) mountedView(ctx context.Context, sid string) (*view, *identitysvc.User, error) {
	b, err := s.sessions.Bridge(sid)
	if err != nil {
		return nil, nil, err
	}
	user := b.CurrentUser()
	if user == nil {
		s.forget(sid)
		return nil, nil, webapp.ErrNotSignedIn
	}

	s.mu.Lock()
	v, ok := s.views[sid]
	if !ok {
		v = &view{toasts: &webapp.Toasts{}}
		logger := log.With(s.logger, "session", sid)
		opts := append([]tasklist.Option{
			tasklist.WithNavigator(func(route string) {
				logger.Log("navigate", route)
			}),
		}, s.opts...)
		v.controller = tasklist.New(s.tasks, v.toasts, logger, opts...)
		s.views[sid] = v
	}
	s.mu.Unlock()

	v.mount.Do(func() { v.controller.Mount(ctx, b) })
	return v, user, nil
}

// forget drops everything held in memory for sid.
func (s *basicService) forget(sid string) {
	s.mu.Lock()
	v, ok := s.views[sid]
	delete(s.views, sid)
	s.mu.Unlock()

	if ok {
		v.controller.Unmount()
	}
	s.sessions.Release(sid)
}

func account(u *identitysvc.User) *Account {
	if u == nil {
		return nil
	}
	return &Account{Email: u.Email, DisplayName: u.DisplayName}
}
