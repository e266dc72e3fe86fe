package webendpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/tasklist"
	"github.com/ichigozero/sicatat/webapp/pkg/webservice"
)

type Set struct {
	LandingEndpoint    endpoint.Endpoint
	LoginEndpoint      endpoint.Endpoint
	RegisterEndpoint   endpoint.Endpoint
	LogoutEndpoint     endpoint.Endpoint
	DashboardEndpoint  endpoint.Endpoint
	AddTaskEndpoint    endpoint.Endpoint
	ToggleTaskEndpoint endpoint.Endpoint
	DeleteTaskEndpoint endpoint.Endpoint
}

// New wraps every endpoint with logging and, when duration is not nil,
// instrumentation labelled by method.
func New(svc webservice.Service, logger log.Logger, duration metrics.Histogram) Set {
	wrap := func(method string, e endpoint.Endpoint) endpoint.Endpoint {
		e = LoggingMiddleware(log.With(logger, "method", method))(e)
		if duration != nil {
			e = InstrumentingMiddleware(duration.With("method", method))(e)
		}
		return e
	}

	return Set{
		LandingEndpoint:    wrap("Landing", MakeLandingEndpoint(svc)),
		LoginEndpoint:      wrap("Login", MakeLoginEndpoint(svc)),
		RegisterEndpoint:   wrap("Register", MakeRegisterEndpoint(svc)),
		LogoutEndpoint:     wrap("Logout", MakeLogoutEndpoint(svc)),
		DashboardEndpoint:  wrap("Dashboard", MakeDashboardEndpoint(svc)),
		AddTaskEndpoint:    wrap("AddTask", MakeAddTaskEndpoint(svc)),
		ToggleTaskEndpoint: wrap("ToggleTask", MakeToggleTaskEndpoint(svc)),
		DeleteTaskEndpoint: wrap("DeleteTask", MakeDeleteTaskEndpoint(svc)),
	}
}

func sessionID(ctx context.Context) (string, error) {
	sid, ok := ctx.Value(webapp.SessionIDContextKey).(string)
	if !ok || sid == "" {
		return "", webapp.ErrSessionMissing
	}
	return sid, nil
}

func MakeLandingEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(LandingRequest)
		l, err := s.Landing(ctx, sid, req.Form)
		return LandingResponse{Landing: l, Err: err}, nil
	}
}

func MakeLoginEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(LoginRequest)
		o, err := s.Login(ctx, sid, credential.LoginInput{Email: req.Email, Password: req.Password})
		return CredentialResponse{Outcome: o, Err: err}, nil
	}
}

func MakeRegisterEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(RegisterRequest)
		o, err := s.Register(ctx, sid, credential.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		return CredentialResponse{Outcome: o, Err: err}, nil
	}
}

func MakeLogoutEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		o, err := s.Logout(ctx, sid)
		return CredentialResponse{Outcome: o, Err: err}, nil
	}
}

func MakeDashboardEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(DashboardRequest)
		d, err := s.Dashboard(ctx, sid, webservice.DashboardQuery{Filter: req.Filter, Refresh: req.Refresh})
		return DashboardResponse{Dashboard: d, Err: err}, nil
	}
}

func MakeAddTaskEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(AddTaskRequest)
		o, err := s.AddTask(ctx, sid, tasklist.Draft{Text: req.Text, Category: req.Category})
		return TaskResponse{TaskOutcome: o, Err: err}, nil
	}
}

func MakeToggleTaskEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(ToggleTaskRequest)
		o, err := s.ToggleTask(ctx, sid, req.TaskID)
		return TaskResponse{TaskOutcome: o, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s webservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		sid, err := sessionID(ctx)
		if err != nil {
			return nil, err
		}

		req := request.(DeleteTaskRequest)
		o, err := s.DeleteTask(ctx, sid, req.TaskID)
		return TaskResponse{TaskOutcome: o, Err: err}, nil
	}
}

// Notifier is implemented by responses that carry notifications, so the
// transport can render them on failure too.
type Notifier interface {
	Notices() []webapp.Notification
}

var (
	_ endpoint.Failer = LandingResponse{}
	_ endpoint.Failer = CredentialResponse{}
	_ endpoint.Failer = DashboardResponse{}
	_ endpoint.Failer = TaskResponse{}

	_ Notifier = CredentialResponse{}
	_ Notifier = DashboardResponse{}
	_ Notifier = TaskResponse{}
)

type LandingRequest struct {
	Form string
}

type LandingResponse struct {
	webservice.Landing
	Err error `json:"-"`
}

func (r LandingResponse) Failed() error      { return r.Err }
func (r LandingResponse) RedirectTo() string { return r.Redirect }

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LogoutRequest struct{}

type CredentialResponse struct {
	webservice.Outcome
	Err error `json:"-"`
}

func (r CredentialResponse) Failed() error                  { return r.Err }
func (r CredentialResponse) Notices() []webapp.Notification { return r.Notifications }
func (r CredentialResponse) NextSessionID() string          { return r.SessionID }

type DashboardRequest struct {
	Filter  string
	Refresh bool
}

type DashboardResponse struct {
	webservice.Dashboard
	Err error `json:"-"`
}

func (r DashboardResponse) Failed() error                  { return r.Err }
func (r DashboardResponse) Notices() []webapp.Notification { return r.Notifications }
func (r DashboardResponse) RedirectTo() string             { return r.Redirect }

type AddTaskRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type ToggleTaskRequest struct {
	TaskID tasksvc.TaskID
}

type DeleteTaskRequest struct {
	TaskID tasksvc.TaskID
}

type TaskResponse struct {
	webservice.TaskOutcome
	Err error `json:"-"`
}

func (r TaskResponse) Failed() error                  { return r.Err }
func (r TaskResponse) Notices() []webapp.Notification { return r.Notifications }
