package webservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/tasklist"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Landing(ctx context.Context, sid string, form string) (l Landing, err error) {
	defer func() {
		mw.logger.Log("method", "Landing", "session", sid, "redirect", l.Redirect, "err", err)
	}()
	return mw.next.Landing(ctx, sid, form)
}

func (mw loggingMiddleware) Login(ctx context.Context, sid string, in credential.LoginInput) (o Outcome, err error) {
	defer func() {
		mw.logger.Log("method", "Login", "session", sid, "email", in.Email, "err", err)
	}()
	return mw.next.Login(ctx, sid, in)
}

func (mw loggingMiddleware) Register(ctx context.Context, sid string, in credential.RegisterInput) (o Outcome, err error) {
	defer func() {
		mw.logger.Log("method", "Register", "session", sid, "email", in.Email, "err", err)
	}()
	return mw.next.Register(ctx, sid, in)
}

func (mw loggingMiddleware) Logout(ctx context.Context, sid string) (o Outcome, err error) {
	defer func() {
		mw.logger.Log("method", "Logout", "session", sid, "err", err)
	}()
	return mw.next.Logout(ctx, sid)
}

func (mw loggingMiddleware) Dashboard(ctx context.Context, sid string, q DashboardQuery) (d Dashboard, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Dashboard",
			"session", sid,
			"filter", q.Filter,
			"refresh", q.Refresh,
			"state", d.View.State,
			"err", err,
		)
	}()
	return mw.next.Dashboard(ctx, sid, q)
}

func (mw loggingMiddleware) AddTask(ctx context.Context, sid string, d tasklist.Draft) (o TaskOutcome, err error) {
	defer func() {
		mw.logger.Log("method", "AddTask", "session", sid, "category", d.Category, "err", err)
	}()
	return mw.next.AddTask(ctx, sid, d)
}

func (mw loggingMiddleware) ToggleTask(ctx context.Context, sid string, id tasksvc.TaskID) (o TaskOutcome, err error) {
	defer func() {
		mw.logger.Log("method", "ToggleTask", "session", sid, "task_id", id, "err", err)
	}()
	return mw.next.ToggleTask(ctx, sid, id)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, sid string, id tasksvc.TaskID) (o TaskOutcome, err error) {
	defer func() {
		mw.logger.Log("method", "DeleteTask", "session", sid, "task_id", id, "err", err)
	}()
	return mw.next.DeleteTask(ctx, sid, id)
}
