package identityservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/sicatat/identitysvc"
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

func (mw loggingMiddleware) SignIn(ctx context.Context, email, password string) (u identitysvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "SignIn", "email", email, "uid", u.UID, "err", err)
	}()
	return mw.next.SignIn(ctx, email, password)
}

func (mw loggingMiddleware) SignUp(ctx context.Context, email, password string) (u identitysvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "SignUp", "email", email, "uid", u.UID, "err", err)
	}()
	return mw.next.SignUp(ctx, email, password)
}

func (mw loggingMiddleware) UpdateProfile(ctx context.Context, user identitysvc.User, displayName string) (u identitysvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "UpdateProfile", "uid", user.UID, "display_name", displayName, "err", err)
	}()
	return mw.next.UpdateProfile(ctx, user, displayName)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) SignIn(ctx context.Context, email, password string) (identitysvc.User, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "sign_in").Add(1)
		mw.requestLatency.With("method", "sign_in").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.SignIn(ctx, email, password)
}

func (mw instrumentingMiddleware) SignUp(ctx context.Context, email, password string) (identitysvc.User, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "sign_up").Add(1)
		mw.requestLatency.With("method", "sign_up").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.SignUp(ctx, email, password)
}

func (mw instrumentingMiddleware) UpdateProfile(ctx context.Context, user identitysvc.User, displayName string) (identitysvc.User, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "update_profile").Add(1)
		mw.requestLatency.With("method", "update_profile").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.UpdateProfile(ctx, user, displayName)
}
