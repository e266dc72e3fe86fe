// Package credential implements the login and register forms: schema
// validation, submission to the identity provider and the notifications shown
// for each outcome.
package credential

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/webapp"
)

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validate(loginValidator, in)
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in RegisterInput) Validate() error {
	return validate(registerValidator, in)
}

// Result tells the caller where to go after a successful submission.
type Result struct {
	Redirect string            `json:"redirect"`
	User     *identitysvc.User `json:"-"`
}

const (
	msgCreateAccountFirst = "Please create an account first."
	msgLogInInstead       = "Email already in use, please log in instead."
	msgSignOutFailed      = "Failed to logout"
)

type Forms struct {
	identity identityservice.Service
	logger   log.Logger
}

func New(identity identityservice.Service, logger log.Logger) *Forms {
	return &Forms{identity: identity, logger: log.With(logger, "component", "credential")}
}

// Login validates in and signs in with the submitted values unmodified.
// Validation failures are returned as FieldErrors and never reach the
// provider.
func (f *Forms) Login(ctx context.Context, b *session.Bridge, in LoginInput, n webapp.Notifier) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	u, err := f.identity.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		n.Notify(webapp.Failure(FailureMessage(err)))
		return Result{}, err
	}

	if err := b.SignIn(ctx, u); err != nil {
		f.logger.Log("method", "Login", "err", err)
		n.Notify(webapp.Failure(err.Error()))
		return Result{}, err
	}

	n.Notify(webapp.Success("Halo " + u.DisplayName))
	return Result{Redirect: webapp.DashboardRoute, User: &u}, nil
}

// Register creates the account, names it after in.Name and signs it in.
func (f *Forms) Register(ctx context.Context, b *session.Bridge, in RegisterInput, n webapp.Notifier) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	u, err := f.identity.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		n.Notify(webapp.Failure(FailureMessage(err)))
		return Result{}, err
	}

	u, err = f.identity.UpdateProfile(ctx, u, in.Name)
	if err != nil {
		f.logger.Log("method", "Register", "during", "UpdateProfile", "err", err)
		n.Notify(webapp.Failure(FailureMessage(err)))
		return Result{}, err
	}

	if err := b.SignIn(ctx, u); err != nil {
		f.logger.Log("method", "Register", "err", err)
		n.Notify(webapp.Failure(err.Error()))
		return Result{}, err
	}

	n.Notify(webapp.Success("Halo " + in.Name))
	return Result{Redirect: webapp.DashboardRoute, User: &u}, nil
}

// SignOut ends the session and sends the user back to the landing view.
func (f *Forms) SignOut(ctx context.Context, b *session.Bridge, n webapp.Notifier) (Result, error) {
	if err := b.SignOut(ctx); err != nil {
		f.logger.Log("method", "SignOut", "err", err)
		n.Notify(webapp.Failure(msgSignOutFailed))
		return Result{}, err
	}
	return Result{Redirect: webapp.LandingRoute}, nil
}

// FailureMessage is the notification text for a failed submission.
func FailureMessage(err error) string {
	switch identitysvc.ErrorCode(err) {
	case identitysvc.CodeInvalidCredential:
		return msgCreateAccountFirst
	case identitysvc.CodeEmailAlreadyInUse:
		return msgLogInInstead
	}
	return err.Error()
}
