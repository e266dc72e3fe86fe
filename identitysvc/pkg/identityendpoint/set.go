package identityendpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
)

type Set struct {
	SignInEndpoint        endpoint.Endpoint
	SignUpEndpoint        endpoint.Endpoint
	UpdateProfileEndpoint endpoint.Endpoint
}

func New(svc identityservice.Service, logger log.Logger) Set {
	var signInEndpoint endpoint.Endpoint
	{
		signInEndpoint = MakeSignInEndpoint(svc)
		signInEndpoint = LoggingMiddleware(log.With(logger, "method", "SignIn"))(signInEndpoint)
	}

	var signUpEndpoint endpoint.Endpoint
	{
		signUpEndpoint = MakeSignUpEndpoint(svc)
		signUpEndpoint = LoggingMiddleware(log.With(logger, "method", "SignUp"))(signUpEndpoint)
	}

	var updateProfileEndpoint endpoint.Endpoint
	{
		updateProfileEndpoint = MakeUpdateProfileEndpoint(svc)
		updateProfileEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateProfile"))(updateProfileEndpoint)
	}

	return Set{
		SignInEndpoint:        signInEndpoint,
		SignUpEndpoint:        signUpEndpoint,
		UpdateProfileEndpoint: updateProfileEndpoint,
	}
}

func (s Set) SignIn(ctx context.Context, email, password string) (identitysvc.User, error) {
	response, err := s.SignInEndpoint(ctx, SignInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return identitysvc.User{}, err
	}

	resp := response.(SignInResponse)
	return resp.User, resp.Err
}

func (s Set) SignUp(ctx context.Context, email, password string) (identitysvc.User, error) {
	response, err := s.SignUpEndpoint(ctx, SignUpRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return identitysvc.User{}, err
	}

	resp := response.(SignUpResponse)
	return resp.User, resp.Err
}

func (s Set) UpdateProfile(ctx context.Context, user identitysvc.User, displayName string) (identitysvc.User, error) {
	response, err := s.UpdateProfileEndpoint(ctx, UpdateProfileRequest{
		User:              user,
		IDToken:           user.IDToken,
		DisplayName:       displayName,
		ReturnSecureToken: true,
	})
	if err != nil {
		return identitysvc.User{}, err
	}

	resp := response.(UpdateProfileResponse)
	if resp.Err != nil {
		return identitysvc.User{}, resp.Err
	}

	updated := resp.User
	if updated.DisplayName == "" {
		updated.DisplayName = displayName
	}
	return updated.Fill(user), nil
}

func MakeSignInEndpoint(s identityservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(SignInRequest)
		u, err := s.SignIn(ctx, req.Email, req.Password)

		return SignInResponse{User: u, Err: err}, nil
	}
}

func MakeSignUpEndpoint(s identityservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(SignUpRequest)
		u, err := s.SignUp(ctx, req.Email, req.Password)

		return SignUpResponse{User: u, Err: err}, nil
	}
}

func MakeUpdateProfileEndpoint(s identityservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(UpdateProfileRequest)
		u, err := s.UpdateProfile(ctx, req.User, req.DisplayName)

		return UpdateProfileResponse{User: u, Err: err}, nil
	}
}

// LoggingMiddleware logs the transport error and duration of every call.
func LoggingMiddleware(logger log.Logger) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			defer func(begin time.Time) {
				logger.Log("transport_error", err, "took", time.Since(begin))
			}(time.Now())
			return next(ctx, request)
		}
	}
}

var (
	_ endpoint.Failer = SignInResponse{}
	_ endpoint.Failer = SignUpResponse{}
	_ endpoint.Failer = UpdateProfileResponse{}
)

// Request bodies follow the provider's wire names.

type SignInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type SignInResponse struct {
	User identitysvc.User `json:"user"`
	Err  error            `json:"-"`
}

func (r SignInResponse) Failed() error { return r.Err }

type SignUpRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type SignUpResponse struct {
	User identitysvc.User `json:"user"`
	Err  error            `json:"-"`
}

func (r SignUpResponse) Failed() error { return r.Err }

type UpdateProfileRequest struct {
	User              identitysvc.User `json:"-"`
	IDToken           string           `json:"idToken"`
	DisplayName       string           `json:"displayName"`
	ReturnSecureToken bool             `json:"returnSecureToken"`
}

type UpdateProfileResponse struct {
	User identitysvc.User `json:"user"`
	Err  error            `json:"-"`
}

func (r UpdateProfileResponse) Failed() error { return r.Err }
