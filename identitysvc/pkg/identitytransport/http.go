package identitytransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityendpoint"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultInstance is the public Identity Toolkit endpoint.
const DefaultInstance = "https://identitytoolkit.googleapis.com"

// NewHTTPClient returns an identity service speaking the Identity Toolkit v1
// REST protocol at instance, authenticated with apiKey.
func NewHTTPClient(instance, apiKey string, timeout time.Duration, logger log.Logger) (identityservice.Service, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second/100), 100))

	options := []httptransport.ClientOption{
		httptransport.SetClient(&http.Client{Timeout: timeout}),
	}

	var signInEndpoint endpoint.Endpoint
	{
		signInEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/v1/accounts:signInWithPassword", apiKey),
			encodeHTTPGenericRequest,
			decodeHTTPSignInResponse,
			options...,
		).Endpoint()
		signInEndpoint = limiter(signInEndpoint)
		signInEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "SignIn",
			Timeout: 30 * time.Second,
		}))(signInEndpoint)
	}

	var signUpEndpoint endpoint.Endpoint
	{
		signUpEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/v1/accounts:signUp", apiKey),
			encodeHTTPGenericRequest,
			decodeHTTPSignUpResponse,
			options...,
		).Endpoint()
		signUpEndpoint = limiter(signUpEndpoint)
		signUpEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "SignUp",
			Timeout: 30 * time.Second,
		}))(signUpEndpoint)
	}

	var updateProfileEndpoint endpoint.Endpoint
	{
		updateProfileEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/v1/accounts:update", apiKey),
			encodeHTTPGenericRequest,
			decodeHTTPUpdateProfileResponse,
			options...,
		).Endpoint()
		updateProfileEndpoint = limiter(updateProfileEndpoint)
		updateProfileEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "UpdateProfile",
			Timeout: 30 * time.Second,
		}))(updateProfileEndpoint)
	}

	return identityendpoint.Set{
		SignInEndpoint:        signInEndpoint,
		SignUpEndpoint:        signUpEndpoint,
		UpdateProfileEndpoint: updateProfileEndpoint,
	}, nil
}

func copyURL(base *url.URL, path, apiKey string) *url.URL {
	next := *base
	next.Path = strings.TrimSuffix(base.Path, "/") + path
	if apiKey != "" {
		q := next.Query()
		q.Set("key", apiKey)
		next.RawQuery = q.Encode()
	}
	return &next
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.ContentLength = int64(buf.Len())
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

type accountReply struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type errorReply struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeAccount returns the account on success, a provider error in the
// result for 4xx replies, and a transport error for anything else. Provider
// errors are kept out of the endpoint error path so they do not trip the
// circuit breaker.
func decodeAccount(r *http.Response) (account, error) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return account{}, err
	}

	if r.StatusCode >= 400 && r.StatusCode < 500 {
		var e errorReply
		if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
			return account{Err: &identitysvc.Error{Code: identitysvc.CodeUnknown, Message: r.Status}}, nil
		}
		return account{Err: &identitysvc.Error{
			Code:    identitysvc.CodeFor(e.Error.Message),
			Message: e.Error.Message,
		}}, nil
	}
	if r.StatusCode != http.StatusOK {
		return account{}, errors.New(r.Status)
	}

	var reply accountReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return account{}, err
	}

	u := identitysvc.User{
		UID:          reply.LocalID,
		Email:        reply.Email,
		DisplayName:  reply.DisplayName,
		IDToken:      reply.IDToken,
		RefreshToken: reply.RefreshToken,
	}
	if n, err := strconv.Atoi(reply.ExpiresIn); err == nil && n > 0 {
		u.ExpiresAt = time.Now().Add(time.Duration(n) * time.Second).UTC()
	}
	if u.IDToken != "" && (u.Email == "" || u.DisplayName == "" || u.UID == "") {
		if claims, err := identitysvc.UserFromIDToken(u.IDToken); err == nil {
			u = u.Fill(claims)
		}
	}
	return account{User: u}, nil
}

type account struct {
	User identitysvc.User
	Err  error
}

func decodeHTTPSignInResponse(_ context.Context, r *http.Response) (interface{}, error) {
	a, err := decodeAccount(r)
	if err != nil {
		return nil, err
	}
	return identityendpoint.SignInResponse{User: a.User, Err: a.Err}, nil
}

func decodeHTTPSignUpResponse(_ context.Context, r *http.Response) (interface{}, error) {
	a, err := decodeAccount(r)
	if err != nil {
		return nil, err
	}
	return identityendpoint.SignUpResponse{User: a.User, Err: a.Err}, nil
}

func decodeHTTPUpdateProfileResponse(_ context.Context, r *http.Response) (interface{}, error) {
	a, err := decodeAccount(r)
	if err != nil {
		return nil, err
	}
	return identityendpoint.UpdateProfileResponse{User: a.User, Err: a.Err}, nil
}
