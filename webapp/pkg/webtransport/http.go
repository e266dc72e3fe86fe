package webtransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/webendpoint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// SessionCookieName is the cookie carrying the encoded session id.
const SessionCookieName = "sicatat_session"

type contextKey string

const newSessionContextKey contextKey = "NewSession"

// NewHTTPHandler routes the web front. codec signs and encrypts the session
// cookie.
func NewHTTPHandler(endpoints webendpoint.Set, codec *securecookie.SecureCookie, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerBefore(sessionToContext(codec)),
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}

	r := mux.NewRouter()

	r.Methods("GET").Path(webapp.LandingRoute).Handler(httptransport.NewServer(
		endpoints.LandingEndpoint,
		decodeHTTPLandingRequest,
		withSession(codec, encodeHTTPPageResponse),
		options...,
	))
	r.Methods("POST").Path("/login").Handler(httptransport.NewServer(
		endpoints.LoginEndpoint,
		decodeHTTPLoginRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("POST").Path("/register").Handler(httptransport.NewServer(
		endpoints.RegisterEndpoint,
		decodeHTTPRegisterRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("POST").Path("/logout").Handler(httptransport.NewServer(
		endpoints.LogoutEndpoint,
		decodeHTTPLogoutRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("GET").Path(webapp.DashboardRoute).Handler(httptransport.NewServer(
		endpoints.DashboardEndpoint,
		decodeHTTPDashboardRequest,
		withSession(codec, encodeHTTPPageResponse),
		options...,
	))
	r.Methods("POST").Path(webapp.DashboardRoute + "/tasks").Handler(httptransport.NewServer(
		endpoints.AddTaskEndpoint,
		decodeHTTPAddTaskRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("PATCH").Path(webapp.DashboardRoute + "/tasks/{id}").Handler(httptransport.NewServer(
		endpoints.ToggleTaskEndpoint,
		decodeHTTPToggleTaskRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("DELETE").Path(webapp.DashboardRoute + "/tasks/{id}").Handler(httptransport.NewServer(
		endpoints.DeleteTaskEndpoint,
		decodeHTTPDeleteTaskRequest,
		withSession(codec, encodeHTTPGenericResponse),
		options...,
	))
	r.Methods("GET").Path("/categories").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(categoriesResponse{Categories: tasksvc.Categories})
	})
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	return r
}

type categoriesResponse struct {
	Categories []tasksvc.Category `json:"categories"`
}

// NewCookieCodec builds the session cookie codec. blockKey may be empty, in
// which case cookies are signed but not encrypted.
func NewCookieCodec(hashKey, blockKey []byte) *securecookie.SecureCookie {
	if len(blockKey) == 0 {
		blockKey = nil
	}
	return securecookie.New(hashKey, blockKey)
}

// sessionToContext puts the session id of the request cookie into ctx. A
// request without a valid cookie is given a new id.
func sessionToContext(codec *securecookie.SecureCookie) httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			var sid string
			if err := codec.Decode(SessionCookieName, c.Value, &sid); err == nil && sid != "" {
				return context.WithValue(ctx, webapp.SessionIDContextKey, sid)
			}
		}

		ctx = context.WithValue(ctx, newSessionContextKey, true)
		return context.WithValue(ctx, webapp.SessionIDContextKey, session.NewID())
	}
}

type sessionRotator interface {
	NextSessionID() string
}

// withSession sets the session cookie before enc writes the response: the
// rotated id after a sign-in, or the id minted for a cookieless request.
func withSession(codec *securecookie.SecureCookie, enc httptransport.EncodeResponseFunc) httptransport.EncodeResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter, response interface{}) error {
		sid := ""
		if r, ok := response.(sessionRotator); ok {
			sid = r.NextSessionID()
		}
		if isNew, _ := ctx.Value(newSessionContextKey).(bool); sid == "" && isNew {
			sid, _ = ctx.Value(webapp.SessionIDContextKey).(string)
		}

		if sid != "" {
			if err := setSessionCookie(w, codec, sid); err != nil {
				return err
			}
		}
		return enc(ctx, w, response)
	}
}

func setSessionCookie(w http.ResponseWriter, codec *securecookie.SecureCookie, sid string) error {
	value, err := codec.Encode(SessionCookieName, sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(err2code(err))
	json.NewEncoder(w).Encode(errorWrapper{Error: err.Error(), Fields: fieldErrors(err)})
}

func err2code(err error) int {
	var fe credential.FieldErrors
	if errors.As(err, &fe) {
		return http.StatusUnprocessableEntity
	}

	switch identitysvc.ErrorCode(err) {
	case "":
	case identitysvc.CodeInvalidCredential:
		return http.StatusUnauthorized
	case identitysvc.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case identitysvc.CodeWeakPassword:
		return http.StatusUnprocessableEntity
	case identitysvc.CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}

	var se *tasksvc.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}

	switch err {
	case webapp.ErrInvalidArgument, tasksvc.ErrInvalidArgument, identitysvc.ErrInvalidArgument:
		return http.StatusBadRequest
	case webapp.ErrSessionMissing, webapp.ErrNotSignedIn, tasksvc.ErrNoUser:
		return http.StatusUnauthorized
	case tasksvc.ErrTaskNotFound:
		return http.StatusNotFound
	case ratelimit.ErrLimited:
		return http.StatusTooManyRequests
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fieldErrors(err error) map[string]string {
	var fe credential.FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

type errorWrapper struct {
	Error         string                `json:"error"`
	Fields        map[string]string     `json:"fields,omitempty"`
	Notifications []webapp.Notification `json:"notifications,omitempty"`
}

func decodeHTTPLandingRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return webendpoint.LandingRequest{Form: r.URL.Query().Get("form")}, nil
}

func decodeHTTPLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req webendpoint.LoginRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return nil, webapp.ErrInvalidArgument
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, badRequest(err)
}

func decodeHTTPRegisterRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req webendpoint.RegisterRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return nil, webapp.ErrInvalidArgument
		}
		req.Name = r.PostForm.Get("name")
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, badRequest(err)
}

func decodeHTTPLogoutRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return webendpoint.LogoutRequest{}, nil
}

func decodeHTTPDashboardRequest(_ context.Context, r *http.Request) (interface{}, error) {
	q := r.URL.Query()
	refresh := q.Get("refresh")
	return webendpoint.DashboardRequest{
		Filter:  q.Get("filter"),
		Refresh: refresh == "1" || refresh == "true",
	}, nil
}

func decodeHTTPAddTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req webendpoint.AddTaskRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return nil, webapp.ErrInvalidArgument
		}
		req.Text = r.PostForm.Get("text")
		req.Category = r.PostForm.Get("category")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, badRequest(err)
}

func decodeHTTPToggleTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, ok := mux.Vars(r)["id"]
	if !ok {
		return nil, webapp.ErrInvalidArgument
	}
	return webendpoint.ToggleTaskRequest{TaskID: tasksvc.TaskID(id)}, nil
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, ok := mux.Vars(r)["id"]
	if !ok {
		return nil, webapp.ErrInvalidArgument
	}
	return webendpoint.DeleteTaskRequest{TaskID: tasksvc.TaskID(id)}, nil
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func badRequest(err error) error {
	if err != nil {
		return webapp.ErrInvalidArgument
	}
	return nil
}

type redirector interface {
	RedirectTo() string
}

// encodeHTTPPageResponse answers page routes. A response pointing elsewhere
// becomes a 303 See Other.
func encodeHTTPPageResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if r, ok := response.(redirector); ok && r.RedirectTo() != "" {
		if f, ok := response.(endpoint.Failer); !ok || f.Failed() == nil {
			w.Header().Set("Location", r.RedirectTo())
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusSeeOther)
			return json.NewEncoder(w).Encode(response)
		}
	}
	return encodeHTTPGenericResponse(ctx, w, response)
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Failed responses keep their
// notifications.
func encodeHTTPGenericResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		err := f.Failed()
		wrapper := errorWrapper{Error: err.Error(), Fields: fieldErrors(err)}
		if n, ok := response.(webendpoint.Notifier); ok {
			wrapper.Notifications = n.Notices()
		}
		w.WriteHeader(err2code(err))
		return json.NewEncoder(w).Encode(wrapper)
	}
	return json.NewEncoder(w).Encode(response)
}
