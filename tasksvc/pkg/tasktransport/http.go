package tasktransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// StatusPolicy decides whether a delete reply must carry a 2xx status.
type StatusPolicy int

const (
	// StatusStrict treats any non-2xx delete reply as a failure.
	StatusStrict StatusPolicy = iota
	// StatusBlind accepts any completed round trip as a successful delete.
	StatusBlind
)

func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return StatusStrict, nil
	case "blind":
		return StatusBlind, nil
	}
	return StatusStrict, fmt.Errorf("unknown status policy %q", s)
}

func (p StatusPolicy) String() string {
	if p == StatusBlind {
		return "blind"
	}
	return "strict"
}

type ClientConfig struct {
	DeletePolicy StatusPolicy

	// Bearer forwards the token stored under kitjwt.JWTContextKey as an
	// Authorization header.
	Bearer bool

	// Timeout bounds every request. Zero means no timeout.
	Timeout time.Duration

	// RateLimit is the number of requests allowed per second across all
	// endpoints of one client. Zero means 100.
	RateLimit int
}

// NewHTTPClient returns a task service backed by the REST endpoint at
// instance, e.g. "https://example.mockapi.io/tasks".
func NewHTTPClient(instance string, cfg ClientConfig, logger log.Logger) (taskservice.Service, error) {
	return NewHTTPEndpoints(instance, cfg, logger)
}

// NewHTTPEndpoints returns the client endpoints of the REST resource at
// instance. Transport failures and non-2xx replies are returned as endpoint
// errors rather than inside the response.
func NewHTTPEndpoints(instance string, cfg ClientConfig, logger log.Logger) (taskendpoint.Set, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return taskendpoint.Set{}, err
	}

	burst := cfg.RateLimit
	if burst <= 0 {
		burst = 100
	}
	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second/time.Duration(burst)), burst))

	options := []httptransport.ClientOption{
		httptransport.SetClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.Bearer {
		options = append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))
	}

	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u),
			encodeHTTPTasksRequest,
			decodeHTTPTasksResponse,
			options...,
		).Endpoint()
		tasksEndpoint = limiter(tasksEndpoint)
		tasksEndpoint = breaker("Tasks")(tasksEndpoint)
	}

	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u),
			encodeHTTPGenericRequest,
			decodeHTTPCreateTaskResponse,
			options...,
		).Endpoint()
		createTaskEndpoint = limiter(createTaskEndpoint)
		createTaskEndpoint = breaker("CreateTask")(createTaskEndpoint)
	}

	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = httptransport.NewClient(
			"DELETE",
			copyURL(u),
			encodeHTTPDeleteTaskRequest,
			makeDecodeHTTPDeleteTaskResponse(cfg.DeletePolicy),
			options...,
		).Endpoint()
		deleteTaskEndpoint = limiter(deleteTaskEndpoint)
		deleteTaskEndpoint = breaker("DeleteTask")(deleteTaskEndpoint)
	}

	var toggleTaskEndpoint endpoint.Endpoint
	{
		toggleTaskEndpoint = httptransport.NewClient(
			"PATCH",
			copyURL(u),
			encodeHTTPToggleTaskRequest,
			decodeHTTPToggleTaskResponse,
			options...,
		).Endpoint()
		toggleTaskEndpoint = limiter(toggleTaskEndpoint)
		toggleTaskEndpoint = breaker("ToggleTask")(toggleTaskEndpoint)
	}

	return taskendpoint.Set{
		TasksEndpoint:      tasksEndpoint,
		CreateTaskEndpoint: createTaskEndpoint,
		DeleteTaskEndpoint: deleteTaskEndpoint,
		ToggleTaskEndpoint: toggleTaskEndpoint,
	}, nil
}

func breaker(name string) endpoint.Middleware {
	return circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
	}))
}

func copyURL(base *url.URL) *url.URL {
	next := *base
	return &next
}

// withTaskID appends id as a single path segment.
func withTaskID(r *http.Request, id tasksvc.TaskID) {
	escaped := strings.TrimSuffix(r.URL.EscapedPath(), "/") + "/" + url.PathEscape(id.String())
	r.URL.Path = strings.TrimSuffix(r.URL.Path, "/") + "/" + id.String()
	r.URL.RawPath = escaped
}

func encodeHTTPTasksRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TasksRequest)
	q := r.URL.Query()
	q.Set("userID", req.UserID)
	r.URL.RawQuery = q.Encode()
	return nil
}

func encodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.DeleteTaskRequest)
	withTaskID(r, req.TaskID)
	return nil
}

func encodeHTTPToggleTaskRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.ToggleTaskRequest)
	withTaskID(r, req.TaskID)
	return encodeHTTPGenericRequest(ctx, r, req)
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

func checkStatus(method string, r *http.Response) error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	io.Copy(ioutil.Discard, r.Body)
	return &tasksvc.StatusError{Method: method, Code: r.StatusCode, Status: r.Status}
}

func decodeHTTPTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if err := checkStatus("Tasks", r); err != nil {
		return nil, err
	}
	var tasks []tasksvc.Task
	if err := json.NewDecoder(r.Body).Decode(&tasks); err != nil {
		return nil, err
	}
	return taskendpoint.TasksResponse{Tasks: tasks}, nil
}

func decodeHTTPCreateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if err := checkStatus("CreateTask", r); err != nil {
		return nil, err
	}
	var task tasksvc.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		return nil, err
	}
	return taskendpoint.CreateTaskResponse{Task: task}, nil
}

func makeDecodeHTTPDeleteTaskResponse(policy StatusPolicy) httptransport.DecodeResponseFunc {
	return func(_ context.Context, r *http.Response) (interface{}, error) {
		if policy == StatusStrict {
			if err := checkStatus("DeleteTask", r); err != nil {
				return nil, err
			}
		}
		io.Copy(ioutil.Discard, r.Body)
		return taskendpoint.DeleteTaskResponse{}, nil
	}
}

func decodeHTTPToggleTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if err := checkStatus("ToggleTask", r); err != nil {
		return nil, err
	}
	var task tasksvc.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		return nil, err
	}
	return taskendpoint.ToggleTaskResponse{Task: task}, nil
}
