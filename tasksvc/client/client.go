package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/go-kit/kit/sd/lb"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/sicatat/tasksvc/pkg/tasktransport"
)

// Backend locates the task resource on every discovered instance.
type Backend struct {
	Service string
	Prefix  string
	Config  tasktransport.ClientConfig
}

// Client is a task service balanced across the instances consul reports.
type Client struct {
	taskendpoint.Set
	instancer *consulsd.Instancer
}

// Stop ends the consul watch.
func (c *Client) Stop() {
	c.instancer.Stop()
}

// New discovers instances of the backend service in consul and balances every
// endpoint across them. A call that fails to reach an instance is retried on
// the next one, up to retryMax attempts within retryTimeout. Replies with a
// non-2xx status are not retried.
func New(
	apiclient consulsd.Client,
	backend Backend,
	logger log.Logger,
	retryMax int,
	retryTimeout time.Duration,
) (*Client, error) {
	var (
		tags        = []string{}
		passingOnly = true
		instancer   = consulsd.NewInstancer(apiclient, logger, backend.Service, tags, passingOnly)
	)

	balanced := func(pick func(taskendpoint.Set) endpoint.Endpoint) endpoint.Endpoint {
		endpointer := sd.NewEndpointer(instancer, factoryFor(pick, backend, logger), logger)
		retry := lb.RetryWithCallback(retryTimeout, lb.NewRoundRobin(endpointer), retryable(retryMax))
		return unwrapRetry(retry)
	}

	set := taskendpoint.Set{
		TasksEndpoint:      balanced(func(s taskendpoint.Set) endpoint.Endpoint { return s.TasksEndpoint }),
		CreateTaskEndpoint: balanced(func(s taskendpoint.Set) endpoint.Endpoint { return s.CreateTaskEndpoint }),
		DeleteTaskEndpoint: balanced(func(s taskendpoint.Set) endpoint.Endpoint { return s.DeleteTaskEndpoint }),
		ToggleTaskEndpoint: balanced(func(s taskendpoint.Set) endpoint.Endpoint { return s.ToggleTaskEndpoint }),
	}
	return &Client{Set: set, instancer: instancer}, nil
}

func factoryFor(pick func(taskendpoint.Set) endpoint.Endpoint, backend Backend, logger log.Logger) sd.Factory {
	return func(instance string) (endpoint.Endpoint, io.Closer, error) {
		set, err := tasktransport.NewHTTPEndpoints(instance+backend.Prefix, backend.Config, logger)
		if err != nil {
			return nil, nil, err
		}
		return pick(set), nil, nil
	}
}

// retryable keeps trying until max attempts, except when the instance
// answered with a status error.
func retryable(max int) lb.Callback {
	return func(n int, err error) (bool, error) {
		var se *tasksvc.StatusError
		if errors.As(err, &se) {
			return false, nil
		}
		return n < max, nil
	}
}

// unwrapRetry returns the last error of a failed retry loop so callers can
// still inspect it.
func unwrapRetry(next endpoint.Endpoint) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		response, err := next(ctx, request)
		var re lb.RetryError
		if errors.As(err, &re) && re.Final != nil {
			return nil, re.Final
		}
		return response, err
	}
}
