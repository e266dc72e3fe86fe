package taskendpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
)

// Set collects the task endpoints. It implements taskservice.Service, so a Set
// built from transport clients can be used wherever a Service is expected.
type Set struct {
	TasksEndpoint      endpoint.Endpoint
	CreateTaskEndpoint endpoint.Endpoint
	DeleteTaskEndpoint endpoint.Endpoint
	ToggleTaskEndpoint endpoint.Endpoint
}

func New(svc taskservice.Service, logger log.Logger) Set {
	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = MakeTasksEndpoint(svc)
		tasksEndpoint = LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint)
	}
	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = MakeCreateTaskEndpoint(svc)
		createTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint)
	}
	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = MakeDeleteTaskEndpoint(svc)
		deleteTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint)
	}
	var toggleTaskEndpoint endpoint.Endpoint
	{
		toggleTaskEndpoint = MakeToggleTaskEndpoint(svc)
		toggleTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "ToggleTask"))(toggleTaskEndpoint)
	}

	return Set{
		TasksEndpoint:      tasksEndpoint,
		CreateTaskEndpoint: createTaskEndpoint,
		DeleteTaskEndpoint: deleteTaskEndpoint,
		ToggleTaskEndpoint: toggleTaskEndpoint,
	}
}

func (s Set) Tasks(ctx context.Context, userID string) ([]tasksvc.Task, error) {
	resp, err := s.TasksEndpoint(ctx, TasksRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	response := resp.(TasksResponse)
	return response.Tasks, response.Err
}

func (s Set) CreateTask(ctx context.Context, t tasksvc.NewTask) (tasksvc.Task, error) {
	resp, err := s.CreateTaskEndpoint(ctx, CreateTaskRequest{Name: t.Name, Category: t.Category, UserID: t.UserID})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(CreateTaskResponse)
	return response.Task, response.Err
}

func (s Set) DeleteTask(ctx context.Context, taskID tasksvc.TaskID) error {
	resp, err := s.DeleteTaskEndpoint(ctx, DeleteTaskRequest{TaskID: taskID})
	if err != nil {
		return err
	}
	response := resp.(DeleteTaskResponse)
	return response.Err
}

func (s Set) ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error) {
	resp, err := s.ToggleTaskEndpoint(ctx, ToggleTaskRequest{TaskID: taskID, Finish: finish})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(ToggleTaskResponse)
	return response.Task, response.Err
}

func MakeTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(TasksRequest)
		t, err := s.Tasks(ctx, req.UserID)
		return TasksResponse{Tasks: t, Err: err}, nil
	}
}

func MakeCreateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(CreateTaskRequest)
		t, err := s.CreateTask(ctx, tasksvc.NewTask{Name: req.Name, Category: req.Category, UserID: req.UserID})
		return CreateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(DeleteTaskRequest)
		err = s.DeleteTask(ctx, req.TaskID)
		return DeleteTaskResponse{Err: err}, nil
	}
}

func MakeToggleTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(ToggleTaskRequest)
		t, err := s.ToggleTask(ctx, req.TaskID, req.Finish)
		return ToggleTaskResponse{Task: t, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = TasksResponse{}
	_ endpoint.Failer = CreateTaskResponse{}
	_ endpoint.Failer = DeleteTaskResponse{}
	_ endpoint.Failer = ToggleTaskResponse{}
)

type TasksRequest struct {
	UserID string
}

type TasksResponse struct {
	Tasks []tasksvc.Task `json:"tasks"`
	Err   error          `json:"-"`
}

func (r TasksResponse) Failed() error { return r.Err }

type CreateTaskRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	UserID   string `json:"userID"`
}

type CreateTaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r CreateTaskResponse) Failed() error { return r.Err }

type DeleteTaskRequest struct {
	TaskID tasksvc.TaskID
}

type DeleteTaskResponse struct {
	Err error `json:"-"`
}

func (r DeleteTaskResponse) Failed() error { return r.Err }

type ToggleTaskRequest struct {
	TaskID tasksvc.TaskID `json:"-"`
	Finish bool           `json:"finish"`
}

type ToggleTaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r ToggleTaskResponse) Failed() error { return r.Err }
