package taskservice

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/tasksvc"
)

// Service is the task backend as seen by the application. The transport
// package provides the remote implementation.
type Service interface {
	Tasks(ctx context.Context, userID string) ([]tasksvc.Task, error)
	CreateTask(ctx context.Context, t tasksvc.NewTask) (tasksvc.Task, error)
	DeleteTask(ctx context.Context, taskID tasksvc.TaskID) error
	ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error)
}

func New(remote Service, snapshots tasksvc.SnapshotRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(remote)
		if snapshots != nil {
			svc = MirroringMiddleware(snapshots, logger)(svc)
		}
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	remote Service
}

func NewBasicService(remote Service) Service {
	return basicService{remote: remote}
}

func (s basicService) Tasks(ctx context.Context, userID string) ([]tasksvc.Task, error) {
	if userID == "" {
		return nil, tasksvc.ErrInvalidArgument
	}

	return s.remote.Tasks(ctx, userID)
}

func (s basicService) CreateTask(ctx context.Context, t tasksvc.NewTask) (tasksvc.Task, error) {
	if strings.TrimSpace(t.Name) == "" || !tasksvc.IsCategory(t.Category) || t.UserID == "" {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	return s.remote.CreateTask(ctx, t)
}

func (s basicService) DeleteTask(ctx context.Context, taskID tasksvc.TaskID) error {
	if taskID == "" {
		return tasksvc.ErrInvalidArgument
	}
	return s.remote.DeleteTask(ctx, taskID)
}

func (s basicService) ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error) {
	if taskID == "" {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	return s.remote.ToggleTask(ctx, taskID, finish)
}
