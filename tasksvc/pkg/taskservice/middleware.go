package taskservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/sicatat/tasksvc"
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

func (mw loggingMiddleware) Tasks(ctx context.Context, userID string) (t []tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Tasks",
			"user_id", userID,
			"count", len(t),
			"err", err,
		)
	}()
	return mw.next.Tasks(ctx, userID)
}

func (mw loggingMiddleware) CreateTask(ctx context.Context, nt tasksvc.NewTask) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateTask",
			"user_id", nt.UserID,
			"name", nt.Name,
			"category", nt.Category,
			"task_id", t.ID,
			"err", err,
		)
	}()
	return mw.next.CreateTask(ctx, nt)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, taskID tasksvc.TaskID) (err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteTask",
			"task_id", taskID,
			"err", err,
		)
	}()
	return mw.next.DeleteTask(ctx, taskID)
}

func (mw loggingMiddleware) ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "ToggleTask",
			"task_id", taskID,
			"finish", finish,
			"err", err,
		)
	}()
	return mw.next.ToggleTask(ctx, taskID, finish)
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

func (mw instrumentingMiddleware) observe(method string, begin time.Time) {
	mw.requestCount.With("method", method).Add(1)
	mw.requestLatency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) Tasks(ctx context.Context, userID string) ([]tasksvc.Task, error) {
	defer mw.observe("tasks", time.Now())
	return mw.next.Tasks(ctx, userID)
}

func (mw instrumentingMiddleware) CreateTask(ctx context.Context, nt tasksvc.NewTask) (tasksvc.Task, error) {
	defer mw.observe("create_task", time.Now())
	return mw.next.CreateTask(ctx, nt)
}

func (mw instrumentingMiddleware) DeleteTask(ctx context.Context, taskID tasksvc.TaskID) error {
	defer mw.observe("delete_task", time.Now())
	return mw.next.DeleteTask(ctx, taskID)
}

func (mw instrumentingMiddleware) ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error) {
	defer mw.observe("toggle_task", time.Now())
	return mw.next.ToggleTask(ctx, taskID, finish)
}

// MirroringMiddleware copies every successful result into the local snapshot
// repository. Snapshot failures are logged and never fail the call.
func MirroringMiddleware(snapshots tasksvc.SnapshotRepository, logger log.Logger) Middleware {
	return func(next Service) Service {
		return mirroringMiddleware{snapshots, log.With(logger, "component", "mirror"), next}
	}
}

type mirroringMiddleware struct {
	snapshots tasksvc.SnapshotRepository
	logger    log.Logger
	next      Service
}

func (mw mirroringMiddleware) Tasks(ctx context.Context, userID string) ([]tasksvc.Task, error) {
	tasks, err := mw.next.Tasks(ctx, userID)
	if err == nil {
		mw.check("Replace", mw.snapshots.Replace(userID, ownedBy(userID, tasks)))
	}
	return tasks, err
}

func (mw mirroringMiddleware) CreateTask(ctx context.Context, nt tasksvc.NewTask) (tasksvc.Task, error) {
	t, err := mw.next.CreateTask(ctx, nt)
	if err == nil {
		mw.check("Upsert", mw.snapshots.Upsert(t))
	}
	return t, err
}

func (mw mirroringMiddleware) DeleteTask(ctx context.Context, taskID tasksvc.TaskID) error {
	err := mw.next.DeleteTask(ctx, taskID)
	if err == nil {
		mw.check("Delete", mw.snapshots.Delete(taskID))
	}
	return err
}

func (mw mirroringMiddleware) ToggleTask(ctx context.Context, taskID tasksvc.TaskID, finish bool) (tasksvc.Task, error) {
	t, err := mw.next.ToggleTask(ctx, taskID, finish)
	if err == nil {
		mw.check("Upsert", mw.snapshots.Upsert(t))
	}
	return t, err
}

func (mw mirroringMiddleware) check(op string, err error) {
	if err != nil {
		mw.logger.Log("op", op, "err", err)
	}
}

// ownedBy returns the tasks of userID. Tasks without an owner are assigned
// to userID.
func ownedBy(userID string, tasks []tasksvc.Task) []tasksvc.Task {
	owned := make([]tasksvc.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.UserID == "" {
			t.UserID = userID
		}
		if t.UserID == userID {
			owned = append(owned, t)
		}
	}
	return owned
}
