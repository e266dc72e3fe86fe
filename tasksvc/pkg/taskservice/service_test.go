package taskservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/ichigozero/sicatat/internal/testutil"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
)

type memorySnapshots struct {
	mu    sync.Mutex
	tasks map[string][]tasksvc.Task
	err   error
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{tasks: make(map[string][]tasksvc.Task)}
}

func (m *memorySnapshots) Replace(userID string, tasks []tasksvc.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tasks[userID] = append([]tasksvc.Task(nil), tasks...)
	return nil
}

func (m *memorySnapshots) Upsert(task tasksvc.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	list := m.tasks[task.UserID]
	for i, t := range list {
		if t.ID == task.ID {
			list[i] = task
			return nil
		}
	}
	m.tasks[task.UserID] = append(list, task)
	return nil
}

func (m *memorySnapshots) Delete(taskID tasksvc.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, list := range m.tasks {
		for i, t := range list {
			if t.ID == taskID {
				m.tasks[user] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *memorySnapshots) FindAll(userID string) ([]tasksvc.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tasksvc.Task(nil), m.tasks[userID]...), nil
}

func TestCreateTask_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   tasksvc.NewTask
	}{
		{"empty name", tasksvc.NewTask{Name: "", Category: "work", UserID: "a@x.com"}},
		{"whitespace name", tasksvc.NewTask{Name: "  \t", Category: "work", UserID: "a@x.com"}},
		{"unknown category", tasksvc.NewTask{Name: "x", Category: "chores", UserID: "a@x.com"}},
		{"no user", tasksvc.NewTask{Name: "x", Category: "work"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := testutil.NewFakeTasks()
			svc := taskservice.New(remote, nil, log.NewNopLogger())

			_, err := svc.CreateTask(context.Background(), tt.in)
			if err != tasksvc.ErrInvalidArgument {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
			if len(remote.CreateCalls) != 0 {
				t.Errorf("remote called %d times", len(remote.CreateCalls))
			}
		})
	}
}

func TestCreateTask_PassesNameUntrimmed(t *testing.T) {
	remote := testutil.NewFakeTasks()
	svc := taskservice.New(remote, nil, log.NewNopLogger())

	if _, err := svc.CreateTask(context.Background(), tasksvc.NewTask{
		Name:     " Buy milk ",
		Category: "errand",
		UserID:   "a@x.com",
	}); err != nil {
		t.Fatal(err)
	}
	if got := remote.CreateCalls[0].Name; got != " Buy milk " {
		t.Errorf("name sent = %q", got)
	}
}

func TestEmptyArguments(t *testing.T) {
	remote := testutil.NewFakeTasks()
	svc := taskservice.New(remote, nil, log.NewNopLogger())
	ctx := context.Background()

	if _, err := svc.Tasks(ctx, ""); err != tasksvc.ErrInvalidArgument {
		t.Errorf("Tasks: err = %v", err)
	}
	if err := svc.DeleteTask(ctx, ""); err != tasksvc.ErrInvalidArgument {
		t.Errorf("DeleteTask: err = %v", err)
	}
	if _, err := svc.ToggleTask(ctx, "", true); err != tasksvc.ErrInvalidArgument {
		t.Errorf("ToggleTask: err = %v", err)
	}
	if len(remote.TasksCalls)+len(remote.DeleteCalls)+len(remote.ToggleCalls) != 0 {
		t.Error("remote was called")
	}
}

func TestMirroring(t *testing.T) {
	remote := testutil.NewFakeTasks()
	remote.NextID = 42
	remote.Add(tasksvc.Task{ID: "1", Name: "a", Category: "work", UserID: "a@x.com"})
	remote.Add(tasksvc.Task{ID: "2", Name: "b", Category: "work", UserID: "b@x.com"})

	snapshots := newMemorySnapshots()
	svc := taskservice.New(remote, snapshots, log.NewNopLogger())
	ctx := context.Background()

	if _, err := svc.Tasks(ctx, "a@x.com"); err != nil {
		t.Fatal(err)
	}
	if got, _ := snapshots.FindAll("a@x.com"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("mirror after fetch = %+v", got)
	}
	if got, _ := snapshots.FindAll("b@x.com"); len(got) != 0 {
		t.Errorf("foreign tasks mirrored: %+v", got)
	}

	if _, err := svc.CreateTask(ctx, tasksvc.NewTask{Name: "Buy milk", Category: "errand", UserID: "a@x.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ToggleTask(ctx, "42", true); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteTask(ctx, "1"); err != nil {
		t.Fatal(err)
	}

	got, _ := snapshots.FindAll("a@x.com")
	if len(got) != 1 || got[0].ID != "42" || !got[0].Finish {
		t.Errorf("mirror = %+v, want only finished task 42", got)
	}
}

func TestMirroring_FailureDoesNotFailCall(t *testing.T) {
	remote := testutil.NewFakeTasks()
	snapshots := newMemorySnapshots()
	snapshots.err = errors.New("disk full")
	svc := taskservice.New(remote, snapshots, log.NewNopLogger())

	if _, err := svc.CreateTask(context.Background(), tasksvc.NewTask{Name: "x", Category: "work", UserID: "a@x.com"}); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestInstrumentingMiddleware_PassesThrough(t *testing.T) {
	remote := testutil.NewFakeTasks()
	remote.TasksErr = errors.New("boom")

	svc := taskservice.InstrumentingMiddleware(discard.NewCounter(), discard.NewHistogram())(remote)
	if _, err := svc.Tasks(context.Background(), "a@x.com"); err != remote.TasksErr {
		t.Errorf("err = %v, want %v", err, remote.TasksErr)
	}
}
