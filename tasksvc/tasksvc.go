package tasksvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Task struct {
	ID       TaskID `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	UserID   string `json:"userID"`
	Finish   bool   `json:"finish"`
}

// NewTask is the payload of a create request. The backend assigns the ID.
type NewTask struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	UserID   string `json:"userID"`
}

// TaskID is the backend-assigned identifier. Backends disagree on whether it is
// a JSON string or a JSON number, so both are accepted.
type TaskID string

func (id *TaskID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = TaskID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

func (id TaskID) String() string { return string(id) }

type Category struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var Categories = []Category{
	{Label: "Work", Value: "work"},
	{Label: "Personal", Value: "personal"},
	{Label: "Errand", Value: "errand"},
	{Label: "Study", Value: "study"},
	{Label: "Health", Value: "health"},
	{Label: "Shopping", Value: "shopping"},
}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if c.Value == value {
			return true
		}
	}
	return false
}

type Filter string

const (
	FilterAll        Filter = "all"
	FilterFinished   Filter = "finished"
	FilterUnfinished Filter = "unfinished"
)

// ParseFilter accepts the three filter names; an empty value means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterFinished, FilterUnfinished:
		return f, nil
	}
	return "", ErrInvalidArgument
}

// Apply returns the tasks visible under f, in collection order.
func (f Filter) Apply(tasks []Task) []Task {
	visible := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		switch f {
		case FilterFinished:
			if !t.Finish {
				continue
			}
		case FilterUnfinished:
			if t.Finish {
				continue
			}
		}
		visible = append(visible, t)
	}
	return visible
}

type SnapshotRepository interface {
	Replace(userID string, tasks []Task) error
	Upsert(task Task) error
	Delete(taskID TaskID) error
	FindAll(userID string) ([]Task, error)
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected backend status %s", e.Method, e.Status)
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTaskNotFound    = errors.New("task not found")
	ErrNoUser          = errors.New("no signed-in user")
)
