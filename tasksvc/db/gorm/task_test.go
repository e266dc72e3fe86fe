package gorm_test

import (
	"fmt"
	"testing"

	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/db/gorm"
)

func newRepository(t *testing.T) tasksvc.SnapshotRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(dsn, "")
	if err != nil {
		t.Fatal(err)
	}
	return gorm.NewTaskRepository(db)
}

func ids(tasks []tasksvc.Task) []tasksvc.TaskID {
	out := make([]tasksvc.TaskID, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func equalIDs(a, b []tasksvc.TaskID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReplace_KeepsOrderAndOwner(t *testing.T) {
	repo := newRepository(t)

	if err := repo.Replace("a@x.com", []tasksvc.Task{
		{ID: "3", Name: "c", Category: "work", UserID: "a@x.com"},
		{ID: "1", Name: "a", Category: "work", UserID: "a@x.com"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Replace("b@x.com", []tasksvc.Task{
		{ID: "9", Name: "z", Category: "study", UserID: "b@x.com"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindAll("a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if want := []tasksvc.TaskID{"3", "1"}; !equalIDs(ids(got), want) {
		t.Errorf("FindAll = %v, want %v", ids(got), want)
	}

	if err := repo.Replace("a@x.com", []tasksvc.Task{{ID: "5", Name: "e", Category: "work", UserID: "a@x.com"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.FindAll("a@x.com")
	if want := []tasksvc.TaskID{"5"}; !equalIDs(ids(got), want) {
		t.Errorf("after second Replace = %v, want %v", ids(got), want)
	}

	other, _ := repo.FindAll("b@x.com")
	if want := []tasksvc.TaskID{"9"}; !equalIDs(ids(other), want) {
		t.Errorf("other user = %v, want %v", ids(other), want)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	repo := newRepository(t)

	for _, task := range []tasksvc.Task{
		{ID: "1", Name: "a", Category: "work", UserID: "a@x.com"},
		{ID: "2", Name: "b", Category: "work", UserID: "a@x.com"},
	} {
		if err := repo.Upsert(task); err != nil {
			t.Fatal(err)
		}
	}

	if err := repo.Upsert(tasksvc.Task{ID: "1", Name: "a", Category: "work", UserID: "a@x.com", Finish: true}); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.FindAll("a@x.com")
	if want := []tasksvc.TaskID{"1", "2"}; !equalIDs(ids(got), want) {
		t.Fatalf("order after update = %v, want %v", ids(got), want)
	}
	if !got[0].Finish {
		t.Error("update lost the finish flag")
	}

	if err := repo.Delete("1"); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.FindAll("a@x.com")
	if want := []tasksvc.TaskID{"2"}; !equalIDs(ids(got), want) {
		t.Errorf("after Delete = %v, want %v", ids(got), want)
	}
}

func TestUpsert_PartialReplyKeepsStoredFields(t *testing.T) {
	repo := newRepository(t)

	if err := repo.Replace("a@x.com", []tasksvc.Task{
		{ID: "42", Name: "Buy milk", Category: "errand", UserID: "a@x.com"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(tasksvc.Task{ID: "42", Finish: true}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindAll("a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("FindAll = %+v, want the stored task", got)
	}
	want := tasksvc.Task{ID: "42", Name: "Buy milk", Category: "errand", UserID: "a@x.com", Finish: true}
	if got[0] != want {
		t.Errorf("task = %+v, want %+v", got[0], want)
	}
}
