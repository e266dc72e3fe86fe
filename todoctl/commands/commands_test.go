package commands_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/config"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/internal/testutil"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/todoctl/commands"
)

type env struct {
	t        *testing.T
	identity *testutil.FakeIdentity
	tasks    *testutil.FakeTasks
	store    session.Store
	builds   int
	dir      string
}

func newEnv(t *testing.T) *env {
	identity := testutil.NewFakeIdentity()
	identity.AddAccount("a@x.com", "secret123", "Ana")
	tasks := testutil.NewFakeTasks()
	tasks.NextID = 42

	return &env{
		t:        t,
		identity: identity,
		tasks:    tasks,
		store:    session.NewMemoryStore(),
		dir:      t.TempDir(),
	}
}

func (e *env) build(_ *config.Config, dir string, logger log.Logger) (*commands.App, error) {
	e.builds++
	if dir != e.dir {
		e.t.Errorf("dir = %q, want %q", dir, e.dir)
	}
	return &commands.App{
		Identity: e.identity,
		Tasks:    e.tasks,
		Store:    e.store,
		Logger:   logger,
	}, nil
}

func (e *env) run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := commands.NewRootCmd(e.build, &out, &errOut)
	cmd.SetArgs(append([]string{"--dir", e.dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("%v: %v (stderr %q)", args, err, errOut)
	}
	return out
}

func TestLoginWhoamiLogout(t *testing.T) {
	e := newEnv(t)

	if _, _, err := e.run("whoami"); !errors.Is(err, commands.ErrNotSignedIn) {
		t.Fatalf("whoami before login err = %v", err)
	}

	_, errOut, err := e.run("login", "--email", "a@x.com", "--password", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if errOut != "success: Halo Ana\n" {
		t.Errorf("stderr = %q", errOut)
	}

	if out := e.mustRun("whoami"); out != "Ana <a@x.com>\n" {
		t.Errorf("whoami = %q", out)
	}

	e.mustRun("logout")
	if _, _, err := e.run("list"); !errors.Is(err, commands.ErrNotSignedIn) {
		t.Errorf("list after logout err = %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)

	_, errOut, err := e.run("login", "--email", "a@x.com", "--password", "wrong-password")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errOut != "error: Please create an account first.\n" {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRegister_PasswordFromEnvironment(t *testing.T) {
	e := newEnv(t)
	t.Setenv("TODOCTL_PASSWORD", "password1")

	e.mustRun("register", "--name", "Budi Santoso", "--email", "b@x.com")

	want := testutil.Credentials{Email: "b@x.com", Password: "password1"}
	if len(e.identity.SignUpCalls) != 1 || e.identity.SignUpCalls[0] != want {
		t.Errorf("SignUpCalls = %v", e.identity.SignUpCalls)
	}
	if out := e.mustRun("whoami"); out != "Budi Santoso <b@x.com>\n" {
		t.Errorf("whoami = %q", out)
	}
}

func TestTaskCommands(t *testing.T) {
	e := newEnv(t)
	e.tasks.Add(tasksvc.Task{ID: "7", Name: "Ship report", Category: "work", UserID: "a@x.com", Finish: true})
	e.mustRun("login", "--email", "a@x.com", "--password", "secret123")

	out := e.mustRun("add", "Buy", "milk", "-c", "errand")
	if !strings.Contains(out, "42") || !strings.Contains(out, "Buy milk") {
		t.Errorf("add output = %q", out)
	}
	want := tasksvc.NewTask{Name: "Buy milk", Category: "errand", UserID: "a@x.com"}
	if len(e.tasks.CreateCalls) != 1 || e.tasks.CreateCalls[0] != want {
		t.Errorf("CreateCalls = %v", e.tasks.CreateCalls)
	}

	out = e.mustRun("list", "--filter", "finished")
	if !strings.Contains(out, "Ship report") || strings.Contains(out, "Buy milk") {
		t.Errorf("finished list = %q", out)
	}

	out = e.mustRun("toggle", "42")
	if !strings.Contains(out, "[x]") {
		t.Errorf("toggle output = %q", out)
	}

	e.mustRun("rm", "42")
	out = e.mustRun("list")
	if strings.Contains(out, "Buy milk") || !strings.Contains(out, "Ship report") {
		t.Errorf("list after rm = %q", out)
	}

	if _, _, err := e.run("rm", "99"); err != tasksvc.ErrTaskNotFound {
		t.Errorf("rm unknown err = %v", err)
	}
	if _, _, err := e.run("add", "   ", "-c", "errand"); err != tasksvc.ErrInvalidArgument {
		t.Errorf("add blank err = %v", err)
	}
	if _, _, err := e.run("list", "--filter", "someday"); err == nil {
		t.Error("unknown filter accepted")
	}
}

func TestList_CachedNeedsMirror(t *testing.T) {
	e := newEnv(t)
	e.mustRun("login", "--email", "a@x.com", "--password", "secret123")

	if _, _, err := e.run("list", "--cached"); err != commands.ErrNoMirror {
		t.Errorf("err = %v, want ErrNoMirror", err)
	}
}

func TestCategories_NeedsNoApp(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun("categories")
	for _, c := range tasksvc.Categories {
		if !strings.Contains(out, c.Value) {
			t.Errorf("categories output misses %q: %q", c.Value, out)
		}
	}
	if e.builds != 0 {
		t.Errorf("builder called %d times", e.builds)
	}
}
