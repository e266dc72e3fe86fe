package webservice_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/internal/testutil"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/webservice"
)

func newService(t *testing.T) (webservice.Service, *testutil.FakeTasks) {
	t.Helper()
	logger := log.NewNopLogger()

	identity := testutil.NewFakeIdentity()
	identity.AddAccount("a@x.com", "secret123", "Ana")
	tasks := testutil.NewFakeTasks()

	svc := webservice.NewBasicService(
		credential.New(identity, logger),
		session.NewManager(session.NewMemoryStore(), logger),
		tasks,
		logger,
	)
	return svc, tasks
}

func login(t *testing.T, svc webservice.Service, sid string) string {
	t.Helper()
	out, err := svc.Login(context.Background(), sid, credential.LoginInput{Email: "a@x.com", Password: "secret123"})
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionID == "" || out.SessionID == sid {
		t.Fatalf("sign-in kept session %q", sid)
	}
	return out.SessionID
}

func TestSignIn_RotatedSessionNoLongerAuthenticates(t *testing.T) {
	svc, _ := newService(t)

	first := login(t, svc, session.NewID())
	if d, err := svc.Dashboard(context.Background(), first, webservice.DashboardQuery{}); err != nil || d.Redirect != "" {
		t.Fatalf("first session: dashboard = %+v, err = %v", d, err)
	}

	second := login(t, svc, first)

	d, err := svc.Dashboard(context.Background(), first, webservice.DashboardQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Redirect != webapp.LandingRoute {
		t.Errorf("old session dashboard redirect = %q, want %q", d.Redirect, webapp.LandingRoute)
	}

	d, err = svc.Dashboard(context.Background(), second, webservice.DashboardQuery{})
	if err != nil || d.User == nil || d.User.Email != "a@x.com" {
		t.Errorf("new session dashboard = %+v, err = %v", d, err)
	}
}

func TestConcurrentFirstUseOfView(t *testing.T) {
	svc, tasks := newService(t)

	const sessions, workers = 20, 4
	for i := 0; i < sessions; i++ {
		sid := login(t, svc, session.NewID())

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.DeleteTask(context.Background(), sid, "missing")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != tasksvc.ErrTaskNotFound {
				t.Fatalf("session %d: err = %v, want ErrTaskNotFound", i, err)
			}
		}
	}

	if len(tasks.DeleteCalls) != 0 {
		t.Errorf("unknown ids reached the backend: %v", tasks.DeleteCalls)
	}
}
