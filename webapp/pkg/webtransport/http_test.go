package webtransport_test

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/securecookie"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/internal/testutil"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/webendpoint"
	"github.com/ichigozero/sicatat/webapp/pkg/webservice"
	"github.com/ichigozero/sicatat/webapp/pkg/webtransport"
)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	tasks  *testutil.FakeTasks
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := log.NewNopLogger()

	identity := testutil.NewFakeIdentity()
	identity.AddAccount("a@x.com", "secret123", "Ana")
	tasks := testutil.NewFakeTasks()
	tasks.NextID = 42

	svc := webservice.New(
		credential.New(identity, logger),
		session.NewManager(session.NewMemoryStore(), logger),
		tasks,
		logger,
	)
	codec := webtransport.NewCookieCodec(securecookie.GenerateRandomKey(32), nil)
	srv := httptest.NewServer(webtransport.NewHTTPHandler(webendpoint.New(svc, logger, nil), codec, logger))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{t: t, srv: srv, client: client, tasks: tasks}
}

func (h *harness) do(method, path, contentType, body string, out interface{}) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func (h *harness) login() {
	h.t.Helper()
	resp := h.do("POST", "/login", "application/json", `{"email":"a@x.com","password":"secret123"}`, nil)
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("login status = %d", resp.StatusCode)
	}
}

type errorBody struct {
	Error         string                `json:"error"`
	Fields        map[string]string     `json:"fields"`
	Notifications []webapp.Notification `json:"notifications"`
}

func TestLanding(t *testing.T) {
	h := newHarness(t)

	var landing webservice.Landing
	resp := h.do("GET", "/?form=login", "", "", &landing)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if landing.AppName != "Si Catat" || landing.Form != webservice.FormLogin {
		t.Errorf("landing = %+v", landing)
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == webtransport.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Errorf("session cookie = %+v", cookie)
	}

	h.do("GET", "/?form=anything", "", "", &landing)
	if landing.Form != webservice.FormRegister {
		t.Errorf("default form = %q", landing.Form)
	}
}

func TestDashboard_RequiresSignIn(t *testing.T) {
	h := newHarness(t)

	resp := h.do("GET", "/dashboard", "", "", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Errorf("status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = h.do("POST", "/dashboard/tasks", "application/json", `{"text":"Buy milk","category":"errand"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("add status = %d", resp.StatusCode)
	}
	if len(h.tasks.CreateCalls) != 0 {
		t.Error("task created without a session user")
	}
}

func TestLogin_ValidationErrors(t *testing.T) {
	h := newHarness(t)

	var body errorBody
	resp := h.do("POST", "/login", "application/x-www-form-urlencoded", "email=a%40x.com&password=short", &body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Fields["password"] != "Password must be at least 8 characters long." {
		t.Errorf("fields = %v", body.Fields)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	var body errorBody
	resp := h.do("POST", "/login", "application/json", `{"email":"a@x.com","password":"wrong-password"}`, &body)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := webapp.Notification{Level: webapp.LevelError, Message: "Please create an account first."}
	if len(body.Notifications) != 1 || body.Notifications[0] != want {
		t.Errorf("notifications = %v", body.Notifications)
	}
}

func TestRegister_EmailInUse(t *testing.T) {
	h := newHarness(t)

	resp := h.do("POST", "/register", "application/json", `{"name":"Anabel","email":"a@x.com","password":"password1"}`, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTaskLifecycle(t *testing.T) {
	h := newHarness(t)
	h.do("GET", "/", "", "", nil)

	var outcome webservice.Outcome
	resp := h.do("POST", "/login", "application/json", `{"email":"a@x.com","password":"secret123"}`, &outcome)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	if outcome.Redirect != webapp.DashboardRoute {
		t.Errorf("redirect = %q", outcome.Redirect)
	}
	if len(outcome.Notifications) != 1 || outcome.Notifications[0].Message != "Halo Ana" {
		t.Errorf("notifications = %v", outcome.Notifications)
	}

	resp = h.do("GET", "/", "", "", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != webapp.DashboardRoute {
		t.Errorf("landing while signed in: status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	var dash webservice.Dashboard
	resp = h.do("GET", "/dashboard", "", "", &dash)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp.StatusCode)
	}
	if dash.User == nil || dash.User.DisplayName != "Ana" || dash.View.Total != 0 {
		t.Errorf("dashboard = %+v", dash)
	}

	var added webservice.TaskOutcome
	resp = h.do("POST", "/dashboard/tasks", "application/json", `{"text":"Buy milk","category":"errand"}`, &added)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	if added.Task == nil || added.Task.ID != "42" || added.View.Total != 1 {
		t.Errorf("added = %+v", added)
	}
	want := tasksvc.NewTask{Name: "Buy milk", Category: "errand", UserID: "a@x.com"}
	if len(h.tasks.CreateCalls) != 1 || h.tasks.CreateCalls[0] != want {
		t.Errorf("CreateCalls = %v", h.tasks.CreateCalls)
	}

	var toggled webservice.TaskOutcome
	h.do("PATCH", "/dashboard/tasks/42", "", "", &toggled)
	if toggled.Task == nil || !toggled.Task.Finish {
		t.Errorf("toggled = %+v", toggled)
	}

	h.do("GET", "/dashboard?filter=unfinished", "", "", &dash)
	if len(dash.View.Tasks) != 0 || dash.View.Total != 1 {
		t.Errorf("unfinished view = %+v", dash.View)
	}

	resp = h.do("GET", "/dashboard?filter=bogus", "", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad filter status = %d", resp.StatusCode)
	}

	var deleted webservice.TaskOutcome
	resp = h.do("DELETE", "/dashboard/tasks/42", "", "", &deleted)
	if resp.StatusCode != http.StatusOK || deleted.View.Total != 0 {
		t.Errorf("delete status = %d, view = %+v", resp.StatusCode, deleted.View)
	}

	resp = h.do("DELETE", "/dashboard/tasks/7", "", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d", resp.StatusCode)
	}

	resp = h.do("POST", "/logout", "", "", &outcome)
	if resp.StatusCode != http.StatusOK || outcome.Redirect != webapp.LandingRoute {
		t.Errorf("logout status = %d, redirect = %q", resp.StatusCode, outcome.Redirect)
	}

	resp = h.do("GET", "/dashboard", "", "", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("dashboard after logout status = %d", resp.StatusCode)
	}
}

func TestBackendFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.do("GET", "/dashboard", "", "", nil)

	h.tasks.CreateErr = &tasksvc.StatusError{Method: "POST", Code: 500, Status: "500 Internal Server Error"}

	var body errorBody
	resp := h.do("POST", "/dashboard/tasks", "application/x-www-form-urlencoded", "text=Buy+milk&category=errand", &body)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", resp.StatusCode)
	}
	want := webapp.Notification{Level: webapp.LevelError, Message: "Failed to add task"}
	if len(body.Notifications) != 1 || body.Notifications[0] != want {
		t.Errorf("notifications = %v", body.Notifications)
	}
}

func TestCategories(t *testing.T) {
	h := newHarness(t)

	var body struct {
		Categories []tasksvc.Category `json:"categories"`
	}
	h.do("GET", "/categories", "", "", &body)
	if len(body.Categories) != len(tasksvc.Categories) {
		t.Errorf("categories = %v", body.Categories)
	}
}
