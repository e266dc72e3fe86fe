package identitytransport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identitytransport"
)

// fakeProvider answers the Identity Toolkit account routes.
type fakeProvider struct {
	mu       sync.Mutex
	bodies   map[string]map[string]interface{}
	keys     []string
	accounts map[string]string
	failWith int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bodies:   make(map[string]map[string]interface{}),
		accounts: map[string]string{"a@x.com": "secret123"},
	}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.bodies[r.URL.Path] = body
	p.keys = append(p.keys, r.URL.Query().Get("key"))

	if p.failWith != 0 {
		w.WriteHeader(p.failWith)
		return
	}

	email, _ := body["email"].(string)
	password, _ := body["password"].(string)

	switch r.URL.Path {
	case "/v1/accounts:signInWithPassword":
		if p.accounts[email] != password {
			providerError(w, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		account(w, "uid-a", email, "Ana")
	case "/v1/accounts:signUp":
		if _, ok := p.accounts[email]; ok {
			providerError(w, "EMAIL_EXISTS")
			return
		}
		p.accounts[email] = password
		account(w, "uid-new", email, "")
	case "/v1/accounts:update":
		name, _ := body["displayName"].(string)
		json.NewEncoder(w).Encode(map[string]string{"localId": "uid-new", "displayName": name})
	default:
		http.NotFound(w, r)
	}
}

func account(w http.ResponseWriter, uid, email, name string) {
	json.NewEncoder(w).Encode(map[string]string{
		"localId":      uid,
		"email":        email,
		"displayName":  name,
		"idToken":      "id-token",
		"refreshToken": "refresh-token",
		"expiresIn":    "3600",
	})
}

func providerError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": 400, "message": message},
	})
}

func newClient(t *testing.T, p *fakeProvider) identityservice.Service {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	svc, err := identitytransport.NewHTTPClient(srv.URL, "api-key", 5*time.Second, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestSignIn(t *testing.T) {
	p := newFakeProvider()
	svc := newClient(t, p)

	u, err := svc.SignIn(context.Background(), "a@x.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if u.UID != "uid-a" || u.Email != "a@x.com" || u.DisplayName != "Ana" || u.IDToken != "id-token" {
		t.Errorf("user = %+v", u)
	}
	if u.ExpiresAt.IsZero() {
		t.Error("expiry not computed from expiresIn")
	}

	body := p.bodies["/v1/accounts:signInWithPassword"]
	if body["email"] != "a@x.com" || body["password"] != "secret123" || body["returnSecureToken"] != true {
		t.Errorf("body = %v", body)
	}
	if p.keys[0] != "api-key" {
		t.Errorf("key = %q, want api-key", p.keys[0])
	}
}

func TestSignIn_InvalidCredential(t *testing.T) {
	svc := newClient(t, newFakeProvider())

	_, err := svc.SignIn(context.Background(), "a@x.com", "wrong-password")
	if got := identitysvc.ErrorCode(err); got != identitysvc.CodeInvalidCredential {
		t.Errorf("code = %q, want %q (err %v)", got, identitysvc.CodeInvalidCredential, err)
	}
}

func TestSignUp_EmailExists(t *testing.T) {
	svc := newClient(t, newFakeProvider())

	_, err := svc.SignUp(context.Background(), "a@x.com", "whatever1")
	if got := identitysvc.ErrorCode(err); got != identitysvc.CodeEmailAlreadyInUse {
		t.Errorf("code = %q, want %q (err %v)", got, identitysvc.CodeEmailAlreadyInUse, err)
	}
}

func TestSignUpThenUpdateProfile(t *testing.T) {
	p := newFakeProvider()
	svc := newClient(t, p)
	ctx := context.Background()

	u, err := svc.SignUp(ctx, "b@x.com", "password1")
	if err != nil {
		t.Fatal(err)
	}

	u, err = svc.UpdateProfile(ctx, u, "Budi")
	if err != nil {
		t.Fatal(err)
	}
	if u.DisplayName != "Budi" || u.Email != "b@x.com" || u.IDToken != "id-token" {
		t.Errorf("user = %+v", u)
	}

	body := p.bodies["/v1/accounts:update"]
	if body["idToken"] != "id-token" || body["displayName"] != "Budi" {
		t.Errorf("update body = %v", body)
	}
}

func TestServerErrorIsNotAProviderError(t *testing.T) {
	p := newFakeProvider()
	p.failWith = http.StatusInternalServerError
	svc := newClient(t, p)

	_, err := svc.SignIn(context.Background(), "a@x.com", "secret123")
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := identitysvc.ErrorCode(err); code != "" {
		t.Errorf("code = %q, want none", code)
	}
}
