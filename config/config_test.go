package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ichigozero/sicatat/config"
)

const file = `
http_addr = ":9000"

[backend]
url = "http://tasks.local/api/tasks"
delete_policy = "blind"
timeout = "3s"

[identity]
api_key = "from-file"

[consul]
session_prefix = "custom/"
`

// inTempDir runs the test from an empty directory so no stray .env or
// sicatat.toml is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8000" || cfg.Backend.DeletePolicy != "strict" || cfg.Backend.Timeout.Duration != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Consul.SessionPrefix != "sicatat/sessions/" {
		t.Errorf("session prefix = %q", cfg.Consul.SessionPrefix)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte(file), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("IDENTITY_API_KEY=from-dotenv\nBACKEND_PREFIX=/v2/tasks\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// Registered for cleanup, then cleared so .env can fill them.
	t.Setenv("IDENTITY_API_KEY", "")
	os.Unsetenv("IDENTITY_API_KEY")
	t.Setenv("BACKEND_PREFIX", "/from-env")
	t.Setenv("BACKEND_TIMEOUT", "7s")
	t.Setenv("RETRY_TIMEOUT", "250")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want file value", cfg.HTTPAddr)
	}
	if cfg.Backend.DeletePolicy != "blind" {
		t.Errorf("DeletePolicy = %q, want file value", cfg.Backend.DeletePolicy)
	}
	if cfg.Identity.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want .env value", cfg.Identity.APIKey)
	}
	if cfg.Backend.Prefix != "/from-env" {
		t.Errorf("Prefix = %q, want environment over .env", cfg.Backend.Prefix)
	}
	if cfg.Backend.Timeout.Duration != 7*time.Second {
		t.Errorf("Timeout = %v, want environment over file", cfg.Backend.Timeout)
	}
	if cfg.Backend.RetryTimeout.Duration != 250*time.Millisecond {
		t.Errorf("RetryTimeout = %v", cfg.Backend.RetryTimeout)
	}
	if cfg.Consul.SessionPrefix != "custom/" {
		t.Errorf("SessionPrefix = %q", cfg.Consul.SessionPrefix)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(fs, cfg)
	if err := fs.Parse([]string{"-backend.delete-policy", "strict", "-http.addr=:7000"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.DeletePolicy != "strict" || cfg.HTTPAddr != ":7000" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Backend.Timeout.Duration != 7*time.Second {
		t.Errorf("unset flag changed Timeout to %v", cfg.Backend.Timeout)
	}
}

func TestLoad_BadFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "bad.toml")
	os.WriteFile(path, []byte("http_addr = [\n"), 0600)

	if _, err := config.Load(path); err == nil {
		t.Error("expected an error for a malformed file")
	}
}

func TestPathFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-config", "a.toml"}, "a.toml"},
		{[]string{"--config=b.toml", "-http.addr", ":1"}, "b.toml"},
		{[]string{"-http.addr", ":1"}, ""},
		{[]string{"-config"}, ""},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := config.PathFromArgs(tt.args); got != tt.want {
			t.Errorf("PathFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
