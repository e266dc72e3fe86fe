// Package config loads the settings shared by the web front and todoctl.
//
// Sources are applied in order, later ones winning: defaults, a TOML file,
// a .env file, the environment and finally command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultFile is read when no file is named explicitly and it exists in the
// working directory.
const DefaultFile = "sicatat.toml"

// Duration is a time.Duration written as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	HTTPAddr           string   `toml:"http_addr"`
	KeepDraftOnFailure bool     `toml:"keep_draft_on_failure"`
	Backend            Backend  `toml:"backend"`
	Identity           Identity `toml:"identity"`
	Cookie             Cookie   `toml:"cookie"`
	Database           Database `toml:"database"`
	Consul             Consul   `toml:"consul"`
}

// Backend locates the task REST resource. When Service is set the instances
// are discovered in consul and URL is ignored.
type Backend struct {
	URL          string   `toml:"url"`
	Service      string   `toml:"service"`
	Prefix       string   `toml:"prefix"`
	DeletePolicy string   `toml:"delete_policy"`
	Bearer       bool     `toml:"bearer"`
	Timeout      Duration `toml:"timeout"`
	RateLimit    int      `toml:"rate_limit"`
	RetryMax     int      `toml:"retry_max"`
	RetryTimeout Duration `toml:"retry_timeout"`
}

type Identity struct {
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Timeout Duration `toml:"timeout"`
}

type Cookie struct {
	HashKey  string `toml:"hash_key"`
	BlockKey string `toml:"block_key"`
}

// Database configures the local task mirror. An empty URL with Mirror set
// uses the sqlite file at SQLitePath.
type Database struct {
	Mirror     bool   `toml:"mirror"`
	URL        string `toml:"url"`
	SQLitePath string `toml:"sqlite_path"`
}

type Consul struct {
	Addr          string `toml:"addr"`
	Register      bool   `toml:"register"`
	ServiceName   string `toml:"service_name"`
	SessionPrefix string `toml:"session_prefix"`
}

func Default() *Config {
	return &Config{
		HTTPAddr: ":8000",
		Backend: Backend{
			DeletePolicy: "strict",
			Timeout:      Duration{10 * time.Second},
			RateLimit:    100,
			RetryMax:     3,
			RetryTimeout: Duration{500 * time.Millisecond},
		},
		Identity: Identity{
			URL:     "https://identitytoolkit.googleapis.com",
			Timeout: Duration{10 * time.Second},
		},
		Database: Database{
			SQLitePath: "sicatat.db",
		},
		Consul: Consul{
			ServiceName:   "sicatat",
			SessionPrefix: "sicatat/sessions/",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (or
// DefaultFile when path is empty), .env and the environment. Flags are bound
// separately with RegisterFlags.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setBool(&cfg.KeepDraftOnFailure, "KEEP_DRAFT_ON_FAILURE")

	setString(&cfg.Backend.URL, "BACKEND_URL")
	setString(&cfg.Backend.Service, "BACKEND_SERVICE")
	setString(&cfg.Backend.Prefix, "BACKEND_PREFIX")
	setString(&cfg.Backend.DeletePolicy, "BACKEND_DELETE_POLICY")
	setBool(&cfg.Backend.Bearer, "BACKEND_BEARER")
	setDuration(&cfg.Backend.Timeout, "BACKEND_TIMEOUT")
	setInt(&cfg.Backend.RateLimit, "BACKEND_RATE_LIMIT")
	setInt(&cfg.Backend.RetryMax, "RETRY_MAX")
	if ms, ok := lookupInt("RETRY_TIMEOUT"); ok {
		cfg.Backend.RetryTimeout = Duration{time.Duration(ms) * time.Millisecond}
	}

	setString(&cfg.Identity.URL, "IDENTITY_URL")
	setString(&cfg.Identity.APIKey, "IDENTITY_API_KEY")
	setDuration(&cfg.Identity.Timeout, "IDENTITY_TIMEOUT")

	setString(&cfg.Cookie.HashKey, "COOKIE_HASH_KEY")
	setString(&cfg.Cookie.BlockKey, "COOKIE_BLOCK_KEY")

	setBool(&cfg.Database.Mirror, "MIRROR")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Consul.Addr, "CONSUL_ADDR")
	setBool(&cfg.Consul.Register, "CONSUL_REGISTER")
	setString(&cfg.Consul.ServiceName, "CONSUL_SERVICE_NAME")
	setString(&cfg.Consul.SessionPrefix, "CONSUL_SESSION_PREFIX")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookupInt(key); ok {
		*dst = v
	}
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// RegisterFlags binds fs to cfg. The current values of cfg become the flag
// defaults, so parsing fs applies flags on top of every other source.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddr, "http.addr", cfg.HTTPAddr, "HTTP listen address")
	fs.BoolVar(&cfg.KeepDraftOnFailure, "keep-draft", cfg.KeepDraftOnFailure, "keep the new-task text when adding fails")

	fs.StringVar(&cfg.Backend.URL, "backend.url", cfg.Backend.URL, "task REST resource URL")
	fs.StringVar(&cfg.Backend.Service, "backend.service", cfg.Backend.Service, "consul service name of the task backend")
	fs.StringVar(&cfg.Backend.Prefix, "backend.prefix", cfg.Backend.Prefix, "resource path on discovered backend instances")
	fs.StringVar(&cfg.Backend.DeletePolicy, "backend.delete-policy", cfg.Backend.DeletePolicy, "delete status policy: strict or blind")
	fs.BoolVar(&cfg.Backend.Bearer, "backend.bearer", cfg.Backend.Bearer, "forward the ID token as a bearer token")
	fs.DurationVar(&cfg.Backend.Timeout.Duration, "backend.timeout", cfg.Backend.Timeout.Duration, "backend request timeout")
	fs.IntVar(&cfg.Backend.RateLimit, "backend.rate-limit", cfg.Backend.RateLimit, "backend requests per second")
	fs.IntVar(&cfg.Backend.RetryMax, "retry.max", cfg.Backend.RetryMax, "per-request retries to different instances")
	fs.DurationVar(&cfg.Backend.RetryTimeout.Duration, "retry.timeout", cfg.Backend.RetryTimeout.Duration, "per-request timeout, including retries")

	fs.StringVar(&cfg.Identity.URL, "identity.url", cfg.Identity.URL, "identity provider base URL")
	fs.StringVar(&cfg.Identity.APIKey, "identity.api-key", cfg.Identity.APIKey, "identity provider API key")
	fs.DurationVar(&cfg.Identity.Timeout.Duration, "identity.timeout", cfg.Identity.Timeout.Duration, "identity request timeout")

	fs.StringVar(&cfg.Cookie.HashKey, "cookie.hash-key", cfg.Cookie.HashKey, "session cookie signing key")
	fs.StringVar(&cfg.Cookie.BlockKey, "cookie.block-key", cfg.Cookie.BlockKey, "session cookie encryption key (16, 24 or 32 bytes)")

	fs.BoolVar(&cfg.Database.Mirror, "mirror", cfg.Database.Mirror, "keep a local mirror of fetched tasks")
	fs.StringVar(&cfg.Database.URL, "database.url", cfg.Database.URL, "mirror database URL (postgres:// or sqlite path)")
	fs.StringVar(&cfg.Database.SQLitePath, "database.sqlite", cfg.Database.SQLitePath, "mirror sqlite file when no URL is set")

	fs.StringVar(&cfg.Consul.Addr, "consul.addr", cfg.Consul.Addr, "Consul agent address")
	fs.BoolVar(&cfg.Consul.Register, "consul.register", cfg.Consul.Register, "register the web front in consul")
	fs.StringVar(&cfg.Consul.ServiceName, "consul.service", cfg.Consul.ServiceName, "name to register in consul")
	fs.StringVar(&cfg.Consul.SessionPrefix, "consul.session-prefix", cfg.Consul.SessionPrefix, "consul KV prefix for sessions")
}

// PathFromArgs returns the value of a -config flag in args, if any, so the
// file can be read before the other flags are bound.
func PathFromArgs(args []string) string {
	for i, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(name, "config=") {
			return strings.TrimPrefix(name, "config=")
		}
	}
	return ""
}
