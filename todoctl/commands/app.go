// Package commands implements the todoctl command tree.
package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/config"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identitytransport"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/ichigozero/sicatat/tasksvc/db/gorm"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
	"github.com/ichigozero/sicatat/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/tasklist"
)

// AppName is the configuration directory name.
const AppName = "todoctl"

// SessionID names the single session todoctl keeps on disk.
const SessionID = "default"

var (
	ErrNotSignedIn = errors.New("not signed in, run todoctl login first")
	ErrNoMirror    = errors.New("local mirror is disabled, set database.mirror")
)

// App is what the commands run against.
type App struct {
	Identity  identityservice.Service
	Tasks     taskservice.Service
	Store     session.Store
	Snapshots tasksvc.SnapshotRepository
	Logger    log.Logger
	Options   []tasklist.Option
}

// Builder creates the App once flags and configuration are known.
type Builder func(cfg *config.Config, dir string, logger log.Logger) (*App, error)

// DefaultBuilder talks to the configured identity provider and task backend
// and keeps the session as a file under dir.
func DefaultBuilder(cfg *config.Config, dir string, logger log.Logger) (*App, error) {
	policy, err := tasktransport.ParseStatusPolicy(cfg.Backend.DeletePolicy)
	if err != nil {
		return nil, err
	}

	remote, err := tasktransport.NewHTTPClient(cfg.Backend.URL, tasktransport.ClientConfig{
		DeletePolicy: policy,
		Bearer:       cfg.Backend.Bearer,
		Timeout:      cfg.Backend.Timeout.Duration,
		RateLimit:    cfg.Backend.RateLimit,
	}, logger)
	if err != nil {
		return nil, err
	}

	identity, err := identitytransport.NewHTTPClient(cfg.Identity.URL, cfg.Identity.APIKey, cfg.Identity.Timeout.Duration, logger)
	if err != nil {
		return nil, err
	}

	var snapshots tasksvc.SnapshotRepository
	if cfg.Database.Mirror {
		path := cfg.Database.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		db, err := gorm.Open(cfg.Database.URL, path)
		if err != nil {
			return nil, err
		}
		snapshots = gorm.NewTaskRepository(db)
	}

	var opts []tasklist.Option
	if cfg.KeepDraftOnFailure {
		opts = append(opts, tasklist.KeepDraftOnFailure())
	}

	return &App{
		Identity:  identityservice.LoggingMiddleware(logger)(identity),
		Tasks:     taskservice.New(remote, snapshots, logger),
		Store:     session.NewFileStore(filepath.Join(dir, "sessions")),
		Snapshots: snapshots,
		Logger:    logger,
		Options:   opts,
	}, nil
}

// DefaultDir returns $XDG_CONFIG_HOME/todoctl or $HOME/.config/todoctl.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

func (a *App) bridge() (*session.Bridge, error) {
	return session.NewManager(a.Store, a.Logger).Bridge(SessionID)
}

func (a *App) forms() *credential.Forms {
	return credential.New(a.Identity, a.Logger)
}

// tasks mounts a task view on the stored session. The collection is loaded
// by the time it returns.
func (a *App) tasks(ctx context.Context, n webapp.Notifier) (*tasklist.Controller, *identitysvc.User, error) {
	b, err := a.bridge()
	if err != nil {
		return nil, nil, err
	}
	user := b.CurrentUser()
	if user == nil {
		return nil, nil, ErrNotSignedIn
	}

	c := tasklist.New(a.Tasks, n, a.Logger, a.Options...)
	c.Mount(ctx, b)
	return c, user, nil
}
