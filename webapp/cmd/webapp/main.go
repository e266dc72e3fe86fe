package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/gorilla/securecookie"
	"github.com/hashicorp/consul/api"
	"github.com/ichigozero/sicatat/config"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityendpoint"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identityservice"
	"github.com/ichigozero/sicatat/identitysvc/pkg/identitytransport"
	"github.com/ichigozero/sicatat/identitysvc/session"
	"github.com/ichigozero/sicatat/tasksvc"
	taskclient "github.com/ichigozero/sicatat/tasksvc/client"
	"github.com/ichigozero/sicatat/tasksvc/db/gorm"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/sicatat/tasksvc/pkg/taskservice"
	"github.com/ichigozero/sicatat/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/ichigozero/sicatat/webapp/pkg/tasklist"
	"github.com/ichigozero/sicatat/webapp/pkg/webendpoint"
	"github.com/ichigozero/sicatat/webapp/pkg/webservice"
	"github.com/ichigozero/sicatat/webapp/pkg/webtransport"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/twinj/uuid"
)

func main() {
	cfg, err := config.Load(config.PathFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("webapp", flag.ExitOnError)
	fs.String("config", "", "TOML configuration file")
	config.RegisterFlags(fs, cfg)
	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	deletePolicy, err := tasktransport.ParseStatusPolicy(cfg.Backend.DeletePolicy)
	if err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}

	var (
		consulClient *api.Client
		client       consulsd.Client
	)
	if cfg.Consul.Addr != "" || cfg.Backend.Service != "" {
		consulConfig := api.DefaultConfig()
		if len(cfg.Consul.Addr) > 0 {
			consulConfig.Address = cfg.Consul.Addr
		}
		consulClient, err = api.NewClient(consulConfig)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		client = consulsd.NewClient(consulClient)
	}

	var store session.Store
	{
		if consulClient != nil {
			store = session.NewConsulStore(consulClient.KV(), cfg.Consul.SessionPrefix)
		} else {
			store = session.NewMemoryStore()
		}
	}

	var snapshots tasksvc.SnapshotRepository
	if cfg.Database.Mirror {
		db, err := gorm.Open(cfg.Database.URL, cfg.Database.SQLitePath)
		if err != nil {
			logger.Log("during", "Open", "err", err)
			os.Exit(1)
		}
		snapshots = gorm.NewTaskRepository(db)
	}

	fieldKeys := []string{"method"}

	var tasks taskservice.Service
	{
		clientConfig := tasktransport.ClientConfig{
			DeletePolicy: deletePolicy,
			Bearer:       cfg.Backend.Bearer,
			Timeout:      cfg.Backend.Timeout.Duration,
			RateLimit:    cfg.Backend.RateLimit,
		}

		var remote taskservice.Service
		if cfg.Backend.Service != "" {
			var balanced *taskclient.Client
			balanced, err = taskclient.New(
				client,
				taskclient.Backend{
					Service: cfg.Backend.Service,
					Prefix:  cfg.Backend.Prefix,
					Config:  clientConfig,
				},
				logger,
				cfg.Backend.RetryMax,
				cfg.Backend.RetryTimeout.Duration,
			)
			if err == nil {
				defer balanced.Stop()
				remote = balanced
			}
		} else {
			remote, err = tasktransport.NewHTTPClient(cfg.Backend.URL, clientConfig, logger)
		}
		if err != nil {
			logger.Log("during", "NewTaskClient", "err", err)
			os.Exit(1)
		}

		tasks = taskservice.New(remote, snapshots, logger)
		tasks = taskendpoint.New(tasks, log.With(logger, "component", "tasks"))
		tasks = taskservice.InstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "sicatat",
				Subsystem: "task_client",
				Name:      "request_count",
				Help:      "Number of requests sent to the task backend.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "sicatat",
				Subsystem: "task_client",
				Name:      "request_latency_seconds",
				Help:      "Duration of task backend requests in seconds.",
			}, fieldKeys),
		)(tasks)
	}

	var identity identityservice.Service
	{
		identity, err = identitytransport.NewHTTPClient(
			cfg.Identity.URL,
			cfg.Identity.APIKey,
			cfg.Identity.Timeout.Duration,
			logger,
		)
		if err != nil {
			logger.Log("during", "NewIdentityClient", "err", err)
			os.Exit(1)
		}

		identity = identityendpoint.New(identity, log.With(logger, "component", "identity"))
		identity = identityservice.LoggingMiddleware(logger)(identity)
		identity = identityservice.InstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "sicatat",
				Subsystem: "identity_client",
				Name:      "request_count",
				Help:      "Number of requests sent to the identity provider.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "sicatat",
				Subsystem: "identity_client",
				Name:      "request_latency_seconds",
				Help:      "Duration of identity provider requests in seconds.",
			}, fieldKeys),
		)(identity)
	}

	var opts []tasklist.Option
	if cfg.KeepDraftOnFailure {
		opts = append(opts, tasklist.KeepDraftOnFailure())
	}

	duration := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "sicatat",
		Subsystem: "web",
		Name:      "request_duration_seconds",
		Help:      "Request duration in seconds.",
	}, []string{"method", "success"})

	var (
		forms     = credential.New(identity, logger)
		sessions  = session.NewManager(store, logger)
		service   = webservice.New(forms, sessions, tasks, logger, opts...)
		endpoints = webendpoint.New(service, logger, duration)
		codec     = webtransport.NewCookieCodec(cookieKey(cfg.Cookie.HashKey, logger), []byte(cfg.Cookie.BlockKey))
		handler   = webtransport.NewHTTPHandler(endpoints, codec, logger)
	)

	if cfg.Consul.Register && client != nil {
		host, port, err := net.SplitHostPort(cfg.HTTPAddr)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		if host == "" {
			host = "localhost"
		}

		p, _ := strconv.Atoi(port)
		asr := &api.AgentServiceRegistration{
			ID:      uuid.NewV4().String(),
			Name:    cfg.Consul.ServiceName,
			Address: host,
			Port:    p,
		}

		registrar := consulsd.NewRegistrar(client, asr, logger)
		registrar.Register()
		defer registrar.Deregister()
	}

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			logger.Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		g.Add(func() error {
			logger.Log("transport", "HTTP", "addr", cfg.HTTPAddr)
			return http.Serve(httpListener, handler)
		}, func(error) {
			httpListener.Close()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	logger.Log("exit", g.Run())
}

// cookieKey returns the configured hash key, or a random one when none is
// set. Sessions then do not survive a restart.
func cookieKey(key string, logger log.Logger) []byte {
	if key != "" {
		return []byte(key)
	}
	logger.Log("cookie", "no hash key configured, using a random one")
	return securecookie.GenerateRandomKey(32)
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}
