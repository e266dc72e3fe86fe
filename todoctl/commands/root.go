package commands

import (
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/config"
	"github.com/ichigozero/sicatat/webapp"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. build is called once per invocation,
// after flags are parsed.
func NewRootCmd(build Builder, out, errOut io.Writer) *cobra.Command {
	var (
		configPath   string
		dir          string
		backendURL   string
		deletePolicy string
		verbose      bool
		app          *App
	)

	root := &cobra.Command{
		Use:           "todoctl",
		Short:         "Manage " + webapp.AppName + " tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend-url") {
				cfg.Backend.URL = backendURL
			}
			if cmd.Flags().Changed("delete-policy") {
				cfg.Backend.DeletePolicy = deletePolicy
			}

			logger := log.NewNopLogger()
			if verbose {
				logger = log.NewLogfmtLogger(errOut)
				logger = log.With(logger, "ts", log.DefaultTimestampUTC)
			}

			if dir == "" {
				dir = DefaultDir()
			}
			app, err = build(cfg, dir, logger)
			return err
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "TOML configuration file")
	flags.StringVar(&dir, "dir", "", "state directory (default $XDG_CONFIG_HOME/todoctl)")
	flags.StringVar(&backendURL, "backend-url", "", "task REST resource URL")
	flags.StringVar(&deletePolicy, "delete-policy", "", "delete status policy: strict or blind")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")

	current := func() *App { return app }
	root.AddCommand(
		registerCmd(current),
		loginCmd(current),
		logoutCmd(current),
		whoamiCmd(current),
		listCmd(current),
		addCmd(current),
		toggleCmd(current),
		rmCmd(current),
		categoriesCmd(),
	)
	return root
}

// printer writes notifications to w, one per line.
func printer(w io.Writer) webapp.Notifier {
	return webapp.NotifierFunc(func(n webapp.Notification) {
		fmt.Fprintf(w, "%s: %s\n", n.Level, n.Message)
	})
}
