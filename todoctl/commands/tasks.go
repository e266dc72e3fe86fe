package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ichigozero/sicatat/tasksvc"
	"github.com/spf13/cobra"
)

func listCmd(app func() *App) *cobra.Command {
	var (
		filter string
		cached bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := tasksvc.ParseFilter(filter)
			if err != nil {
				return fmt.Errorf("unknown filter %q", filter)
			}

			a := app()
			if cached {
				return listCached(cmd.OutOrStdout(), a, f)
			}

			c, _, err := a.tasks(cmd.Context(), printer(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer c.Unmount()

			c.SetFilter(f)
			writeTasks(cmd.OutOrStdout(), c.View().Tasks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, finished or unfinished")
	cmd.Flags().BoolVar(&cached, "cached", false, "read the local mirror instead of the backend")
	return cmd
}

func listCached(w io.Writer, a *App, f tasksvc.Filter) error {
	if a.Snapshots == nil {
		return ErrNoMirror
	}
	b, err := a.bridge()
	if err != nil {
		return err
	}
	u := b.CurrentUser()
	if u == nil {
		return ErrNotSignedIn
	}

	tasks, err := a.Snapshots.FindAll(u.Email)
	if err != nil {
		return err
	}
	writeTasks(w, f.Apply(tasks))
	return nil
}

func addCmd(app func() *App) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app().tasks(cmd.Context(), printer(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer c.Unmount()

			c.SetDraft(strings.Join(args, " "), category)
			t, err := c.Add(cmd.Context())
			if err != nil {
				return err
			}
			writeTasks(cmd.OutOrStdout(), []tasksvc.Task{t})
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "one of: "+categoryValues())
	return cmd
}

func toggleCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip the finished flag of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app().tasks(cmd.Context(), printer(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer c.Unmount()

			t, err := c.Toggle(cmd.Context(), tasksvc.TaskID(args[0]))
			if err != nil {
				return err
			}
			writeTasks(cmd.OutOrStdout(), []tasksvc.Task{t})
			return nil
		},
	}
}

func rmCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app().tasks(cmd.Context(), printer(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer c.Unmount()

			return c.Delete(cmd.Context(), tasksvc.TaskID(args[0]))
		},
	}
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List task categories",
		Args:  cobra.NoArgs,
		// No App is needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "VALUE\tLABEL")
			for _, c := range tasksvc.Categories {
				fmt.Fprintf(w, "%s\t%s\n", c.Value, c.Label)
			}
			return w.Flush()
		},
	}
}

func writeTasks(w io.Writer, tasks []tasksvc.Task) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tCATEGORY\tNAME")
	for _, t := range tasks {
		done := "[ ]"
		if t.Finish {
			done = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, done, t.Category, t.Name)
	}
	tw.Flush()
}

func categoryValues() string {
	values := make([]string, 0, len(tasksvc.Categories))
	for _, c := range tasksvc.Categories {
		values = append(values, c.Value)
	}
	return strings.Join(values, ", ")
}
