package commands

import (
	"fmt"
	"os"

	"github.com/ichigozero/sicatat/webapp/pkg/credential"
	"github.com/spf13/cobra"
)

const passwordEnv = "TODOCTL_PASSWORD"

func password(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnv)
}

func registerCmd(app func() *App) *cobra.Command {
	var in credential.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			b, err := a.bridge()
			if err != nil {
				return err
			}

			in.Password = password(in.Password)
			_, err = a.forms().Register(cmd.Context(), b, in, printer(cmd.ErrOrStderr()))
			return err
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (or $"+passwordEnv+")")
	return cmd
}

func loginCmd(app func() *App) *cobra.Command {
	var in credential.LoginInput

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			b, err := a.bridge()
			if err != nil {
				return err
			}

			in.Password = password(in.Password)
			_, err = a.forms().Login(cmd.Context(), b, in, printer(cmd.ErrOrStderr()))
			return err
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (or $"+passwordEnv+")")
	return cmd
}

func logoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			b, err := a.bridge()
			if err != nil {
				return err
			}

			_, err = a.forms().SignOut(cmd.Context(), b, printer(cmd.ErrOrStderr()))
			return err
		},
	}
}

func whoamiCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app().bridge()
			if err != nil {
				return err
			}
			u := b.CurrentUser()
			if u == nil {
				return ErrNotSignedIn
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.DisplayName, u.Email)
			return nil
		},
	}
}
