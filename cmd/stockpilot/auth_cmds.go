package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/stockpilot/session"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and store the token pair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				username = args[0]
			}
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			if username, err = a.valueOrPrompt(username, "Username: "); err != nil {
				return err
			}
			password, err := a.promptPassword("Password: ")
			if err != nil {
				return err
			}
			if err := m.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", m.CurrentUser().Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			if username, err = a.valueOrPrompt(username, "Username: "); err != nil {
				return err
			}
			if email, err = a.valueOrPrompt(email, "Email: "); err != nil {
				return err
			}
			password, err := a.promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := a.promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if err := m.Signup(cmd.Context(), username, email, password, confirm); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Account created, logged in as %s\n", m.CurrentUser().Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			snap := m.Snapshot()
			if snap.User == nil {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			fmt.Fprintf(a.out, "User:    %s (id %s)\n", snap.User.Username, snap.User.ID)
			if snap.User.Email != "" {
				fmt.Fprintf(a.out, "Email:   %s\n", snap.User.Email)
			}
			fmt.Fprintf(a.out, "State:   %s\n", snap.State)
			fmt.Fprintf(a.out, "Expires: %s (%s)\n", snap.ExpiresAt.Local().Format(time.RFC1123), time.Until(snap.ExpiresAt).Round(time.Second))
			return nil
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := m.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Access token valid until %s\n", m.Snapshot().ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password [email]",
		Short: "Ask the backend to email a password reset link",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			var email string
			if len(args) == 1 {
				email = args[0]
			}
			if email, err = a.valueOrPrompt(email, "Email: "); err != nil {
				return err
			}
			return a.printResult(m.ForgotPassword(cmd.Context(), email))
		},
	}
}

func newResetPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <uid> <token>",
		Short: "Set a new password using the uid and token from a reset link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			password, err := a.promptPassword("New password: ")
			if err != nil {
				return err
			}
			confirm, err := a.promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			return a.printResult(m.ResetPassword(cmd.Context(), args[0], args[1], password, confirm))
		},
	}
}

func (a *app) printResult(res session.Result) error {
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}
