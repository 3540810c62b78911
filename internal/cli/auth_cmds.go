package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/platform"
)

// baseHost provides the primitives every target may ask for. Deep links only
// arrive during signin-social.
func baseHost(cmd *cobra.Command) platform.Host {
	return platform.Host{
		Opener:    openURL(cmd.ErrOrStderr()),
		DeepLinks: make(chan string),
	}
}

// noteEphemeral tells the user that a session created by this build ends
// with the process.
func noteEphemeral(cmd *cobra.Command) {
	if platform.Target == "native" {
		return
	}

	fmt.Fprintf(cmd.ErrOrStderr(),
		"note: the %s build keeps this session in memory only; build with -tags native to keep it\n",
		platform.Target)
}

func printSession(cmd *cobra.Command, session domain.Session) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err := enc.Encode(session); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	return nil
}

func newSignUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")

			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			session, err := a.Client.SignUp(cmd.Context(), authclient.SignUpRequest{Email: email, Password: password, Name: name})
			if err != nil {
				return authFailure("sign up", err)
			}

			noteEphemeral(cmd)

			return printSession(cmd, session)
		},
	}

	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	cmd.Flags().String("name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newSignInCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			session, err := a.Client.SignInEmail(cmd.Context(), email, password)
			if err != nil {
				return authFailure("sign in", err)
			}

			if a.Client.Session().Get().Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: signed in, but the session could not be saved")
			}

			noteEphemeral(cmd)

			return printSession(cmd, session)
		},
	}

	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newSignInSocialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin-social",
		Short: "Sign in with an identity provider in the browser (native builds)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			lb, err := listenLoopback(ctx)
			if err != nil {
				return err
			}

			host := baseHost(cmd)
			host.DeepLinks = lb.Links

			a, err := newApp(cmd, host)
			if err != nil {
				return err
			}

			session, err := a.Client.SignInSocial(ctx, provider, lb.URL)
			if err != nil {
				return authFailure("social sign in", err)
			}

			return printSession(cmd, session)
		},
	}

	cmd.Flags().String("provider", "github", "Identity provider")
	cmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the provider")

	return cmd
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the session; the local credential is always removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			if err := a.Client.SignOut(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: remote sign out failed, local session cleared")

				return authFailure("sign out", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")

			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			view := a.Session.Load(cmd.Context())
			if view.Error != nil {
				return authFailure("session", view.Error)
			}

			if !view.Signed() {
				if platform.Target != "native" {
					return exitError(ExitNotSignedIn, nil,
						"not signed in (the %s build does not keep sessions between commands)", platform.Target)
				}

				return exitError(ExitNotSignedIn, nil, "not signed in")
			}

			state := a.Client.Session().Get()

			return printSession(cmd, *state.Data)
		},
	}
}

func newForgotPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			redirectTo, _ := cmd.Flags().GetString("redirect-to")

			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			if redirectTo == "" {
				redirectTo = a.CallbackURL("/reset-password")
			}

			req := authclient.ForgetPasswordRequest{Email: email, RedirectTo: redirectTo}
			if err := a.Client.ForgetPassword(cmd.Context(), req); err != nil {
				return authFailure("forgot password", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "If an account exists for that address, a reset link is on its way.")

			return nil
		},
	}

	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("redirect-to", "", "Page the reset link opens (default APP_URL/reset-password)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newResetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			password, _ := cmd.Flags().GetString("password")

			a, err := newApp(cmd, baseHost(cmd))
			if err != nil {
				return err
			}

			req := authclient.ResetPasswordRequest{Token: token, NewPassword: password}
			if err := a.Client.ResetPassword(cmd.Context(), req); err != nil {
				return authFailure("reset password", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Password updated.")

			return nil
		},
	}

	cmd.Flags().String("token", "", "Reset token from the email")
	cmd.Flags().String("password", "", "New password")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
