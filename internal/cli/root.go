// Package cli is the command line front end of the app.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mkrupp/apptemplate/internal/app"
	"github.com/mkrupp/apptemplate/internal/infra/config"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/platform"
)

type configKey struct{}

// NewRootCmd creates the command tree. Configuration is read from the
// environment before any subcommand runs.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           app.Name,
		Short:         "Sign in, inspect and end sessions of " + app.Name,
		Long:          "Sign in, inspect and end sessions of " + app.Name + ".\n\n" +
			"Only a native build (-tags native) keeps the credential in the OS keystore, so a\n" +
			"session outlives the process and signin-social can receive the provider callback.\n" +
			"Other builds hold the session in memory for the duration of one command.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := app.LoadConfig(ctx)
			if err != nil {
				code := ExitFailure
				if errors.Is(err, config.ErrVarNotSet) || errors.Is(err, config.ErrUnsupportedVarType) {
					code = ExitConfig
				}

				return exitError(code, err, "configuration: %v", err)
			}

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Log.Level = "debug"
			}

			if err := logging.Configure(ctx, cfg.Log, app.Name); err != nil {
				return exitError(ExitConfig, err, "configure logging: %v", err)
			}

			cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))

			return nil
		},
	}

	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.Version = platform.Target

	root.AddCommand(
		newSignUpCmd(),
		newSignInCmd(),
		newSignInSocialCmd(),
		newSignOutCmd(),
		newSessionCmd(),
		newForgotPasswordCmd(),
		newResetPasswordCmd(),
		newServeCmd(),
	)

	return root
}

func configFrom(cmd *cobra.Command) app.Config {
	cfg, _ := cmd.Context().Value(configKey{}).(app.Config)

	return cfg
}

// newApp builds the app for the running binary's target.
func newApp(cmd *cobra.Command, host platform.Host) (*app.App, error) {
	a, err := app.New(cmd.Context(), configFrom(cmd), host)
	if err != nil {
		return nil, exitError(ExitConfig, err, "initialize: %v", err)
	}

	return a, nil
}
