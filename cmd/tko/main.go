// Command tko is the project's operations CLI: migrations, image builds,
// deploys, health waits and dev tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/Tomlord1122/takeout/internal/app"
	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/logger"
)

var version = "dev"

func main() {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "tko",
		Short:         "Operations CLI for the takeout backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("TKO_CONFIG", path); err != nil {
					return err
				}
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			level := cfg.Log.Level
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = "debug"
			}
			logger.Init(logger.Config{Env: cfg.Log.Env, Level: level, ServiceName: "tko", Version: version})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().String("config", os.Getenv("TKO_CONFIG"), "YAML config file (env TKO_CONFIG)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level, including subprocess output")

	getCfg := func() *config.Config { return cfg }
	root.AddCommand(
		newMigrateCmd(getCfg),
		newBuildCmd(getCfg),
		newDeployCmd(getCfg),
		newWaitCmd(getCfg),
		newTokenCmd(getCfg),
		newServeCmd(getCfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tko:", err.Error())
		os.Exit(1)
	}
}

func newTokenCmd(cfg func() *config.Config) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if c.IsProd() {
				return fmt.Errorf("refusing to mint tokens with APP_ENV=prod")
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			tokens := auth.NewTokens(c.Auth.JWTSecret, c.Auth.Issuer, c.Auth.Audience, c.Auth.AccessTTL)
			tok, exp, err := tokens.Issue(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the sub claim")
	cmd.Flags().StringVar(&name, "name", "", "Optional display name claim")
	return cmd
}

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
