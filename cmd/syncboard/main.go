package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"syncboard/internal/app"
	"syncboard/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

// configFileEnv names the config file when --config is not given
const configFileEnv = config.EnvPrefix + "CONFIG_FILE"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so flags
// do not leak between invocations.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "syncboard",
		Short:         "Real-time state synchronization server for collaborative sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a JSON or YAML config file (default $"+configFileEnv+")")

	loadConfig := func() (*config.Config, error) {
		path := configPath
		if path == "" {
			path = os.Getenv(configFileEnv)
		}
		return config.LoadConfigWithPrecedence(path)
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := app.Migrate(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database up to date: %s\n", cfg.Database.Path)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "syncboard %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
	return rootCmd
}

// serve runs the application until SIGINT/SIGTERM
// ARCHITECTURAL DISCOVERY: Signal handling ensures graceful shutdown in production environments
func serve(cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return application.Stop(shutdownCtx)
}
