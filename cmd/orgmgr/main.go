// Command orgmgr runs the organization directory service and its operational
// subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orgmgr/orgmgr/internal/app"
	"github.com/orgmgr/orgmgr/internal/cli"
	"github.com/orgmgr/orgmgr/internal/config"
	"github.com/orgmgr/orgmgr/internal/database"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "orgmgr",
		Short:         "Directory service for organizations, buildings, and activities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		devCmd(),
		entrypointCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind address")
	cmd.Flags().IntVar(&port, "port", 8000, "bind port")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return database.MigrateUp(cfg.Database, logger.New("migrate", cfg.Log.Level))
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return database.MigrateDown(cfg.Database, logger.New("migrate", cfg.Log.Level))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				version, dirty, err := database.MigrationVersion(cfg.Database)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func devCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Bootstrap the local development environment",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDevBootstrap()
		},
	}
}

// runDevBootstrap provisions the compose services and applies migrations.
func runDevBootstrap() error {
	log := logger.NewDefault("dev")

	compose := exec.Command("docker", "compose", "-f", "docker/docker-compose.dev.yml", "up", "-d", "--wait")
	compose.Stdout = os.Stdout
	compose.Stderr = os.Stderr
	if err := compose.Run(); err != nil {
		return fmt.Errorf("start compose services: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cfg.Database, log); err != nil {
		return err
	}
	log.Info("development environment ready")
	return nil
}

// entrypointCmd mirrors docker/entrypoint.sh so the MODE contract stays
// testable without a shell.
func entrypointCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "entrypoint [args...]",
		Short:  "Dispatch on the MODE environment variable",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := cli.New(cli.Actions{
				Serve: func(host, port string) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if host != "" {
						cfg.Server.Host = host
					}
					if port != "" {
						p, err := strconv.Atoi(port)
						if err != nil {
							return fmt.Errorf("invalid PORT %q", port)
						}
						cfg.Server.Port = p
					}
					ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer stop()
					return app.Run(ctx, cfg)
				},
				Migrate: func() error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					return database.MigrateUp(cfg.Database, logger.New("migrate", cfg.Log.Level))
				},
				Dev: runDevBootstrap,
				Shell: func(args []string) error {
					if len(args) == 0 {
						return fmt.Errorf("shell mode requires a command")
					}
					sh := exec.Command(args[0], args[1:]...)
					sh.Stdin = os.Stdin
					sh.Stdout = os.Stdout
					sh.Stderr = os.Stderr
					return sh.Run()
				},
			}, cmd.ErrOrStderr())

			code := d.Dispatch(os.Getenv("MODE"), os.Getenv("HOST"), os.Getenv("PORT"), args)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "orgmgr", app.Version)
		},
	}
}
