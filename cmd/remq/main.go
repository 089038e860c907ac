package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/kainosnoema/remq/internal/cmd/client"
	serverrun "github.com/kainosnoema/remq/internal/cmd/server"
	cfgpkg "github.com/kainosnoema/remq/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "remq",
		Short: "remq store server and client CLI",
		Long:  "remq is a durable, replayable pub/sub log. This CLI runs the store server and talks to it.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the remq store (gRPC, HTTP and optional embedded NATS)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(path)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			overrideString(cmd, "data-dir", &cfg.DataDir)
			overrideString(cmd, "namespace", &cfg.Namespace)
			overrideString(cmd, "grpc", &cfg.GRPCAddr)
			overrideString(cmd, "http", &cfg.HTTPAddr)
			overrideString(cmd, "nats", &cfg.NATSURL)
			overrideString(cmd, "fsync", &cfg.Fsync)
			overrideString(cmd, "log-level", &cfg.Log.Level)
			overrideString(cmd, "log-format", &cfg.Log.Format)
			if cmd.Flags().Changed("fsync-interval-ms") {
				cfg.FsyncIntervalMs, _ = cmd.Flags().GetInt("fsync-interval-ms")
			}
			if cmd.Flags().Changed("nats-port") {
				cfg.EmbeddedNATSPort, _ = cmd.Flags().GetInt("nats-port")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv("REMQ_CONFIG"), "Config file (.json, .yaml or .yml)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("namespace", "", "Namespace served by this store")
	f.String("grpc", "", "gRPC listen address (default :7070)")
	f.String("http", "", "HTTP listen address for /v1/healthz and /metrics (default :7071)")
	f.String("nats", "", "Live channel: empty for none, 'embedded', or a nats:// URL")
	f.Int("nats-port", 4222, "Client port of the embedded NATS server")
	f.String("fsync", "", "Fsync mode: always|interval|never (default interval)")
	f.Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewRoot())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func overrideString(cmd *cobra.Command, flag string, dst *string) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetString(flag)
	}
}
