package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	intrnl "roomrelay/internal"
	"roomrelay/internal/app"
)

var cfgFile string

func main() {
	v := app.NewViper()
	root := newRootCmd(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomrelay: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "roomrelay",
		Short:         "Room-based chat relay over WebSockets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			return app.ReadConfigFile(v, cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-pretty", false, "human readable console logs")

	root.AddCommand(newServerCmd(v), newClientCmd(v), newLocalCmd(v), newVersionCmd())
	return root
}

func newServerCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the relay: websocket rooms, auth and media uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadServerConfig(v)
			if err != nil {
				return err
			}
			logger := intrnl.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
			handle, err := app.RunServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return handle.Wait()
		},
	}
	addServerFlags(cmd, v)
	return cmd
}

func newClientCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client [room]",
		Short: "Open the terminal client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadClientConfig(v)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Room = args[0]
			}
			return app.RunClient(cfg)
		},
	}
	addClientFlags(cmd, v)
	return cmd
}

// newLocalCmd starts a throwaway relay on a loopback port and attaches the
// client to it.
func newLocalCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local [room]",
		Short: "Run a private relay and open the client against it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := app.LoadServerConfig(v)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				serverCfg.Addr = "127.0.0.1:0"
			}
			clientCfg, err := app.LoadClientConfig(v)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				clientCfg.Room = args[0]
			}
			// the TUI owns the terminal, so only errors reach stderr
			logger := intrnl.NewLogger(os.Stderr, zerolog.LevelErrorValue, false)
			return runLocal(cmd.Context(), serverCfg, clientCfg, logger)
		},
	}
	addServerFlags(cmd, v)
	addClientFlags(cmd, v)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), intrnl.VersionString())
		},
	}
}

// flagKeys maps command line flags onto config keys. Binding happens when a
// command runs, since several subcommands declare the same flag names.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"log-pretty":     "log_pretty",
	"addr":           "addr",
	"ws-path":        "ws_path",
	"db":             "db_path",
	"upload-dir":     "upload_dir",
	"jwt-secret":     "jwt_secret",
	"disk-cap":       "disk_cap_bytes",
	"evict-interval": "evict_interval",
	"server-url":     "server_url",
	"user":           "user",
	"token":          "token",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		key, ok := flagKeys[flag.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, flag)
	})
	return bindErr
}

func addServerFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("addr", v.GetString("addr"), "listen address")
	flags.String("ws-path", v.GetString("ws_path"), "websocket join path")
	flags.String("db", "", "sqlite database path (defaults to a per-user path)")
	flags.String("upload-dir", v.GetString("upload_dir"), "directory for uploaded media")
	flags.String("jwt-secret", "", "HMAC secret for session tokens")
	flags.Int64("disk-cap", v.GetInt64("disk_cap_bytes"), "bytes of media kept before the oldest files are evicted")
	flags.Duration("evict-interval", v.GetDuration("evict_interval"), "how often the media cap is enforced")
}

func addClientFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("server-url", v.GetString("server_url"), "relay websocket URL")
	flags.String("user", v.GetString("user"), "default username for login prompts")
	flags.String("token", "", "session token (skips the login prompt)")
}

func runLocal(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig, logger zerolog.Logger) error {
	handle, err := app.RunServer(ctx, serverCfg, logger)
	if err != nil {
		return err
	}
	defer handle.Stop()

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}
	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.WSPath)
	clientErr := app.RunClient(clientCfg)
	handle.Stop()
	if err := handle.Wait(); err != nil {
		return err
	}
	return clientErr
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	return fmt.Sprintf("ws://%s%s", addr, app.NormalizeJoinPath(path))
}
