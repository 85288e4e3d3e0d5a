package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/the-dev-tools/socketapi/internal/config"
)

// serveFlags maps command line flags to config keys.
var serveFlags = []struct {
	key, flag, usage string
	boolean          bool
}{
	{key: "server.mode", flag: "mode", usage: "listener mode (tcp or uds)"},
	{key: "server.port", flag: "port", usage: "tcp port"},
	{key: "server.socket_path", flag: "socket-path", usage: "unix socket path in uds mode"},
	{key: "server.path", flag: "path", usage: "websocket endpoint path"},
	{key: "debug", flag: "debug", usage: "include server error messages in replies", boolean: true},
	{key: "log.level", flag: "log-level", usage: "debug, info, warn or error"},
	{key: "log.format", flag: "log-format", usage: "text or json"},
	{key: "store.driver", flag: "store", usage: "memory, sqlite or redis"},
	{key: "store.dsn", flag: "dsn", usage: "sqlite data source name"},
	{key: "store.redis_addr", flag: "redis-addr", usage: "redis address"},
	{key: "seed", flag: "seed", usage: "YAML file with todos to load on start"},
}

func newServeCommand(v *viper.Viper, cfgFilePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, *cfgFilePath)
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(os.Stderr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("closing store", "error", err)
				}
			}()

			logger.Info("starting socketapi", "version", Version, "mode", cfg.Server.Mode, "path", cfg.Server.Path, "store", cfg.Store.Driver)
			if err := app.Run(ctx, cfg.Server.API()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info("socketapi stopped")
			return nil
		},
	}

	for _, f := range serveFlags {
		if f.boolean {
			cmd.Flags().Bool(f.flag, false, f.usage)
		} else {
			cmd.Flags().String(f.flag, "", f.usage)
		}
	}
	cmd.Flags().Int("send-buffer", 0, "frames queued per connection before it counts as slow")
	return cmd
}

// bindFlags binds the flags the user actually set, so unset flags never mask
// file or environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, f := range serveFlags {
		if !flags.Changed(f.flag) {
			continue
		}
		if err := v.BindPFlag(f.key, flags.Lookup(f.flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", f.flag, err)
		}
	}
	if flags.Changed("send-buffer") {
		if err := v.BindPFlag("transport.send_buffer", flags.Lookup("send-buffer")); err != nil {
			return fmt.Errorf("bind --send-buffer: %w", err)
		}
	}
	return nil
}
