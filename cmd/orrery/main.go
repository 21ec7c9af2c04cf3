// Command orrery serves Keplerian positions of the planets, the Moon and
// near-Earth comets over HTTP, and answers one-off queries from the shell.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the settings and logger shared by every command.
type app struct {
	cfgFile string
	v       *viper.Viper
	logger  *slog.Logger
}

func main() {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "orrery",
		Short:         "Keplerian solar-system position service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// serve logs to stdout; the query commands keep stdout for JSON.
			var out io.Writer = os.Stderr
			if cmd.Name() == "serve" {
				out = os.Stdout
			}
			return a.init(out)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file (every setting can also be set as ORRERY_<KEY>)")

	root.AddCommand(
		a.serveCmd(),
		a.positionCmd(),
		a.orbitCmd(),
		a.julianCmd(),
		a.approachesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) init(out io.Writer) error {
	a.v.SetEnvPrefix("ORRERY")
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
	}

	a.logger = newLogger(out, a.v.GetString("log_level"))
	if a.cfgFile != "" {
		a.logger.Info("loaded config file", "path", a.v.ConfigFileUsed())
	}
	return nil
}

// newLogger returns a JSON logger at the named level (debug, info, warn or
// error). An unknown level falls back to info.
func newLogger(out io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	bad := level != "" && lvl.UnmarshalText([]byte(level)) != nil
	if bad {
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
	if bad {
		logger.Warn("invalid ORRERY_LOG_LEVEL value, using default", "value", level, "default", "info")
	}
	return logger
}
