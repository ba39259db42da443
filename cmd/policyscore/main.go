package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/policyscore/internal/config"
	"github.com/danielpatrickdp/policyscore/internal/store"
)

// #region env
// env holds settings read from the process environment. Flags override them.
type env struct {
	DB       string `env:"POLICYSCORE_DB,default=policyscore.db"`
	Config   string `env:"POLICYSCORE_CONFIG"`
	LogLevel string `env:"POLICYSCORE_LOG_LEVEL,default=info"`
}

var (
	settings env
	jsonOut  bool
)

// #endregion env

// #region main

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := envconfig.Process(ctx, &settings); err != nil {
		fmt.Fprintf(os.Stderr, "read environment: %v\n", err)
		os.Exit(2)
	}

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "policyscore",
		Short:         "Calibrate policy evaluation methods and roll up question scores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(settings.LogLevel)}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&settings.DB, "db", settings.DB, "path to the run database")
	root.PersistentFlags().StringVar(&settings.Config, "config", settings.Config, "path to the pipeline config YAML")
	root.PersistentFlags().StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of tables")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newBaselineCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newCalibrateCmd())
	return root
}

// #endregion main

// #region helpers

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the configured pipeline file, or the defaults when none is set.
func loadConfig() (config.Config, error) {
	if settings.Config == "" {
		return config.Default(), nil
	}
	return config.Load(settings.Config)
}

func openStore() (*store.Store, error) {
	s, err := store.Open(settings.DB)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", settings.DB, err)
	}
	return s, nil
}

// #endregion helpers
