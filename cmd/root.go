package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"forgeclient/internal/metrics"
	"forgeclient/pkg/client"
	"forgeclient/pkg/config"
	"forgeclient/pkg/ingest"
	"forgeclient/pkg/status"
)

// exitCancelled is the exit code of a run interrupted by the user
const exitCancelled = 130

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Command-line client for the EPM Data Forge backend",
	Long: `A command-line client for the EPM Data Forge synthetic data backend.
Streams generated records as they are produced, follows the backend status
channel and wraps the one-shot analysis and suggestion endpoints.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Log.ConfigureZerolog(os.Stderr)

		if cfg.Metrics.Addr != "" {
			srv, err := metrics.Listen(cfg.Metrics.Addr)
			if err != nil {
				return fmt.Errorf("failed to start metrics endpoint: %w", err)
			}
			go func() {
				if err := srv.Serve(cmd.Context()); err != nil {
					log.Error().Err(err).Msg("Metrics endpoint stopped")
				}
			}()
		}
		return nil
	},
}

// Execute runs the command tree. SIGINT and SIGTERM cancel the command
// context; a cancelled run exits with 130.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := retryHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		if errors.Is(err, ingest.ErrCancelled) {
			os.Exit(exitCancelled)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.forge/config.yaml)")
	rootCmd.PersistentFlags().String("backend-url", "", "backend base URL")
	rootCmd.PersistentFlags().String("status-url", "", "status WebSocket URL")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend-url"))
	viper.BindPFlag("status.url", rootCmd.PersistentFlags().Lookup("status-url"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// retryHint suggests a retry when the backend failure looks transient
func retryHint(err error) string {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && statusErr.Temporary() {
		return "The backend is temporarily unavailable; try again shortly."
	}
	return ""
}

func GetConfig() *config.Config {
	return cfg
}

func newClient() *client.Client {
	return client.New(GetConfig())
}

// commandLogger returns the global logger tagged with the running command
func commandLogger(cmd *cobra.Command) zerolog.Logger {
	return log.With().Str("command", cmd.Name()).Logger()
}

// newStatusChannel builds a status channel from the loaded configuration
func newStatusChannel(logger zerolog.Logger) *status.Channel {
	sc := GetConfig().Status
	return status.New(sc.URL,
		status.WithPolicy(status.ReconnectPolicy{MaxAttempts: sc.MaxAttempts, Delay: sc.ReconnectDelay}),
		status.WithNoticeTTL(sc.NoticeTTL),
		status.WithIgnoredMessages(sc.IgnoreMessages...),
		status.WithLogger(logger),
	)
}
