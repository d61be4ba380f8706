package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mediarelay/internal/config"
	"mediarelay/internal/pkg/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	flagConfig   string
	flagLogLevel string
)

// cfg holds the loaded configuration (defaults < file < env < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mediarelay",
	Short: "Fetch media from social links and relay it into Telegram chats",
	Long: `mediarelay watches a Telegram bot for links to Instagram, Pinterest,
YouTube, TikTok and Facebook posts, resolves the media behind them and sends
the files back into the chat.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to the TOML config file (default: "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log.level: debug | info | warn | error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return nil
}

func newLogger(out io.Writer) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      out,
		AddSource:   config.BoolEnv("LOG_SOURCE", false),
		ServiceName: "mediarelay",
	})
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mediarelay", Version)
	},
}
