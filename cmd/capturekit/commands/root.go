package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/CaptureKit/internal/config"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "capturekit",
		Short: "CaptureKit - capture a window or monitor as a stream of frames",
		Long: `CaptureKit captures a single top-level window or a whole monitor and
delivers its contents as an ordered stream of frames.

A target is chosen by exactly one of:
  • a window handle (X11 window id)
  • a monitor index (0 is the primary monitor and the default)
  • a window title substring, matched case-insensitively

Frames can be saved as image files or served as an MJPEG stream over HTTP.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/capturekit/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8090)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON instead of human-readable text")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
	viper.SetEnvPrefix("capturekit")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies the global flag overrides.
// Overrides apply to this run only and are not saved.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	if port := viper.GetInt("server_port"); port > 0 {
		cfg.ServerPort = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}

	logger.Init(cfg.LogLevel, !viper.GetBool("log_json"))
	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	return configMgr, cfg, nil
}
