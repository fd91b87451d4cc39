package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bryanchriswhite/CaptureKit/internal/config"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CaptureKit configuration",
	Long:  `View and manage CaptureKit configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current CaptureKit configuration.`,
	Example: `  # Show configuration as YAML (default)
  capturekit config show

  # Show configuration as JSON
  capturekit config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Keys: server_port, log_level, capture.fps, capture.color_format,
capture.minimum_update_interval, output.dir, output.format, output.max_frames`,
	Example: `  # Set server port
  capturekit config set server_port 9090

  # Deliver BGRA frames
  capturekit config set capture.color_format bgra8`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configTargetCmd = &cobra.Command{
	Use:   "target",
	Short: "Set or clear the default capture target",
	Example: `  # Capture the second monitor by default
  capturekit config target --monitor 1

  # Go back to the primary monitor
  capturekit config target --clear`,
	RunE: runConfigTarget,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var (
	formatFlag  string
	clearTarget bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configTargetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
	addTargetFlags(configTargetCmd)
	configTargetCmd.Flags().BoolVar(&clearTarget, "clear", false, "remove the configured target")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		return printJSON(os.Stdout, cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// applySetting assigns one KEY VALUE pair to cfg
func applySetting(cfg *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "server_port":
		cfg.ServerPort, err = atoi()
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = value
		default:
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
	case "capture.fps":
		cfg.Capture.FPS, err = atoi()
	case "capture.color_format":
		cfg.Capture.ColorFormat = value
	case "capture.minimum_update_interval":
		cfg.Capture.MinimumUpdateInterval = value
	case "output.dir":
		cfg.Output.Dir = value
	case "output.format":
		cfg.Output.Format = value
	case "output.max_frames":
		cfg.Output.MaxFrames, err = atoi()
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if err := applySetting(cfg, key, value); err != nil {
		return err
	}
	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigTarget(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var fields target.Fields
	if !clearTarget {
		if fields, err = targetFields(cmd, configMgr.Get().Target); err != nil {
			return err
		}
	}
	if err := configMgr.SetTarget(fields); err != nil {
		return err
	}

	spec, _ := target.Validate(fields)
	fmt.Printf("Default target: %s\n", spec)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}
