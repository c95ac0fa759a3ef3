package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify fractal configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/fractal/config.yaml
Project-specific overrides can be placed in .fractal.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			return displayConfigKey(cfg, args[0])
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	settings := config.Settings(cfg)
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, displayValue(k, settings[k]))
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) error {
	value, err := config.Get(cfg, key)
	if err != nil {
		return err
	}
	fmt.Println(displayValue(key, value))
	return nil
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	updated, err := config.Set(cfg, key, value)
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.GetUserConfigPath()
	}
	if err := config.SaveTo(updated, path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Saved %s\n", path)
	fmt.Printf("Set %s = %s\n", key, displayValue(key, value))
	return nil
}

func displayValue(key string, value any) string {
	s := fmt.Sprint(value)
	if key == "anthropic.api_key" {
		if s == "" {
			return "(not set)"
		}
		return config.MaskAPIKey(s)
	}
	return s
}
