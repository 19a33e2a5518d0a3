package slotwatch

import (
	"github.com/hazyhaar/slotwatch/internal/config"
)

// Config is the top-level slotwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// ScheduleConfig controls when runs happen.
type ScheduleConfig = config.ScheduleConfig

// RenderConfig controls the kiosk page.
type RenderConfig = config.RenderConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ErrConfigNotExist is returned by LoadConfigFile when the file is missing.
var ErrConfigNotExist = config.ErrNotExist

// DefaultConfigPath is where the CLI looks for the configuration.
const DefaultConfigPath = config.DefaultPath

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// WriteDefaultConfig creates path with the default configuration.
func WriteDefaultConfig(path string) error { return config.WriteDefault(path) }
