// Package asmconfig loads and saves the assembler's own settings (output
// format, listing/map generation, layout-engine limits, inspector display),
// as opposed to anything about the program being assembled.
package asmconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds every assembler setting a user may want to persist between
// invocations, grouped the way the CLI flags are grouped.
type Config struct {
	// Assembler settings
	Assembler struct {
		DefaultBits    int    `toml:"default_bits"`
		DefaultOrg     string `toml:"default_org"`
		MaxPasses      int    `toml:"max_passes"`
		EnablePreproc  bool   `toml:"enable_preprocessor"`
	} `toml:"assembler"`

	// Output settings
	Output struct {
		Format        string `toml:"format"` // bin, com, hex
		GenerateMap   bool   `toml:"generate_map"`
		GenerateList  bool   `toml:"generate_listing"`
		ListingWidth  int    `toml:"listing_width"`
	} `toml:"output"`

	// Display settings (shared with the layout inspector)
	Display struct {
		ColorOutput  bool   `toml:"color_output"`
		BytesPerLine int    `toml:"bytes_per_line"`
		NumberFormat string `toml:"number_format"` // hex, dec, both
	} `toml:"display"`

	// Warnings settings
	Warnings struct {
		TreatAsErrors bool   `toml:"treat_as_errors"`
		Suppress      string `toml:"suppress"` // comma-separated warning codes
	} `toml:"warnings"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assembler.DefaultBits = 16
	cfg.Assembler.DefaultOrg = "0x0000"
	cfg.Assembler.MaxPasses = 50
	cfg.Assembler.EnablePreproc = true

	cfg.Output.Format = "bin"
	cfg.Output.GenerateMap = false
	cfg.Output.GenerateList = false
	cfg.Output.ListingWidth = 16

	cfg.Display.ColorOutput = true
	cfg.Display.BytesPerLine = 16
	cfg.Display.NumberFormat = "hex"

	cfg.Warnings.TreatAsErrors = false
	cfg.Warnings.Suppress = ""

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "nasm8086")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "nasm8086")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file. A missing file is
// not an error: it yields the default configuration.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
