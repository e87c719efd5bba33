// Package CF holds engine configuration: execution limits and logging
// verbosity, loadable from a TOML file.
package CF

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config bounds a single engine instance. Limits are enforced at program
// load time (resolution pass), never mid-execution.
type Config struct {
	// MaxRegisters caps the register count a program may declare.
	MaxRegisters int `toml:"max_registers"`
	// MaxCursors caps the cursor count a program may declare.
	MaxCursors int `toml:"max_cursors"`
	// MaxInstructions caps program length.
	MaxInstructions int `toml:"max_instructions"`
	// LogVerbosity follows commonlog conventions (-1 quiet .. 2 debug).
	LogVerbosity int `toml:"log_verbosity"`
}

// Default returns the limits used when no config file is given.
func Default() Config {
	return Config{
		MaxRegisters:    32768,
		MaxCursors:      1024,
		MaxInstructions: 1 << 20,
		LogVerbosity:    0,
	}
}

// Load reads a TOML config file. Missing keys keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects limits that would make every program unloadable.
func (c Config) Validate() error {
	if c.MaxRegisters < 1 {
		return fmt.Errorf("max_registers must be positive, got %d", c.MaxRegisters)
	}
	if c.MaxCursors < 1 {
		return fmt.Errorf("max_cursors must be positive, got %d", c.MaxCursors)
	}
	if c.MaxInstructions < 1 {
		return fmt.Errorf("max_instructions must be positive, got %d", c.MaxInstructions)
	}
	return nil
}
