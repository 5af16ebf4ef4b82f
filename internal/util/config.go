package util

import (
	"log/slog"

	"github.com/BurntSushi/toml"
)

// Configuration carries the settings shared by the CLI and the entry
// points. Build metadata comes from the linker; the rest merges the
// optional hexza.toml with command-line flags (flags win).
type Configuration struct {
	Version   string `toml:"-"`
	BuildDate string `toml:"-"`
	Commit    string `toml:"-"`

	Engine   string `toml:"engine"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// DefaultConfigFile is looked for in the working directory when no -config
// flag is given.
const DefaultConfigFile = "hexza.toml"

// LoadFile overlays settings from a TOML file onto c.
func (c *Configuration) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}
	slog.Debug("config file loaded", slog.String("path", path))
	return nil
}
