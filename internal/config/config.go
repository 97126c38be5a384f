/*------------------------------------------------------------------
 *
 * Purpose:	On-disk defaults layered under the CLI flags: music
 *		directory, lamp line table override, and UDP control
 *		port. Optional -- a missing file yields Default().
 *
 *---------------------------------------------------------------*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gsebik/lampshow/internal/gpio"
)

// Config holds the process-wide defaults a song run is assembled
// from, before CLI flags override them.
type Config struct {
	MusicDir      string `yaml:"music_dir"`
	Verbose       bool   `yaml:"verbose"`
	UDPPort       int    `yaml:"udp_port"`
	EmulationFile string `yaml:"emulation_file"`
	LampLines     []uint `yaml:"lamp_lines"`
}

// DefaultMusicDir matches the original engine's MUSIC_BASE_DIR.
const DefaultMusicDir = "/home/linux/music/"

// DefaultUDPPort is the control listener's well-known port.
const DefaultUDPPort = 5005

// Default returns the built-in configuration used when no file is
// present.
func Default() Config {
	return Config{
		MusicDir: DefaultMusicDir,
		UDPPort:  DefaultUDPPort,
	}
}

// Load reads a YAML config file, falling back to Default() for any
// field it doesn't set. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var onDisk Config
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if onDisk.MusicDir != "" {
		cfg.MusicDir = onDisk.MusicDir
	}
	if onDisk.UDPPort != 0 {
		cfg.UDPPort = onDisk.UDPPort
	}
	if onDisk.EmulationFile != "" {
		cfg.EmulationFile = onDisk.EmulationFile
	}
	if len(onDisk.LampLines) > 0 {
		cfg.LampLines = onDisk.LampLines
	}
	cfg.Verbose = cfg.Verbose || onDisk.Verbose
	return cfg, nil
}

// LampLineTable returns the configured lamp line override if present
// and correctly sized, else the built-in default table.
func (c Config) LampLineTable() [gpio.LampCount]uint {
	if len(c.LampLines) != gpio.LampCount {
		return gpio.LampLines
	}
	var out [gpio.LampCount]uint
	copy(out[:], c.LampLines)
	return out
}
