// Package config handles dexpatch.toml session configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
)

const FileName = "dexpatch.toml"

// Config represents a dexpatch.toml file.
type Config struct {
	Session Session `toml:"session"`
	Patches Patches `toml:"patches"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the file (set at load time). Relative
	// paths in the file are resolved against it.
	Dir string `toml:"-"`
}

type Session struct {
	Input   string `toml:"input"`
	Output  string `toml:"output"`
	Package string `toml:"package"`
	// Truncate defaults to true.
	Truncate *bool `toml:"truncate"`
}

// Patches selects which patches run. Include and Exclude name built-in
// patches; Files are globs of YAML patch definitions.
type Patches struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
	Files   []string `toml:"files"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses dexpatch.toml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir looking for dexpatch.toml. It returns
// Default() when none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Session.Truncate == nil {
		t := true
		c.Session.Truncate = &t
	}
}

func (c *Config) Truncate() bool {
	return c.Session.Truncate == nil || *c.Session.Truncate
}

// Path resolves p against the configuration directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// PatchFiles returns the patch file globs resolved against Dir.
func (c *Config) PatchFiles() []string {
	out := make([]string, len(c.Patches.Files))
	for i, f := range c.Patches.Files {
		out[i] = c.Path(f)
	}
	return out
}

// Selected reports whether the built-in patch name should run.
func (p Patches) Selected(name string) bool {
	if slices.Contains(p.Exclude, name) {
		return false
	}
	return len(p.Include) == 0 || slices.Contains(p.Include, name)
}
