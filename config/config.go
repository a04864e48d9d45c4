// Package config handles jcheck.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/dhamidi/jcheck/classfile"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "jcheck.toml"

// Config represents a jcheck.toml file.
type Config struct {
	ClassPath ClassPath `toml:"classpath"`
	Parse     Parse     `toml:"parse"`
	Verify    Verify    `toml:"verify"`
	Output    Output    `toml:"output"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the file; relative class path
	// entries are resolved against it.
	Dir string `toml:"-"`
}

type ClassPath struct {
	Entries []string `toml:"entries"`
}

type Parse struct {
	// MaxMajorVersion bounds the accepted class file versions.
	MaxMajorVersion uint16 `toml:"max-major-version"`
}

type Verify struct {
	Enabled bool `toml:"enabled"`
	Jobs    int  `toml:"jobs"`
}

type Output struct {
	Format string `toml:"format"`
	Color  bool   `toml:"color"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used without a jcheck.toml.
func Default() *Config {
	return &Config{
		Parse:  Parse{MaxMajorVersion: classfile.Java8},
		Verify: Verify{Enabled: true, Jobs: runtime.NumCPU()},
		Output: Output{Format: "line", Color: true},
	}
}

// Load parses the configuration file at path. Settings missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown setting %s", path, undecoded[0])
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a jcheck.toml file. Without
// one it returns Default.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	if c.Parse.MaxMajorVersion < classfile.Java1_1 {
		return fmt.Errorf("max-major-version %d is below %d", c.Parse.MaxMajorVersion, classfile.Java1_1)
	}
	if c.Verify.Jobs < 1 {
		return fmt.Errorf("verify.jobs must be at least 1, got %d", c.Verify.Jobs)
	}
	switch c.Output.Format {
	case "json", "line", "cbor":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

// ClassPathEntries returns the class path with relative entries resolved
// against Dir.
func (c *Config) ClassPathEntries() []string {
	var paths []string
	for _, e := range c.ClassPath.Entries {
		if !filepath.IsAbs(e) && c.Dir != "" {
			e = filepath.Join(c.Dir, e)
		}
		paths = append(paths, e)
	}
	return paths
}

// ParserOptions returns the parser options the configuration selects.
func (c *Config) ParserOptions() []classfile.Option {
	return []classfile.Option{classfile.WithMaxMajorVersion(c.Parse.MaxMajorVersion)}
}
