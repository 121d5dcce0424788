// Package manifest handles squirrel.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "squirrel.toml"

// Manifest represents a squirrel.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	VM           VMConfig              `toml:"vm"`
	Stdlib       Stdlib                `toml:"stdlib"`
	Cache        Cache                 `toml:"cache"`
	Log          Log                   `toml:"log"`
	Server       Server                `toml:"server"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the squirrel.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Entry   string   `toml:"entry"`
	Paths   []string `toml:"paths"` // script search directories for dofile
}

// VMConfig holds interpreter limits. Zero values mean "use the VM default".
type VMConfig struct {
	HeapLimit     int64 `toml:"heap-limit"`
	StackSize     int   `toml:"stack-size"`
	MaxCallDepth  int   `toml:"max-call-depth"`
	CheckInterval int   `toml:"check-interval"`
	GCThreshold   int   `toml:"gc-threshold"`
}

// Stdlib selects the standard library modules opened in each VM.
type Stdlib struct {
	Modules []string `toml:"modules"`
}

// Cache configures the compiled chunk cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the eval service.
type Server struct {
	Address string `toml:"address"`
}

// Dependency represents a script library used by the project.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
	Name string `toml:"name"` // overrides the module name
}

// AllModules lists every standard library module.
var AllModules = []string{"base", "string", "math", "io", "blob", "system"}

// Default returns a manifest with every default applied, for runs
// without a squirrel.toml.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a squirrel.toml file from the given directory and
// validates it against the schema.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Stdlib.Modules) == 0 {
		m.Stdlib.Modules = append([]string(nil), AllModules...)
	}
	if len(m.Project.Paths) == 0 {
		m.Project.Paths = []string{"."}
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".squirrel", "cache.db")
	}
	if m.Server.Address == "" {
		m.Server.Address = "localhost:7330"
	}
}

// FindAndLoad walks up from startDir to find a squirrel.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// SearchPaths returns absolute script search directories: the project's
// own paths first, then every resolved dependency.
func (m *Manifest) SearchPaths(deps []ResolvedDep) []string {
	var paths []string
	for _, p := range m.Project.Paths {
		paths = append(paths, m.resolve(p))
	}
	for _, d := range deps {
		paths = append(paths, d.LocalPath)
	}
	return paths
}

// CachePath returns the absolute chunk cache location.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// HasModule reports whether the named stdlib module is enabled.
func (m *Manifest) HasModule(name string) bool {
	for _, mod := range m.Stdlib.Modules {
		if mod == name {
			return true
		}
	}
	return false
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// DepsDir returns the path to the .squirrel/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".squirrel", "deps")
}

// LockFilePath returns the path to .squirrel/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".squirrel", "lock.toml")
}
