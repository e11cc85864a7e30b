// Package manifest handles foundry.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a foundry.toml project configuration.
type Manifest struct {
	Execution Execution `toml:"execution"`
	Journal   Journal   `toml:"journal"`

	// Dir is the directory containing the foundry.toml file (set at load time).
	Dir string `toml:"-"`
}

// Execution configures how compiled programs are run.
type Execution struct {
	Entrypoint  string `toml:"entrypoint"`
	StrictHints bool   `toml:"strict-hints"`
	ProgramDir  string `toml:"program-dir"`
}

// Journal configures the SQLite run journal.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns a manifest with the standard defaults, rooted at dir.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Execution.Entrypoint == "" {
		m.Execution.Entrypoint = "main"
	}
	if m.Execution.ProgramDir == "" {
		m.Execution.ProgramDir = "build"
	}
	if m.Journal.Path == "" {
		m.Journal.Path = filepath.Join(".foundry", "runs.db")
	}
}

// Load parses a foundry.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "foundry.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// LoadOrDefault loads foundry.toml from dir if present, or returns the
// default manifest when the file does not exist.
func LoadOrDefault(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "foundry.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
		}
		return Default(abs), nil
	}
	return Load(dir)
}

// FindAndLoad walks up from startDir to find a foundry.toml file, then
// loads and returns the manifest. Returns the defaults rooted at startDir
// if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for cur := dir; ; {
		path := filepath.Join(cur, "foundry.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(cur)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached root
			return Default(dir), nil
		}
		cur = parent
	}
}

// ProgramDirPath returns the absolute path of the configured program directory.
func (m *Manifest) ProgramDirPath() string {
	return filepath.Join(m.Dir, m.Execution.ProgramDir)
}

// JournalPath returns the absolute path of the journal database.
func (m *Manifest) JournalPath() string {
	if filepath.IsAbs(m.Journal.Path) {
		return m.Journal.Path
	}
	return filepath.Join(m.Dir, m.Journal.Path)
}
