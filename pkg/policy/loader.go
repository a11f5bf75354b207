package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk document format: a list of policy specs under
// a single top-level key.
type policyFile struct {
	Policies []Spec `yaml:"policies"`
}

// Loader reads policy files from a path and installs them into a store.
// The path may be a single YAML file or a directory of them.
type Loader struct {
	path   string
	store  *Store
	logger *slog.Logger
}

// NewLoader creates a loader over the given path and store.
func NewLoader(path string, store *Store, logger *slog.Logger) *Loader {
	return &Loader{path: path, store: store, logger: logger}
}

// Load reads every policy file under the path, compiles the full set and
// swaps it into the store. A malformed file or formula fails the whole
// load and leaves the previous set active.
func (l *Loader) Load() error {
	files, err := l.listFiles()
	if err != nil {
		return err
	}

	var specs []Spec
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %q: %w", file, err)
		}
		var doc policyFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %q: %w", file, err)
		}
		specs = append(specs, doc.Policies...)
	}

	if err := l.store.Replace(specs); err != nil {
		return err
	}
	l.logger.Info("policies loaded", "path", l.path, "count", len(specs))
	return nil
}

// listFiles resolves the path to the YAML files to read, in name order so
// loads are deterministic.
func (l *Loader) listFiles() ([]string, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", l.path, err)
	}
	if !info.IsDir() {
		return []string{l.path}, nil
	}

	entries, err := os.ReadDir(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", l.path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(l.path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
