package site

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory loads site profiles from YAML files in a directory.
// Files must have .yaml or .yml extension; broken files are skipped.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]Profile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("site profile directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read site profile dir: %w", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read site profile", "path", path, "err", err)
			continue
		}

		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			logger.Warn("cannot parse site profile", "path", path, "err", err)
			continue
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		for i := range p.Rules {
			if p.Rules[i].Name == "" {
				p.Rules[i].Name = fmt.Sprintf("rule-%d", i+1)
			}
		}
		if err := p.Validate(); err != nil {
			logger.Warn("invalid site profile", "path", path, "err", err)
			continue
		}

		logger.Info("loaded site profile", "name", p.Name, "path", path)
		profiles = append(profiles, p)
	}

	return profiles, nil
}

// LoadRegistry returns the built-in profiles plus any found in dir.
func LoadRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	if dir == "" {
		return reg, nil
	}
	profiles, err := LoadFromDirectory(dir, logger)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		reg.Register(p)
	}
	return reg, nil
}
