// Package inventory loads the run manifest: the projects and Java
// classes the pipeline will process. Unit IDs are derived
// deterministically from project and class name so a resumed run maps
// back onto the same checkpoint rows.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/refinelab/refinery/pkg/models"
)

// unitNamespace seeds deterministic unit IDs. Changing it would orphan
// every existing checkpoint database.
var unitNamespace = uuid.MustParse("8f8c7e9a-41d2-4b7e-9c46-1a2b3c4d5e6f")

// Manifest is the parsed run manifest.
type Manifest struct {
	// Root is resolved relative paths against; defaults to the
	// manifest's own directory.
	Root     string    `yaml:"root"`
	Projects []Project `yaml:"projects"`
}

// Project is one subject program with its build artifact and the
// classes to generate tests for.
type Project struct {
	Name      string   `yaml:"name"`
	TargetJar string   `yaml:"target_jar"`
	SourceDir string   `yaml:"source_dir"`
	Classes   []string `yaml:"classes"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Root == "" {
		m.Root = filepath.Dir(path)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Projects) == 0 {
		return fmt.Errorf("no projects defined")
	}
	seen := make(map[string]bool)
	for i, p := range m.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate project %q", p.Name)
		}
		seen[p.Name] = true
		if p.TargetJar == "" {
			return fmt.Errorf("project %q: target_jar is required", p.Name)
		}
		if len(p.Classes) == 0 {
			return fmt.Errorf("project %q: no classes listed", p.Name)
		}
		classes := make(map[string]bool)
		for _, c := range p.Classes {
			if c == "" {
				return fmt.Errorf("project %q: empty class name", p.Name)
			}
			if classes[c] {
				return fmt.Errorf("project %q: duplicate class %q", p.Name, c)
			}
			classes[c] = true
		}
	}
	return nil
}

// UnitID returns the stable identifier for a project/class pair.
func UnitID(project, className string) string {
	return uuid.NewSHA1(unitNamespace, []byte(project+"/"+className)).String()
}

// Units expands the manifest into task units in manifest order. When
// limit > 0 at most limit units are returned.
func (m *Manifest) Units(limit int) []*models.TaskUnit {
	var units []*models.TaskUnit
	for _, p := range m.Projects {
		for _, c := range p.Classes {
			if limit > 0 && len(units) >= limit {
				return units
			}
			units = append(units, &models.TaskUnit{
				ID:           UnitID(p.Name, c),
				Project:      p.Name,
				ClassName:    c,
				TargetJar:    m.resolve(p.TargetJar),
				SourceDir:    m.resolve(p.SourceDir),
				CurrentPhase: models.PhaseBaseline,
				State:        models.UnitActive,
			})
		}
	}
	return units
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Root, path)
}
