// Package config implements A1: loading and defaulting the project manifest
// (smelt.yml) described in spec.md §6.2, including project-root discovery
// and ${ENV_VAR} expansion in string fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/smeltsql/smelt/backend"
	"github.com/smeltsql/smelt/metadata"
)

// ManifestName is the conventional project manifest filename.
const ManifestName = "smelt.yml"

// DefaultModelPath is used when a project declares no model_paths.
const DefaultModelPath = "models"

// ErrProjectRootNotFound means no ancestor directory (within the search
// depth) contains a manifest or a models/ directory.
var ErrProjectRootNotFound = errors.New("config: project root not found")

// maxAncestorSearch bounds how far FindProjectRoot walks up the tree.
const maxAncestorSearch = 5

// ModelOverride is a per-model entry under the `models:` map, overriding the
// project default materialization or supplying incremental settings that a
// model's own frontmatter does not set.
type ModelOverride struct {
	Materialization backend.Materialization
	Incremental     metadata.Incremental
}

// Project is the parsed, defaulted, environment-expanded project manifest.
type Project struct {
	Name                   string
	Version                int
	ModelPaths             []string
	Targets                map[string]backend.Target
	DefaultMaterialization backend.Materialization
	Models                 map[string]ModelOverride
	ExternalSources        []string
}

// rawTarget mirrors backend.Target's YAML shape; kept separate so yaml tags
// live with the config package rather than the backend package.
type rawTarget struct {
	Type       string `yaml:"type"`
	Database   string `yaml:"database"`
	Schema     string `yaml:"schema"`
	ConnectURL string `yaml:"connect_url"`
	Catalog    string `yaml:"catalog"`
}

type rawIncremental struct {
	Enabled         bool   `yaml:"enabled"`
	EventTimeColumn string `yaml:"event_time_column"`
	PartitionColumn string `yaml:"partition_column"`
}

type rawModelOverride struct {
	Materialization string          `yaml:"materialization"`
	Incremental     *rawIncremental `yaml:"incremental"`
}

type rawProject struct {
	Name                   string                      `yaml:"name"`
	Version                int                         `yaml:"version"`
	ModelPaths             []string                    `yaml:"model_paths"`
	Targets                map[string]rawTarget        `yaml:"targets"`
	DefaultMaterialization string                      `yaml:"default_materialization"`
	Models                 map[string]rawModelOverride `yaml:"models"`
	ExternalSources        []string                    `yaml:"external_sources"`
}

// LoadConfig reads and defaults the manifest at path.
func LoadConfig(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw rawProject
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expandRawEnvVars(&raw)
	return toProject(raw), nil
}

func toProject(raw rawProject) *Project {
	p := &Project{
		Name:                   raw.Name,
		Version:                raw.Version,
		ModelPaths:             raw.ModelPaths,
		DefaultMaterialization: backend.Materialization(raw.DefaultMaterialization),
		Targets:                make(map[string]backend.Target, len(raw.Targets)),
		Models:                 make(map[string]ModelOverride, len(raw.Models)),
		ExternalSources:        raw.ExternalSources,
	}
	if len(p.ModelPaths) == 0 {
		p.ModelPaths = []string{DefaultModelPath}
	}
	if p.DefaultMaterialization == "" {
		p.DefaultMaterialization = backend.MaterializationView
	}

	for name, t := range raw.Targets {
		p.Targets[name] = backend.Target{
			Type:       t.Type,
			Database:   t.Database,
			Schema:     t.Schema,
			ConnectURL: t.ConnectURL,
			Catalog:    t.Catalog,
		}
	}

	for name, m := range raw.Models {
		override := ModelOverride{
			Materialization: backend.Materialization(m.Materialization),
		}
		if m.Incremental != nil {
			override.Incremental = metadata.Incremental{
				Enabled:         m.Incremental.Enabled,
				EventTimeColumn: m.Incremental.EventTimeColumn,
				PartitionColumn: m.Incremental.PartitionColumn,
			}
		}
		p.Models[name] = override
	}

	return p
}

var (
	envBraceRe = regexp.MustCompile(`\$\{([^}]+)\}`)
	envBareRe  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands ${VAR} and $VAR references against the process
// environment, leaving unset variables as empty strings.
func expandEnvVars(s string) string {
	s = envBraceRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
	s = envBareRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[1:])
	})
	return s
}

// expandRawEnvVars expands every string-typed manifest field in place.
func expandRawEnvVars(raw *rawProject) {
	raw.Name = expandEnvVars(raw.Name)
	for i, p := range raw.ModelPaths {
		raw.ModelPaths[i] = expandEnvVars(p)
	}
	for name, t := range raw.Targets {
		t.Type = expandEnvVars(t.Type)
		t.Database = expandEnvVars(t.Database)
		t.Schema = expandEnvVars(t.Schema)
		t.ConnectURL = expandEnvVars(t.ConnectURL)
		t.Catalog = expandEnvVars(t.Catalog)
		raw.Targets[name] = t
	}
	for i, s := range raw.ExternalSources {
		raw.ExternalSources[i] = expandEnvVars(s)
	}
}

// FindProjectRoot walks up from startDir (inclusive), looking for a manifest
// file or a models/ directory, per spec.md §6.2. It searches at most
// maxAncestorSearch ancestor levels above startDir before giving up.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", startDir, err)
	}

	for depth := 0; depth <= maxAncestorSearch; depth++ {
		if isProjectRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%w: searched %s and %d ancestor(s)", ErrProjectRootNotFound, startDir, maxAncestorSearch)
}

func isProjectRoot(dir string) bool {
	if info, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil && !info.IsDir() {
		return true
	}
	if info, err := os.Stat(filepath.Join(dir, DefaultModelPath)); err == nil && info.IsDir() {
		return true
	}
	return false
}
