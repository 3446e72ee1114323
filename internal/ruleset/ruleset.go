// Package ruleset loads named validator lists from YAML files. A rule
// set resolves to the validator names embedded into a dispatch
// request; the validators themselves run inside the remote workflow.
package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet names the validators a validation run should apply.
type RuleSet struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Validators  []string `yaml:"validators"`
}

// Validate checks the rule set is usable.
func (r *RuleSet) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule set name is required")
	}
	if len(r.Validators) == 0 {
		return fmt.Errorf("rule set %s has no validators", r.Name)
	}
	for _, v := range r.Validators {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("rule set %s contains an empty validator name", r.Name)
		}
	}
	return nil
}

// Load reads a single rule set file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadDir reads every .yml/.yaml file in dir, keyed by rule set name.
// A missing directory yields an empty map, not an error.
func LoadDir(dir string) (map[string]*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*RuleSet{}, nil
		}
		return nil, err
	}

	sets := make(map[string]*RuleSet)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		rs, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := sets[rs.Name]; dup {
			return nil, fmt.Errorf("duplicate rule set name %q", rs.Name)
		}
		sets[rs.Name] = rs
	}
	return sets, nil
}
