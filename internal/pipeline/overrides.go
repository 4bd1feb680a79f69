package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Overrides is the optional YAML file layered on the built-in catalog:
//
//	steps:
//	  arxiv_search:
//	    command: ["python", "-u", "Controller/arxiv_search05.py"]
//	pipelines:
//	  weekly: [arxiv_search, paperList_remove_duplications]
type Overrides struct {
	Steps     map[string]StepOverride `yaml:"steps"`
	Pipelines map[string][]string     `yaml:"pipelines"`
}

// StepOverride replaces the command or output marker of a registered step.
// New steps cannot be declared.
type StepOverride struct {
	Command []string `yaml:"command"`
	Marker  *string  `yaml:"marker"`
}

// LoadOverrides reads a YAML overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines file: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse pipelines file %s: %w", path, err)
	}
	return &o, nil
}

// Apply validates and applies the overrides to r. Steps are applied before
// pipelines so a pipeline may use an overridden step.
func (o *Overrides) Apply(r *Registry) error {
	for _, name := range sortedKeys(o.Steps) {
		so := o.Steps[name]
		if err := r.overrideStep(name, so.Command, so.Marker); err != nil {
			return fmt.Errorf("steps.%s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(o.Pipelines) {
		if err := r.DefinePipeline(name, o.Pipelines[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
