// Package config loads the application and scenario definitions driving a
// benchmark batch from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/voicebench/voicebench/pkg/bench"
)

// Application describes one voice-agent deployment under test.
type Application struct {
	// Name identifies the application in results and reports.
	Name string `yaml:"name"`
	// URL is the page the run navigates to. The {{resource}} placeholder is
	// replaced with the provisioned resource identifier.
	URL string `yaml:"url"`
	// Preamble runs before every scenario's steps, typically to dismiss
	// consent dialogs or open the agent widget.
	Preamble []bench.StepSpec `yaml:"preamble,omitempty"`
}

// Scenario is one named conversation script.
type Scenario struct {
	Name  string           `yaml:"name"`
	Steps []bench.StepSpec `yaml:"steps"`
}

// File is the root of one configuration file.
type File struct {
	Applications []Application `yaml:"applications"`
	Scenarios    []Scenario    `yaml:"scenarios"`
}

// Config holds the loaded and validated configuration.
type Config struct {
	Applications []Application
	Scenarios    []Scenario

	// dir is the config file's directory; relative step file paths resolve
	// against it.
	dir string
}

// Load reads and validates a configuration file. Every step of every
// application and scenario is compiled here, so field errors surface before
// any run begins.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Applications: f.Applications,
		Scenarios:    f.Scenarios,
		dir:          filepath.Dir(path),
	}

	seen := make(map[string]bool)
	for i, app := range cfg.Applications {
		if app.Name == "" {
			return nil, fmt.Errorf("application %d has no name", i)
		}
		if app.URL == "" {
			return nil, fmt.Errorf("application %q has no url", app.Name)
		}
		if seen["app:"+app.Name] {
			return nil, fmt.Errorf("duplicate application name %q", app.Name)
		}
		seen["app:"+app.Name] = true
		if _, err := cfg.compile(app.Preamble); err != nil {
			return nil, fmt.Errorf("application %q preamble: %w", app.Name, err)
		}
	}
	for i, sc := range cfg.Scenarios {
		if sc.Name == "" {
			return nil, fmt.Errorf("scenario %d has no name", i)
		}
		if seen["scenario:"+sc.Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		seen["scenario:"+sc.Name] = true
		if _, err := cfg.compile(sc.Steps); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}

	if len(cfg.Applications) == 0 {
		return nil, fmt.Errorf("no applications defined")
	}
	if len(cfg.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios defined")
	}
	return cfg, nil
}

// compile resolves file paths then compiles the specs into step variants.
func (c *Config) compile(specs []bench.StepSpec) ([]bench.Step, error) {
	resolved := make([]bench.StepSpec, len(specs))
	copy(resolved, specs)
	for i := range resolved {
		if resolved[i].File != "" && !filepath.IsAbs(resolved[i].File) {
			resolved[i].File = filepath.Join(c.dir, resolved[i].File)
		}
	}
	return bench.CompileSteps(resolved)
}

// Combinations expands every application against every scenario in input
// order, concatenating the application preamble ahead of the scenario steps.
func (c *Config) Combinations() ([]bench.Combination, error) {
	combos := make([]bench.Combination, 0, len(c.Applications)*len(c.Scenarios))
	for _, app := range c.Applications {
		preamble, err := c.compile(app.Preamble)
		if err != nil {
			return nil, fmt.Errorf("application %q preamble: %w", app.Name, err)
		}
		for _, sc := range c.Scenarios {
			steps, err := c.compile(sc.Steps)
			if err != nil {
				return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			combined := make([]bench.Step, 0, len(preamble)+len(steps))
			combined = append(combined, preamble...)
			combined = append(combined, steps...)
			combos = append(combos, bench.Combination{
				App:      app.Name,
				Scenario: sc.Name,
				URL:      app.URL,
				Steps:    combined,
			})
		}
	}
	return combos, nil
}
