package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/ir"
)

// Scenario is a scripted sequence of edits.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Config sets the timeline parameters.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioConfig mirrors engine.Config with YAML-friendly types.
type ScenarioConfig struct {
	LayerHeight int `yaml:"layer_height,omitempty"`

	// Playhead is a Go duration string such as "4s".
	Playhead string `yaml:"playhead,omitempty"`
}

// Step is one edit record. Durations may be written as Go duration
// strings; they are passed to the engine as-is.
type Step struct {
	Op     string         `yaml:"op"`
	Args   map[string]any `yaml:"args"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// Expect checks the outcome of one step.
type Expect struct {
	// Error is the expected rejection code, e.g. INVALID_SPLIT_POINT. An
	// empty Error expects success.
	Error string `yaml:"error,omitempty"`

	// Warnings are the expected warning codes, in order.
	Warnings []string `yaml:"warnings,omitempty"`

	// Stack maps track ids to the expected snapshot stack after the step.
	Stack map[string][]string `yaml:"stack,omitempty"`

	// Version is the expected snapshot version after the step.
	Version *int `yaml:"version,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Track string `yaml:"track,omitempty"`

	// At is a Go duration string (stack_at, keyframe).
	At string `yaml:"at,omitempty"`

	// Stack is the expected bottom-to-top element order (stack_at, snapshot).
	Stack []string `yaml:"stack,omitempty"`

	Element string `yaml:"element,omitempty"`

	// Fields are expected element attributes (element): track, kind,
	// start, duration, in_point, priority, active, expandable, effect,
	// asset.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Property and Value describe an animated property (keyframe). Value
	// is a decimal string.
	Property string `yaml:"property,omitempty"`
	Value    string `yaml:"value,omitempty"`

	// Op and Count check how often an op was applied (op_count).
	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStackAt  = "stack_at"
	AssertSnapshot = "snapshot"
	AssertElement  = "element"
	AssertKeyframe = "keyframe"
	AssertMirror   = "mirror"
	AssertOpCount  = "op_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if _, err := s.Config.Engine(engine.Config{}); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	known := make(map[string]bool, len(ir.KnownOps))
	for _, op := range ir.KnownOps {
		known[string(op)] = true
	}
	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("step %d: op is required", i)
		}
		if !known[step.Op] {
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStackAt:
		if a.Track == "" || a.At == "" {
			return fmt.Errorf("track and at are required")
		}
		if _, err := time.ParseDuration(a.At); err != nil {
			return err
		}
	case AssertSnapshot:
		if a.Track == "" {
			return fmt.Errorf("track is required")
		}
	case AssertElement:
		if a.Element == "" || len(a.Fields) == 0 {
			return fmt.Errorf("element and fields are required")
		}
	case AssertKeyframe:
		if a.Element == "" || a.Property == "" || a.At == "" || a.Value == "" {
			return fmt.Errorf("element, property, at and value are required")
		}
		if _, err := time.ParseDuration(a.At); err != nil {
			return err
		}
	case AssertMirror:
	case AssertOpCount:
		if a.Op == "" {
			return fmt.Errorf("op is required")
		}
	default:
		return fmt.Errorf("unknown assertion type")
	}
	return nil
}

// Engine applies the scenario's overrides to base.
func (c ScenarioConfig) Engine(base engine.Config) (engine.Config, error) {
	cfg := base
	if c.LayerHeight != 0 {
		cfg.LayerHeight = c.LayerHeight
	}
	if c.Playhead != "" {
		d, err := time.ParseDuration(c.Playhead)
		if err != nil {
			return engine.Config{}, fmt.Errorf("playhead: %w", err)
		}
		if d < 0 {
			return engine.Config{}, fmt.Errorf("playhead %s must not be negative", d)
		}
		cfg.Playhead = d
	}
	if cfg.LayerHeight < 0 {
		return engine.Config{}, fmt.Errorf("layer_height %d must be positive", cfg.LayerHeight)
	}
	return cfg, nil
}
