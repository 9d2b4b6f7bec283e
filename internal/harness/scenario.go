package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/merge"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// KB is the path of a knowledge base document (.json, .yaml or .cue).
	// Relative paths are resolved against the scenario file location.
	KB string `yaml:"kb,omitempty"`

	// Facts and Rules are inline additions in document form. They are
	// loaded after KB.
	Facts []any `yaml:"facts,omitempty"`
	Rules []any `yaml:"rules,omitempty"`

	// MaxIterations overrides the engine default when positive.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// MergeWith is a second knowledge base merged into the first before
	// the run, using Strategy.
	MergeWith   string    `yaml:"merge_with,omitempty"`
	Strategy    string    `yaml:"strategy,omitempty"`
	Weights     []float64 `yaml:"weights,omitempty"`
	Threshold   *float64  `yaml:"threshold,omitempty"`
	AutoResolve bool      `yaml:"auto_resolve,omitempty"`

	// Assertions validate the run outcome and the final fact set.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the final fact set or the run outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fact_degree": fact pred(args) exists with Degree
	// - "fact_absent": no fact matches pred(args)
	// - "fact_count": Count facts with Pred (all facts if Pred is empty)
	// - "converged": the run converged
	// - "non_convergent": the run hit its iteration cap
	// - "conflict_count": the smart merge reported Count conflicts
	Type string `yaml:"type"`

	Pred string `yaml:"pred,omitempty"`

	// Args may contain variables, which match any argument.
	Args []any `yaml:"args,omitempty"`

	Degree *float64 `yaml:"degree,omitempty"`

	// Tolerance is the allowed degree difference (default 1e-6).
	Tolerance float64 `yaml:"tolerance,omitempty"`

	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFactDegree    = "fact_degree"
	AssertFactAbsent    = "fact_absent"
	AssertFactCount     = "fact_count"
	AssertConverged     = "converged"
	AssertNonConvergent = "non_convergent"
	AssertConflictCount = "conflict_count"
)

// DefaultTolerance is used by fact_degree assertions without a tolerance.
const DefaultTolerance = 1e-6

// LoadScenario reads and parses a scenario YAML file. Paths inside the
// scenario are resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving kb and merge_with paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML and validates it.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths before validation so existence checks use them.
	scenario.KB = resolvePath(basePath, scenario.KB)
	scenario.MergeWith = resolvePath(basePath, scenario.MergeWith)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) || basePath == "" {
		return p
	}
	return filepath.Join(basePath, p)
}

// inlineDocument decodes the inline facts and rules.
func (s *Scenario) inlineDocument() (ir.Document, error) {
	if len(s.Facts) == 0 && len(s.Rules) == 0 {
		return ir.Document{}, nil
	}
	raw := map[string]any{}
	if len(s.Facts) > 0 {
		raw["facts"] = s.Facts
	}
	if len(s.Rules) > 0 {
		raw["rules"] = s.Rules
	}
	return ir.DecodeDocument(raw)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.KB == "" && len(s.Facts) == 0 && len(s.Rules) == 0 {
		return fmt.Errorf("kb or inline facts/rules are required")
	}

	if s.KB != "" {
		if _, err := os.Stat(s.KB); os.IsNotExist(err) {
			return fmt.Errorf("kb file not found: %s", s.KB)
		}
	}

	if _, err := s.inlineDocument(); err != nil {
		return fmt.Errorf("inline knowledge base: %w", err)
	}

	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}

	if err := validateMerge(s); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateMerge(s *Scenario) error {
	if s.MergeWith == "" {
		if s.Strategy != "" {
			return fmt.Errorf("strategy requires merge_with")
		}
		return nil
	}
	if _, err := os.Stat(s.MergeWith); os.IsNotExist(err) {
		return fmt.Errorf("merge_with file not found: %s", s.MergeWith)
	}
	if s.Strategy == "" {
		return fmt.Errorf("merge_with requires strategy")
	}
	if _, err := merge.ParseStrategy(s.Strategy); err != nil {
		return err
	}
	if len(s.Weights) != 0 && len(s.Weights) != 2 {
		return fmt.Errorf("weights must have exactly two values")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	for j, arg := range a.Args {
		if _, err := ir.AtomFromAny(arg); err != nil {
			return fmt.Errorf("assertions[%d].args[%d]: %w", index, j, err)
		}
	}

	switch a.Type {
	case AssertFactDegree:
		if a.Pred == "" {
			return fmt.Errorf("assertions[%d]: pred is required for fact_degree", index)
		}
		if a.Degree == nil {
			return fmt.Errorf("assertions[%d]: degree is required for fact_degree", index)
		}
		if !ir.ValidDegree(*a.Degree) {
			return fmt.Errorf("assertions[%d]: degree must be in [0, 1]", index)
		}
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
		}
	case AssertFactAbsent:
		if a.Pred == "" {
			return fmt.Errorf("assertions[%d]: pred is required for fact_absent", index)
		}
	case AssertFactCount, AssertConflictCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertConverged, AssertNonConvergent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
