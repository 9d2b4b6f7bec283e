package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist or
// a directory holds no scenario files.
type ScenarioNotFoundError struct {
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files found at %q (resolved to: %s)", e.Path, e.ResolvedPath)
}

// DiscoverScenarios returns the scenario files at path. A file is returned
// as is; a directory is walked for .yaml and .yml files, sorted by path so
// suites run in a stable order.
func DiscoverScenarios(path string) ([]string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path, ResolvedPath: resolved}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{resolved}, nil
	}

	var paths []string
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	if len(paths) == 0 {
		return nil, &ScenarioNotFoundError{Path: path, ResolvedPath: resolved}
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Outcomes []ScenarioOutcome `json:"outcomes"`
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Name   string  `json:"name,omitempty"`
	Path   string  `json:"path"`
	Pass   bool    `json:"pass"`
	Error  string  `json:"error,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// Failures returns the outcomes that did not pass.
func (r *SuiteResult) Failures() []ScenarioOutcome {
	var out []ScenarioOutcome
	for _, o := range r.Outcomes {
		if !o.Pass {
			out = append(out, o)
		}
	}
	return out
}

// RunSuite loads and runs every scenario in paths.
//
// For each path:
//  1. Load the scenario (paths resolved against its directory)
//  2. Run it with Run
//  3. Record pass, assertion failures or load/run errors
//
// A broken scenario is a failed outcome, not an error. The only error is
// ctx being cancelled between scenarios.
func RunSuite(ctx context.Context, paths []string) (*SuiteResult, error) {
	result := &SuiteResult{Outcomes: []ScenarioOutcome{}}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++
		outcome := runOne(path)
		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}

func runOne(path string) ScenarioOutcome {
	outcome := ScenarioOutcome{Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to load scenario: %v", err)
		return outcome
	}
	outcome.Name = scenario.Name

	res, err := Run(scenario)
	if err != nil {
		outcome.Error = fmt.Sprintf("scenario execution failed: %v", err)
		return outcome
	}
	outcome.Result = res
	if !res.Pass {
		outcome.Error = fmt.Sprintf("scenario assertions failed: %s", strings.Join(res.Errors, "\n"))
		return outcome
	}

	outcome.Pass = true
	return outcome
}
