package engine

import "github.com/roach88/fuzzyinfer/internal/ir"

// Recorder observes inference runs. The journal package implements it to
// persist runs and firings; tests use it to capture firing sequences.
//
// Recorder errors never abort inference. The engine logs them and keeps
// going, since the journal is diagnostic and the run is not.
type Recorder interface {
	BeginRun(info RunInfo) error
	RecordFiring(f Firing) error
	EndRun(stats RunStats, runErr error) error
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	Session string
	// Run numbers runs within a session, starting at 1.
	Run           int
	MaxIterations int
	// HistorySize is the number of (rule, binding) pairs already fired in
	// earlier runs of the session. Those pairs will not fire again.
	HistorySize int
	// Input is the knowledge base before the run. When HistorySize is 0,
	// running it on a fresh engine reproduces the same firings.
	Input ir.Document
}

// Effect is the outcome of one action in a firing.
type Effect struct {
	Kind ir.ActionKind
	// Fact holds the substituted key and the degree written. Remove effects
	// carry the degree the fact had before deletion.
	Fact ir.Fact
	// Changed reports whether the store was modified.
	Changed bool
}

// Firing is one (rule, binding) pair applied during a run.
type Firing struct {
	Seq       int64
	Iteration int
	RuleIndex int
	RuleName  string
	// RuleHash is ir.RuleID of the rule text that fired.
	RuleHash    string
	Binding     ir.Binding
	BindingHash string
	// Degree is the effective degree of the condition match.
	Degree  float64
	Effects []Effect
}

// RunStats summarizes a finished run.
type RunStats struct {
	Session     string
	Run         int
	State       State
	Iterations  int
	Firings     int
	FactsBefore int
	FactsAfter  int
}

// FiringLog is an in-memory Recorder that keeps every firing.
type FiringLog struct {
	Runs    []RunInfo
	Firings []Firing
	Stats   []RunStats
}

// BeginRun implements Recorder.
func (l *FiringLog) BeginRun(info RunInfo) error {
	l.Runs = append(l.Runs, info)
	return nil
}

// RecordFiring implements Recorder.
func (l *FiringLog) RecordFiring(f Firing) error {
	l.Firings = append(l.Firings, f)
	return nil
}

// EndRun implements Recorder.
func (l *FiringLog) EndRun(stats RunStats, _ error) error {
	l.Stats = append(l.Stats, stats)
	return nil
}

type nopRecorder struct{}

func (nopRecorder) BeginRun(RunInfo) error       { return nil }
func (nopRecorder) RecordFiring(Firing) error    { return nil }
func (nopRecorder) EndRun(RunStats, error) error { return nil }
