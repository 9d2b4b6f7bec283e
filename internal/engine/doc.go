// Package engine implements the fuzzy forward-chaining inference engine.
//
// An Engine owns a fact store and an ordered rule list. Run repeats passes
// over the rules until a pass produces no new firing (Converged) or the
// iteration cap is reached (NonConvergent).
//
// PASS STRUCTURE:
//
//  1. Rules are stably sorted by priority, highest first; ties keep
//     insertion order.
//  2. For each rule, every binding satisfying its conditions is computed
//     against the store as it is at that moment.
//  3. Each binding is keyed by (stable rule index, binding hash). Keys
//     already in the firing history are skipped; new keys are recorded
//     and the rule's actions are applied immediately, so later rules in
//     the same pass observe the writes.
//
// The firing history spans every Run on the engine until Clear. It is what
// makes a full re-scan loop terminate for any rule set with a finite
// binding space; rules that synthesize fresh argument values can still
// exhaust the iteration cap.
//
// DETERMINISM:
//
// Given identical insertion order of facts and rules, a run produces the
// same firing sequence. Fact iteration follows store insertion order and
// no step depends on map iteration order.
//
// ERRORS:
//
// Evaluation errors (unknown operator, unbound variable in a degree
// expression, unbound variable in an action template) abort only the
// condition match or action involved and are logged. Non-convergence
// returns an *InferenceError and keeps every fact derived so far.
//
// The engine is single-threaded. Run blocks until it finishes and has no
// cancellation primitive; callers bound it with WithMaxIterations.
package engine
