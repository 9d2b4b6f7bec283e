package engine

import (
	"log/slog"

	"github.com/roach88/fuzzyinfer/internal/degree"
	"github.com/roach88/fuzzyinfer/internal/ir"
)

// fire applies every action of entry under m and returns the firing record.
// A failing action is logged and skipped; the remaining actions still run.
func (e *Engine) fire(entry ruleEntry, m Match, hash string, iteration int) Firing {
	f := Firing{
		Seq:         e.clock.Next(),
		Iteration:   iteration,
		RuleIndex:   entry.index,
		RuleName:    entry.rule.Name,
		RuleHash:    entry.hash,
		Binding:     m.Binding,
		BindingHash: hash,
		Degree:      m.Degree,
	}

	attrs := []any{
		"session", e.session,
		"rule", entry.rule.DisplayName(),
		"index", entry.index,
		"binding", m.Binding.String(),
		"iteration", iteration,
		"seq", f.Seq,
	}
	if entry.rule.Name != "" {
		slog.Info("rule fired", attrs...)
	} else {
		slog.Debug("rule fired", attrs...)
	}

	for i, a := range entry.rule.Actions {
		eff, err := e.applyAction(a, m.Binding)
		if err != nil {
			slog.Warn("action skipped",
				"session", e.session,
				"rule", entry.rule.DisplayName(),
				"action", i,
				"kind", a.Kind.String(),
				"predicate", a.Fact.Predicate,
				"error", err,
			)
			continue
		}
		if eff.Changed && eff.Kind != ir.ActionRemove {
			e.provenance[eff.Fact.Key()] = Derivation{
				Kind:      eff.Kind,
				RuleIndex: entry.index,
				RuleName:  entry.rule.Name,
				Binding:   m.Binding.Clone(),
				Iteration: iteration,
				Seq:       f.Seq,
			}
		}
		f.Effects = append(f.Effects, eff)
	}
	return f
}

// applyAction substitutes b into a and writes the result to the store.
func (e *Engine) applyAction(a ir.Action, b ir.Binding) (Effect, error) {
	args, err := substitute(a.Fact.Args, b)
	if err != nil {
		return Effect{}, err
	}

	switch a.Kind {
	case ir.ActionAdd:
		d, err := degree.Eval(a.Fact.Degree, b)
		if err != nil {
			return Effect{}, err
		}
		fact := ir.Fact{Predicate: a.Fact.Predicate, Args: args, Degree: d}
		changed := e.facts.Upsert(fact)
		if changed {
			slog.Debug("fact raised", "session", e.session, "fact", fact.String())
		}
		return Effect{Kind: a.Kind, Fact: fact, Changed: changed}, nil

	case ir.ActionRemove:
		fact := ir.Fact{Predicate: a.Fact.Predicate, Args: args}
		if old, ok := e.facts.Get(fact.Predicate, args); ok {
			fact.Degree = old.Degree
		}
		removed := e.facts.Remove(fact.Predicate, args)
		if removed {
			delete(e.provenance, fact.Key())
			slog.Debug("fact removed", "session", e.session, "fact", fact.String())
		}
		return Effect{Kind: a.Kind, Fact: fact, Changed: removed}, nil

	case ir.ActionModify:
		d, err := degree.Eval(a.Fact.Degree, b)
		if err != nil {
			return Effect{}, err
		}
		fact := ir.Fact{Predicate: a.Fact.Predicate, Args: args, Degree: d}
		changed := e.facts.Modify(fact.Predicate, args, d)
		if changed {
			slog.Debug("fact modified", "session", e.session, "fact", fact.String())
		}
		return Effect{Kind: a.Kind, Fact: fact, Changed: changed}, nil

	default:
		return Effect{}, degree.NewUnknownOperatorError(a.Kind.String())
	}
}

// substitute replaces every variable in args with its bound value.
// An unbound variable is an UNBOUND_VARIABLE error.
func substitute(args []ir.Atom, b ir.Binding) ([]ir.Atom, error) {
	out := make([]ir.Atom, len(args))
	for i, a := range args {
		v, ok := b.Lookup(a)
		if !ok {
			name, _ := ir.VariableName(a)
			return nil, degree.NewUnboundVariableError(name)
		}
		out[i] = v
	}
	return out, nil
}
