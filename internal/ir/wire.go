package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
)

// FactRecord is the wire form of a fact: {pred, args, deg}.
type FactRecord struct {
	Pred string  `json:"pred" yaml:"pred"`
	Args []any   `json:"args" yaml:"args"`
	Deg  float64 `json:"deg" yaml:"deg"`
}

// ConditionNode is the wire form of a condition. Exactly one of the
// leaf fields (Pred), Or, And or Not is populated.
type ConditionNode struct {
	Pred    string          `json:"pred,omitempty" yaml:"pred,omitempty"`
	Args    []any           `json:"args,omitempty" yaml:"args,omitempty"`
	Deg     string          `json:"deg,omitempty" yaml:"deg,omitempty"`
	DegPred []any           `json:"deg-pred,omitempty" yaml:"deg-pred,omitempty"`
	Or      []ConditionNode `json:"or,omitempty" yaml:"or,omitempty"`
	And     []ConditionNode `json:"and,omitempty" yaml:"and,omitempty"`
	Not     *ConditionNode  `json:"not,omitempty" yaml:"not,omitempty"`
}

// TemplateRecord is the wire form of an action's fact template.
type TemplateRecord struct {
	Pred string `json:"pred" yaml:"pred"`
	Args []any  `json:"args" yaml:"args"`
	Deg  any    `json:"deg,omitempty" yaml:"deg,omitempty"`
}

// ActionNode is the wire form of an action: {action, fact}.
type ActionNode struct {
	Action string         `json:"action" yaml:"action"`
	Fact   TemplateRecord `json:"fact" yaml:"fact"`
}

// RuleRecord is the wire form of a rule.
type RuleRecord struct {
	Cond     []ConditionNode `json:"cond" yaml:"cond"`
	Actions  []ActionNode    `json:"actions" yaml:"actions"`
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
	Priority int             `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Document is a serialized knowledge base.
type Document struct {
	Facts []FactRecord `json:"facts" yaml:"facts"`
	Rules []RuleRecord `json:"rules" yaml:"rules"`
}

// Key aliases accepted on decode. The short forms are canonical.
var (
	factKeys     = keySet("pred", "predicate", "args", "deg", "degree")
	leafKeys     = keySet("pred", "predicate", "args", "deg", "degree", "deg-pred")
	ruleKeys     = keySet("cond", "conditions", "actions", "name", "priority")
	actionKeys   = keySet("action", "fact")
	documentKeys = keySet("facts", "rules")
)

func keySet(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// DecodeDocument converts a generic decoded value (from JSON, YAML or CUE)
// into a Document. Unknown keys are rejected. A bare list is read as a list
// of facts.
func DecodeDocument(v any) (Document, error) {
	switch val := v.(type) {
	case nil:
		return Document{}, nil
	case []any:
		facts, err := decodeFactList("facts", val)
		return Document{Facts: facts}, err
	}

	m, err := asMap("", v)
	if err != nil {
		return Document{}, err
	}
	var errs ValidationErrors
	errs = append(errs, unknownKeys("", m, documentKeys)...)

	var doc Document
	if raw, ok := m["facts"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			errs = append(errs, ValidationError{Field: "facts", Message: "must be a list"})
		} else if facts, err := decodeFactList("facts", list); err != nil {
			errs = append(errs, asValidationErrors(err)...)
		} else {
			doc.Facts = facts
		}
	}
	if raw, ok := m["rules"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			errs = append(errs, ValidationError{Field: "rules", Message: "must be a list"})
		} else {
			for i, item := range list {
				rec, itemErrs := decodeRuleRecord(fmt.Sprintf("rules[%d]", i), item)
				errs = append(errs, itemErrs...)
				doc.Rules = append(doc.Rules, rec)
			}
		}
	}
	if err := errs.orNil(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DecodeRuleRecord converts one generic rule value.
func DecodeRuleRecord(v any) (RuleRecord, error) {
	rec, errs := decodeRuleRecord("", v)
	return rec, ValidationErrors(errs).orNil()
}

// DecodeConditionNodes converts a generic list of condition values.
func DecodeConditionNodes(v []any) ([]ConditionNode, error) {
	var errs []ValidationError
	out := make([]ConditionNode, 0, len(v))
	for i, item := range v {
		node, nodeErrs := decodeConditionNode(fmt.Sprintf("[%d]", i), item)
		errs = append(errs, nodeErrs...)
		out = append(out, node)
	}
	return out, ValidationErrors(errs).orNil()
}

func decodeFactList(path string, list []any) ([]FactRecord, error) {
	var errs []ValidationError
	out := make([]FactRecord, 0, len(list))
	for i, item := range list {
		rec, itemErrs := decodeFactRecord(fmt.Sprintf("%s[%d]", path, i), item)
		errs = append(errs, itemErrs...)
		out = append(out, rec)
	}
	return out, ValidationErrors(errs).orNil()
}

func decodeFactRecord(path string, v any) (FactRecord, []ValidationError) {
	m, err := asMap(path, v)
	if err != nil {
		return FactRecord{}, asValidationErrors(err)
	}
	errs := unknownKeys(path, m, factKeys)

	rec := FactRecord{Deg: DefaultDegree}
	rec.Pred, errs = stringField(path, m, errs, "pred", "predicate")
	rec.Args, errs = listField(path, m, errs, "args")
	if raw, ok := alias(m, "deg", "degree"); ok {
		d, ok := toFloat(raw)
		if !ok {
			errs = append(errs, ValidationError{Field: join(path, "deg"), Message: fmt.Sprintf("must be a number, got %T", raw)})
		} else {
			rec.Deg = d
		}
	}
	return rec, errs
}

func decodeRuleRecord(path string, v any) (RuleRecord, []ValidationError) {
	m, err := asMap(path, v)
	if err != nil {
		return RuleRecord{}, asValidationErrors(err)
	}
	errs := unknownKeys(path, m, ruleKeys)

	var rec RuleRecord
	var conds []any
	conds, errs = listField(path, m, errs, "cond", "conditions")
	for i, c := range conds {
		node, nodeErrs := decodeConditionNode(fmt.Sprintf("%s[%d]", join(path, "cond"), i), c)
		errs = append(errs, nodeErrs...)
		rec.Cond = append(rec.Cond, node)
	}

	var actions []any
	actions, errs = listField(path, m, errs, "actions")
	for i, a := range actions {
		node, nodeErrs := decodeActionNode(fmt.Sprintf("%s[%d]", join(path, "actions"), i), a)
		errs = append(errs, nodeErrs...)
		rec.Actions = append(rec.Actions, node)
	}

	rec.Name, errs = stringField(path, m, errs, "name")
	if raw, ok := m["priority"]; ok && raw != nil {
		p, ok := toInt(raw)
		if !ok {
			errs = append(errs, ValidationError{Field: join(path, "priority"), Message: fmt.Sprintf("must be an integer, got %v", raw)})
		}
		rec.Priority = p
	}
	return rec, errs
}

func decodeConditionNode(path string, v any) (ConditionNode, []ValidationError) {
	m, err := asMap(path, v)
	if err != nil {
		return ConditionNode{}, asValidationErrors(err)
	}

	for _, op := range []string{"or", "and"} {
		raw, ok := m[op]
		if !ok {
			continue
		}
		errs := unknownKeys(path, m, keySet(op))
		list, isList := raw.([]any)
		if !isList {
			return ConditionNode{}, append(errs, ValidationError{Field: join(path, op), Message: "must be a list"})
		}
		children := make([]ConditionNode, 0, len(list))
		for i, item := range list {
			child, childErrs := decodeConditionNode(fmt.Sprintf("%s[%d]", join(path, op), i), item)
			errs = append(errs, childErrs...)
			children = append(children, child)
		}
		if op == "or" {
			return ConditionNode{Or: children}, errs
		}
		return ConditionNode{And: children}, errs
	}

	if raw, ok := m["not"]; ok {
		errs := unknownKeys(path, m, keySet("not"))
		inner, innerErrs := decodeConditionNode(join(path, "not"), raw)
		return ConditionNode{Not: &inner}, append(errs, innerErrs...)
	}

	errs := unknownKeys(path, m, leafKeys)
	var node ConditionNode
	node.Pred, errs = stringField(path, m, errs, "pred", "predicate")
	node.Args, errs = listField(path, m, errs, "args")
	node.Deg, errs = stringField(path, m, errs, "deg", "degree")
	node.DegPred, errs = listField(path, m, errs, "deg-pred")
	return node, errs
}

func decodeActionNode(path string, v any) (ActionNode, []ValidationError) {
	m, err := asMap(path, v)
	if err != nil {
		return ActionNode{}, asValidationErrors(err)
	}
	errs := unknownKeys(path, m, actionKeys)

	node := ActionNode{Action: "add"}
	if raw, ok := m["action"]; ok {
		s, ok := raw.(string)
		if !ok {
			errs = append(errs, ValidationError{Field: join(path, "action"), Message: "must be a string"})
		}
		node.Action = s
	}

	fm, err := asMap(join(path, "fact"), m["fact"])
	if err != nil {
		return node, append(errs, asValidationErrors(err)...)
	}
	fpath := join(path, "fact")
	errs = append(errs, unknownKeys(fpath, fm, factKeys)...)
	node.Fact.Pred, errs = stringField(fpath, fm, errs, "pred", "predicate")
	node.Fact.Args, errs = listField(fpath, fm, errs, "args")
	if raw, ok := alias(fm, "deg", "degree"); ok {
		node.Fact.Deg = normalizeNumbers(raw)
	}
	return node, errs
}

// ToFacts converts the document's fact records, validating each.
func (d Document) ToFacts() ([]Fact, error) {
	var errs ValidationErrors
	out := make([]Fact, 0, len(d.Facts))
	for i, rec := range d.Facts {
		f, err := rec.ToFact()
		if err != nil {
			errs = append(errs, prefixed(fmt.Sprintf("facts[%d]", i), asValidationErrors(err))...)
			continue
		}
		out = append(out, f)
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ToRules converts the document's rule records, validating each.
func (d Document) ToRules() ([]Rule, error) {
	var errs ValidationErrors
	out := make([]Rule, 0, len(d.Rules))
	for i, rec := range d.Rules {
		r, err := rec.ToRule()
		if err != nil {
			errs = append(errs, prefixed(fmt.Sprintf("rules[%d]", i), asValidationErrors(err))...)
			continue
		}
		out = append(out, r)
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ToFact converts and validates a fact record.
func (r FactRecord) ToFact() (Fact, error) {
	args, err := atomsFromValues(r.Args)
	if err != nil {
		return Fact{}, err
	}
	return NewFact(r.Pred, args, r.Deg)
}

// ToRule converts and validates a rule record.
func (r RuleRecord) ToRule() (Rule, error) {
	var errs ValidationErrors
	conds := make([]Condition, 0, len(r.Cond))
	for i, node := range r.Cond {
		c, err := node.ToCondition()
		if err != nil {
			errs = append(errs, prefixed(fmt.Sprintf("cond[%d]", i), asValidationErrors(err))...)
			continue
		}
		conds = append(conds, c)
	}
	actions := make([]Action, 0, len(r.Actions))
	for i, node := range r.Actions {
		a, err := node.ToAction()
		if err != nil {
			errs = append(errs, prefixed(fmt.Sprintf("actions[%d]", i), asValidationErrors(err))...)
			continue
		}
		actions = append(actions, a)
	}
	if err := errs.orNil(); err != nil {
		return Rule{}, err
	}
	return NewRule(conds, actions, r.Name, r.Priority)
}

// ToCondition converts a condition node, rejecting unknown operators.
func (n ConditionNode) ToCondition() (Condition, error) {
	switch {
	case n.Or != nil:
		children, err := conditionList("or", n.Or)
		if err != nil {
			return nil, err
		}
		c := Or{Children: children}
		if err := ValidateCondition(c); err != nil {
			return nil, err
		}
		return c, nil
	case n.And != nil:
		children, err := conditionList("and", n.And)
		if err != nil {
			return nil, err
		}
		c := And{Children: children}
		if err := ValidateCondition(c); err != nil {
			return nil, err
		}
		return c, nil
	case n.Not != nil:
		child, err := n.Not.ToCondition()
		if err != nil {
			return nil, ValidationErrors(prefixed("not", asValidationErrors(err)))
		}
		return Not{Child: child}, nil
	}

	args, err := atomsFromValues(n.Args)
	if err != nil {
		return nil, err
	}
	leaf := Leaf{Predicate: n.Pred, Args: args, DegreeVar: n.Deg}
	if n.DegPred != nil {
		c, err := ParseConstraint(n.DegPred)
		if err != nil {
			return nil, ValidationErrors{{Field: "deg-pred", Message: err.Error()}}
		}
		leaf.Constraint = &c
	}
	if err := ValidateCondition(leaf); err != nil {
		return nil, err
	}
	return leaf, nil
}

func conditionList(op string, nodes []ConditionNode) ([]Condition, error) {
	var errs ValidationErrors
	out := make([]Condition, 0, len(nodes))
	for i, child := range nodes {
		c, err := child.ToCondition()
		if err != nil {
			errs = append(errs, prefixed(fmt.Sprintf("%s[%d]", op, i), asValidationErrors(err))...)
			continue
		}
		out = append(out, c)
	}
	return out, errs.orNil()
}

// ToAction converts an action node, rejecting unknown action tags.
func (n ActionNode) ToAction() (Action, error) {
	kind, err := ParseActionKind(n.Action)
	if err != nil {
		return Action{}, ValidationErrors{{Field: "action", Message: err.Error()}}
	}
	args, err := atomsFromValues(n.Fact.Args)
	if err != nil {
		return Action{}, ValidationErrors(prefixed("fact", asValidationErrors(err)))
	}
	a := Action{Kind: kind, Fact: FactTemplate{Predicate: n.Fact.Pred, Args: args}}
	if n.Fact.Deg != nil && kind != ActionRemove {
		e, err := ParseDegreeExpr(n.Fact.Deg)
		if err != nil {
			return Action{}, ValidationErrors{{Field: "fact.deg", Message: err.Error()}}
		}
		a.Fact.Degree = e
	}
	if err := ValidateAction(a); err != nil {
		return Action{}, err
	}
	return a, nil
}

// FactToRecord returns the wire form of f.
func FactToRecord(f Fact) FactRecord {
	return FactRecord{Pred: f.Predicate, Args: AtomValues(f.Args), Deg: f.Degree}
}

// RuleToRecord returns the wire form of r.
func RuleToRecord(r Rule) RuleRecord {
	rec := RuleRecord{Name: r.Name, Priority: r.Priority}
	for _, c := range r.Conditions {
		rec.Cond = append(rec.Cond, ConditionToNode(c))
	}
	for _, a := range r.Actions {
		node := ActionNode{
			Action: a.Kind.String(),
			Fact:   TemplateRecord{Pred: a.Fact.Predicate, Args: AtomValues(a.Fact.Args)},
		}
		if a.Fact.Degree != nil {
			node.Fact.Deg = ExprValue(a.Fact.Degree)
		}
		rec.Actions = append(rec.Actions, node)
	}
	return rec
}

// ConditionToNode returns the wire form of c.
func ConditionToNode(c Condition) ConditionNode {
	switch cond := c.(type) {
	case Leaf:
		node := ConditionNode{Pred: cond.Predicate, Args: AtomValues(cond.Args), Deg: cond.DegreeVar}
		if cond.Constraint != nil {
			node.DegPred = cond.Constraint.Value()
		}
		return node
	case And:
		node := ConditionNode{And: []ConditionNode{}}
		for _, child := range cond.Children {
			node.And = append(node.And, ConditionToNode(child))
		}
		return node
	case Or:
		node := ConditionNode{Or: []ConditionNode{}}
		for _, child := range cond.Children {
			node.Or = append(node.Or, ConditionToNode(child))
		}
		return node
	case Not:
		inner := ConditionToNode(cond.Child)
		return ConditionNode{Not: &inner}
	default:
		return ConditionNode{}
	}
}

// DocumentFrom builds the wire document for a fact set and rule list.
func DocumentFrom(facts []Fact, rules []Rule) Document {
	doc := Document{Facts: make([]FactRecord, 0, len(facts)), Rules: make([]RuleRecord, 0, len(rules))}
	for _, f := range facts {
		doc.Facts = append(doc.Facts, FactToRecord(f))
	}
	for _, r := range rules {
		doc.Rules = append(doc.Rules, RuleToRecord(r))
	}
	return doc
}

// canonicalValue is the generic form of a rule record used for hashing.
func (r RuleRecord) canonicalValue() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"name": r.Name}
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return map[string]any{"name": r.Name}
	}
	return normalizeNumbers(out).(map[string]any)
}

func asMap(path string, v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, ValidationErrors{{Field: path, Message: fmt.Sprintf("non-string key %v", k)}}
			}
			out[ks] = val
		}
		return out, nil
	case nil:
		return nil, ValidationErrors{{Field: path, Message: "missing object"}}
	default:
		return nil, ValidationErrors{{Field: path, Message: fmt.Sprintf("must be an object, got %T", v)}}
	}
}

func unknownKeys(path string, m map[string]any, allowed map[string]bool) []ValidationError {
	var unknown []string
	for k := range m {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	errs := make([]ValidationError, 0, len(unknown))
	for _, k := range unknown {
		errs = append(errs, ValidationError{Field: join(path, k), Message: "unknown field"})
	}
	return errs
}

func alias(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(path string, m map[string]any, errs []ValidationError, keys ...string) (string, []ValidationError) {
	raw, ok := alias(m, keys...)
	if !ok {
		return "", errs
	}
	s, ok := raw.(string)
	if !ok {
		return "", append(errs, ValidationError{Field: join(path, keys[0]), Message: fmt.Sprintf("must be a string, got %T", raw)})
	}
	return s, errs
}

func listField(path string, m map[string]any, errs []ValidationError, keys ...string) ([]any, []ValidationError) {
	raw, ok := alias(m, keys...)
	if !ok {
		return nil, errs
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, append(errs, ValidationError{Field: join(path, keys[0]), Message: fmt.Sprintf("must be a list, got %T", raw)})
	}
	return normalizeNumbers(list).([]any), errs
}

func atomsFromValues(vals []any) ([]Atom, error) {
	var errs ValidationErrors
	out := make([]Atom, len(vals))
	for i, v := range vals {
		a, err := AtomFromAny(v)
		if err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("args[%d]", i), Message: err.Error()})
			continue
		}
		out[i] = a
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeNumbers rewrites json.Number and integer values to float64 so
// later conversions see one numeric type.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case []any:
		out := slices.Clone(val)
		for i, item := range out {
			out[i] = normalizeNumbers(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumbers(item)
		}
		return out
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := normalizeNumbers(v).(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func asValidationErrors(err error) []ValidationError {
	switch e := err.(type) {
	case ValidationErrors:
		return e
	case ValidationError:
		return []ValidationError{e}
	default:
		return []ValidationError{{Message: err.Error()}}
	}
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
