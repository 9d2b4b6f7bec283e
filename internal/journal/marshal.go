package journal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// marshalBinding converts a binding to canonical JSON TEXT for storage.
func marshalBinding(b ir.Binding) (string, error) {
	if len(b) == 0 {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(b)
	if err != nil {
		return "", fmt.Errorf("marshal binding: %w", err)
	}
	return string(data), nil
}

// marshalArgs converts fact arguments to canonical JSON TEXT.
func marshalArgs(args []ir.Atom) (string, error) {
	data, err := ir.MarshalCanonical(ir.AtomValues(args))
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// factKey is the provenance lookup key for predicate(args). Degree is not
// part of it.
func factKey(predicate string, args []ir.Atom) (string, error) {
	key, err := ir.FactID(predicate, args)
	if err != nil {
		return "", fmt.Errorf("fact key: %w", err)
	}
	return key, nil
}

// marshalDocument stores a run's input knowledge base. Struct field order
// makes the encoding deterministic.
func marshalDocument(doc ir.Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}
	return string(bytes.TrimSpace(buf.Bytes())), nil
}

// unmarshalDocument parses a stored input through the same decoder used
// for documents on disk, so aliases and validation match.
func unmarshalDocument(data string) (ir.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return ir.Document{}, fmt.Errorf("unmarshal input: %w", err)
	}
	doc, err := ir.DecodeDocument(raw)
	if err != nil {
		return ir.Document{}, fmt.Errorf("unmarshal input: %w", err)
	}
	return doc, nil
}

func unmarshalBinding(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" || data == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal binding: %w", err)
	}
	return out, nil
}

func unmarshalArgs(data string) ([]ir.Atom, error) {
	var vals []any
	if err := json.Unmarshal([]byte(data), &vals); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	atoms := make([]ir.Atom, len(vals))
	for i, v := range vals {
		a, err := ir.AtomFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal args[%d]: %w", i, err)
		}
		atoms[i] = a
	}
	return atoms, nil
}
