// Package compiler loads knowledge-base documents into IR.
//
// Documents may be written in JSON, YAML or CUE. All three decode to the
// same generic shape and are converted by ir.DecodeDocument, so aliases,
// unknown-key rejection and validation behave identically across formats.
// CUE documents are additionally unified with an embedded schema, which
// gives errors a source position.
package compiler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

//go:embed schema.cue
var schemaSource []byte

const schemaFilename = "schema.cue"

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", &CompileError{
			Field:   "path",
			Message: fmt.Sprintf("unsupported document extension %q (want .json, .yaml, .yml or .cue)", filepath.Ext(path)),
		}
	}
}

// CompileError represents a compilation error with source position.
// Pos is only valid for CUE documents.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *CompileError) Error() string {
	field := e.Field
	if field == "" {
		field = "document"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			field, e.Message)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

func (e *CompileError) Unwrap() error { return e.Err }

// IsCompileError reports whether err is (or wraps) a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Decode parses data in the given format into a document.
// filename is only used for CUE positions and may be empty.
func Decode(data []byte, format Format, filename string) (ir.Document, error) {
	switch format {
	case FormatJSON:
		return DecodeJSON(data)
	case FormatYAML:
		return DecodeYAML(data)
	case FormatCUE:
		return DecodeCUE(data, filename)
	default:
		return ir.Document{}, &CompileError{Field: "format", Message: fmt.Sprintf("unknown format %q", format)}
	}
}

// DecodeJSON parses a JSON document.
func DecodeJSON(data []byte) (ir.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return ir.Document{}, &CompileError{Field: "json", Message: err.Error(), Err: err}
	}
	return fromGeneric(raw)
}

// DecodeYAML parses a YAML document.
func DecodeYAML(data []byte) (ir.Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ir.Document{}, &CompileError{Field: "yaml", Message: err.Error(), Err: err}
	}
	return fromGeneric(raw)
}

// DecodeCUE compiles a CUE document and unifies it with the document
// schema. Schema violations and conversion errors carry the position of
// the offending value.
func DecodeCUE(data []byte, filename string) (ir.Document, error) {
	if filename == "" {
		filename = "document.cue"
	}
	ctx := cuecontext.New()

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return ir.Document{}, formatCUEError(err)
	}

	if v.IncompleteKind() == cue.StructKind {
		schema := ctx.CompileBytes(schemaSource, cue.Filename(schemaFilename))
		if err := schema.Err(); err != nil {
			return ir.Document{}, fmt.Errorf("compile document schema: %w", err)
		}
		if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
			return ir.Document{}, formatCUEError(err)
		}
	}

	js, err := v.MarshalJSON()
	if err != nil {
		return ir.Document{}, formatCUEError(err)
	}
	doc, err := DecodeJSON(js)
	if err != nil {
		return ir.Document{}, positioned(v, err)
	}
	return doc, nil
}

// fromGeneric converts a generic decoded value, wrapping shape errors.
func fromGeneric(raw any) (ir.Document, error) {
	doc, err := ir.DecodeDocument(raw)
	if err != nil {
		return ir.Document{}, &CompileError{Field: firstField(err), Message: err.Error(), Err: err}
	}
	return doc, nil
}

// LoadDocument reads and decodes the document at path.
func LoadDocument(path string) (ir.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return ir.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Decode(data, format, path)
	if err != nil {
		return ir.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// Compile converts a document into a knowledge base, validating every fact
// and rule.
func Compile(doc ir.Document) (*kb.KnowledgeBase, error) {
	k, err := kb.FromDocument(doc)
	if err != nil {
		return nil, &CompileError{Field: firstField(err), Message: err.Error(), Err: err}
	}
	return k, nil
}

// LoadKnowledgeBase reads, decodes and compiles the document at path.
func LoadKnowledgeBase(path string) (*kb.KnowledgeBase, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	k, err := Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return k, nil
}

// Encode renders doc in format. CUE output is not supported.
func Encode(doc ir.Document, format Format) ([]byte, error) {
	if doc.Facts == nil {
		doc.Facts = []ir.FactRecord{}
	}
	if doc.Rules == nil {
		doc.Rules = []ir.RuleRecord{}
	}
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(out, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, &CompileError{Field: "format", Message: fmt.Sprintf("cannot write %s documents", format)}
	}
}

// WriteDocument encodes doc in the format implied by path and writes it.
func WriteDocument(path string, doc ir.Document) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(doc, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error(), Err: err}
	}

	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error(), Err: err}
	// Prefer a position in the document over one in the schema.
	for _, pos := range cueerrors.Positions(first) {
		if !ce.Pos.IsValid() || ce.Pos.Filename() == schemaFilename {
			ce.Pos = pos
		}
	}
	if path := first.Path(); len(path) > 0 {
		ce.Field = strings.Join(path, ".")
	}
	return ce
}

// positioned attaches the CUE position of the first failing field to a
// conversion error. Unknown paths fall back to the nearest existing parent.
func positioned(v cue.Value, err error) error {
	var ce *CompileError
	if !errors.As(err, &ce) {
		return err
	}
	sels := fieldSelectors(ce.Field)
	for n := len(sels); n >= 0; n-- {
		sub := v.LookupPath(cue.MakePath(sels[:n]...))
		if sub.Exists() {
			ce.Pos = sub.Pos()
			break
		}
	}
	return ce
}

// fieldSelectors turns a field path such as "rules[0].cond[1].deg-pred"
// into CUE selectors.
func fieldSelectors(field string) []cue.Selector {
	var sels []cue.Selector
	if field == "" {
		return sels
	}
	for _, part := range strings.Split(field, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name != "" {
			sels = append(sels, cue.Str(name))
		}
		for rest != "" {
			idx, tail, ok := strings.Cut(rest, "]")
			if !ok {
				break
			}
			var i int
			if _, err := fmt.Sscanf(idx, "%d", &i); err == nil {
				sels = append(sels, cue.Index(i))
			}
			rest = strings.TrimPrefix(tail, "[")
		}
	}
	return sels
}

func firstField(err error) string {
	var multi ir.ValidationErrors
	if errors.As(err, &multi) && len(multi) > 0 {
		return multi[0].Field
	}
	var single ir.ValidationError
	if errors.As(err, &single) {
		return single.Field
	}
	return ""
}
