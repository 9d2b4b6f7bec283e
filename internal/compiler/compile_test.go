package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

const zebraJSON = `{
  "facts": [
    {"pred": "has-stripes", "args": ["zed"], "deg": 0.9},
    {"pred": "has-hooves", "args": ["zed"], "deg": 0.8}
  ],
  "rules": [
    {
      "name": "zebra",
      "cond": [
        {"pred": "has-stripes", "args": ["?x"], "deg": "?d1"},
        {"pred": "has-hooves", "args": ["?x"], "deg": "?d2"}
      ],
      "actions": [
        {"action": "add", "fact": {"pred": "zebra", "args": ["?x"], "deg": ["*", "?d1", "?d2"]}}
      ]
    }
  ]
}`

const zebraYAML = `
facts:
  - pred: has-stripes
    args: [zed]
    deg: 0.9
  - pred: has-hooves
    args: [zed]
    deg: 0.8
rules:
  - name: zebra
    cond:
      - {pred: has-stripes, args: ["?x"], deg: "?d1"}
      - {pred: has-hooves, args: ["?x"], deg: "?d2"}
    actions:
      - action: add
        fact: {pred: zebra, args: ["?x"], deg: ["*", "?d1", "?d2"]}
`

const zebraCUE = `
facts: [
	{pred: "has-stripes", args: ["zed"], deg: 0.9},
	{pred: "has-hooves", args: ["zed"], deg: 0.8},
]
rules: [{
	name: "zebra"
	cond: [
		{pred: "has-stripes", args: ["?x"], deg: "?d1"},
		{pred: "has-hooves", args: ["?x"], deg: "?d2"},
	]
	actions: [{
		action: "add"
		fact: {pred: "zebra", args: ["?x"], deg: ["*", "?d1", "?d2"]}
	}]
}]
`

// TestDecode_FormatsAgree tests that the three encodings of one knowledge
// base decode to the same document.
func TestDecode_FormatsAgree(t *testing.T) {
	fromJSON, err := DecodeJSON([]byte(zebraJSON))
	require.NoError(t, err)
	fromYAML, err := DecodeYAML([]byte(zebraYAML))
	require.NoError(t, err)
	fromCUE, err := DecodeCUE([]byte(zebraCUE), "zebra.cue")
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(fromJSON, fromYAML), "yaml differs from json")
	assert.Empty(t, cmp.Diff(fromJSON, fromCUE), "cue differs from json")

	require.Len(t, fromJSON.Facts, 2)
	require.Len(t, fromJSON.Rules, 1)
	assert.Equal(t, "zebra", fromJSON.Rules[0].Name)
}

// TestCompile_Zebra tests conversion of a decoded document into a
// knowledge base.
func TestCompile_Zebra(t *testing.T) {
	doc, err := DecodeJSON([]byte(zebraJSON))
	require.NoError(t, err)

	k, err := Compile(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, k.Facts.Len())
	require.Len(t, k.Rules, 1)
	assert.Len(t, k.Rules[0].Conditions, 2)
}

// TestDecode_Aliases tests that long key names are accepted.
func TestDecode_Aliases(t *testing.T) {
	doc, err := DecodeYAML([]byte(`
facts:
  - {predicate: p, args: [a], degree: 0.4}
rules:
  - conditions: [{predicate: p, args: ["?x"]}]
    actions: [{action: add, fact: {predicate: q, args: ["?x"]}}]
`))
	require.NoError(t, err)
	require.Len(t, doc.Facts, 1)
	assert.Equal(t, "p", doc.Facts[0].Pred)
	assert.InDelta(t, 0.4, doc.Facts[0].Deg, 1e-9)
	require.Len(t, doc.Rules, 1)
	assert.Len(t, doc.Rules[0].Cond, 1)
}

// TestDecode_BareFactList tests that a top-level list is read as facts.
func TestDecode_BareFactList(t *testing.T) {
	doc, err := DecodeJSON([]byte(`[{"pred": "p", "args": ["a"]}]`))
	require.NoError(t, err)
	require.Len(t, doc.Facts, 1)
	assert.Equal(t, ir.DefaultDegree, doc.Facts[0].Deg)
	assert.Empty(t, doc.Rules)
}

// TestDecode_SyntaxErrors tests that malformed input yields a CompileError
// naming the format.
func TestDecode_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
		field  string
	}{
		{"json", FormatJSON, `{"facts": [`, "json"},
		{"yaml", FormatYAML, "facts: [\n  - {pred: p", "yaml"},
		{"cue", FormatCUE, "facts: [", "cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), tt.format, "bad."+tt.name)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

// TestDecode_UnknownKey tests that unknown keys are rejected with a field
// path.
func TestDecode_UnknownKey(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"facts": [{"pred": "p", "args": [], "weight": 1}]}`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Field, "facts[0]")
	assert.True(t, ir.IsValidationError(err), "the validation error stays reachable")
}

// TestDecodeCUE_SchemaPosition tests that schema violations carry a CUE
// source position.
func TestDecodeCUE_SchemaPosition(t *testing.T) {
	src := "facts: [\n\t{pred: \"p\", args: [\"a\"], deg: 1.5},\n]\n"

	_, err := DecodeCUE([]byte(src), "range.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.True(t, ce.Pos.IsValid(), "expected a source position, got %v", err)
	assert.Equal(t, "range.cue", ce.Pos.Filename())
	assert.Equal(t, 2, ce.Pos.Line())
	assert.Contains(t, err.Error(), "range.cue:2:")
}

// TestDecodeCUE_UnknownActionTag tests that the schema rejects action tags.
func TestDecodeCUE_UnknownActionTag(t *testing.T) {
	src := `rules: [{
	cond: [{pred: "p", args: ["?x"]}]
	actions: [{action: "assert", fact: {pred: "q", args: ["?x"]}}]
}]
`
	_, err := DecodeCUE([]byte(src), "tag.cue")
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
}

// TestDecodeCUE_ConversionPosition tests that errors found during
// conversion point at the offending CUE value.
func TestDecodeCUE_ConversionPosition(t *testing.T) {
	src := "facts: [\n\t{pred: \"p\", args: [\"a\"]},\n\t{pred: \"q\", args: [\"b\"], colour: \"red\"},\n]\n"

	_, err := DecodeCUE([]byte(src), "extra.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Field, "facts[1]")
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, 3, ce.Pos.Line())
}

// TestCompile_InvalidDegree tests that out-of-range degrees fail
// compilation.
func TestCompile_InvalidDegree(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"facts": [{"pred": "p", "args": ["a"], "deg": 1.5}]}`))
	require.NoError(t, err, "degree range is checked at compile time")

	_, err = Compile(doc)
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
	assert.True(t, ir.IsValidationError(err))
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"kb.json", FormatJSON, true},
		{"kb.YAML", FormatYAML, true},
		{"dir/kb.yml", FormatYAML, true},
		{"kb.cue", FormatCUE, true},
		{"kb.toml", "", false},
		{"kb", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestWriteDocument_RoundTrip tests that written documents load back
// unchanged in both writable formats.
func TestWriteDocument_RoundTrip(t *testing.T) {
	doc, err := DecodeJSON([]byte(zebraJSON))
	require.NoError(t, err)
	want, err := Compile(doc)
	require.NoError(t, err)

	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteDocument(path, want.Document()))

			got, err := LoadKnowledgeBase(path)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(want.Document(), got.Document()))
		})
	}
}

// TestEncode_EmptyListsNotNull tests that empty documents encode as empty
// lists rather than null.
func TestEncode_EmptyListsNotNull(t *testing.T) {
	out, err := Encode(ir.Document{}, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"facts": [], "rules": []}`, string(out))

	_, err = Encode(ir.Document{}, FormatCUE)
	assert.Error(t, err)
}

// TestLoadDocument_Errors tests path-level failures.
func TestLoadDocument_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDocument(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "kb.txt")
	require.NoError(t, os.WriteFile(bad, []byte("{}"), 0o644))
	_, err = LoadDocument(bad)
	assert.True(t, IsCompileError(err))
}

func TestFieldSelectors(t *testing.T) {
	v := cuecontext.New().CompileString(`rules: [{cond: [{}, {"deg-pred": ["<", "?d", 0.5]}]}]`)
	require.NoError(t, v.Err())

	sels := fieldSelectors("rules[0].cond[1].deg-pred")
	require.Len(t, sels, 5)
	assert.True(t, v.LookupPath(cue.MakePath(sels...)).Exists())

	assert.Empty(t, fieldSelectors(""))
}
