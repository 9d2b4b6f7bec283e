package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

func TestParseFactRef(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		wantPred string
		wantArgs []ir.Atom
	}{
		{"predicate only", "zebra", "zebra", nil},
		{"no arguments", "ready()", "ready", []ir.Atom{}},
		{"one argument", "zebra(zed)", "zebra", []ir.Atom{ir.String("zed")}},
		{"spaces", "  near( zed ,  river ) ", "near", []ir.Atom{ir.String("zed"), ir.String("river")}},
		{"variable", "near(?x, river)", "near", []ir.Atom{ir.String("?x"), ir.String("river")}},
		{"number", "age(zed, 4.5)", "age", []ir.Atom{ir.String("zed"), ir.Number(4.5)}},
		{"bool", "tame(zed, true)", "tame", []ir.Atom{ir.String("zed"), ir.Bool(true)}},
		{"quoted number stays string", `code("42")`, "code", []ir.Atom{ir.String("42")}},
		{"bool-like word stays string", "flag(t)", "flag", []ir.Atom{ir.String("t")}},
		{"infinity stays string", "limit(Inf)", "limit", []ir.Atom{ir.String("Inf")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, args, err := parseFactRef(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPred, pred)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestParseFactRef_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr string
	}{
		{"empty", "   ", "empty fact reference"},
		{"unclosed", "zebra(zed", "missing closing parenthesis"},
		{"no predicate", "(zed)", "missing predicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseFactRef(tt.ref)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
