package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fuzzyinfer/internal/compiler"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeFormat        = "E002" // Unsupported file extension
	ErrCodeDecodeFailed  = "E004" // JSON/YAML/CUE syntax or schema error
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeCompileFailed = "E006" // Document decoded but IR construction failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeJournal       = "E008" // Journal open/read error

	ErrCodeNonConvergent = "E_NON_CONVERGENT"
	ErrCodeValidation    = "E_VALIDATION"
	ErrCodeDivergence    = "E_REPLAY_DIVERGED"
	ErrCodeTestFailed    = "E_TEST_FAILED"
)

// LoadError represents an error that occurred while loading a knowledge
// base document.
type LoadError struct {
	Path    string
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

// Error returns the code and message. CUE positions are already part of
// the message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the CUE source line, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadDocument reads and decodes a document, classifying failures.
func loadDocument(path string) (ir.Document, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ir.Document{}, &LoadError{Path: path, Code: ErrCodeNotFound, Message: fmt.Sprintf("knowledge base not found: %s", path), Err: err}
		}
		return ir.Document{}, &LoadError{Path: path, Code: ErrCodeGeneric, Message: fmt.Sprintf("error accessing %s: %v", path, err), Err: err}
	}
	if _, err := compiler.FormatOf(path); err != nil {
		return ir.Document{}, &LoadError{Path: path, Code: ErrCodeFormat, Message: err.Error(), Err: err}
	}

	doc, err := compiler.LoadDocument(path)
	if err != nil {
		return ir.Document{}, convertCompileError(path, ErrCodeDecodeFailed, err)
	}
	return doc, nil
}

// loadKnowledgeBase reads, decodes and compiles a knowledge base file.
func loadKnowledgeBase(path string) (*kb.KnowledgeBase, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	k, err := compiler.Compile(doc)
	if err != nil {
		return nil, convertCompileError(path, ErrCodeCompileFailed, err)
	}
	return k, nil
}

// loadPair loads two knowledge bases concurrently. The first failure
// cancels the group; errors are reported for the file that caused them.
func loadPair(ctx context.Context, path1, path2 string) (*kb.KnowledgeBase, *kb.KnowledgeBase, error) {
	var kb1, kb2 *kb.KnowledgeBase
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		k, err := loadKnowledgeBase(path1)
		if err != nil {
			return err
		}
		kb1 = k
		return ctx.Err()
	})
	g.Go(func() error {
		k, err := loadKnowledgeBase(path2)
		if err != nil {
			return err
		}
		kb2 = k
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return kb1, kb2, nil
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(path, code string, err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Path:    path,
			Code:    code,
			Message: fmt.Sprintf("%s: %s", path, compileErr.Error()),
			Pos:     compileErr.Pos,
			Err:     err,
		}
	}
	return &LoadError{
		Path:    path,
		Code:    code,
		Message: fmt.Sprintf("%s: %v", path, err),
		Err:     err,
	}
}

// loadFailure reports a load error through the formatter and returns the
// command error for it.
func loadFailure(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

// kbSummary is the fact and rule count of a knowledge base.
type kbSummary struct {
	Facts int `json:"facts"`
	Rules int `json:"rules"`
}

func summarize(k *kb.KnowledgeBase) kbSummary {
	return kbSummary{Facts: k.Facts.Len(), Rules: len(k.Rules)}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
