package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File   string                     `json:"file"`
	Valid  bool                       `json:"valid"`
	Facts  int                        `json:"facts"`
	Rules  int                        `json:"rules"`
	Issues []compiler.ValidationError `json:"issues"`
}

// Errors returns the error-level issues.
func (r ValidationResult) Errors() []compiler.ValidationError {
	var out []compiler.ValidationError
	for _, issue := range r.Issues {
		if issue.Level == compiler.LevelError {
			out = append(out, issue)
		}
	}
	return out
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <kb-file>",
		Short: "Check a knowledge base document",
		Long: `Check a knowledge base document without running inference.

Reports syntax and schema errors, invalid facts and rules, unknown action or
operator tags, and warnings such as duplicate facts, duplicate rule names and
action variables that no condition binds.

Exit codes:
  0 - No errors (warnings are allowed)
  2 - The file is missing, unreadable or has errors`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, out, errOut io.Writer) error {
	formatter := newFormatter(opts, out, errOut)

	doc, err := loadDocument(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	result := ValidationResult{
		File:   path,
		Facts:  len(doc.Facts),
		Rules:  len(doc.Rules),
		Issues: compiler.Validate(doc),
	}
	if result.Issues == nil {
		result.Issues = []compiler.ValidationError{}
	}
	result.Valid = !compiler.HasErrors(result.Issues)
	formatter.VerboseLog("Checked %d fact(s) and %d rule(s) in %s", result.Facts, result.Rules, path)

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs a valid result, with any warnings.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s is valid (%d facts, %d rules)\n", result.File, result.Facts, result.Rules)
	writeIssues(w, result.Issues)
	return nil
}

// outputValidationErrors outputs the issues of an invalid document.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors()
	msg := fmt.Sprintf("validation failed with %d error(s)", len(errs))

	if formatter.JSON() {
		if err := formatter.Failure(result, errs[0].Code, errs[0].Message); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ %s: %s\n", result.File, msg)
	writeIssues(w, result.Issues)
	return NewExitError(ExitCommandError, msg)
}

func writeIssues(w io.Writer, issues []compiler.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, issue := range issues {
		fmt.Fprintf(w, "  %-7s %s\n", issue.Level, issue.Error())
	}
}
