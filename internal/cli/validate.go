package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/louhi-db/louhi/internal/workload"
)

// ValidationIssue is one problem found in a workload file.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Policies []string          `json:"policies,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workload.cue>",
		Short: "Validate a workload file without running it",
		Long: `Validate a workload CUE file.

Compiles the workload and checks every field and policy the simulator
would use, without booting the server or running any cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if outErr := formatter.Error("E001", fmt.Sprintf("workload file not found: %s", path), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("workload file not found: %s", path))
	}

	formatter.VerboseLog("Compiling workload: %s", path)

	spec, err := workload.CompileFile(path)
	if err != nil {
		issue := ValidationIssue{Field: "workload", Message: err.Error()}
		var compileErr *workload.CompileError
		if errors.As(err, &compileErr) {
			issue = ValidationIssue{Field: compileErr.Field, Message: compileErr.Message}
		}
		if outErr := formatter.Error("E002", "workload is invalid", []ValidationIssue{issue}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "workload is invalid", err)
	}

	policies := make([]string, 0, len(spec.Policies))
	for name := range spec.Policies {
		policies = append(policies, name)
	}
	sort.Strings(policies)

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Policies: policies})
	}
	return formatter.Success(fmt.Sprintf("✓ %s is valid (policies: %v)", path, policies))
}
