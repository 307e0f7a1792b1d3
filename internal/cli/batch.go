package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/schema"
)

// loadBatch reads a push batch from a YAML or JSON file and returns it as
// a JSON request body. Changes without a timestamp get now, and a missing
// clientTimestamp is filled the same way, so hand-written batches stay short.
func loadBatch(path string, now time.Time) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, ErrCodeGeneric, "failed to read batch", err)
	}

	// yaml.v3 reads JSON documents too.
	var doc any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("failed to parse %s", path), err)
	}

	stamp := ir.NewTimestamp(now).String()
	if req, ok := doc.(map[string]any); ok {
		if _, ok := req["clientTimestamp"]; !ok {
			req["clientTimestamp"] = stamp
		}
		if changes, ok := req["changes"].([]any); ok {
			for _, c := range changes {
				if change, ok := c.(map[string]any); ok {
					if _, ok := change["timestamp"]; !ok {
						change["timestamp"] = stamp
					}
				}
			}
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("failed to encode %s", path), err)
	}
	return body, nil
}

// validateBatch runs the push schema over body. Schema issues come back
// as a reported ExitFailure.
func validateBatch(f *OutputFormatter, validator *schema.Validator, path string, body []byte) error {
	err := validator.ValidatePushRequest(body)
	if err == nil {
		return nil
	}
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, "schema check failed", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✗ %s: %d schema issue(s)\n", path, len(verr.Issues))
	for _, issue := range verr.Issues {
		if issue.Path != "" {
			fmt.Fprintf(&b, "  %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(&b, "  %s\n", issue.Message)
		}
	}
	return f.Failure(map[string]any{"file": path, "issues": verr.Issues}, strings.TrimSuffix(b.String(), "\n"),
		NewExitError(ExitFailure, ErrCodeSchema, fmt.Sprintf("%s fails the push schema", path)))
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <batch-file>",
		Short: "Check a push batch against the schema",
		Long: `Validate a push batch file (YAML or JSON) against the push request
schema without touching the database.

Exit codes:
  0 - Batch is valid
  1 - Schema issues found
  2 - Command error (unreadable file, etc.)

Examples:
  circlesync validate batch.yaml
  circlesync validate batch.json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	body, err := loadBatch(path, time.Now())
	if err != nil {
		return err
	}
	validator, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, "failed to load schema", err)
	}
	if err := validateBatch(f, validator, path, body); err != nil {
		return err
	}

	var req ir.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "failed to decode batch", err)
	}
	return f.Success(map[string]any{"file": path, "valid": true, "changes": len(req.Changes)},
		fmt.Sprintf("✓ %s is valid (%d changes for circle %s)", path, len(req.Changes), req.CircleID))
}

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	As string
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <batch-file>",
		Short: "Apply a push batch as a user",
		Long: `Apply a push batch file (YAML or JSON) directly to the database,
exactly as POST /sync/push would for the --as user.

Changes without a timestamp are stamped with the current time.

Exit codes:
  0 - Batch processed (see per-change results)
  1 - Batch fails the schema
  2 - Command error (unknown user, not a member, etc.)

Examples:
  circlesync push batch.yaml --as u1
  circlesync push batch.json --as u1 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "user performing the push (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runPush(opts *PushOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	body, err := loadBatch(path, time.Now())
	if err != nil {
		return err
	}
	validator, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, "failed to load schema", err)
	}
	if err := validateBatch(f, validator, path, body); err != nil {
		return err
	}
	var req ir.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "failed to decode batch", err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.engine.User(ctx, opts.As); err != nil {
		return engineExitError(fmt.Sprintf("user %s", opts.As), err)
	}
	f.VerboseLog("pushing %d changes to circle %s as %s", len(req.Changes), req.CircleID, opts.As)

	resp, err := rt.engine.Push(ctx, req.CircleID, opts.As, req.Changes)
	if err != nil {
		return engineExitError("push failed", err)
	}

	var b strings.Builder
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "  %-8s %s", r.Status, r.EntityID)
		if r.Message != "" {
			fmt.Fprintf(&b, " (%s)", r.Message)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "server timestamp %s", resp.ServerTimestamp)
	return f.Success(resp, b.String())
}
