package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Since string
	Limit int
}

// LogResult is the JSON output of the log command.
type LogResult struct {
	CircleID string           `json:"circleId"`
	Entries  []ir.ChangeEntry `json:"entries"`
	HasMore  bool             `json:"hasMore"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <circle-id>",
		Short: "Print the change log of a circle",
		Long: `Print change log entries of a circle, oldest first.

With --since only entries strictly after the timestamp are printed,
the same window GET /sync/changes returns.

Examples:
  circlesync log c1
  circlesync log c1 --since 2026-01-01T00:00:00.000000Z --limit 20
  circlesync log c1 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "only entries after this timestamp")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of entries")

	return cmd
}

func runLog(opts *LogOptions, circleID string, cmd *cobra.Command) error {
	var since *ir.Timestamp
	if opts.Since != "" {
		ts, err := ir.ParseTimestamp(opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "invalid --since", err)
		}
		since = &ts
	}
	if opts.Limit < 1 {
		return NewExitError(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("--limit must be positive, got %d", opts.Limit))
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.store.Circles().GetCircle(ctx, rt.store.DB(), circleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("circle %s not found", circleID))
		}
		return WrapExitError(ExitCommandError, ErrCodeStorage, "failed to read circle", err)
	}

	entries, hasMore, err := rt.store.Log().Query(ctx, rt.store.DB(), circleID, since, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeStorage, "failed to read change log", err)
	}
	if entries == nil {
		entries = []ir.ChangeEntry{}
	}

	f := newFormatter(opts.RootOptions, cmd)
	return f.Success(LogResult{CircleID: circleID, Entries: entries, HasMore: hasMore}, formatLog(entries, hasMore))
}

func formatLog(entries []ir.ChangeEntry, hasMore bool) string {
	if len(entries) == 0 {
		return "No entries."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %-6s %-7s %s", e.Timestamp, e.Action, e.EntityType, e.EntityID)
		if len(e.Data) > 0 {
			fmt.Fprintf(&b, "  %s", e.Data)
		}
		b.WriteString("\n")
	}
	if hasMore {
		b.WriteString("... more entries (use --since with the last timestamp)\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <circle-id>",
		Short: "Check a circle's change log against its entities",
		Long: `Verify that the change log of a circle accounts for its stored state.

Exit codes:
  0 - Log and state are consistent
  1 - Inconsistencies found
  2 - Command error

Examples:
  circlesync verify c1
  circlesync verify c1 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, circleID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr(), opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.engine.Verify(ctx, circleID)
	if err != nil {
		return engineExitError("verify failed", err)
	}

	f := newFormatter(opts, cmd)
	if report.OK() {
		return f.Success(report, fmt.Sprintf("✓ circle %s is consistent (%d entries, %d entities)",
			circleID, report.Entries, report.Entities))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✗ circle %s has %d issue(s):\n", circleID, len(report.Issues))
	for _, issue := range report.Issues {
		if issue.EntityID != "" {
			fmt.Fprintf(&b, "  %s %s: %s\n", issue.EntityType, issue.EntityID, issue.Message)
		} else {
			fmt.Fprintf(&b, "  %s\n", issue.Message)
		}
	}
	return f.Failure(report, strings.TrimSuffix(b.String(), "\n"),
		NewExitError(ExitFailure, ErrCodeInconsistent, fmt.Sprintf("circle %s is inconsistent", circleID)))
}
