package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealer-scraper/internal/checkpoint"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/scheduler"
)

var timeNow = time.Now

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List checkpointed sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := checkpoint.Open(cfg.Checkpoint)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.List(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessions(os.Stdout, list)
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 1 {
			return eris.Errorf("--keep must be >= 1, got %d", keep)
		}
		st, err := checkpoint.Open(cfg.Checkpoint)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.Prune(cmd.Context(), keep)
		if err != nil {
			return eris.Wrap(err, "sessions prune")
		}
		fmt.Fprintf(os.Stdout, "removed %d session(s)\n", n)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the progress of a session (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := checkpoint.Open(cfg.Checkpoint)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var cp *model.Checkpoint
		if len(args) == 1 {
			cp, err = st.LoadSession(ctx, args[0])
		} else {
			cp, err = st.Latest(ctx)
		}
		if errors.Is(err, checkpoint.ErrNoSession) {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "status")
		}
		formatStatus(os.Stdout, cp)
		return nil
	},
}

func init() {
	sessionsPruneCmd.Flags().Int("keep", 10, "number of newest sessions to keep")
	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
}

// formatSessions writes a table of sessions to w.
func formatSessions(out io.Writer, list []checkpoint.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tUPDATED\tDONE\tFAILED\tPENDING")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t----\t------\t-------")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			s.ID,
			s.StartedAt.Format("2006-01-02 15:04"),
			s.UpdatedAt.Format("2006-01-02 15:04"),
			s.Completed, s.Failed, s.Pending,
		)
	}
	_ = w.Flush()
}

// formatStatus writes the counts of a session and lists its failed and
// pending items in input order.
func formatStatus(out io.Writer, cp *model.Checkpoint) {
	color.New(color.Bold).Fprintf(out, "Session %s\n", cp.SessionID) //nolint:errcheck
	_, _ = fmt.Fprintf(out, "Started:   %s\n", cp.StartedAt.Format("2006-01-02 15:04:05 MST"))
	color.New(color.FgGreen).Fprintf(out, "Completed: %d\n", len(cp.Completed)) //nolint:errcheck
	color.New(color.FgRed).Fprintf(out, "Failed:    %d\n", len(cp.Failed))      //nolint:errcheck
	color.New(color.FgYellow).Fprintf(out, "Pending:   %d\n", len(cp.Pending))  //nolint:errcheck

	if len(cp.Failed) > 0 {
		_, _ = fmt.Fprintln(out, "\nFailed items:")
		for _, e := range byInputIndex(cp.Failed) {
			_, _ = fmt.Fprintf(out, "  #%d %s: %s\n", e.InputIndex, e.URL, e.Error)
		}
	}
	if len(cp.Pending) > 0 {
		_, _ = fmt.Fprintln(out, "\nPending items:")
		for _, e := range byInputIndex(cp.Pending) {
			_, _ = fmt.Fprintf(out, "  #%d %s\n", e.InputIndex, e.URL)
		}
	}
}

// printRunSummary writes the end-of-run summary.
func printRunSummary(out io.Writer, sum scheduler.Summary, reportPath string) {
	_, _ = fmt.Fprintln(out)
	color.New(color.Bold).Fprintf(out, "Session %s\n", sum.SessionID) //nolint:errcheck
	_, _ = fmt.Fprintf(out, "Processed this run: %d in %s\n", sum.Processed, sum.Duration.Round(time.Second))
	color.New(color.FgGreen).Fprintf(out, "Completed: %d\n", sum.Completed) //nolint:errcheck
	color.New(color.FgRed).Fprintf(out, "Failed:    %d\n", sum.Failed)      //nolint:errcheck
	color.New(color.FgYellow).Fprintf(out, "Pending:   %d\n", sum.Pending)  //nolint:errcheck
	_, _ = fmt.Fprintf(out, "Report:    %s\n", reportPath)
	if sum.Cancelled {
		color.New(color.FgYellow).Fprintln(out, "Interrupted; continue with: dealer-scraper run --resume") //nolint:errcheck
	} else if sum.Failed > 0 {
		_, _ = fmt.Fprintln(out, "Retry failures with: dealer-scraper run --resume --retry-failed")
	}
}

func byInputIndex(m map[string]model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InputIndex < out[j].InputIndex })
	return out
}
