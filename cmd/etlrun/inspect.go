package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/etlrun/internal/api"
	"github.com/aristath/etlrun/internal/exchange"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect [RUN_ID [TASK_ID [LABEL]]]",
		Short: "Show run history and retained exchange entries",
		Long: `Without arguments, lists recent runs. With RUN_ID, lists its task
instances and the tasks that published entries. With TASK_ID, lists the
labels that task published. With LABEL, prints the stored JSON value.

Entries are only available for runs executed with --retain against the
sqlite or redis backend.`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			// Inspection output goes to stdout; keep logs on stderr
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			switch len(args) {
			case 0:
				return a.listRuns(ctx, out, limit)
			case 1:
				return a.showRun(ctx, out, args[0])
			case 2:
				return a.listLabels(ctx, out, args[0], args[1])
			default:
				return a.showEntry(ctx, out, args[0], args[1], args[2])
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func (a *app) listRuns(ctx context.Context, out io.Writer, limit int) error {
	runs, err := a.history.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tWORKFLOW\tSTATUS\tSTARTED\tDURATION")
	for _, run := range runs {
		duration := "-"
		if !run.FinishedAt.IsZero() {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", run.ID, run.WorkflowID, run.Status,
			run.StartedAt.Local().Format(time.DateTime), duration)
	}
	return w.Flush()
}

func (a *app) showRun(ctx context.Context, out io.Writer, runID string) error {
	run, err := a.history.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s (%s): %s\n", run.ID, run.WorkflowID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}

	tasks, err := a.history.ListTaskInstances(ctx, runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTASK\tSTATUS\tATTEMPTS\tERROR")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.TaskID, t.Status, t.Attempts, t.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	producers, err := a.producers(ctx, runID)
	if err != nil {
		return err
	}
	if len(producers) == 0 {
		fmt.Fprintln(out, "\nNo retained entries.")
		return nil
	}
	fmt.Fprintln(out, "\nEntries:")
	for _, taskID := range producers {
		labels, err := a.entries.Labels(ctx, runID, taskID)
		if err != nil {
			return err
		}
		for _, label := range labels {
			fmt.Fprintf(out, "  %s/%s\n", taskID, label)
		}
	}
	return nil
}

func (a *app) listLabels(ctx context.Context, out io.Writer, runID, taskID string) error {
	if err := a.requirePersistent(); err != nil {
		return err
	}
	labels, err := a.entries.Labels(ctx, runID, taskID)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		fmt.Fprintf(out, "%s published nothing in run %s.\n", taskID, runID)
		return nil
	}
	for _, label := range labels {
		fmt.Fprintln(out, label)
	}
	return nil
}

func (a *app) showEntry(ctx context.Context, out io.Writer, runID, taskID, label string) error {
	if err := a.requirePersistent(); err != nil {
		return err
	}
	entry, err := a.entries.Get(ctx, exchange.Key{RunID: runID, TaskID: taskID, Label: label})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(entry.Value))
	return err
}

func (a *app) producers(ctx context.Context, runID string) ([]string, error) {
	lister, ok := a.entries.(api.ProducerLister)
	if !ok || !a.persistent() {
		return nil, nil
	}
	return lister.Producers(ctx, runID)
}

func (a *app) requirePersistent() error {
	if !a.persistent() {
		return fmt.Errorf("inspecting entries needs a persistent store (--store sqlite or redis)")
	}
	return nil
}
