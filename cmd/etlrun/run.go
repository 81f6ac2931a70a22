package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/etlrun/internal/config"
	"github.com/aristath/etlrun/internal/etl"
	"github.com/aristath/etlrun/internal/events"
	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/notify"
	"github.com/aristath/etlrun/internal/orchestrator"
	"github.com/aristath/etlrun/internal/scheduler"
	"github.com/aristath/etlrun/internal/tui"
)

type runOptions struct {
	dryRun bool
	tui    bool
	data   string
	retain bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the ETL workflow once",
		Example: `  # Default data, log the email instead of sending it
  etlrun run --dry-run

  # Custom data, keep exchange entries in SQLite for inspection
  etlrun run --data 3,4,5 --store sqlite --retain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log the report email instead of sending it")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show live progress in a terminal UI")
	cmd.Flags().StringVar(&opts.data, "data", "", "comma separated values for the extract task")
	cmd.Flags().BoolVar(&opts.retain, "retain", false, "keep exchange entries after the run ends")
	return cmd
}

// apply lets flags override the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("data") {
		data, err := config.ParseData(o.data)
		if err != nil {
			return err
		}
		cfg.Workflow.Data = data
	}
	if o.dryRun {
		cfg.Mail.Transport = "log"
	}
	if o.retain {
		cfg.Store.Retain = true
	}
	return nil
}

func runWorkflow(ctx context.Context, out io.Writer, cfg *config.Config, opts *runOptions) error {
	// Console logs would tear the alternate screen
	var logOut io.Writer = out
	if opts.tui {
		logOut = io.Discard
	}

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	transport, err := notify.New(cfg.Mail, a.logger.Named("notify"))
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	x := exchange.New(a.entries,
		exchange.WithLogger(a.logger.Named("exchange")),
		exchange.WithEventBus(bus),
		exchange.WithRetention(cfg.Store.Retain),
	)

	runner, err := orchestrator.NewRunner(orchestrator.Config{
		ConcurrencyLimit: cfg.Workflow.Concurrency,
		Retry: scheduler.RetryConfig{
			InitialInterval:     cfg.Workflow.Backoff.InitialInterval.Std(),
			MaxInterval:         cfg.Workflow.Backoff.MaxInterval.Std(),
			Multiplier:          cfg.Workflow.Backoff.Multiplier,
			RandomizationFactor: scheduler.DefaultRetryConfig().RandomizationFactor,
		},
		Exchange: x,
		History:  a.history,
		Events:   bus,
		Logger:   a.logger.Named("runner"),
	})
	if err != nil {
		return err
	}

	wf := etl.Workflow(cfg, transport, a.logger.Named("etl"))

	var result *orchestrator.RunResult
	if opts.tui {
		result, err = runWithTUI(ctx, runner, wf, bus, cfg)
	} else {
		result, err = runner.Run(ctx, wf)
	}
	if result != nil {
		printResult(out, result, cfg.Store.Retain && a.persistent())
	}
	if err != nil {
		return err
	}
	if !result.Succeeded {
		return fmt.Errorf("run %s failed: %w", result.RunID, result.Err())
	}
	return nil
}

// runWithTUI runs the workflow while a Bubble Tea program renders its
// events. The program stays open after the run until the user quits.
func runWithTUI(ctx context.Context, runner *orchestrator.Runner, wf *scheduler.Workflow, bus *events.EventBus, cfg *config.Config) (*orchestrator.RunResult, error) {
	model := tui.New(bus, cfg)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *orchestrator.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(runCtx, wf)
		done <- outcome{result, err}
	}()

	_, tuiErr := p.Run()

	// Quitting the UI early aborts the run
	cancel()
	o := <-done
	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return o.result, fmt.Errorf("terminal UI: %w", tuiErr)
	}
	return o.result, o.err
}

func printResult(out io.Writer, result *orchestrator.RunResult, retained bool) {
	fmt.Fprintf(out, "\nRun %s (%s) ", result.RunID, result.WorkflowID)
	if result.Succeeded {
		fmt.Fprintln(out, "succeeded")
	} else {
		fmt.Fprintln(out, "failed")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tATTEMPTS\tDURATION\tERROR")
	for _, t := range result.Tasks {
		errText := ""
		if t.Error != nil {
			errText = t.Error.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", t.TaskID, t.Status, t.Attempts, t.Duration.Round(time.Millisecond), errText)
	}
	w.Flush()

	if retained {
		fmt.Fprintf(out, "\nEntries retained; inspect with: etlrun inspect %s\n", result.RunID)
	}
}
