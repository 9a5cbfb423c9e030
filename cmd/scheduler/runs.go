package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func enqueueCmd() *cobra.Command {
	var (
		optionsPath string
		length      int
	)
	cmd := &cobra.Command{
		Use:   "enqueue <availability.csv>",
		Short: "Store a table and options and queue a run",
		Long: `Store the availability table and run options and record a queued run.
A running "serve" or "worker" process picks it up on its next poll.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInputs(args[0], optionsPath, length)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			runs := a.runService()
			availability, err := runs.CreateAvailability(cmd.Context(), in.availabilityRequest())
			if err != nil {
				return err
			}
			opts, err := runs.CreateOptions(cmd.Context(), in.optionsRequest())
			if err != nil {
				return err
			}
			run, err := runs.CreateRun(cmd.Context(), dto.CreateRunRequest{AvailabilityID: availability.ID, OptionsID: opts.ID})
			if err != nil {
				return err
			}
			printQueued(cmd.OutOrStdout(), run)
			return nil
		},
	}
	cmd.Flags().StringVarP(&optionsPath, "options", "o", "", "run options file (yaml, json, toml or env)")
	cmd.Flags().IntVar(&length, "length", 0, "default lesson length in minutes")
	return cmd
}

func rerunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rerun <run-id>",
		Short: "Queue a new run with the inputs of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.runService().Rerun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printQueued(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var showSchedule bool
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			runs := a.runService()
			progress, err := runs.GetProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printProgress(out, progress)
			if !showSchedule {
				return nil
			}
			run, err := runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !run.State.Terminal() {
				return fmt.Errorf("run %s is %s, no schedule yet", run.ID, run.State)
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, run.Schedule)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSchedule, "schedule", false, "print the schedule of a finished run")
	return cmd
}

func printQueued(w io.Writer, run *dto.RunResponse) {
	fmt.Fprintf(w, "%s %s\n", run.ID, run.State)
}

func printProgress(w io.Writer, p *models.RunProgress) {
	fmt.Fprintf(w, "run:      %s\n", p.RunID)
	fmt.Fprintf(w, "state:    %s\n", p.State)
	fmt.Fprintf(w, "solution: %s\n", p.Solution)
	if p.Score != nil {
		fmt.Fprintf(w, "score:    %d\n", *p.Score)
	}
	if p.Elapsed != "" {
		fmt.Fprintf(w, "elapsed:  %s\n", p.Elapsed)
	}
}
