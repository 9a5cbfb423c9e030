package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler/internal/solver"
)

func solveCmd() *cobra.Command {
	var (
		optionsPath string
		workDir     string
		length      int
	)
	cmd := &cobra.Command{
		Use:   "solve <availability.csv>",
		Short: "Solve an availability table in the foreground",
		Long: `Compile the table and options, run the solver and print the scheduler
log followed by the schedule. Nothing is stored; the instance file is kept
only when --work-dir is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			in, err := readInputs(args[0], optionsPath, length)
			if err != nil {
				return err
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if workDir == "" {
				dir, err := os.MkdirTemp("", "lesson-scheduler-*")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir) //nolint:errcheck
				workDir = dir
			}
			return solveOnce(ctx, a, in, workDir, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&optionsPath, "options", "o", "", "run options file (yaml, json, toml or env)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory for the solver instance (default is a temporary directory)")
	cmd.Flags().IntVar(&length, "length", 0, "default lesson length in minutes")
	return cmd
}

func solveOnce(ctx context.Context, a *app, in *runInputs, workDir string, out, progress io.Writer) error {
	svc, err := a.solverService(workDir)
	if err != nil {
		return err
	}
	problem, err := svc.Prepare(in.availability(), in.solverOptions())
	if err != nil {
		return err
	}

	name := "solve-" + time.Now().UTC().Format("20060102T150405")
	result, err := svc.Solve(ctx, name, problem, func(_ context.Context, p solver.Progress) error {
		if p.Improved && p.Objective != nil {
			fmt.Fprintf(progress, "score %d after %s\n", problem.ScoreFromObjective(*p.Objective), p.Elapsed.Round(time.Millisecond))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprint(out, result.SchedulerOutput)
	fmt.Fprintln(out)
	fmt.Fprint(out, result.Schedule)
	if result.Score != nil {
		fmt.Fprintf(out, "\n%s, score %d, stopped: %s\n", result.Solution, *result.Score, result.StopReason)
	} else {
		fmt.Fprintf(out, "\n%s, stopped: %s\n", result.Solution, result.StopReason)
	}
	if result.Mismatch != nil {
		a.logger.Sugar().Errorw("solver objective disagrees with audit", "error", result.Mismatch)
	}
	return nil
}
