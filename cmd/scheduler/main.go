package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lesson-scheduler",
	Short: "Lesson timetabling on a pseudo-Boolean solver",
	Long: `lesson-scheduler assigns pupils to an instructor's free time slots.

Availability tables and objective options are compiled to an OPB instance
and solved by an external PBO solver. Runs are served over HTTP, processed
by background workers, or solved once from the command line.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(solveCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(rerunCmd())
	rootCmd.AddCommand(statusCmd())
}
