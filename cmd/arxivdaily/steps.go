package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

var (
	stepsPipeline string
	stepsDate     string
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List pipeline steps, their output markers and completion for a date",
	RunE:  runSteps,
}

func init() {
	stepsCmd.Flags().StringVar(&stepsPipeline, "pipeline", "default", "Pipeline to list")
	stepsCmd.Flags().StringVar(&stepsDate, "date", "", "Run date (default today)")
	rootCmd.AddCommand(stepsCmd)
}

func runSteps(_ *cobra.Command, _ []string) error {
	orch, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	steps, err := orch.Registry().Pipeline(stepsPipeline)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(orch.Registry().Pipelines(), ", "))
	}
	date := stepsDate
	if date == "" {
		date = model.Today(time.Now())
	}
	if !model.ValidDate(date) {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tDONE\tMODULE\tOUTPUT")
	for i, s := range steps {
		done := "-"
		if orch.MarkerExists(s, date) {
			done = "yes"
		}
		marker := s.OutputMarker(date)
		if marker == "" {
			marker = "(none)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Name, done, s.Module, marker)
	}
	return tw.Flush()
}
