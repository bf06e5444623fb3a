package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/regionheap/heap"
	"github.com/joshuapare/regionheap/heap/stats"
)

var runFlags = defaultWorkloadFlags()

func init() {
	cmd := newRunCmd()
	addWorkloadFlags(cmd, &runFlags)
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload and print collection statistics",
		Long: `The run command allocates a random object graph, collecting after every
cycle, and prints per-kind statistics and a heap summary.

Example:
  gcctl run
  gcctl run --cycles 50 --objects 20000 --retain 0.2
  gcctl run --type mixed --incremental --threads 4
  gcctl run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(&runFlags)
		},
	}
	return cmd
}

// cycleReport is the JSON form of one collection.
type cycleReport struct {
	Cycle          int           `json:"cycle"`
	Type           string        `json:"type"`
	Incremental    bool          `json:"incremental"`
	Duration       time.Duration `json:"duration_ns"`
	Before         int           `json:"before"`
	Survived       int           `json:"survived"`
	Promoted       int           `json:"promoted"`
	Freed          int           `json:"freed"`
	OldFreed       int           `json:"old_freed"`
	RetiredRegions int           `json:"retired_regions"`
	VerifyFailures int           `json:"verify_failures"`
	SemiCapacity   int           `json:"semi_capacity"`
}

func newCycleReport(i int, c heap.Cycle, h *heap.Heap) cycleReport {
	return cycleReport{
		Cycle:          i,
		Type:           c.Type.String(),
		Incremental:    c.Incremental,
		Duration:       c.Duration,
		Before:         c.Before,
		Survived:       c.Survived,
		Promoted:       c.Promoted,
		Freed:          c.Freed,
		OldFreed:       c.OldFreed,
		RetiredRegions: c.RetiredRegions,
		VerifyFailures: c.VerifyFailures,
		SemiCapacity:   h.ActiveSemiSpace().InitialCapacity(),
	}
}

type runResult struct {
	Cycles []cycleReport     `json:"cycles"`
	Stats  stats.Snapshot    `json:"stats"`
	Heap   stats.HeapSummary `json:"heap"`
}

func runRun(f *workloadFlags) error {
	opts, err := f.options()
	if err != nil {
		return err
	}
	h, err := heap.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create heap: %w", err)
	}
	defer h.Close()

	printVerbose("Running %d cycles of %d objects (type=%s, threads=%d)\n",
		f.cycles, f.objects, f.gcType, opts.GCThreadNum)

	w := newWorkload(f, h)
	result := runResult{Cycles: make([]cycleReport, 0, f.cycles)}
	for i := range f.cycles {
		if err := w.allocate(i); err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
		c, err := w.collect(i)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
		rep := newCycleReport(i, c, h)
		result.Cycles = append(result.Cycles, rep)
		printVerbose("  cycle %d: %s %v before=%d survived=%d promoted=%d freed=%d\n",
			i, rep.Type, c.Duration, c.Before, c.Survived, c.Promoted, c.Freed)
	}
	result.Stats = h.Stats().Snapshot()
	result.Heap = h.Summary()

	if jsonOut {
		return printJSON(result)
	}
	if quiet {
		return nil
	}
	if err := h.Stats().PrintStatisticResult(os.Stdout, true); err != nil {
		return err
	}
	return h.Stats().PrintHeapStatisticResult(os.Stdout, result.Heap)
}
