package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/regionheap/heap"
	"github.com/joshuapare/regionheap/heap/verify"
)

var (
	verifyFlags     = defaultWorkloadFlags()
	verifyNoBarrier bool
)

func init() {
	cmd := newVerifyCmd()
	addWorkloadFlags(cmd, &verifyFlags)
	cmd.Flags().BoolVar(&verifyNoBarrier, "no-barrier", false,
		"Store old-to-young references without the write barrier (expected to fail)")
	rootCmd.AddCommand(cmd)
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify heap invariants around every collection",
		Long: `The verify command runs the synthetic workload with heap verification
before and after every collection. It checks that no reference dangles or
points into evacuated or free space, and that every old-to-young reference
is remembered. The command fails when any check fails.

Example:
  gcctl verify
  gcctl verify --type mixed --cycles 20
  gcctl verify --no-barrier`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(&verifyFlags)
		},
	}
	return cmd
}

type verifyResult struct {
	Cycles   int           `json:"cycles"`
	Failures int           `json:"failures"`
	Valid    bool          `json:"valid"`
	Samples  []string      `json:"samples,omitempty"`
	Reports  []cycleReport `json:"reports"`
}

func runVerify(f *workloadFlags) error {
	opts, err := f.options()
	if err != nil {
		return err
	}
	opts.VerifyHeap = true
	h, err := heap.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create heap: %w", err)
	}
	defer h.Close()

	printVerbose("Verifying %d cycles of %d objects (type=%s)\n", f.cycles, f.objects, f.gcType)

	w := newWorkload(f, h)
	w.noBarrier = verifyNoBarrier
	result := verifyResult{}
	for i := range f.cycles {
		if err := w.allocate(i); err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
		// Catch failures the collection itself would mask.
		if v := h.Verification(verify.PreGC); v.FailCount() > 0 {
			result.Failures += v.FailCount()
			for _, fail := range v.Failures() {
				if len(result.Samples) < 5 {
					result.Samples = append(result.Samples, fail.Error())
				}
			}
		}
		c, err := w.collect(i)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
		result.Failures += c.VerifyFailures
		result.Reports = append(result.Reports, newCycleReport(i, c, h))
		result.Cycles++
		printVerbose("  cycle %d: %s failures=%d\n", i, c.Type, c.VerifyFailures)
		if result.Failures > 0 {
			break
		}
	}
	result.Valid = result.Failures == 0

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printInfo("\nVerified %d cycles\n", result.Cycles)
		for _, s := range result.Samples {
			printInfo("  ✗ %s\n", s)
		}
		if result.Valid {
			printInfo("\nResult: ✓ VALID\n")
		} else {
			printInfo("\nResult: ✗ INVALID (%d failures)\n", result.Failures)
		}
	}
	if !result.Valid {
		return fmt.Errorf("heap verification failed: %d failures", result.Failures)
	}
	return nil
}
