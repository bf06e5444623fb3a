package main

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/regionheap/heap"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/format"
)

// workloadFlags are shared by run and verify.
type workloadFlags struct {
	cycles      int
	objects     int
	fields      int
	raw         int
	retain      float64
	maxRoots    int
	oldEvery    int
	gcType      string
	incremental bool
	seed        uint64

	semiInitialMB int
	semiMaxMB     int
	oldMaxMB      int
	threads       int
	parallel      bool
	growing       string
}

func defaultWorkloadFlags() workloadFlags {
	return workloadFlags{
		cycles:        10,
		objects:       10000,
		fields:        2,
		raw:           16,
		retain:        0.1,
		maxRoots:      5000,
		oldEvery:      100,
		gcType:        "young",
		seed:          1,
		semiInitialMB: 1,
		semiMaxMB:     4,
		oldMaxMB:      64,
		threads:       heap.DefaultOptions().GCThreadNum,
		parallel:      true,
		growing:       "conservative",
	}
}

func addWorkloadFlags(cmd *cobra.Command, f *workloadFlags) {
	d := defaultWorkloadFlags()
	fs := cmd.Flags()
	fs.IntVar(&f.cycles, "cycles", d.cycles, "Number of collection cycles")
	fs.IntVar(&f.objects, "objects", d.objects, "Objects allocated per cycle")
	fs.IntVar(&f.fields, "fields", d.fields, "Pointer fields per object")
	fs.IntVar(&f.raw, "raw", d.raw, "Raw payload bytes per object")
	fs.Float64Var(&f.retain, "retain", d.retain, "Fraction of objects kept alive by a root")
	fs.IntVar(&f.maxRoots, "max-roots", d.maxRoots, "Oldest roots are released beyond this count")
	fs.IntVar(&f.oldEvery, "old-every", d.oldEvery, "Allocate every Nth object in the old space (0 disables)")
	fs.StringVar(&f.gcType, "type", d.gcType, "Collection type per cycle (young, old, full, mixed)")
	fs.BoolVar(&f.incremental, "incremental", false, "Mark old collections incrementally")
	fs.Uint64Var(&f.seed, "seed", d.seed, "Workload random seed")
	fs.IntVar(&f.semiInitialMB, "semi-initial", d.semiInitialMB, "Initial semi space capacity in MiB")
	fs.IntVar(&f.semiMaxMB, "semi-max", d.semiMaxMB, "Maximum semi space capacity in MiB")
	fs.IntVar(&f.oldMaxMB, "old-max", d.oldMaxMB, "Maximum old space capacity in MiB")
	fs.IntVar(&f.threads, "threads", d.threads, "Collector threads, the mutator included")
	fs.BoolVar(&f.parallel, "parallel", d.parallel, "Let worker threads help collect")
	fs.StringVar(&f.growing, "growing", d.growing, "Semi space growing type (conservative, high-throughput, pressure)")
}

func parseGCType(s string) (work.GCType, error) {
	switch strings.ToLower(s) {
	case "young":
		return work.YoungGC, nil
	case "old":
		return work.OldGC, nil
	case "full":
		return work.FullGC, nil
	default:
		return 0, fmt.Errorf("unknown gc type: %s (must be young, old, full, or mixed)", s)
	}
}

func parseGrowingType(s string) (heap.GrowingType, error) {
	switch strings.ToLower(s) {
	case "conservative":
		return heap.Conservative, nil
	case "high-throughput":
		return heap.HighThroughput, nil
	case "pressure":
		return heap.Pressure, nil
	default:
		return 0, fmt.Errorf("unknown growing type: %s (must be conservative, high-throughput, or pressure)", s)
	}
}

func (f *workloadFlags) options() (*heap.Options, error) {
	growing, err := parseGrowingType(f.growing)
	if err != nil {
		return nil, err
	}
	if f.semiInitialMB <= 0 || f.semiMaxMB < f.semiInitialMB {
		return nil, fmt.Errorf("invalid semi space capacities: initial=%d max=%d", f.semiInitialMB, f.semiMaxMB)
	}
	opts := heap.DefaultOptions()
	opts.SemiSpaceInitialCapacity = f.semiInitialMB * format.MB
	opts.SemiSpaceMinimumCapacity = min(opts.SemiSpaceMinimumCapacity, opts.SemiSpaceInitialCapacity)
	opts.SemiSpaceMaximumCapacity = f.semiMaxMB * format.MB
	opts.OldSpaceMaximumCapacity = f.oldMaxMB * format.MB
	opts.GCThreadNum = f.threads
	opts.ParallelGC = f.parallel
	opts.GrowingType = growing
	return opts, nil
}

// cycleType returns the collection type for cycle i.
func (f *workloadFlags) cycleType(i int) (work.GCType, error) {
	if strings.ToLower(f.gcType) != "mixed" {
		return parseGCType(f.gcType)
	}
	switch {
	case i%10 == 9:
		return work.FullGC, nil
	case i%4 == 3:
		return work.OldGC, nil
	default:
		return work.YoungGC, nil
	}
}

// workload allocates a random object graph cycle by cycle.
type workload struct {
	f     *workloadFlags
	h     *heap.Heap
	rng   *rand.Rand
	roots []heap.Root

	// noBarrier stores old-to-young references without the write barrier.
	noBarrier bool
}

func newWorkload(f *workloadFlags, h *heap.Heap) *workload {
	return &workload{f: f, h: h, rng: rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))}
}

// allocate runs one cycle's worth of mutator work. Ahead of an incremental
// old collection the mark is started first and stepped per allocation.
func (w *workload) allocate(cycle int) error {
	gcType, err := w.f.cycleType(cycle)
	if err != nil {
		return err
	}
	if w.f.incremental && gcType == work.OldGC && !w.h.IsMarking() {
		if err := w.h.StartIncrementalMark(); err != nil {
			return err
		}
	}
	for i := range w.f.objects {
		var (
			obj allocation
			err error
		)
		if w.f.oldEvery > 0 && i%w.f.oldEvery == w.f.oldEvery-1 {
			obj.addr, err = w.h.AllocateOld(w.f.fields, w.f.raw)
			obj.old = true
		} else {
			obj.addr, err = w.h.Allocate(w.f.fields, w.f.raw)
		}
		if err != nil {
			return fmt.Errorf("allocate object %d: %w", i, err)
		}
		if w.f.fields > 0 && len(w.roots) > 0 {
			target := w.h.Root(w.roots[w.rng.IntN(len(w.roots))])
			if err := w.link(obj, target); err != nil {
				return err
			}
		}
		if w.rng.Float64() < w.f.retain {
			w.roots = append(w.roots, w.h.NewRoot(obj.addr))
		}
		if w.h.IsMarking() {
			w.h.IncrementalMarkStep(64)
		}
	}
	for len(w.roots) > w.f.maxRoots {
		if err := w.h.ReleaseRoot(w.roots[0]); err != nil {
			return err
		}
		w.roots = w.roots[1:]
	}
	return nil
}

type allocation struct {
	addr region.Addr
	old  bool
}

func (w *workload) link(obj allocation, target region.Addr) error {
	field := w.rng.IntN(w.f.fields)
	if w.noBarrier && obj.old && w.h.Lookup(target).InYoungGeneration() {
		return w.h.SetFieldNoBarrier(obj.addr, field, target)
	}
	if w.rng.IntN(8) == 0 {
		return w.h.SetWeakField(obj.addr, field, target)
	}
	return w.h.SetField(obj.addr, field, target)
}

// collect runs cycle i's collection.
func (w *workload) collect(i int) (heap.Cycle, error) {
	gcType, err := w.f.cycleType(i)
	if err != nil {
		return heap.Cycle{}, err
	}
	if err := w.h.CollectGarbage(gcType); err != nil {
		return heap.Cycle{}, err
	}
	return w.h.LastCycle(), nil
}
