package main

import (
	"testing"
)

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*workloadFlags)
		verbose     bool
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "young cycles",
			wantContain: []string{"GC statistics", "young", "count=4", "Heap", "regions="},
		},
		{
			name:        "mixed with incremental marking",
			mutate:      func(f *workloadFlags) { f.gcType = "mixed"; f.incremental = true; f.cycles = 10 },
			wantContain: []string{"GC statistics", "full", "remark"},
		},
		{
			name:        "verbose cycles",
			verbose:     true,
			wantContain: []string{"Running 4 cycles", "cycle 0: young", "cycle 3: young"},
		},
		{
			name:        "single threaded full",
			mutate:      func(f *workloadFlags) { f.gcType = "full"; f.threads = 1; f.parallel = false },
			wantContain: []string{"full   count=4"},
		},
		{
			name:    "unknown gc type",
			mutate:  func(f *workloadFlags) { f.gcType = "medium" },
			wantErr: true,
		},
		{
			name:    "unknown growing type",
			mutate:  func(f *workloadFlags) { f.growing = "fast" },
			wantErr: true,
		},
		{
			name:    "bad semi space",
			mutate:  func(f *workloadFlags) { f.semiMaxMB = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			verbose = tt.verbose
			f := smallWorkload()
			if tt.mutate != nil {
				tt.mutate(&f)
			}

			output, err := captureOutput(t, func() error {
				return runRun(&f)
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("runRun() error = %v, wantErr %v\nOutput: %s", err, tt.wantErr, output)
			}
			assertContains(t, output, tt.wantContain)
		})
	}
}

func TestRunCommand_JSON(t *testing.T) {
	resetFlags()
	jsonOut = true
	f := smallWorkload()
	f.gcType = "mixed"

	output, err := captureOutput(t, func() error {
		return runRun(&f)
	})
	if err != nil {
		t.Fatalf("runRun() error = %v", err)
	}

	var result runResult
	assertJSON(t, output, &result)
	if len(result.Cycles) != f.cycles {
		t.Fatalf("got %d cycle reports, want %d", len(result.Cycles), f.cycles)
	}
	for _, c := range result.Cycles {
		if c.Survived+c.Freed != c.Before {
			t.Errorf("cycle %d: survived %d + freed %d != before %d", c.Cycle, c.Survived, c.Freed, c.Before)
		}
	}
	if got := result.Stats.Young.Count + result.Stats.Old.Count + result.Stats.Full.Count; got < f.cycles {
		t.Errorf("stats recorded %d collections, want at least %d", got, f.cycles)
	}
	if result.Heap.Regions == 0 {
		t.Error("heap summary reports no regions")
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	resetFlags()
	quiet = true
	f := smallWorkload()

	output, err := captureOutput(t, func() error {
		return runRun(&f)
	})
	if err != nil {
		t.Fatalf("runRun() error = %v", err)
	}
	if output != "" {
		t.Errorf("quiet run printed output: %s", output)
	}
}
