// Package stats records collection telemetry. It is a pure observer: the
// collector reports finished phases and the numbers never feed back into
// collector decisions.
package stats

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind is a collection kind.
type Kind uint8

const (
	// Young is a semi-space evacuation.
	Young Kind = iota
	// Old is the mixed collection: an old-space mark and sweep followed by
	// a young evacuation. It is reported as "mixed".
	Old
	// Full is a mixed collection that promotes every young survivor.
	Full
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Young:
		return "young"
	case Old:
		return "mixed"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Phase is a concurrent-mark sub-phase.
type Phase uint8

const (
	Mark Phase = iota
	Wait
	Remark
	Evacuate
	numPhases
)

func (p Phase) String() string {
	switch p {
	case Mark:
		return "mark"
	case Wait:
		return "wait"
	case Remark:
		return "remark"
	case Evacuate:
		return "evacuate"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Bytes are the byte counts of one collection.
type Bytes struct {
	Before   int64 `json:"before"`
	Survived int64 `json:"survived"`
	Promoted int64 `json:"promoted"`
	Freed    int64 `json:"freed"`
}

func (b *Bytes) add(o Bytes) {
	b.Before += o.Before
	b.Survived += o.Survived
	b.Promoted += o.Promoted
	b.Freed += o.Freed
}

// Durations summarizes a series of elapsed times.
type Durations struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Total time.Duration `json:"total_ns"`
}

func (d *Durations) add(v time.Duration) {
	if d.Count == 0 || v < d.Min {
		d.Min = v
	}
	if v > d.Max {
		d.Max = v
	}
	d.Total += v
	d.Count++
}

// Average returns Total/Count, or zero.
func (d Durations) Average() time.Duration {
	if d.Count == 0 {
		return 0
	}
	return d.Total / time.Duration(d.Count)
}

// KindStats is the running record of one collection kind.
type KindStats struct {
	Durations
	Bytes Bytes `json:"bytes"`
}

// Snapshot is a point-in-time copy of every statistic, suitable for JSON.
type Snapshot struct {
	Young  KindStats            `json:"young"`
	Old    KindStats            `json:"old"`
	Full   KindStats            `json:"full"`
	Phases map[string]Durations `json:"phases"`
}

// GCStats accumulates per-kind and per-phase statistics.
//
// Safe for concurrent use.
type GCStats struct {
	mu     sync.Mutex
	kinds  [numKinds]KindStats
	phases [numPhases]Durations
}

// New returns empty statistics.
func New() *GCStats {
	return &GCStats{}
}

func (s *GCStats) record(k Kind, d time.Duration, b Bytes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[k].add(d)
	s.kinds[k].Bytes.add(b)
}

func (s *GCStats) phase(p Phase, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[p].add(d)
}

// StatisticYoungGC records a finished young collection.
func (s *GCStats) StatisticYoungGC(d time.Duration, b Bytes) { s.record(Young, d, b) }

// StatisticOldGC records a finished old collection.
func (s *GCStats) StatisticOldGC(d time.Duration, b Bytes) { s.record(Old, d, b) }

// StatisticFullGC records a finished full collection.
func (s *GCStats) StatisticFullGC(d time.Duration, b Bytes) { s.record(Full, d, b) }

// StatisticConcurrentMark records an incremental mark slice.
func (s *GCStats) StatisticConcurrentMark(d time.Duration) { s.phase(Mark, d) }

// StatisticConcurrentMarkWait records time spent waiting for markers.
func (s *GCStats) StatisticConcurrentMarkWait(d time.Duration) { s.phase(Wait, d) }

// StatisticConcurrentRemark records the final remark pause.
func (s *GCStats) StatisticConcurrentRemark(d time.Duration) { s.phase(Remark, d) }

// StatisticConcurrentEvacuate records the evacuation following a mark.
func (s *GCStats) StatisticConcurrentEvacuate(d time.Duration) { s.phase(Evacuate, d) }

// Count returns the number of collections of kind k.
func (s *GCStats) Count(k Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[k].Count
}

// Kind returns the running record of kind k.
func (s *GCStats) Kind(k Kind) KindStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[k]
}

// Phase returns the running record of phase p.
func (s *GCStats) Phase(p Phase) Durations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phases[p]
}

// Snapshot copies every statistic.
func (s *GCStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Young:  s.kinds[Young],
		Old:    s.kinds[Old],
		Full:   s.kinds[Full],
		Phases: make(map[string]Durations, numPhases),
	}
	for p := Phase(0); p < numPhases; p++ {
		snap.Phases[p.String()] = s.phases[p]
	}
	return snap
}

// Reset clears every statistic.
func (s *GCStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = [numKinds]KindStats{}
	s.phases = [numPhases]Durations{}
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// PrintStatisticResult writes a per-kind summary to w. Unless force is set,
// nothing is written when no collection has been recorded.
func (s *GCStats) PrintStatisticResult(w io.Writer, force bool) error {
	snap := s.Snapshot()
	if !force && snap.Young.Count+snap.Old.Count+snap.Full.Count == 0 {
		return nil
	}
	p := printer()
	if _, err := p.Fprintf(w, "GC statistics\n"); err != nil {
		return err
	}
	for _, ks := range []struct {
		kind Kind
		st   KindStats
	}{{Young, snap.Young}, {Old, snap.Old}, {Full, snap.Full}} {
		st := ks.st
		if _, err := p.Fprintf(w, "  %-6s count=%d  min=%v  max=%v  avg=%v  total=%v\n",
			ks.kind, st.Count, st.Min, st.Max, st.Average(), st.Total); err != nil {
			return err
		}
		if _, err := p.Fprintf(w, "         before=%d  survived=%d  promoted=%d  freed=%d bytes\n",
			st.Bytes.Before, st.Bytes.Survived, st.Bytes.Promoted, st.Bytes.Freed); err != nil {
			return err
		}
	}
	for ph := Phase(0); ph < numPhases; ph++ {
		d := snap.Phases[ph.String()]
		if d.Count == 0 {
			continue
		}
		if _, err := p.Fprintf(w, "  %-8s count=%d  max=%v  total=%v\n", ph, d.Count, d.Max, d.Total); err != nil {
			return err
		}
	}
	return nil
}

// HeapSummary is the space-level picture printed by PrintHeapStatisticResult.
type HeapSummary struct {
	SemiSpaceCapacity  int   `json:"semi_space_capacity"`
	SemiSpaceCommitted int   `json:"semi_space_committed"`
	SemiSpaceObjects   int   `json:"semi_space_objects"`
	OldSpaceCommitted  int   `json:"old_space_committed"`
	OldSpaceObjects    int   `json:"old_space_objects"`
	SnapshotCommitted  int   `json:"snapshot_committed"`
	ReadOnlyCommitted  int   `json:"read_only_committed"`
	Regions            int   `json:"regions"`
	NativeAllocated    int64 `json:"native_allocated"`
}

// PrintHeapStatisticResult writes the heap summary to w.
func (s *GCStats) PrintHeapStatisticResult(w io.Writer, h HeapSummary) error {
	p := printer()
	_, err := p.Fprintf(w, "Heap\n"+
		"  semi space      capacity=%d  committed=%d  objects=%d\n"+
		"  old space       committed=%d  objects=%d\n"+
		"  snapshot space  committed=%d\n"+
		"  read-only space committed=%d\n"+
		"  regions=%d  native=%d bytes\n",
		h.SemiSpaceCapacity, h.SemiSpaceCommitted, h.SemiSpaceObjects,
		h.OldSpaceCommitted, h.OldSpaceObjects,
		h.SnapshotCommitted,
		h.ReadOnlyCommitted,
		h.Regions, h.NativeAllocated)
	return err
}
