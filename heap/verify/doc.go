// Package verify cross-checks heap integrity around a collection.
//
// # Overview
//
// Verification walks roots, every live object and every old-generation
// remembered set, and checks each outgoing reference against the invariants
// the collector relies on. Failures are diagnostic: they are counted, kept
// as *Failure values and logged at warn level, but never abort the process.
// A caller that wants a hard failure asserts on the returned count.
//
// # Checks
//
// Every non-null reference must:
//   - land in a live region ("dangling")
//   - not point at a filler ("filler")
//   - not point at a forwarded object ("forwarded")
//
// After a collection, no reference may point into a from-space region
// ("from-space"). Before one, every young-to-young reference crossing
// regions must be in the source region's cross-region set
// ("cross-region").
//
// VerifyOldToNewRSet checks that every old-to-young reference is in the
// source region's old-to-new set ("old-to-new"), and that read-only
// regions never reference the young generation ("read-only").
//
// # Quick Start
//
//	v := verify.New(h, verify.PostGC)
//	if n := v.VerifyAll(); n != 0 {
//	    for _, f := range v.Failures() {
//	        fmt.Println(f)
//	    }
//	}
package verify
