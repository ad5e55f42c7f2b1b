package diag

import (
	"cmp"
	"slices"
)

// Bag collects diagnostics up to a cap. It is not safe for concurrent use;
// the driver's consumer goroutine owns it.
type Bag struct {
	items   []Diagnostic
	max     int
	dropped int
}

// NewBag returns a bag that keeps at most max diagnostics; max <= 0 means
// no cap.
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add stores d and reports whether it fit under the cap.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Dropped counts diagnostics rejected by the cap.
func (b *Bag) Dropped() int { return b.dropped }

func (b *Bag) Len() int { return len(b.items) }

// Items returns the stored diagnostics. The slice aliases the bag.
func (b *Bag) Items() []Diagnostic { return b.items }

// Count returns how many stored diagnostics have severity sev or higher.
func (b *Bag) Count(sev Severity) int {
	n := 0
	for i := range b.items {
		if b.items[i].Severity >= sev {
			n++
		}
	}
	return n
}

func (b *Bag) HasErrors() bool { return b.Count(SevError) > 0 }

// Merge appends other's diagnostics, growing the cap to fit.
func (b *Bag) Merge(other *Bag) {
	if b.max > 0 && len(b.items)+len(other.items) > b.max {
		b.max = len(b.items) + len(other.items)
	}
	b.items = append(b.items, other.items...)
	b.dropped += other.dropped
}

// Sort orders by input, then severity (errors first), then code.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		if c := cmp.Compare(x.Input, y.Input); c != 0 {
			return c
		}
		if x.Severity != y.Severity {
			return cmp.Compare(y.Severity, x.Severity)
		}
		return cmp.Compare(x.Code, y.Code)
	})
}
