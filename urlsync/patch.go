package urlsync

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/huykn/query-cache/location"
)

type patchState int

const (
	patchOpen patchState = iota
	patchCommitted
	patchDiscarded
)

func (s patchState) String() string {
	switch s {
	case patchOpen:
		return "open"
	case patchCommitted:
		return "committed"
	case patchDiscarded:
		return "discarded"
	}
	return "unknown"
}

// PendingPatch collects the query changes of one synchronization cycle.
// It records keys to set and keys to delete; later writes to the same key
// replace earlier ones.
type PendingPatch struct {
	set    url.Values
	del    map[string]struct{}
	merges int
	state  patchState
}

func newPendingPatch() *PendingPatch {
	return &PendingPatch{
		set: url.Values{},
		del: make(map[string]struct{}),
	}
}

// Merge adds the changes of one binding to the patch.
func (p *PendingPatch) Merge(set url.Values, del []string) error {
	if p.state != patchOpen {
		return fmt.Errorf("%w: merge into %s patch", ErrInvariantViolation, p.state)
	}
	for k, v := range set {
		p.set[k] = slices.Clone(v)
		delete(p.del, k)
	}
	for _, k := range del {
		delete(p.set, k)
		p.del[k] = struct{}{}
	}
	p.merges++
	return nil
}

// Apply returns base with the patch applied. base is not modified.
func (p *PendingPatch) Apply(base url.Values) url.Values {
	out := location.Clone(base)
	for k := range p.del {
		out.Del(k)
	}
	for k, v := range p.set {
		out[k] = slices.Clone(v)
	}
	return out
}

// Merges returns how many writes were merged into the patch.
func (p *PendingPatch) Merges() int {
	return p.merges
}

// Empty reports whether the patch changes nothing.
func (p *PendingPatch) Empty() bool {
	return len(p.set) == 0 && len(p.del) == 0
}
