// Package bypass holds the process-wide table of per-policy override
// flags. An external subsystem (thermal guard, user override) sets a
// flag to suspend automatic frequency control for one domain while the
// governor keeps tracking its intended target.
package bypass

import (
	"sync"
	"sync/atomic"
)

// Table maps a policy ID to an independently owned atomic flag. It is
// created before any domain processes its first tick; readers load
// flags without blocking while an external policy thread stores them.
type Table struct {
	flags sync.Map
}

func NewTable() *Table {
	return &Table{}
}

// Flag returns the flag for a policy, creating it unset on first use.
// The returned pointer is stable for the process lifetime.
func (t *Table) Flag(policyID int) *atomic.Bool {
	value, _ := t.flags.LoadOrStore(policyID, &atomic.Bool{})
	return value.(*atomic.Bool)
}

// Get returns the flag for a policy without creating one.
func (t *Table) Get(policyID int) (*atomic.Bool, bool) {
	value, found := t.flags.Load(policyID)
	if !found {
		return nil, false
	}
	return value.(*atomic.Bool), true
}

// Set toggles suppression of writes for a policy.
func (t *Table) Set(policyID int, bypassed bool) {
	t.Flag(policyID).Store(bypassed)
}
