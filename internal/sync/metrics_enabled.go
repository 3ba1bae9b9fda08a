//go:build sshmux.sync.metrics

package sync

import (
	"sync/atomic"
)

// metrics counts the Get calls of a pool, and how many of them reused a pooled value.
type metrics struct {
	gets   atomic.Uint64
	reused atomic.Uint64
}

func (m *metrics) hit() {
	m.gets.Add(1)
	m.reused.Add(1)
}

func (m *metrics) miss() {
	m.gets.Add(1)
}

// Hits returns how many Get calls reused a pooled value, out of total Get calls.
// The two loads are not atomic together, so hits may briefly lag total.
func (m *metrics) Hits() (hits, total uint64) {
	total = m.gets.Load()
	return min(m.reused.Load(), total), total
}
