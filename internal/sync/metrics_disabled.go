//go:build !sshmux.sync.metrics

package sync

// metrics is a no-op unless built with the "sshmux.sync.metrics" tag.
type metrics struct{}

func (m *metrics) hit()  {}
func (m *metrics) miss() {}

// Hits always reports zero, since counting is compiled out.
// Build with the tag "sshmux.sync.metrics" to count pool reuse.
func (m *metrics) Hits() (hits, total uint64) {
	return 0, 0
}
