package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	var m Map[uint32, string]

	_, ok := m.Load(1)
	assert.False(t, ok)

	m.Store(1, "one")
	m.Store(2, "two")
	assert.Equal(t, 2, m.Len())

	v, ok := m.Load(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	v, loaded := m.LoadAndDelete(1)
	assert.True(t, loaded)
	assert.Equal(t, "one", v)

	_, loaded = m.LoadAndDelete(1)
	assert.False(t, loaded, "a value is only ever loaded-and-deleted once")

	actual, loaded := m.LoadOrStore(2, "deux")
	assert.True(t, loaded)
	assert.Equal(t, "two", actual)

	seen := map[uint32]string{}
	m.Range(func(k uint32, v string) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[uint32]string{2: "two"}, seen)

	m.Delete(2)
	assert.Equal(t, 0, m.Len())
}
