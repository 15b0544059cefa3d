package wsalg_test

import (
	"testing"

	"github.com/mikewadsten/wisun-router/internal/wsalg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertionMap(t *testing.T) {
	t.Parallel()

	m := wsalg.NewInsertionMap[string, int]()
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)
	m.Set("a", 10) // Re-set must not move "a".

	require.Equal(t, 3, m.Len())

	var order []string
	m.Range(func(k string, v int) bool {
		order = append(order, k)
		return true
	})
	assert.Equal(t, []string{"b", "a", "c"}, order)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	m.Del("b")
	assert.Equal(t, 2, m.Len())

	k, _, ok := m.Oldest()
	require.True(t, ok)
	assert.Equal(t, "a", k)
}
