package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaGenerations(t *testing.T) {
	var a Arena[string]

	k1 := a.Insert("one")
	k2 := a.Insert("two")
	assert.Equal(t, 2, a.Len())

	v, ok := a.Get(k1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	assert.True(t, a.Remove(k1))
	assert.False(t, a.Remove(k1))
	_, ok = a.Get(k1)
	assert.False(t, ok)

	// the freed slot is reused under a new generation
	k3 := a.Insert("three")
	assert.Equal(t, k1.slot, k3.slot)
	assert.NotEqual(t, k1, k3)
	assert.Nil(t, a.Ptr(k1))
	assert.Equal(t, "three", *a.Ptr(k3))
	assert.Equal(t, "two", *a.Ptr(k2))
	assert.Nil(t, a.Ptr(Key{}))
	assert.Equal(t, 2, a.Len())
}
