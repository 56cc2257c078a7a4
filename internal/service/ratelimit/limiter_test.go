package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBucket(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("k", 2, 0))
	assert.True(t, l.Allow("k", 2, 0))
	assert.False(t, l.Allow("k", 2, 0))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
}
