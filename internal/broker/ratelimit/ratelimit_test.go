package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerIPAllowsUpToBurst(t *testing.T) {
	lim := NewPerIP(Config{Max: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow("1.2.3.4"))
	}
	assert.False(t, lim.Allow("1.2.3.4"))
}

func TestPerIPBucketsAreIndependent(t *testing.T) {
	lim := NewPerIP(Config{Max: 1, Window: time.Minute})

	assert.True(t, lim.Allow("1.2.3.4"))
	assert.False(t, lim.Allow("1.2.3.4"))
	assert.True(t, lim.Allow("5.6.7.8"), "a different source IP must have its own bucket")
}
