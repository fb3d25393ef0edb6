package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	m := NewManual(1_700_000_000)
	assert.Equal(t, uint32(1_700_000_000), m.Now())

	m.Advance(60)
	assert.Equal(t, uint32(1_700_000_060), m.Now())

	m.Set(5)
	assert.Equal(t, uint32(5), m.Now())
}

func TestSystem(t *testing.T) {
	before := time.Now().Unix()
	now := int64(System{}.Now())
	assert.GreaterOrEqual(t, now, before)
	assert.LessOrEqual(t, now, time.Now().Unix())
}
