package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_SeekByClamps(t *testing.T) {
	var p Position
	assert.Equal(t, int64(40), p.SeekBy(40, 100))
	assert.Equal(t, int64(100), p.SeekBy(500, 100))
	assert.Equal(t, int64(0), p.SeekBy(-500, 100))
}

func TestPosition_Clamp(t *testing.T) {
	var p Position
	p.Store(250)
	assert.Equal(t, int64(100), p.Clamp(100))
	assert.Equal(t, int64(100), p.Load())

	p.Store(-5)
	assert.Equal(t, int64(0), p.Load())
}

func TestPosition_AdvanceLosesToStore(t *testing.T) {
	var p Position
	p.Store(10)
	assert.True(t, p.Advance(10, 20))
	p.Store(3)
	assert.False(t, p.Advance(20, 30))
	assert.Equal(t, int64(3), p.Load())
}
