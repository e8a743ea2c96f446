package uhdrbake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ijgJPEG builds a fake JPEG whose luminance table is the IJG table for quality q.
func ijgJPEG(q int, precision16 bool) []byte {
	scale := 200 - 2*q
	if q < 50 {
		scale = 5000 / q
	}
	contents := []byte{0}
	if precision16 {
		contents[0] = 0x10
	}
	for _, std := range stdLumaQuant {
		v := (int(std)*scale + 50) / 100
		v = max(1, min(255, v))
		if precision16 {
			contents = append(contents, byte(v>>8))
		}
		contents = append(contents, byte(v))
	}
	return fakeJPEG(segmentBytes(DQT, contents))
}

func TestEstimateJPEGQuality(t *testing.T) {
	for _, q := range []int{30, 50, 75, 90, 95} {
		got, ok := EstimateJPEGQuality(ijgJPEG(q, false))
		require.True(t, ok)
		assert.InDelta(t, q, got, 1, "quality %d", q)

		got, ok = EstimateJPEGQuality(ijgJPEG(q, true))
		require.True(t, ok)
		assert.InDelta(t, q, got, 1, "16-bit quality %d", q)
	}

	got, ok := EstimateJPEGQuality(fakeJPEG())
	require.True(t, ok)
	assert.GreaterOrEqual(t, got, 98)

	low, ok := EstimateJPEGQuality(encodeJPEG(t, gradientImage(16, 16), 40))
	require.True(t, ok)
	high, ok := EstimateJPEGQuality(encodeJPEG(t, gradientImage(16, 16), 95))
	require.True(t, ok)
	assert.Less(t, low, high)

	_, ok = EstimateJPEGQuality([]byte("not a jpeg"))
	assert.False(t, ok)
}
