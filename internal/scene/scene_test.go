package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPixels_At(t *testing.T) {
	p := NewPixels(4, 2)
	assert.False(t, p.Empty())
	assert.Len(t, p.Pix, 4*2*3)

	i := (1*4 + 3) * 3
	copy(p.Pix[i:], []uint8{10, 20, 30})
	assert.Equal(t, [3]uint8{10, 20, 30}, p.At(3, 1))
	assert.Equal(t, [3]uint8{}, p.At(0, 0))
	assert.Equal(t, [3]uint8{}, p.At(9, 9))
	assert.Equal(t, [3]uint8{}, p.At(-1, 0))

	h, w, c := p.Shape()
	assert.Equal(t, []int{2, 4, 3}, []int{h, w, c})
}

func TestPixels_Empty(t *testing.T) {
	assert.True(t, Pixels{}.Empty())
	assert.True(t, NewPixels(0, 10).Empty())
	assert.True(t, NewPixels(-1, 10).Empty())
}

func TestPose_IdentityParts(t *testing.T) {
	p := IdentityPose()
	p[0][3] = 0.3

	assert.Equal(t, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, p.Rotation())
	assert.Equal(t, [3]float64{0.3, 0, 0}, p.Translation())
	assert.Equal(t, 1.0, p[3][3])
}

func TestDepthMap_ZeroFilled(t *testing.T) {
	d := NewDepthMap(3, 2)
	assert.Len(t, d.Values, 6)
	assert.Equal(t, float32(0), d.At(2, 1))

	d.Values[1*3+2] = 1.5
	assert.Equal(t, float32(1.5), d.At(2, 1))

	// out of range yields zero, matching Pixels.At
	assert.Equal(t, float32(0), d.At(3, 0))
	assert.Equal(t, float32(0), d.At(0, 2))
	assert.Equal(t, float32(0), d.At(-1, 0))
}
