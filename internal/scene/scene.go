// Package scene holds the values passed between image intake, reconstruction
// and the HTTP layer: decoded views, per-view depth maps and camera poses.
package scene

// Pixels is a decoded RGB image stored row-major, three bytes per pixel.
type Pixels struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixels allocates a zeroed RGB buffer of the given size.
func NewPixels(width, height int) Pixels {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Pixels{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// Empty reports whether either dimension is zero.
func (p Pixels) Empty() bool {
	return p.Width <= 0 || p.Height <= 0
}

// Shape returns height, width and channel count, in that order.
func (p Pixels) Shape() (int, int, int) {
	return p.Height, p.Width, 3
}

// At returns the RGB triple at (x, y). Out-of-range coordinates yield zeros.
func (p Pixels) At(x, y int) [3]uint8 {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return [3]uint8{}
	}
	i := (y*p.Width + x) * 3
	return [3]uint8{p.Pix[i], p.Pix[i+1], p.Pix[i+2]}
}

// View is one accepted input image.
type View struct {
	Pixels     Pixels
	SourcePath string
}

// DepthMap holds one depth value per pixel of the view it was derived from.
type DepthMap struct {
	Width  int
	Height int
	Values []float32
}

// NewDepthMap returns a zero-filled depth map.
func NewDepthMap(width, height int) DepthMap {
	return DepthMap{Width: width, Height: height, Values: make([]float32, width*height)}
}

// At returns the depth at (x, y). Out-of-range coordinates yield zero.
func (d DepthMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	return d.Values[y*d.Width+x]
}

// Pose is a homogeneous 4x4 camera-to-world transform.
type Pose [4][4]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	var p Pose
	for i := 0; i < 4; i++ {
		p[i][i] = 1
	}
	return p
}

// Rotation returns the upper-left 3x3 block.
func (p Pose) Rotation() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = p[i][j]
		}
	}
	return r
}

// Translation returns the x, y, z components of the last column.
func (p Pose) Translation() [3]float64 {
	return [3]float64{p[0][3], p[1][3], p[2][3]}
}

// Skip records why an input path was excluded from a batch.
type Skip struct {
	Path   string `json:"file"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}
