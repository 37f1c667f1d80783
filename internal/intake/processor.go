package intake

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	"github.com/carbon-drive/3d-mapping/internal/scene"
)

// MaxImageSize is the largest accepted image file, in bytes.
const MaxImageSize = 10 << 20

// MaxImagePixels caps width*height, read from the header before any full
// decode. It matches Pillow's MAX_IMAGE_PIXELS.
const MaxImagePixels = 89_478_485

// SupportedExtensions lists the accepted file extensions (lower case).
var SupportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
}

var (
	ErrNotFound          = errors.New("file does not exist")
	ErrUnsupportedFormat = errors.New("unsupported file extension")
	ErrTooLarge          = errors.New("file exceeds size limit")
	ErrCorrupt           = errors.New("file is not a decodable image")
	ErrInvalidFilename   = errors.New("invalid filename")
)

// Processor validates and decodes images stored under an upload directory.
type Processor struct {
	uploadDir string
	maxSize   int64
	maxPixels int
	logger    *zap.Logger
}

// New creates a Processor, creating uploadDir if it does not exist.
func New(uploadDir string, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Processor{
		uploadDir: uploadDir,
		maxSize:   MaxImageSize,
		maxPixels: MaxImagePixels,
		logger:    logger.Named("intake"),
	}, nil
}

// UploadDir returns the directory uploads are written to.
func (p *Processor) UploadDir() string {
	return p.uploadDir
}

// Check returns nil when path is an acceptable image, or the reason it is not.
func (p *Processor) Check(path string) error {
	_, err := p.open(path)
	return err
}

// ValidateImage reports whether path passes every intake check.
func (p *Processor) ValidateImage(path string) bool {
	return p.Check(path) == nil
}

// LoadImage decodes path into an RGB pixel buffer. The second result is false
// when the file cannot be decoded; the reason is logged.
func (p *Processor) LoadImage(path string) (scene.Pixels, bool) {
	if err := p.checkDimensions(path); err != nil {
		p.logger.Warn("load image failed", zap.String("path", path), zap.Error(err))
		return scene.Pixels{}, false
	}
	img, err := imaging.Open(path)
	if err != nil {
		p.logger.Warn("load image failed", zap.String("path", path), zap.Error(err))
		return scene.Pixels{}, false
	}
	return p.pixels(path, img)
}

// open runs every intake check and returns the decoded image.
func (p *Processor) open(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if info.Size() > p.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), p.maxSize)
	}

	if err := p.checkDimensions(path); err != nil {
		return nil, err
	}

	// A full decode catches truncated payloads that a header sniff would miss.
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return img, nil
}

// checkDimensions reads only the image header and rejects pixel counts above
// the ceiling.
func (p *Processor) checkDimensions(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ErrNotFound
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty image", ErrCorrupt)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(p.maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, p.maxPixels)
	}
	return nil
}

func (p *Processor) pixels(path string, img image.Image) (scene.Pixels, bool) {
	px := toRGB(img)
	if px.Empty() {
		p.logger.Warn("load image failed", zap.String("path", path), zap.String("reason", "empty image"))
		return scene.Pixels{}, false
	}
	return px, true
}

// PreprocessImages decodes every acceptable path, in order. Rejected paths are
// returned alongside with the reason they were dropped.
func (p *Processor) PreprocessImages(paths []string) ([]scene.View, []scene.Skip) {
	views := make([]scene.View, 0, len(paths))
	var skipped []scene.Skip

	for _, path := range paths {
		img, err := p.open(path)
		if err != nil {
			p.logger.Info("skipping invalid image", zap.String("path", path), zap.Error(err))
			skipped = append(skipped, scene.Skip{Path: filepath.Base(path), Reason: err.Error(), Err: err})
			continue
		}

		px, ok := p.pixels(path, img)
		if !ok {
			skipped = append(skipped, scene.Skip{Path: filepath.Base(path), Reason: ErrCorrupt.Error(), Err: ErrCorrupt})
			continue
		}
		views = append(views, scene.View{Pixels: px, SourcePath: path})
	}

	return views, skipped
}

// Kind maps an intake error to a short, stable label.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrInvalidFilename):
		return "invalid_filename"
	}
	return "other"
}

// toRGB flattens any color model to 8-bit RGB, dropping alpha.
func toRGB(img image.Image) scene.Pixels {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	px := scene.NewPixels(b.Dx(), b.Dy())

	for y := 0; y < b.Dy(); y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+b.Dx()*4]
		dst := px.Pix[y*b.Dx()*3 : (y+1)*b.Dx()*3]
		for x := 0; x < b.Dx(); x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return px
}
