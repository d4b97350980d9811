// Package images prepares local pictures for upload to note image storage.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned for data which is not a picture we could handle.
var ErrNotImage = errors.New("not a supported image")

// Config controls image preparation.
type Config struct {
	// MaxWidth in pixels, wider pictures are downscaled. Zero disables scaling.
	MaxWidth     int  `yaml:"max_width" validate:"gte=0"`
	JPEGQuality  int  `yaml:"jpeg_quality" validate:"gte=40,lte=100"`
	RasterizeSVG bool `yaml:"rasterize_svg"`
}

// Prepared is picture ready for upload.
type Prepared struct {
	Name     string
	MimeType string
	Data     []byte
	Width    int
	Height   int
	// Changed is set when Data is not original file content.
	Changed bool
}

// formats platform accepts as is
var passthrough = map[string]bool{"jpeg": true, "png": true, "gif": true}

// Prepare checks picture type and converts it to something platform accepts:
// SVG is rasterized, exotic formats are converted to PNG and pictures wider
// than configured maximum are downscaled.
func Prepare(name string, data []byte, cfg Config, log *zap.Logger) (*Prepared, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if IsSVG(data) {
		if !cfg.RasterizeSVG {
			return nil, fmt.Errorf("%s: %w (svg rasterization is off)", name, ErrNotImage)
		}
		img, err := RasterizeSVG(data, cfg.MaxWidth)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to rasterize svg: %w", name, err)
		}
		log.Debug("SVG rasterized", zap.String("name", name), zap.Stringer("bounds", img.Bounds()))
		return encode(name, img, "png", cfg)
	}

	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotImage)
	}
	kind, _ := filetype.Match(data)

	img, imgType, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%s): %w", name, ErrNotImage, kind.MIME.Value, err)
	}

	target := imgType
	if !passthrough[imgType] {
		target = "png"
	}

	b := img.Bounds()
	if cfg.MaxWidth > 0 && b.Dx() > cfg.MaxWidth {
		log.Debug("Downscaling image", zap.String("name", name), zap.Int("width", b.Dx()), zap.Int("max", cfg.MaxWidth))
		img = imaging.Resize(img, cfg.MaxWidth, 0, imaging.Lanczos)
		if imgType == "gif" {
			// animation is lost anyway
			target = "png"
		}
		return encode(name, img, target, cfg)
	}
	if target != imgType {
		log.Debug("Converting image", zap.String("name", name), zap.String("from", imgType), zap.String("to", target))
		return encode(name, img, target, cfg)
	}

	return &Prepared{
		Name:     name,
		MimeType: kind.MIME.Value,
		Data:     data,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

func encode(name string, img image.Image, imgType string, cfg Config) (*Prepared, error) {
	buf := new(bytes.Buffer)
	var (
		err  error
		mime string
	)
	switch imgType {
	case "jpeg":
		quality := cfg.JPEGQuality
		if quality == 0 {
			quality = 90
		}
		err = imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
		mime = "image/jpeg"
	default:
		imgType = "png"
		err = imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
		mime = "image/png"
	}
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode %s: %w", name, imgType, err)
	}

	ext := "." + imgType
	if imgType == "jpeg" {
		ext = ".jpg"
	}
	b := img.Bounds()
	return &Prepared{
		Name:     strings.TrimSuffix(name, filepath.Ext(name)) + ext,
		MimeType: mime,
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Changed:  true,
	}, nil
}
