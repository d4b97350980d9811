package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// defaultSVGSize is used when SVG has no viewBox.
const defaultSVGSize = 1024

// maxRasterDim limits either dimension of rasterized SVG, huge viewBox
// values would otherwise allocate gigabytes.
var maxRasterDim = 4096

// IsSVG reports whether data looks like SVG document. Content sniffing
// libraries do not recognize text based formats, so we look for the root
// element ourselves.
func IsSVG(data []byte) bool {
	head := data[:min(len(data), 1024)]
	return bytes.Contains(head, []byte("<svg")) || bytes.Contains(head, []byte("<SVG"))
}

// RasterizeSVG renders SVG on white background. When width is positive
// picture is scaled to that width keeping aspect ratio, otherwise viewBox
// size is used.
func RasterizeSVG(data []byte, width int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	iw := int(math.Ceil(icon.ViewBox.W))
	ih := int(math.Ceil(icon.ViewBox.H))
	if iw <= 0 {
		iw = defaultSVGSize
	}
	if ih <= 0 {
		ih = defaultSVGSize
	}

	w, h := iw, ih
	if width > 0 {
		w = width
		h = int(math.Round(float64(width) * float64(ih) / float64(iw)))
	}
	if w > maxRasterDim || h > maxRasterDim {
		s := min(float64(maxRasterDim)/float64(w), float64(maxRasterDim)/float64(h))
		w = int(math.Round(float64(w) * s))
		h = int(math.Round(float64(h) * s))
	}
	w, h = max(w, 1), max(h, 1)

	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return dst, nil
}
