package note

import (
	"math/rand/v2"
	"strings"
)

// Platform refuses notes shorter than its hard floor. Short documents get
// invisible filler and a fixed reported length.
const (
	MinLength     = 300
	FloorLength   = 301
	PaddedLength  = 311
	padBlankLines = 10
	fillerColor   = "#ffffff"
	fillerAlpha   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Pad brings document to platform minimum length. Documents shorter than
// MinLength gain ten blank lines and white filler of (MinLength - length)
// random alphanumerics, reported length becomes PaddedLength. Longer
// documents keep their runs, reported length is raised to FloorLength if
// necessary.
func Pad(d *Document, rnd *rand.Rand) {
	if d.length >= MinLength {
		d.length = max(d.length, FloorLength)
		return
	}

	n := MinLength - d.length
	for range padBlankLines {
		d.AppendNewLine("")
	}
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		sb.WriteByte(fillerAlpha[rnd.IntN(len(fillerAlpha))])
	}
	d.Append(Run{Text: sb.String(), Attrs: &Attributes{Color: fillerColor, Background: fillerColor}}, n)
	d.length = PaddedLength
}
