// Package page loads page images and normalizes them to dark-ink grayscale.
package page

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"

	"stele-slicer/pkg/colorutil"
	"stele-slicer/pkg/geometry"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Polarity selects how ink is told apart from the ground.
type Polarity string

const (
	PolarityAuto     Polarity = "auto"      // decide from the border luminance
	PolarityDarkInk  Polarity = "dark-ink"  // ink darker than paper (printed text, positive scans)
	PolarityLightInk Polarity = "light-ink" // light glyphs on dark ground (most rubbings)
)

// ParsePolarity validates a polarity name. Empty means auto.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case "", PolarityAuto:
		return PolarityAuto, nil
	case PolarityDarkInk, PolarityLightInk:
		return Polarity(s), nil
	}
	return "", fmt.Errorf("unknown polarity %q", s)
}

// Page is an immutable loaded page image.
type Page struct {
	Path     string
	Hash     string      // hex sha256 of the file bytes
	Gray     *image.Gray // zero-origin, ink is dark
	Inverted bool        // true when the source was light-on-dark
}

// Load reads and decodes a page image.
func Load(path string, polarity Polarity) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	p, err := Decode(data, polarity)
	if err != nil {
		return nil, err
	}
	p.Path = path
	return p, nil
}

// HashFile returns the identity hash of a page file without decoding it.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Decode builds a Page from encoded image bytes.
func Decode(data []byte, polarity Polarity) (*Page, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	sum := sha256.Sum256(data)
	g := ToGray(img)

	invert := false
	switch polarity {
	case PolarityLightInk:
		invert = true
	case PolarityAuto, "":
		invert = BorderLuma(g) < 128
	}
	if invert {
		for i, v := range g.Pix {
			g.Pix[i] = colorutil.Invert(v)
		}
	}
	return &Page{Hash: hex.EncodeToString(sum[:]), Gray: g, Inverted: invert}, nil
}

// ToGray converts any image to a zero-origin Gray.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.Gray); ok {
		draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
		return g
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, gg, bb, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
			g.Pix[y*g.Stride+x] = colorutil.Luma(r, gg, bb)
		}
	}
	return g
}

// BorderLuma samples a thin ring around the image edge and returns its mean
// luminance. Rubbings have dark borders; paper scans have light ones.
func BorderLuma(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 255
	}
	depth := max(1, min(w, h)/50)
	var vals []uint8
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		if y < depth || y >= h-depth {
			vals = append(vals, row...)
			continue
		}
		vals = append(vals, row[:depth]...)
		vals = append(vals, row[w-depth:]...)
	}
	return colorutil.MeanLuma(vals)
}

// Bounds returns the page rectangle.
func (p *Page) Bounds() geometry.Box {
	b := p.Gray.Bounds()
	return geometry.Box{X0: 0, Y0: 0, X1: b.Dx(), Y1: b.Dy()}
}

// Crop returns a copy of the pixels inside box, clamped to the page.
func (p *Page) Crop(box geometry.Box) *image.Gray {
	box = box.Intersect(p.Bounds())
	out := image.NewGray(image.Rect(0, 0, box.W(), box.H()))
	for y := box.Y0; y < box.Y1; y++ {
		copy(out.Pix[(y-box.Y0)*out.Stride:(y-box.Y0)*out.Stride+box.W()],
			p.Gray.Pix[y*p.Gray.Stride+box.X0:y*p.Gray.Stride+box.X1])
	}
	return out
}

// EncodePNG encodes a grayscale image as PNG bytes.
func EncodePNG(g *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, g); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
