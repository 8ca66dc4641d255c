// Package stamp flattens completed field values onto rasterized page
// bitmaps, producing the completed-record preview of a signed document.
// Text and dates are drawn with an embedded face; signature strokes and
// check marks are rendered as smooth vector paths and composited over the
// page.
package stamp

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
	"github.com/wudi/signkit/raster"
)

var inkColor = color.RGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}

// Stamper draws values into page bitmaps. Safe to reuse across pages.
type Stamper struct {
	regular *opentype.Font
	italic  *opentype.Font
	log     observability.Logger
}

// Option configures a Stamper.
type Option func(*Stamper)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Stamper) { s.log = l }
}

// New parses the embedded faces once.
func New(opts ...Option) (*Stamper, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("stamp: parse regular font: %w", err)
	}
	italic, err := opentype.Parse(goitalic.TTF)
	if err != nil {
		return nil, fmt.Errorf("stamp: parse italic font: %w", err)
	}
	s := &Stamper{regular: regular, italic: italic, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Apply returns a copy of the page bitmap with every completed field on that
// page drawn in. The input page is never modified.
func (s *Stamper) Apply(page *raster.Page, fs []fields.Field) (image.Image, error) {
	if page.Err != nil || page.Bitmap == nil {
		return nil, fmt.Errorf("stamp: page %d has no bitmap", page.PageNumber)
	}
	bounds := page.Bitmap.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, page.Bitmap, bounds.Min, draw.Src)

	scale := float64(page.Width) / page.OriginalWidth
	for _, f := range fs {
		if f.PageNumber != page.PageNumber || f.Value == "" {
			continue
		}
		px := image.Rect(
			int(f.X*scale), int(f.Y*scale),
			int((f.X+f.Width)*scale), int((f.Y+f.Height)*scale),
		)
		switch f.Type {
		case fields.TypeCheckbox:
			if f.Value == fields.CheckedValue {
				s.drawCheck(dst, px)
			}
		case fields.TypeSignature:
			if strokes, ok := ParseStrokes(f.Value); ok {
				s.drawStrokes(dst, px, strokes, scale)
			} else if err := s.drawText(dst, px, f.Value, s.italic); err != nil {
				return nil, err
			}
		default:
			if err := s.drawText(dst, px, f.Value, s.regular); err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

func (s *Stamper) drawText(dst *image.RGBA, px image.Rectangle, value string, fnt *opentype.Font) error {
	size := float64(px.Dy()) * 0.55
	if size < 6 {
		size = 6
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("stamp: build face: %w", err)
	}
	defer face.Close()

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(inkColor),
		Face: face,
		Dot:  fixed.P(px.Min.X+px.Dx()/20, px.Min.Y+int(float64(px.Dy())*0.7)),
	}
	d.DrawString(value)
	return nil
}

// drawCheck renders a check mark sized to the box.
func (s *Stamper) drawCheck(dst *image.RGBA, px image.Rectangle) {
	w := float64(px.Dx())
	h := float64(px.Dy())
	// Path coordinates are y-up within the box.
	p := &canvas.Path{}
	p.MoveTo(0.20*w, 0.50*h)
	p.LineTo(0.42*w, 0.25*h)
	p.LineTo(0.80*w, 0.75*h)
	s.composite(dst, px, []*canvas.Path{p}, max(1.5, w/12))
}

// drawStrokes renders captured signature polylines, given in field-local
// document units.
func (s *Stamper) drawStrokes(dst *image.RGBA, px image.Rectangle, strokes [][]StrokePoint, scale float64) {
	h := float64(px.Dy())
	var paths []*canvas.Path
	for _, stroke := range strokes {
		if len(stroke) < 2 {
			continue
		}
		p := &canvas.Path{}
		p.MoveTo(stroke[0].X*scale, h-stroke[0].Y*scale)
		for _, pt := range stroke[1:] {
			p.LineTo(pt.X*scale, h-pt.Y*scale)
		}
		paths = append(paths, p)
	}
	s.composite(dst, px, paths, max(1.5, 2*scale))
}

// composite rasterizes vector paths into the field's pixel rect and draws
// them over the page.
func (s *Stamper) composite(dst *image.RGBA, px image.Rectangle, paths []*canvas.Path, lineWidth float64) {
	if len(paths) == 0 {
		return
	}
	c := canvas.New(float64(px.Dx()), float64(px.Dy()))
	ctx := canvas.NewContext(c)
	ctx.SetStrokeColor(inkColor)
	ctx.SetStrokeWidth(lineWidth)
	ctx.SetStrokeCapper(canvas.RoundCap)
	ctx.SetStrokeJoiner(canvas.RoundJoin)
	for _, p := range paths {
		ctx.DrawPath(0, 0, p)
	}
	img := rasterizer.Draw(c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	draw.Draw(dst, px, img, image.Point{}, draw.Over)
}
