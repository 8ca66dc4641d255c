package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wudi/signkit/observability"
)

// ErrNoPagesRendered is returned by RenderAll when every page of a document
// failed to rasterize. A partial failure is not fatal; individual failed
// pages carry their error in Page.Err.
var ErrNoPagesRendered = errors.New("raster: no pages rendered")

// Page is one rasterized document page. Bitmap is rendered once at the
// oversampling factor so it stays crisp under later zoom; OriginalWidth and
// OriginalHeight are the page's true, resolution-independent dimensions
// (PDF points or source image pixels). A Page is immutable once produced.
type Page struct {
	PageNumber     int
	Bitmap         image.Image
	Width          int
	Height         int
	OriginalWidth  float64
	OriginalHeight float64
	Err            error
}

// Renderer rasterizes individual pages of one open document. RenderPage is
// re-entrant: every call returns a fresh bitmap buffer, so rendering a page
// twice never corrupts a bitmap already handed to the UI.
type Renderer interface {
	PageCount() int
	RenderPage(ctx context.Context, pageNumber int) (*Page, error)
	Close() error
}

const (
	// DefaultPDFOversampling is the scale PDF pages are rasterized at.
	DefaultPDFOversampling = 3.0
	// DefaultImageOversampling is the scale image documents are rasterized at.
	DefaultImageOversampling = 2.0
)

type config struct {
	pdfScale      float64
	imageScale    float64
	maxConcurrent int64
	log           observability.Logger
	tracer        observability.Tracer
}

// Option configures Open and the rasterizers it builds.
type Option func(*config)

// WithPDFOversampling overrides the PDF oversampling factor.
func WithPDFOversampling(s float64) Option {
	return func(c *config) {
		if s > 0 {
			c.pdfScale = s
		}
	}
}

// WithImageOversampling overrides the image oversampling factor.
func WithImageOversampling(s float64) Option {
	return func(c *config) {
		if s > 0 {
			c.imageScale = s
		}
	}
}

// WithMaxConcurrent caps how many pages render at once during RenderAll.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithTracer sets the tracer used around whole-document rasterization.
func WithTracer(t observability.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

func newConfig(opts []Option) config {
	c := config{
		pdfScale:      DefaultPDFOversampling,
		imageScale:    DefaultImageOversampling,
		maxConcurrent: 4,
		log:           observability.NopLogger{},
		tracer:        observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Open sniffs the document bytes and returns the matching Renderer: pdfium
// for PDFs, the image decoder for PNG/JPEG/GIF. The bytes are retained for
// the lifetime of the Renderer.
func Open(ctx context.Context, data []byte, opts ...Option) (Renderer, error) {
	cfg := newConfig(opts)
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return openPDF(ctx, data, cfg)
	case strings.HasPrefix(mt.String(), "image/"):
		return openImage(data, cfg)
	default:
		return nil, fmt.Errorf("raster: unsupported content type %s", mt.String())
	}
}
