// Package layout owns the on-screen geometry of a rasterized document: the
// zoom level, the per-page display sizes derived from an explicit viewport,
// and the vertical offset table for a continuously scrolling single-column
// view. All math here is pure; recomputing with the same inputs always
// produces the same layout.
package layout

import (
	"math"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/observability"
	"github.com/wudi/signkit/raster"
)

const (
	MinZoom = 0.5
	MaxZoom = 2.0

	// DefaultPageGap is the vertical space between pages, in display pixels.
	DefaultPageGap = 24.0

	// fallback dimensions for pages that failed to rasterize; the error
	// placeholder still occupies a band in the scroll column.
	placeholderWidth  = 612.0
	placeholderHeight = 792.0
)

// Viewport is the layout space available to the document view, sourced once
// per resize event by the surrounding application. Passing it explicitly
// keeps viewport reads out of the layout math.
type Viewport struct {
	AvailableWidth  float64
	AvailableHeight float64
}

// PageLayout is the computed display geometry of one page.
type PageLayout struct {
	PageNumber     int
	OriginalWidth  float64
	OriginalHeight float64
	DisplayWidth   float64
	DisplayHeight  float64
	// Top is the page's vertical offset in the scroll column.
	Top float64
}

// Session maintains the rasterized page list and the current zoom, and
// recomputes display geometry on every zoom or viewport change.
type Session struct {
	pages    []*raster.Page
	zoom     float64
	gap      float64
	viewport Viewport
	layouts  []PageLayout
	log      observability.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithPageGap sets the inter-page gap in display pixels.
func WithPageGap(gap float64) Option {
	return func(s *Session) {
		if gap >= 0 {
			s.gap = gap
		}
	}
}

// WithZoom sets the initial zoom.
func WithZoom(zoom float64) Option {
	return func(s *Session) { s.zoom = clampZoom(zoom) }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession builds a render session over rasterized pages at zoom 1.0.
// Call Recompute with a viewport before reading layouts.
func NewSession(pages []*raster.Page, opts ...Option) *Session {
	s := &Session{
		pages: pages,
		zoom:  1.0,
		gap:   DefaultPageGap,
		log:   observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recompute()
	return s
}

// Zoom returns the current zoom scalar.
func (s *Session) Zoom() float64 { return s.zoom }

// SetZoom changes the zoom, clamped to [MinZoom, MaxZoom], and recomputes
// the layout against the current viewport.
func (s *Session) SetZoom(zoom float64) {
	s.zoom = clampZoom(zoom)
	s.recompute()
}

// Recompute recalculates every page's display geometry for the given
// viewport. Idempotent and side-effect-free for identical inputs.
func (s *Session) Recompute(vp Viewport) {
	s.viewport = vp
	s.recompute()
}

func (s *Session) recompute() {
	layouts := make([]PageLayout, len(s.pages))
	top := 0.0
	for i, p := range s.pages {
		ow, oh := p.OriginalWidth, p.OriginalHeight
		if p.Err != nil || ow <= 0 || oh <= 0 {
			ow, oh = placeholderWidth, placeholderHeight
		}
		// Available width caps the base size before zoom is applied, so
		// zooming past 100% stays bounded by practical layout width.
		base := ow
		if s.viewport.AvailableWidth > 0 {
			base = math.Min(ow, s.viewport.AvailableWidth/s.zoom)
		}
		dw := base * s.zoom
		dh := oh * dw / ow
		layouts[i] = PageLayout{
			PageNumber:     p.PageNumber,
			OriginalWidth:  ow,
			OriginalHeight: oh,
			DisplayWidth:   dw,
			DisplayHeight:  dh,
			Top:            top,
		}
		top += dh + s.gap
	}
	s.layouts = layouts
	s.log.Debug("layout recomputed",
		observability.Int("pages", len(layouts)),
		observability.Float64("zoom", s.zoom),
		observability.Float64("available_width", s.viewport.AvailableWidth))
}

// Layouts returns the display geometry of every page in order.
func (s *Session) Layouts() []PageLayout {
	out := make([]PageLayout, len(s.layouts))
	copy(out, s.layouts)
	return out
}

// Layout returns the display geometry for a 1-based page number.
func (s *Session) Layout(pageNumber int) (PageLayout, bool) {
	for _, l := range s.layouts {
		if l.PageNumber == pageNumber {
			return l, true
		}
	}
	return PageLayout{}, false
}

// Metrics returns the coordinate-mapper metrics for a page.
func (s *Session) Metrics(pageNumber int) (coords.PageMetrics, bool) {
	l, ok := s.Layout(pageNumber)
	if !ok {
		return coords.PageMetrics{}, false
	}
	return coords.PageMetrics{
		OriginalWidth:  l.OriginalWidth,
		OriginalHeight: l.OriginalHeight,
		DisplayWidth:   l.DisplayWidth,
		DisplayHeight:  l.DisplayHeight,
	}, true
}

// PageTop returns a page's vertical offset in the scroll column.
func (s *Session) PageTop(pageNumber int) (float64, bool) {
	l, ok := s.Layout(pageNumber)
	return l.Top, ok
}

// PageAt maps a vertical scroll offset to the page whose band contains it.
// Offsets in the gap below a page still belong to that page; offsets past
// the end clamp to the last page.
func (s *Session) PageAt(offset float64) int {
	if len(s.layouts) == 0 {
		return 0
	}
	for _, l := range s.layouts {
		if offset < l.Top+l.DisplayHeight+s.gap {
			return l.PageNumber
		}
	}
	return s.layouts[len(s.layouts)-1].PageNumber
}

// TotalHeight is the height of the whole scroll column.
func (s *Session) TotalHeight() float64 {
	if len(s.layouts) == 0 {
		return 0
	}
	last := s.layouts[len(s.layouts)-1]
	return last.Top + last.DisplayHeight
}

func clampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
