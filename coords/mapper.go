package coords

// PageMetrics captures the two sizes a page exists at: its true,
// resolution-independent dimensions and its current on-screen dimensions.
// Because the layout preserves aspect ratio the document-to-display map is a
// single uniform scale, so one factor covers both axes.
type PageMetrics struct {
	OriginalWidth  float64
	OriginalHeight float64
	DisplayWidth   float64
	DisplayHeight  float64
}

// ScaleFactor is the uniform document-to-display scale for the page.
func (pm PageMetrics) ScaleFactor() float64 {
	if pm.OriginalWidth <= 0 {
		return 0
	}
	return pm.DisplayWidth / pm.OriginalWidth
}

func (pm PageMetrics) matrix() Matrix {
	s := pm.ScaleFactor()
	return Scale(s, s)
}

// ToDisplay maps a document-space point to display-space pixels.
func ToDisplay(p Point, pm PageMetrics) Point {
	return pm.matrix().Transform(p)
}

// ToDocument maps a display-space point back to document-space. It is the
// exact inverse of ToDisplay: ToDocument(ToDisplay(p)) == p within floating
// point tolerance at every zoom level.
func ToDocument(p Point, pm PageMetrics) Point {
	inv, err := pm.matrix().Inverse()
	if err != nil {
		// A laid-out page always has a positive scale; a zero-sized page
		// maps everything to the origin rather than exploding.
		return Point{}
	}
	return inv.Transform(p)
}

// LengthToDisplay scales a document-space length to display pixels.
func LengthToDisplay(l float64, pm PageMetrics) float64 { return l * pm.ScaleFactor() }

// LengthToDocument scales a display-space length to document units.
func LengthToDocument(l float64, pm PageMetrics) float64 {
	s := pm.ScaleFactor()
	if s == 0 {
		return 0
	}
	return l / s
}

// RectToDisplay maps a document-space rectangle to display-space.
func RectToDisplay(r Rect, pm PageMetrics) Rect {
	tl := ToDisplay(Point{r.X, r.Y}, pm)
	return Rect{tl.X, tl.Y, LengthToDisplay(r.W, pm), LengthToDisplay(r.H, pm)}
}

// RectToDocument maps a display-space rectangle to document-space.
func RectToDocument(r Rect, pm PageMetrics) Rect {
	tl := ToDocument(Point{r.X, r.Y}, pm)
	return Rect{tl.X, tl.Y, LengthToDocument(r.W, pm), LengthToDocument(r.H, pm)}
}
