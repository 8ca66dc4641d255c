// Package authoring translates pointer gestures over rendered pages into
// field model mutations. All gesture state lives in an explicit DragSession
// value created on pointer-down and discarded on pointer-up; because there
// is exactly one (or zero) DragSession at a time, at most one field can be
// manipulated at once by construction.
package authoring

import (
	"fmt"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/layout"
	"github.com/wudi/signkit/observability"
)

// HandleSize is the side of the square resize handle at a field's
// bottom-right corner, in display pixels.
const HandleSize = 12.0

// DragKind distinguishes what a gesture is doing.
type DragKind int

const (
	DragMove DragKind = iota
	DragResize
)

// DragSession captures a pointer-down over a field. AnchorOffset is the
// document-space offset from the field's top-left to the grab point, so a
// move keeps the field pinned under the pointer instead of snapping its
// corner to it.
type DragSession struct {
	FieldID       string
	Kind          DragKind
	AnchorOffset  coords.Point
	StartDocPoint coords.Point
}

// Controller drives authoring interactions over one document.
type Controller struct {
	session *layout.Session
	model   *fields.Model

	tool     fields.Type
	hasTool  bool
	selected string
	drag     *DragSession
	log      observability.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func NewController(session *layout.Session, model *fields.Model, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		model:   model,
		log:     observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTool arms field creation: the next pointer-down over empty page space
// creates a field of this type.
func (c *Controller) SetTool(t fields.Type) {
	c.tool = t
	c.hasTool = true
}

// ClearTool disarms field creation.
func (c *Controller) ClearTool() { c.hasTool = false }

// Selected returns the ID of the selected field, or "".
func (c *Controller) Selected() string { return c.selected }

// Select marks a field as selected, revealing its per-field controls.
func (c *Controller) Select(id string) { c.selected = id }

// Drag returns the active drag session, if any.
func (c *Controller) Drag() (DragSession, bool) {
	if c.drag == nil {
		return DragSession{}, false
	}
	return *c.drag, true
}

// PointerDown begins a gesture at a display-space point relative to the
// page's top-left corner. Over a field's resize handle it starts a resize;
// over a field body, a move; over empty space with an armed tool it creates
// a field and immediately starts moving it.
func (c *Controller) PointerDown(pageNumber int, at coords.Point) error {
	pm, ok := c.session.Metrics(pageNumber)
	if !ok {
		return fmt.Errorf("authoring: unknown page %d", pageNumber)
	}
	docPt := coords.ToDocument(at, pm)

	if f, onHandle := c.hit(pageNumber, docPt, pm); f != nil {
		c.selected = f.ID
		kind := DragMove
		if onHandle {
			kind = DragResize
		}
		c.drag = &DragSession{
			FieldID:       f.ID,
			Kind:          kind,
			AnchorOffset:  coords.Point{X: docPt.X - f.X, Y: docPt.Y - f.Y},
			StartDocPoint: docPt,
		}
		return nil
	}

	if c.hasTool {
		f, err := c.model.Create(c.tool, pageNumber, docPt)
		if err != nil {
			return err
		}
		c.selected = f.ID
		c.drag = &DragSession{
			FieldID:       f.ID,
			Kind:          DragMove,
			AnchorOffset:  coords.Point{X: docPt.X - f.X, Y: docPt.Y - f.Y},
			StartDocPoint: docPt,
		}
		c.log.Debug("field created by gesture",
			observability.String("id", f.ID),
			observability.Int("page", pageNumber))
		return nil
	}

	c.selected = ""
	return nil
}

// PointerMove updates the active gesture. The model clamps on every write,
// so the field never visually escapes the page mid-drag.
func (c *Controller) PointerMove(pageNumber int, at coords.Point) error {
	if c.drag == nil {
		return nil
	}
	pm, ok := c.session.Metrics(pageNumber)
	if !ok {
		return fmt.Errorf("authoring: unknown page %d", pageNumber)
	}
	docPt := coords.ToDocument(at, pm)

	switch c.drag.Kind {
	case DragResize:
		f, ok := c.model.Field(c.drag.FieldID)
		if !ok {
			return fmt.Errorf("authoring: dragged field %q vanished", c.drag.FieldID)
		}
		return c.model.Resize(f.ID, coords.Size{W: docPt.X - f.X, H: docPt.Y - f.Y})
	default:
		return c.model.Move(c.drag.FieldID, coords.Point{
			X: docPt.X - c.drag.AnchorOffset.X,
			Y: docPt.Y - c.drag.AnchorOffset.Y,
		})
	}
}

// PointerUp commits the gesture by discarding the drag session; every
// intermediate move was already written through the model.
func (c *Controller) PointerUp() {
	c.drag = nil
}

// DeleteSelected removes the selected field.
func (c *Controller) DeleteSelected() error {
	if c.selected == "" {
		return fmt.Errorf("authoring: no field selected")
	}
	err := c.model.Delete(c.selected)
	if err == nil {
		c.selected = ""
	}
	return err
}

// ReassignSelected routes the selected field to another signer (or "" for
// unassigned). Takes effect immediately; there is no separate commit step.
func (c *Controller) ReassignSelected(signerID string) error {
	if c.selected == "" {
		return fmt.Errorf("authoring: no field selected")
	}
	return c.model.Assign(c.selected, signerID)
}

// hit finds the topmost field under a document-space point, preferring the
// resize handle over the body. Later-created fields sit on top.
func (c *Controller) hit(pageNumber int, docPt coords.Point, pm coords.PageMetrics) (*fields.Field, bool) {
	handle := coords.LengthToDocument(HandleSize, pm)
	fs := c.model.Fields()
	for i := len(fs) - 1; i >= 0; i-- {
		f := fs[i]
		if f.PageNumber != pageNumber {
			continue
		}
		handleRect := coords.Rect{
			X: f.X + f.Width - handle,
			Y: f.Y + f.Height - handle,
			W: handle,
			H: handle,
		}
		if handleRect.Contains(docPt) {
			return &f, true
		}
		if f.Rect().Contains(docPt) {
			return &f, false
		}
	}
	return nil, false
}
