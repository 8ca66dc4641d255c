package authoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/layout"
	"github.com/wudi/signkit/raster"
)

func setup(t *testing.T, zoom float64) (*Controller, *fields.Model, *layout.Session) {
	t.Helper()
	pages := []*raster.Page{
		{PageNumber: 1, OriginalWidth: 600, OriginalHeight: 800},
		{PageNumber: 2, OriginalWidth: 600, OriginalHeight: 800},
	}
	sess := layout.NewSession(pages, layout.WithZoom(zoom))
	sess.Recompute(layout.Viewport{AvailableWidth: 1200, AvailableHeight: 900})
	n := 0
	model := fields.NewModel(
		map[int]fields.PageBounds{1: {Width: 600, Height: 800}, 2: {Width: 600, Height: 800}},
		fields.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return NewController(sess, model), model, sess
}

func TestCreateOnEmptySpaceWithTool(t *testing.T) {
	c, m, _ := setup(t, 1.0)
	c.SetTool(fields.TypeText)

	require.NoError(t, c.PointerDown(1, coords.Point{X: 300, Y: 400}))
	c.PointerUp()

	fs := m.Fields()
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, fields.TypeText, f.Type)
	// Default size centered on the anchor.
	assert.InDelta(t, 300-f.Width/2, f.X, 1e-9)
	assert.InDelta(t, 400-f.Height/2, f.Y, 1e-9)
	assert.Equal(t, f.ID, c.Selected())
}

func TestDownOnEmptySpaceWithoutToolClearsSelection(t *testing.T) {
	c, m, _ := setup(t, 1.0)
	c.SetTool(fields.TypeText)
	require.NoError(t, c.PointerDown(1, coords.Point{X: 300, Y: 400}))
	c.PointerUp()
	c.ClearTool()

	require.NoError(t, c.PointerDown(1, coords.Point{X: 10, Y: 10}))
	assert.Equal(t, "", c.Selected())
	assert.Len(t, m.Fields(), 1)
}

func TestMoveGestureAtZoom(t *testing.T) {
	c, m, _ := setup(t, 0.5)
	f, err := m.Create(fields.TypeText, 1, coords.Point{X: 300, Y: 400})
	require.NoError(t, err)

	// Display-space at zoom 0.5: document (300,400) appears at (150,200).
	require.NoError(t, c.PointerDown(1, coords.Point{X: 150, Y: 200}))
	drag, ok := c.Drag()
	require.True(t, ok)
	assert.Equal(t, DragMove, drag.Kind)
	assert.Equal(t, f.ID, drag.FieldID)

	// Drag 50 display px right = 100 document units.
	require.NoError(t, c.PointerMove(1, coords.Point{X: 200, Y: 200}))
	got, _ := m.Field(f.ID)
	assert.InDelta(t, f.X+100, got.X, 1e-6)
	assert.InDelta(t, f.Y, got.Y, 1e-6)
	c.PointerUp()
	_, ok = c.Drag()
	assert.False(t, ok)
}

func TestDragClampedLive(t *testing.T) {
	c, m, _ := setup(t, 1.0)
	f, err := m.Create(fields.TypeText, 1, coords.Point{X: 300, Y: 400})
	require.NoError(t, err)

	require.NoError(t, c.PointerDown(1, coords.Point{X: 300, Y: 400}))
	// Mid-gesture, way off the page: the field must already be clamped.
	require.NoError(t, c.PointerMove(1, coords.Point{X: -500, Y: 9999}))
	got, _ := m.Field(f.ID)
	assert.GreaterOrEqual(t, got.X, 0.0)
	assert.LessOrEqual(t, got.Y+got.Height, 800.0)
	c.PointerUp()
}

func TestResizeViaHandle(t *testing.T) {
	c, m, _ := setup(t, 1.0)
	f, err := m.Create(fields.TypeSignature, 1, coords.Point{X: 300, Y: 400})
	require.NoError(t, err)
	// Bottom-right corner in display space (zoom 1: doc == display).
	corner := coords.Point{X: f.X + f.Width - 2, Y: f.Y + f.Height - 2}

	require.NoError(t, c.PointerDown(1, corner))
	drag, ok := c.Drag()
	require.True(t, ok)
	assert.Equal(t, DragResize, drag.Kind)

	require.NoError(t, c.PointerMove(1, coords.Point{X: f.X + 300, Y: f.Y + 90}))
	got, _ := m.Field(f.ID)
	assert.InDelta(t, 300, got.Width, 1e-6)
	assert.InDelta(t, 90, got.Height, 1e-6)

	// Shrinking below the signature minimum coerces to 100x40.
	require.NoError(t, c.PointerMove(1, coords.Point{X: f.X + 10, Y: f.Y + 5}))
	got, _ = m.Field(f.ID)
	assert.Equal(t, 100.0, got.Width)
	assert.Equal(t, 40.0, got.Height)
	c.PointerUp()
}

func TestDeleteAndReassignSelected(t *testing.T) {
	c, m, _ := setup(t, 1.0)
	signer := m.AddSigner("Jane", "jane@example.com", 0)
	f, err := m.Create(fields.TypeText, 1, coords.Point{X: 100, Y: 100})
	require.NoError(t, err)

	require.Error(t, c.ReassignSelected(signer.ID))

	c.Select(f.ID)
	require.NoError(t, c.ReassignSelected(signer.ID))
	got, _ := m.Field(f.ID)
	assert.Equal(t, signer.ID, got.AssignedTo)

	require.NoError(t, c.DeleteSelected())
	assert.Empty(t, m.Fields())
	assert.Equal(t, "", c.Selected())
	require.Error(t, c.DeleteSelected())
}

func TestPointerDownUnknownPage(t *testing.T) {
	c, _, _ := setup(t, 1.0)
	require.Error(t, c.PointerDown(9, coords.Point{}))
}
