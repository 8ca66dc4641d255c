package fields

import (
	"time"

	"github.com/wudi/signkit/coords"
)

// Type identifies what kind of input a field collects.
type Type string

const (
	TypeText      Type = "text"
	TypeSignature Type = "signature"
	TypeCheckbox  Type = "checkbox"
	TypeDate      Type = "date"
)

// CheckedValue is the value a checkbox field carries once it has been
// explicitly checked. Any other value, including "", means unchecked.
const CheckedValue = "checked"

// Field is a typed, positioned input placed on a page. Geometry is stored in
// document-space (the page's originalWidth/originalHeight units) and is never
// tied to a zoom level or viewport.
type Field struct {
	ID          string  `json:"id" validate:"required"`
	Type        Type    `json:"type" validate:"required,oneof=text signature checkbox date"`
	PageNumber  int     `json:"pageNumber" validate:"min=1"`
	X           float64 `json:"x" validate:"min=0"`
	Y           float64 `json:"y" validate:"min=0"`
	Width       float64 `json:"width" validate:"gt=0"`
	Height      float64 `json:"height" validate:"gt=0"`
	Required    bool    `json:"required"`
	AssignedTo  string  `json:"assignedTo,omitempty"`
	Value       string  `json:"value,omitempty"`
	Placeholder string  `json:"placeholder,omitempty"`
}

// Rect returns the field's document-space rectangle.
func (f Field) Rect() coords.Rect { return coords.Rect{X: f.X, Y: f.Y, W: f.Width, H: f.Height} }

// Signer is a routing participant. Signed/SignedAt are set exclusively by the
// signing submission step.
type Signer struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name"`
	Email    string    `json:"email" validate:"required,email"`
	Order    int       `json:"order" validate:"min=0"`
	Signed   bool      `json:"signed"`
	SignedAt time.Time `json:"signedAt,omitzero"`
}

// MinSize returns the smallest geometry a field of the given type may take.
func MinSize(t Type) coords.Size {
	switch t {
	case TypeSignature:
		return coords.Size{W: 100, H: 40}
	case TypeCheckbox:
		return coords.Size{W: 24, H: 24}
	case TypeDate:
		return coords.Size{W: 80, H: 24}
	default:
		return coords.Size{W: 60, H: 24}
	}
}

// DefaultSize returns the geometry a freshly created field takes.
func DefaultSize(t Type) coords.Size {
	switch t {
	case TypeSignature:
		return coords.Size{W: 160, H: 56}
	case TypeCheckbox:
		return coords.Size{W: 24, H: 24}
	case TypeDate:
		return coords.Size{W: 140, H: 32}
	default:
		return coords.Size{W: 180, H: 36}
	}
}

// DefaultPlaceholder returns the hint text a new field shows before it has a
// value.
func DefaultPlaceholder(t Type) string {
	switch t {
	case TypeSignature:
		return "Sign here"
	case TypeDate:
		return "YYYY-MM-DD"
	case TypeCheckbox:
		return ""
	default:
		return "Enter text"
	}
}
