package stamp

import (
	"encoding/json"
	"strings"
)

// strokesPrefix marks a signature value that carries drawn polylines rather
// than a typed name.
const strokesPrefix = "data:strokes,"

// StrokePoint is one sample of a drawn signature, in document units relative
// to the field's top-left corner.
type StrokePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EncodeStrokes packs drawn polylines into a field value string.
func EncodeStrokes(strokes [][]StrokePoint) (string, error) {
	b, err := json.Marshal(strokes)
	if err != nil {
		return "", err
	}
	return strokesPrefix + string(b), nil
}

// ParseStrokes reports whether a signature value holds drawn polylines and
// decodes them if so. Typed signature values return false.
func ParseStrokes(value string) ([][]StrokePoint, bool) {
	raw, ok := strings.CutPrefix(value, strokesPrefix)
	if !ok {
		return nil, false
	}
	var strokes [][]StrokePoint
	if err := json.Unmarshal([]byte(raw), &strokes); err != nil {
		return nil, false
	}
	return strokes, true
}
