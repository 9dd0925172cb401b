package whiteboard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape type discriminators as they appear on the wire
const (
	ShapeLine   = "line"
	ShapeRect   = "rect"
	ShapeCircle = "circle"
	ShapePath   = "path"
	ShapeText   = "text"
)

// Shape is one member of the closed set of drawable canvas objects
type Shape interface {
	Type() string
}

// shapeFactories maps a discriminator to a constructor for decoding. A new
// shape only needs an entry here; diffing works on field paths.
var shapeFactories = map[string]func() Shape{
	ShapeLine:   func() Shape { return &Line{} },
	ShapeRect:   func() Shape { return &Rect{} },
	ShapeCircle: func() Shape { return &Circle{} },
	ShapePath:   func() Shape { return &Path{} },
	ShapeText:   func() Shape { return &Text{} },
}

// Transform is the placement every shape shares
type Transform struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
	Angle  float64 `json:"angle"`
}

// Outline is the stroke style shared by drawn shapes
type Outline struct {
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

type Line struct {
	Transform
	Outline
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (*Line) Type() string { return ShapeLine }

type Rect struct {
	Transform
	Outline
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Fill   string  `json:"fill"`
}

func (*Rect) Type() string { return ShapeRect }

type Circle struct {
	Transform
	Outline
	Radius float64 `json:"radius"`
	Fill   string  `json:"fill"`
}

func (*Circle) Type() string { return ShapeCircle }

// Point is a vertex of a free-hand path
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Path struct {
	Transform
	Outline
	Points []Point `json:"points"`
}

func (*Path) Type() string { return ShapePath }

type Text struct {
	Transform
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	Fill       string  `json:"fill"`
}

func (*Text) Type() string { return ShapeText }

// CanvasObject wraps a Shape and encodes it with a "type" discriminator
type CanvasObject struct {
	Shape Shape
}

// NewCanvasObject wraps shape
func NewCanvasObject(shape Shape) CanvasObject {
	return CanvasObject{Shape: shape}
}

// Type returns the wrapped shape's discriminator
func (o CanvasObject) Type() string {
	if o.Shape == nil {
		return ""
	}
	return o.Shape.Type()
}

func (o CanvasObject) MarshalJSON() ([]byte, error) {
	if o.Shape == nil {
		return nil, ErrUnknownShape
	}

	body, err := json.Marshal(o.Shape)
	if err != nil {
		return nil, err
	}

	typeField, err := json.Marshal(o.Shape.Type())
	if err != nil {
		return nil, err
	}

	// splice the discriminator in front of the shape's own fields
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typeField)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func (o *CanvasObject) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	factory, ok := shapeFactories[head.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownShape, head.Type)
	}

	shape := factory()
	if err := json.Unmarshal(data, shape); err != nil {
		return fmt.Errorf("decode %s: %w", head.Type, err)
	}

	o.Shape = shape
	return nil
}
