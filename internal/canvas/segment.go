package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSegment is returned for payloads that do not match their declared kind
var ErrInvalidSegment = errors.New("invalid segment")

// Kind is the discriminant of a Segment
type Kind string

const (
	KindFreehand Kind = "freehand"
	KindLine     Kind = "line"
	KindRect     Kind = "rect"
	KindCircle   Kind = "circle"
	KindImage    Kind = "image"
)

// IsShape reports whether the kind is one of the two-point shapes
func (k Kind) IsShape() bool {
	return k == KindLine || k == KindRect || k == KindCircle
}

type Point struct {
	X float64
	Y float64
}

// A freehand brush dab, optionally connected to the previous dab of the gesture
type Freehand struct {
	At    Point
	Prev  *Point
	Color string
	Size  float64
}

// A line, rectangle or circle spanning Start to End
type Shape struct {
	Start Point
	End   Point
	Color string
	Size  float64
}

// A bitmap placed at At. Src is the encoded payload, usually a data URL.
type Image struct {
	At     Point
	Width  float64
	Height float64
	Src    string
}

// Segment is the atomic drawing primitive. Exactly one of the variant
// pointers is set, matching Kind.
type Segment struct {
	Kind     Kind
	Freehand *Freehand
	Shape    *Shape
	Image    *Image
}

func NewFreehand(at Point, prev *Point, color string, size float64) Segment {
	return Segment{Kind: KindFreehand, Freehand: &Freehand{At: at, Prev: prev, Color: color, Size: size}}
}

func NewShape(kind Kind, start, end Point, color string, size float64) Segment {
	return Segment{Kind: kind, Shape: &Shape{Start: start, End: end, Color: color, Size: size}}
}

func NewImage(at Point, width, height float64, src string) Segment {
	return Segment{Kind: KindImage, Image: &Image{At: at, Width: width, Height: height, Src: src}}
}

// Validate checks that the populated variant matches Kind
func (s Segment) Validate() error {
	switch {
	case s.Kind == KindFreehand:
		if s.Freehand == nil || s.Shape != nil || s.Image != nil {
			return fmt.Errorf("%w: freehand segment needs a point", ErrInvalidSegment)
		}
	case s.Kind.IsShape():
		if s.Shape == nil || s.Freehand != nil || s.Image != nil {
			return fmt.Errorf("%w: %s segment needs start and end points", ErrInvalidSegment, s.Kind)
		}
	case s.Kind == KindImage:
		if s.Image == nil || s.Freehand != nil || s.Shape != nil {
			return fmt.Errorf("%w: image segment needs a placement", ErrInvalidSegment)
		}
		if s.Image.Width <= 0 || s.Image.Height <= 0 {
			return fmt.Errorf("%w: image dimensions must be positive", ErrInvalidSegment)
		}
		if s.Image.Src == "" {
			return fmt.Errorf("%w: image payload is empty", ErrInvalidSegment)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSegment, s.Kind)
	}
	return nil
}

// wireSegment is the flat JSON shape clients send and receive.
type wireSegment struct {
	Type     Kind     `json:"type"`
	StrokeID string   `json:"strokeId,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	PrevX    *float64 `json:"prevX,omitempty"`
	PrevY    *float64 `json:"prevY,omitempty"`
	StartX   *float64 `json:"startX,omitempty"`
	StartY   *float64 `json:"startY,omitempty"`
	EndX     *float64 `json:"endX,omitempty"`
	EndY     *float64 `json:"endY,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Color    string   `json:"color,omitempty"`
	Size     *float64 `json:"size,omitempty"`
	Src      string   `json:"src,omitempty"`
}

func f64(v float64) *float64 { return &v }

func (s Segment) toWire(groupID string) (wireSegment, error) {
	if err := s.Validate(); err != nil {
		return wireSegment{}, err
	}
	w := wireSegment{Type: s.Kind, StrokeID: groupID}
	switch {
	case s.Kind == KindFreehand:
		fh := s.Freehand
		w.X, w.Y = f64(fh.At.X), f64(fh.At.Y)
		if fh.Prev != nil {
			w.PrevX, w.PrevY = f64(fh.Prev.X), f64(fh.Prev.Y)
		}
		w.Color, w.Size = fh.Color, f64(fh.Size)
	case s.Kind.IsShape():
		sh := s.Shape
		w.StartX, w.StartY = f64(sh.Start.X), f64(sh.Start.Y)
		w.EndX, w.EndY = f64(sh.End.X), f64(sh.End.Y)
		w.Color, w.Size = sh.Color, f64(sh.Size)
	case s.Kind == KindImage:
		img := s.Image
		w.X, w.Y = f64(img.At.X), f64(img.At.Y)
		w.Width, w.Height = f64(img.Width), f64(img.Height)
		w.Src = img.Src
	}
	return w, nil
}

func (w wireSegment) toSegment() (Segment, error) {
	switch {
	case w.Type == KindFreehand:
		if w.X == nil || w.Y == nil {
			return Segment{}, fmt.Errorf("%w: freehand segment needs x and y", ErrInvalidSegment)
		}
		var prev *Point
		switch {
		case w.PrevX != nil && w.PrevY != nil:
			prev = &Point{X: *w.PrevX, Y: *w.PrevY}
		case w.PrevX != nil || w.PrevY != nil:
			return Segment{}, fmt.Errorf("%w: prevX and prevY must be sent together", ErrInvalidSegment)
		}
		return NewFreehand(Point{X: *w.X, Y: *w.Y}, prev, w.Color, deref(w.Size)), nil
	case w.Type.IsShape():
		if w.StartX == nil || w.StartY == nil || w.EndX == nil || w.EndY == nil {
			return Segment{}, fmt.Errorf("%w: %s segment needs start and end points", ErrInvalidSegment, w.Type)
		}
		return NewShape(w.Type, Point{X: *w.StartX, Y: *w.StartY}, Point{X: *w.EndX, Y: *w.EndY}, w.Color, deref(w.Size)), nil
	case w.Type == KindImage:
		if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil {
			return Segment{}, fmt.Errorf("%w: image segment needs x, y, width and height", ErrInvalidSegment)
		}
		seg := NewImage(Point{X: *w.X, Y: *w.Y}, *w.Width, *w.Height, w.Src)
		return seg, seg.Validate()
	default:
		return Segment{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSegment, w.Type)
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (s Segment) MarshalJSON() ([]byte, error) {
	w, err := s.toWire("")
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var w wireSegment
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	seg, err := w.toSegment()
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// MarshalGrouped encodes seg with its group id inlined as "strokeId".
func MarshalGrouped(groupID string, seg Segment) ([]byte, error) {
	w, err := seg.toWire(groupID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalGrouped is the inverse of MarshalGrouped. The group id may be empty;
// callers decide whether that is acceptable.
func UnmarshalGrouped(data []byte) (string, Segment, error) {
	var w wireSegment
	if err := json.Unmarshal(data, &w); err != nil {
		return "", Segment{}, fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	seg, err := w.toSegment()
	if err != nil {
		return "", Segment{}, err
	}
	return w.StrokeID, seg, nil
}
