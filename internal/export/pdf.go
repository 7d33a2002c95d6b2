package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/manpreetbhatti/scribble/internal/canvas"
)

type Options struct {
	// Minimum page size in points. The page grows to fit the drawing.
	Width  float64
	Height float64
	Title  string
}

func DefaultOptions() Options {
	return Options{Width: 1280, Height: 720}
}

const margin = 20

// WritePDF renders segments onto a single page, in order, and writes the
// document to w. Images that cannot be decoded are skipped and counted.
func WritePDF(w io.Writer, segments []canvas.Segment, opts Options) (skipped int, err error) {
	width, height := pageSize(segments, opts)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCreator("scribble", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for i, seg := range segments {
		switch {
		case seg.Kind == canvas.KindFreehand && seg.Freehand != nil:
			drawFreehand(pdf, seg.Freehand)
		case seg.Kind.IsShape() && seg.Shape != nil:
			drawShape(pdf, seg.Kind, seg.Shape)
		case seg.Kind == canvas.KindImage && seg.Image != nil:
			if !drawImage(pdf, fmt.Sprintf("img-%d", i), seg.Image) {
				skipped++
			}
		}
	}

	if err := pdf.Output(w); err != nil {
		return skipped, fmt.Errorf("render pdf: %w", err)
	}
	return skipped, nil
}

func pageSize(segments []canvas.Segment, opts Options) (float64, float64) {
	w, h := opts.Width, opts.Height
	grow := func(x, y float64) {
		w = math.Max(w, x+margin)
		h = math.Max(h, y+margin)
	}
	for _, seg := range segments {
		switch {
		case seg.Freehand != nil:
			grow(seg.Freehand.At.X, seg.Freehand.At.Y)
		case seg.Shape != nil:
			if seg.Kind == canvas.KindCircle {
				r := radius(seg.Shape)
				grow(seg.Shape.Start.X+r, seg.Shape.Start.Y+r)
				continue
			}
			grow(seg.Shape.Start.X, seg.Shape.Start.Y)
			grow(seg.Shape.End.X, seg.Shape.End.Y)
		case seg.Image != nil:
			grow(seg.Image.At.X+seg.Image.Width, seg.Image.At.Y+seg.Image.Height)
		}
	}
	return w, h
}

func setStroke(pdf *gofpdf.Fpdf, color string, size float64) {
	r, g, b := parseColor(color)
	pdf.SetDrawColor(r, g, b)
	pdf.SetFillColor(r, g, b)
	if size <= 0 {
		size = 1
	}
	pdf.SetLineWidth(size)
}

func drawFreehand(pdf *gofpdf.Fpdf, f *canvas.Freehand) {
	setStroke(pdf, f.Color, f.Size)
	if f.Prev != nil {
		pdf.Line(f.Prev.X, f.Prev.Y, f.At.X, f.At.Y)
		return
	}
	pdf.Circle(f.At.X, f.At.Y, math.Max(f.Size, 1)/2, "F")
}

func radius(s *canvas.Shape) float64 {
	return math.Hypot(s.End.X-s.Start.X, s.End.Y-s.Start.Y)
}

func drawShape(pdf *gofpdf.Fpdf, kind canvas.Kind, s *canvas.Shape) {
	setStroke(pdf, s.Color, s.Size)
	switch kind {
	case canvas.KindLine:
		pdf.Line(s.Start.X, s.Start.Y, s.End.X, s.End.Y)
	case canvas.KindRect:
		x, y := math.Min(s.Start.X, s.End.X), math.Min(s.Start.Y, s.End.Y)
		pdf.Rect(x, y, math.Abs(s.End.X-s.Start.X), math.Abs(s.End.Y-s.Start.Y), "D")
	case canvas.KindCircle:
		pdf.Circle(s.Start.X, s.Start.Y, radius(s), "D")
	}
}

func drawImage(pdf *gofpdf.Fpdf, name string, img *canvas.Image) bool {
	imageType, data, err := decodeDataURL(img.Src)
	if err != nil {
		return false
	}

	opts := gofpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if !pdf.Ok() {
		pdf.ClearError()
		return false
	}
	pdf.ImageOptions(name, img.At.X, img.At.Y, img.Width, img.Height, false, opts, 0, "")
	return pdf.Ok()
}

// decodeDataURL accepts base64 data URLs of PNG, JPEG or GIF images
func decodeDataURL(src string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(src, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("not a base64 data url")
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")

	var imageType string
	switch strings.ToLower(mime) {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg", "image/jpg":
		imageType = "JPG"
	case "image/gif":
		imageType = "GIF"
	default:
		return "", nil, fmt.Errorf("unsupported image type %q", mime)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	return imageType, data, nil
}

// parseColor reads #rgb and #rrggbb. Anything else is black.
func parseColor(s string) (int, int, int) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
