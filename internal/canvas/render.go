package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"design-studio/internal/dataurl"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/colornames"
	_ "golang.org/x/image/webp"
)

// ThumbnailOptions bounds the rendered preview. MaxEdge caps the longer side in pixels and
// Quality is the JPEG quality (1-100).
type ThumbnailOptions struct {
	MaxEdge int
	Quality int
}

var ErrNoSurface = errors.New("canvas: surface has no size")

// basicfont.Face7x13 is gg's default face
const baseFontHeight = 13.0

// maxImageEdge bounds the intermediate buffer for embedded images.
const maxImageEdge = 4096

// Thumbnail renders the scene through the current viewport into a JPEG data URL.
func (s *Scene) Thumbnail(opts ThumbnailOptions) (string, error) {
	s.mu.RLock()
	w, h := s.width, s.height
	vpt := s.viewport
	bg := s.doc.Background
	objs := make([]Object, len(s.doc.Objects))
	copy(objs, s.doc.Objects)
	s.mu.RUnlock()

	if w <= 0 || h <= 0 {
		return "", ErrNoSurface
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = 300
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 60
	}

	scale := math.Min(1, float64(opts.MaxEdge)/float64(max(w, h)))
	tw := max(1, int(math.Round(float64(w)*scale)))
	th := max(1, int(math.Round(float64(h)*scale)))

	dc := gg.NewContext(tw, th)
	if c, ok := resolveColor(bg); ok {
		dc.SetColor(c)
	} else {
		dc.SetColor(color.White)
	}
	dc.Clear()

	dc.Scale(scale, scale)
	dc.Translate(vpt[4], vpt[5])
	dc.Scale(vpt[0], vpt[3])

	for _, o := range objs {
		if o.Hidden {
			continue
		}
		if err := drawObject(dc, o); err != nil {
			return "", fmt.Errorf("canvas: draw %s %s: %w", o.Type, o.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: opts.Quality}); err != nil {
		return "", fmt.Errorf("canvas: encode thumbnail: %w", err)
	}
	return dataurl.Encode("image/jpeg", buf.Bytes()), nil
}

func drawObject(dc *gg.Context, o Object) error {
	dc.Push()
	defer dc.Pop()
	if o.Angle != 0 {
		dc.RotateAbout(gg.Radians(o.Angle), o.Left, o.Top)
	}

	switch o.Type {
	case TypeRect:
		dc.DrawRectangle(o.Left, o.Top, o.Width, o.Height)
		paint(dc, o)
	case TypeCircle:
		r := o.Radius
		if r <= 0 {
			r = math.Min(o.Width, o.Height) / 2
		}
		dc.DrawCircle(o.Left+r, o.Top+r, r)
		paint(dc, o)
	case TypeLine:
		if len(o.Points) < 4 {
			return nil
		}
		dc.MoveTo(o.Left+o.Points[0], o.Top+o.Points[1])
		for i := 2; i+1 < len(o.Points); i += 2 {
			dc.LineTo(o.Left+o.Points[i], o.Top+o.Points[i+1])
		}
		c, ok := resolveColor(o.Stroke)
		if !ok {
			c = color.Black
		}
		dc.SetColor(c)
		dc.SetLineWidth(math.Max(1, o.StrokeWidth))
		dc.Stroke()
	case TypeText:
		size := o.FontSize
		if size <= 0 {
			size = baseFontHeight
		}
		c, ok := resolveColor(o.Fill)
		if !ok {
			c = color.Black
		}
		dc.SetColor(c)
		k := size / baseFontHeight
		dc.ScaleAbout(k, k, o.Left, o.Top)
		for i, line := range strings.Split(o.Text, "\n") {
			dc.DrawString(line, o.Left, o.Top+baseFontHeight*float64(i+1))
		}
	case TypeImage:
		if o.Src == "" || !dataurl.Is(o.Src) {
			// remote sources are not fetched for previews
			return nil
		}
		img, err := decodeImage(o.Src, o.Width, o.Height)
		if err != nil {
			return err
		}
		dc.DrawImage(img, int(math.Round(o.Left)), int(math.Round(o.Top)))
	default:
		// unknown object kinds are carried through serialization but not drawn
	}
	return nil
}

func paint(dc *gg.Context, o Object) {
	if c, ok := resolveColor(o.Fill); ok {
		dc.SetColor(c)
		dc.FillPreserve()
	}
	if c, ok := resolveColor(o.Stroke); ok && o.StrokeWidth > 0 {
		dc.SetColor(c)
		dc.SetLineWidth(o.StrokeWidth)
		dc.StrokePreserve()
	}
	dc.ClearPath()
}

func decodeImage(src string, w, h float64) (image.Image, error) {
	_, data, err := dataurl.Decode(src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	tw, th := int(math.Round(w)), int(math.Round(h))
	if tw <= 0 || th <= 0 {
		return img, nil
	}
	tw, th = min(tw, maxImageEdge), min(th, maxImageEdge)
	if tw == b.Dx() && th == b.Dy() {
		return img, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst, nil
}

// resolveColor understands #rgb, #rrggbb, #rrggbbaa and CSS color names.
func resolveColor(s string) (color.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "transparent":
		return nil, false
	}
	if hex, ok := strings.CutPrefix(s, "#"); ok {
		return parseHex(hex)
	}
	c, ok := colornames.Map[s]
	return c, ok
}

func parseHex(hex string) (color.Color, bool) {
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return nil, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}
