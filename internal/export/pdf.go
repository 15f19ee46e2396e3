package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/golang/glog"
	"github.com/jung-kurt/gofpdf"

	"MapBoard/internal/state"
)

const (
	pageMargin = 15.0
	headerH    = 12.0
	clickR     = 0.8
	markerR    = 1.6
)

// page maps geographic points onto the printable area of an A4 page,
// keeping the aspect ratio of the bounds.
type page struct {
	b      state.Bounds
	x0, y0 float64
	scale  float64
}

func newPage(b state.Bounds, width, height float64) page {
	pg := page{b: b}
	spanLng := b.MaxLng - b.MinLng
	spanLat := b.MaxLat - b.MinLat
	pg.scale = min(width/spanLng, height/spanLat)
	pg.x0 = pageMargin + (width-spanLng*pg.scale)/2
	pg.y0 = pageMargin + headerH + (height-spanLat*pg.scale)/2
	return pg
}

func (pg page) point(p state.LatLng) (float64, float64) {
	return pg.x0 + (p.Lng-pg.b.MinLng)*pg.scale, pg.y0 + (pg.b.MaxLat-p.Lat)*pg.scale
}

// WritePDF renders every drawing and click of the snapshot onto one page.
func WritePDF(w io.Writer, snap state.Snapshot) error {
	shapes := make([]state.Shape, 0, len(snap.Drawings))
	var bounds state.Bounds
	for _, d := range snap.Drawings {
		s, err := state.ParseFeature(d.GeoJSON)
		if err != nil {
			glog.V(2).Infof("[export] skip drawing %s: %s\n", d.ID, err)
			continue
		}
		shapes = append(shapes, s)
		bounds = bounds.Union(s.Bounds())
	}
	for _, c := range snap.Clicks {
		bounds.Extend(c.Point())
	}
	if bounds.Empty() && snap.View != nil {
		bounds.Extend(snap.View.Center)
	}

	p := gofpdf.New("P", "mm", "A4", "")
	p.AddPage()
	pw, ph := p.GetPageSize()

	p.SetFont("Helvetica", "B", 12)
	title := snap.Context
	if title == "" {
		title = "(no context)"
	}
	p.Text(pageMargin, pageMargin+5, title)
	p.SetFont("Helvetica", "", 9)
	p.Text(pageMargin, pageMargin+10, fmt.Sprintf("%d drawings, %d clicks, %d participants", len(shapes), len(snap.Clicks), len(snap.Users)))

	if !bounds.Empty() {
		pg := newPage(bounds.Pad(0.05), pw-2*pageMargin, ph-2*pageMargin-headerH)
		for _, s := range shapes {
			drawShape(p, pg, s)
		}
		p.SetAlpha(1, "Normal")
		for _, c := range snap.Clicks {
			setFill(p, c.Color, "#ef4444")
			x, y := pg.point(c.Point())
			p.Circle(x, y, clickR, "F")
		}
	}
	if err := p.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return p.Output(w)
}

func drawShape(p *gofpdf.Fpdf, pg page, s state.Shape) {
	setDraw(p, s.Style.Color)
	setFill(p, s.Style.FillColor, s.Style.Color)
	p.SetLineWidth(max(s.Style.Weight*0.25, 0.2))
	style := "D"
	if s.Style.Fill {
		style = "DF"
	}
	p.SetAlpha(s.Style.Opacity, "Normal")

	switch s.Type {
	case state.Polyline:
		for i := 1; i < len(s.Points); i++ {
			x1, y1 := pg.point(s.Points[i-1])
			x2, y2 := pg.point(s.Points[i])
			p.Line(x1, y1, x2, y2)
		}
	case state.Polygon:
		pts := make([]gofpdf.PointType, 0, len(s.Points))
		for _, ll := range s.Points {
			x, y := pg.point(ll)
			pts = append(pts, gofpdf.PointType{X: x, Y: y})
		}
		p.Polygon(pts, style)
	case state.Rectangle:
		x1, y1 := pg.point(state.LatLng{Lat: s.NE.Lat, Lng: s.SW.Lng})
		x2, y2 := pg.point(state.LatLng{Lat: s.SW.Lat, Lng: s.NE.Lng})
		p.Rect(x1, y1, x2-x1, y2-y1, style)
	case state.Circle:
		x, y := pg.point(s.Center)
		r := s.Bounds().MaxLat - s.Center.Lat
		p.Circle(x, y, max(r*pg.scale, 0.3), style)
	case state.Marker:
		setFill(p, s.IconColor, s.Style.Color)
		x, y := pg.point(s.Center)
		p.Circle(x, y, markerR, "F")
	}
}

func setDraw(p *gofpdf.Fpdf, hex string) {
	r, g, b := rgb(hex, "#ff6600")
	p.SetDrawColor(r, g, b)
}

func setFill(p *gofpdf.Fpdf, hex, fallback string) {
	r, g, b := rgb(hex, fallback)
	p.SetFillColor(r, g, b)
}

// rgb parses a #rrggbb color, falling back when hex is not one.
func rgb(hex, fallback string) (int, int, int) {
	c := state.NormalizeColor(hex)
	if c == "" {
		c = state.NormalizeColor(fallback)
	}
	if c == "" {
		return 0, 0, 0
	}
	v, _ := strconv.ParseUint(c[1:], 16, 32)
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
