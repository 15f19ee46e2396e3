package state

// Bounds is a lat/lng bounding box. The zero value is empty and grows with
// Extend.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
	set            bool
}

func (b Bounds) Empty() bool { return !b.set }

func (b *Bounds) Extend(p LatLng) {
	if !b.set {
		b.MinLat, b.MaxLat = p.Lat, p.Lat
		b.MinLng, b.MaxLng = p.Lng, p.Lng
		b.set = true
		return
	}
	if p.Lat < b.MinLat {
		b.MinLat = p.Lat
	}
	if p.Lat > b.MaxLat {
		b.MaxLat = p.Lat
	}
	if p.Lng < b.MinLng {
		b.MinLng = p.Lng
	}
	if p.Lng > b.MaxLng {
		b.MaxLng = p.Lng
	}
}

// Union returns the smallest box covering both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if !o.set {
		return b
	}
	if !b.set {
		return o
	}
	b.Extend(o.SouthWest())
	b.Extend(o.NorthEast())
	return b
}

// Pad grows the box by fraction f of its size on every side. Degenerate
// boxes get a minimum pad so they stay drawable.
func (b Bounds) Pad(f float64) Bounds {
	if !b.set {
		return b
	}
	dLat := (b.MaxLat - b.MinLat) * f
	dLng := (b.MaxLng - b.MinLng) * f
	if dLat == 0 {
		dLat = 1e-4
	}
	if dLng == 0 {
		dLng = 1e-4
	}
	b.MinLat -= dLat
	b.MaxLat += dLat
	b.MinLng -= dLng
	b.MaxLng += dLng
	return b
}

func (b Bounds) Contains(p LatLng) bool {
	return b.set && p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func (b Bounds) SouthWest() LatLng { return LatLng{Lat: b.MinLat, Lng: b.MinLng} }
func (b Bounds) NorthEast() LatLng { return LatLng{Lat: b.MaxLat, Lng: b.MaxLng} }

func (b Bounds) Center() LatLng {
	return LatLng{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}
