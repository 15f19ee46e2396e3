package ui

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"MapBoard/internal/state"
)

// parseColor understands #rrggbb and the hsl(h, s%, l%) form used for
// derived participant colors.
func parseColor(s string, fallback color.Color) color.Color {
	if hex := state.NormalizeColor(s); hex != "" {
		v, err := strconv.ParseUint(hex[1:], 16, 32)
		if err != nil {
			return fallback
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	}
	var h, sat, light float64
	if _, err := fmt.Sscanf(s, "hsl(%g, %g%%, %g%%)", &h, &sat, &light); err == nil {
		return hsl(h, sat/100, light/100)
	}
	return fallback
}

func hsl(h, s, l float64) color.NRGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g = c, x
	case h < 120:
		r, g = x, c
	case h < 180:
		g, b = c, x
	case h < 240:
		g, b = x, c
	case h < 300:
		r, b = x, c
	default:
		r, b = c, x
	}
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}

// withAlpha scales c's opacity; an opacity outside (0, 1] leaves c as is.
func withAlpha(c color.Color, opacity float64) color.Color {
	if !(opacity > 0 && opacity < 1) {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * opacity)
	return n
}
