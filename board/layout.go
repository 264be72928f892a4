package board

import (
	"math"
	"math/rand"
)

const placeAttempts = 20

// Place picks coordinates for a new tile that keep bounding-box separation
// from every existing tile. It always returns a position; when the attempt
// budget runs out it falls back to an offset from the last tile instead of
// failing.
func Place(existing []Tile, width, height float64) (float64, float64) {
	return place(existing, width, height, rand.Float64)
}

func place(existing []Tile, width, height float64, rnd func() float64) (float64, float64) {
	maxX := math.Max(0, width-TileWidth-placeMargin)
	maxY := math.Max(0, height-TileHeight-placeMargin)

	for attempt := 0; attempt < placeAttempts; attempt++ {
		x := rnd() * maxX
		y := rnd() * maxY
		if !overlaps(existing, x, y) {
			return x, y
		}
	}

	if len(existing) > 0 {
		last := existing[len(existing)-1]
		return wrap(last.X+minSeparationX+rnd()*50-25, maxX),
			wrap(last.Y+minSeparationY+rnd()*50-25, maxY)
	}
	return rnd() * maxX, rnd() * maxY
}

// overlaps reports whether (x, y) is too close to any existing tile. Both
// axes must be below the separation threshold to count as a conflict.
func overlaps(existing []Tile, x, y float64) bool {
	for _, t := range existing {
		dx := math.Abs(x - t.X)
		dy := math.Abs(y - t.Y)
		if dx < minSeparationX && dy < minSeparationY {
			return true
		}
	}
	return false
}

func wrap(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	v = math.Mod(v, max)
	if v < 0 {
		v += max
	}
	return v
}

// Clamp bounds a dragged position so the tile stays on the board with a
// small padding. Move itself does not clamp; the drag interaction calls
// this before Move.
func Clamp(x, y, width, height float64) (float64, float64) {
	x = math.Max(DragPadding, math.Min(x, width-TileWidth-DragPadding))
	y = math.Max(DragPadding, math.Min(y, height-TileHeight-DragPadding))
	return x, y
}
