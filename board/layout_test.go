package board

import (
	"math"
	"math/rand"
	"testing"
)

func TestPlaceEmptyBoard(t *testing.T) {
	x, y := Place(nil, 800, 600)
	if x < 0 || x > 800-TileWidth-placeMargin {
		t.Errorf("x = %v out of range", x)
	}
	if y < 0 || y > 600-TileHeight-placeMargin {
		t.Errorf("y = %v out of range", y)
	}
}

func TestPlaceKeepsSeparation(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	var tiles []Tile
	// Few enough tiles that the attempt budget should always find a spot.
	for range 5 {
		x, y := place(tiles, 1600, 1200, rnd.Float64)
		for _, other := range tiles {
			dx := math.Abs(x - other.X)
			dy := math.Abs(y - other.Y)
			if dx < minSeparationX && dy < minSeparationY {
				t.Fatalf("placement (%v, %v) overlaps tile at (%v, %v)", x, y, other.X, other.Y)
			}
		}
		tiles = append(tiles, Tile{X: x, Y: y})
	}
}

func TestPlaceFallbackAfterBudgetExhausted(t *testing.T) {
	// A board barely larger than one tile: every candidate lands within the
	// separation box of the existing tile, so all 20 attempts fail.
	width := float64(TileWidth + placeMargin + 10)
	height := float64(TileHeight + placeMargin + 10)
	tiles := []Tile{{X: 0, Y: 0}}

	rnd := rand.New(rand.NewSource(7))
	x, y := place(tiles, width, height, rnd.Float64)

	maxX := width - TileWidth - placeMargin
	maxY := height - TileHeight - placeMargin
	if x < 0 || x >= maxX {
		t.Errorf("fallback x = %v, want in [0, %v)", x, maxX)
	}
	if y < 0 || y >= maxY {
		t.Errorf("fallback y = %v, want in [0, %v)", y, maxY)
	}
}

func TestPlaceNeverPanicsOnTinyBoard(t *testing.T) {
	tiles := []Tile{{X: 0, Y: 0}}
	x, y := Place(tiles, 100, 80) // smaller than a single tile
	if x != 0 || y != 0 {
		t.Errorf("tiny board placement = (%v, %v), want (0, 0)", x, y)
	}
}

func TestClamp(t *testing.T) {
	for _, tt := range []struct {
		name           string
		x, y           float64
		wantX, wantY   float64
	}{
		{"inside", 100, 100, 100, 100},
		{"past left top", -40, -40, DragPadding, DragPadding},
		{"past right bottom", 5000, 5000, 800 - TileWidth - DragPadding, 600 - TileHeight - DragPadding},
	} {
		t.Run(tt.name, func(t *testing.T) {
			x, y := Clamp(tt.x, tt.y, 800, 600)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("Clamp = (%v, %v), want (%v, %v)", x, y, tt.wantX, tt.wantY)
			}
		})
	}
}
