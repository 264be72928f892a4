package board

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	TileWidth  = 280 // px
	TileHeight = 180 // px

	// DefaultDuration is how long an unpinned tile stays on the board.
	DefaultDuration = 45 * time.Second

	// Forever marks a tile that never expires (pinned).
	Forever time.Duration = math.MaxInt64

	placeMargin    = 20
	minSeparationX = TileWidth / 2
	minSeparationY = TileHeight / 2

	// DragPadding is the clamp margin the drag collaborator applies via Clamp.
	DragPadding = 10
)

type Category string

const (
	FactCheck   Category = "fact-check"
	Resource    Category = "resource"
	Creative    Category = "creative"
	Summary     Category = "summary"
	ActionItem  Category = "action-item"
	Question    Category = "question"
	Observation Category = "observation"
)

func (c Category) Valid() bool {
	switch c {
	case FactCheck, Resource, Creative, Summary, ActionItem, Question, Observation:
		return true
	}
	return false
}

type Palette string

const (
	PalettePrimary   Palette = "primary"
	PaletteSecondary Palette = "secondary"
	PaletteAccent    Palette = "accent"
	PaletteNeutral   Palette = "neutral"
	PaletteWarning   Palette = "warning"
)

func (p Palette) Valid() bool {
	switch p {
	case PalettePrimary, PaletteSecondary, PaletteAccent, PaletteNeutral, PaletteWarning:
		return true
	}
	return false
}

// Content is the user-visible body of a tile.
type Content struct {
	Title    string
	Text     string
	Links    []string
	Metadata map[string]string
}

// Style carries rendering hints; the board itself does not interpret them.
type Style struct {
	Palette  Palette
	Priority int // 1..10
}

// Life controls expiry behavior.
type Life struct {
	Duration     time.Duration
	PauseOnHover bool
	AllowPin     bool
}

type Tile struct {
	ID       string
	Category Category
	Content  Content
	Style    Style
	Life     Life

	X, Y     float64
	Rotation float64 // cosmetic, degrees
	Z        int
	Pinned   bool
}

func NewID() string {
	return uuid.NewString()
}
