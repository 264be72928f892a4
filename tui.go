package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"inspira/board"
	"inspira/transcriber"
)

// TUI message types
type listeningMsg bool
type streamStateMsg transcriber.State
type interimMsg string
type tileAddedMsg board.Tile
type tileExpiredMsg string
type tileDismissedMsg string
type silenceMsg bool
type audioLevelMsg float64
type blockingErrMsg string
type flashClearMsg struct{}
type tuiTickMsg time.Time

// tuiSink forwards pipeline events into the running bubbletea program.
// Events can arrive before the program exists; those are dropped.
type tuiSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func newTUISink() *tuiSink { return &tuiSink{} }

func (s *tuiSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *tuiSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *tuiSink) ListeningChanged(on bool)            { s.send(listeningMsg(on)) }
func (s *tuiSink) StreamState(state transcriber.State) { s.send(streamStateMsg(state)) }
func (s *tuiSink) InterimTranscript(text string)       { s.send(interimMsg(text)) }
func (s *tuiSink) TileAdded(t board.Tile)              { s.send(tileAddedMsg(t)) }
func (s *tuiSink) TileExpired(t board.Tile)            { s.send(tileExpiredMsg(t.ID)) }
func (s *tuiSink) TileDismissed(id string)             { s.send(tileDismissedMsg(id)) }
func (s *tuiSink) SilenceWarning(active bool)          { s.send(silenceMsg(active)) }
func (s *tuiSink) AudioLevel(level float64)            { s.send(audioLevelMsg(level)) }
func (s *tuiSink) BlockingError(msg string)            { s.send(blockingErrMsg(msg)) }

var paletteColors = map[board.Palette]lipgloss.Color{
	board.PalettePrimary:   lipgloss.Color("4"),
	board.PaletteSecondary: lipgloss.Color("6"),
	board.PaletteAccent:    lipgloss.Color("5"),
	board.PaletteNeutral:   lipgloss.Color("245"),
	board.PaletteWarning:   lipgloss.Color("208"),
}

var (
	statusRecStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusIdleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	interimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	flashStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	meterStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle      = lipgloss.NewStyle().Bold(true)
	bodyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	linkStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Underline(true)
	tagStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

type tuiModel struct {
	app *App

	tiles   []board.Tile
	cursor  int
	hovered string // tile id whose expiry is paused by the cursor

	listening   bool
	streamState transcriber.State
	interim     string
	level       float64
	silenceWarn bool
	errText     string
	flash       string

	width, height int
}

func newTUIModel(app *App) tuiModel {
	return tuiModel{app: app, streamState: transcriber.StateIdle}
}

func NewTUIProgram(app *App) *tea.Program {
	return tea.NewProgram(newTUIModel(app), tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tuiTickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tuiTickMsg:
		return m, tuiTick()

	case listeningMsg:
		m.listening = bool(msg)
		if !m.listening {
			m.interim = ""
			m.level = 0
			m.silenceWarn = false
		}

	case streamStateMsg:
		m.streamState = transcriber.State(msg)

	case interimMsg:
		m.interim = string(msg)

	case tileAddedMsg, tileExpiredMsg, tileDismissedMsg:
		m = m.refreshTiles()

	case silenceMsg:
		m.silenceWarn = bool(msg)

	case audioLevelMsg:
		m.level = m.level*0.6 + float64(msg)*0.4

	case blockingErrMsg:
		m.errText = string(msg)

	case flashClearMsg:
		m.flash = ""
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m = m.moveHover("")
		return m, tea.Quit

	case " ", "enter":
		m.errText = ""
		app := m.app
		return m, func() tea.Msg {
			app.StartStop(context.Background())
			return nil
		}

	case "down", "j":
		if m.cursor < len(m.tiles)-1 {
			m.cursor++
			m = m.moveHover(m.tiles[m.cursor].ID)
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m = m.moveHover(m.tiles[m.cursor].ID)
		}

	case "p":
		if t, ok := m.selected(); ok && t.Life.AllowPin {
			m.app.Pin(t.ID)
			m = m.refreshTiles()
		}

	case "d":
		if t, ok := m.selected(); ok {
			m.app.Dismiss(t.ID)
		}

	case "f":
		if t, ok := m.selected(); ok {
			m.app.BringToFront(t.ID)
			m = m.refreshTiles()
		}

	case "c":
		m = m.moveHover("")
		m.app.ClearUnpinned()
		m = m.refreshTiles()

	case "y":
		export := m.app.PinnedExport()
		if export == "" {
			m.flash = "nothing pinned"
		} else if err := clipboard.WriteAll(export); err != nil {
			m.flash = "clipboard unavailable"
		} else {
			m.flash = fmt.Sprintf("%d pinned tiles copied", len(m.app.Pinned()))
		}
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return flashClearMsg{} })
	}
	return m, nil
}

func (m tuiModel) selected() (board.Tile, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tiles) {
		return board.Tile{}, false
	}
	return m.tiles[m.cursor], true
}

func (m tuiModel) refreshTiles() tuiModel {
	m.tiles = m.app.Tiles()
	if m.cursor >= len(m.tiles) {
		m.cursor = len(m.tiles) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if t, ok := m.selected(); ok {
		m = m.moveHover(t.ID)
	} else {
		m = m.moveHover("")
	}
	return m
}

// moveHover keeps the expiry pause in sync with the cursor: the tile under
// the cursor never expires while selected.
func (m tuiModel) moveHover(id string) tuiModel {
	if m.hovered == id {
		return m
	}
	if m.hovered != "" {
		m.app.HoverEnd(m.hovered)
	}
	if id != "" {
		m.app.HoverStart(id)
	}
	m.hovered = id
	return m
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	if m.listening {
		b.WriteString(statusRecStyle.Render("● LISTENING"))
		b.WriteString("  " + renderMeter(m.level))
	} else {
		b.WriteString(statusIdleStyle.Render("○ idle"))
	}
	b.WriteString(statusIdleStyle.Render(fmt.Sprintf("  [%s]", m.streamState)))
	b.WriteString("\n")

	if m.interim != "" {
		b.WriteString(interimStyle.Render("… "+m.interim) + "\n")
	}
	if m.silenceWarn {
		b.WriteString(warnStyle.Render("⚠ no voice detected") + "\n")
	}
	if m.errText != "" {
		b.WriteString(errStyle.Render("✗ "+m.errText) + "\n")
	}
	if m.flash != "" {
		b.WriteString(flashStyle.Render(m.flash) + "\n")
	}
	b.WriteString("\n")

	if len(m.tiles) == 0 {
		b.WriteString(statusIdleStyle.Render("No tiles yet. Press Space and start talking.") + "\n")
	}
	cardWidth := min(m.width-4, 72)
	for i, t := range m.tiles {
		b.WriteString(renderTile(t, i == m.cursor, cardWidth))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Space start/stop · j/k select · p pin · d dismiss · f front · c clear · y copy pins · q quit"))
	b.WriteString("\n" + helpStyle.Render("inspira "+version))
	return b.String()
}

func renderMeter(level float64) string {
	const cells = 20
	filled := int(level * 4 * cells)
	if filled > cells {
		filled = cells
	}
	return meterStyle.Render(strings.Repeat("█", filled)) +
		statusIdleStyle.Render(strings.Repeat("░", cells-filled))
}

func renderTile(t board.Tile, selected bool, width int) string {
	color, ok := paletteColors[t.Style.Palette]
	if !ok {
		color = paletteColors[board.PaletteNeutral]
	}

	border := lipgloss.NormalBorder()
	if selected {
		border = lipgloss.ThickBorder()
	}
	card := lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(width).
		PaddingLeft(1).
		PaddingRight(1)

	tag := fmt.Sprintf("%s · p%d", t.Category, t.Style.Priority)
	if t.Pinned {
		tag += " · pinned"
	}

	var body strings.Builder
	body.WriteString(titleStyle.Render(t.Content.Title))
	body.WriteString("  " + tagStyle.Render(tag) + "\n")
	body.WriteString(bodyStyle.Render(t.Content.Text))
	for _, link := range t.Content.Links {
		body.WriteString("\n" + linkStyle.Render(link))
	}
	return card.Render(body.String())
}
