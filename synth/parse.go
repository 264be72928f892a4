package synth

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"inspira/board"
)

// Models wrap JSON in markdown fences often enough that stripping them is
// cheaper than fighting the prompt.
var fenceRe = regexp.MustCompile("(?s)^```(?:\\w*)?\\s*\n?(.*?)\n?\\s*```$")

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

type tileResponse struct {
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Links    []string `json:"links"`
	Palette  string   `json:"palette"`
	Priority any      `json:"priority"` // number, or a quoted number some models emit
}

type parsedTile struct {
	category board.Category
	title    string
	text     string
	links    []string
	palette  board.Palette
	priority int
}

// parseTile decodes the model's JSON and normalizes every field: missing
// title/text get placeholders, links are filtered to http(s) URLs, palette
// defaults to neutral and priority clamps to [1,10] with 3 as fallback.
// Category validity is left to the caller, which logs the substitution.
func parseTile(raw string) (parsedTile, error) {
	var resp tileResponse
	if err := json.Unmarshal([]byte(stripFence(raw)), &resp); err != nil {
		return parsedTile{}, goerr.Wrap(err, "invalid JSON in synthesis response", goerr.V("response", raw))
	}

	p := parsedTile{
		category: board.Category(resp.Category),
		title:    resp.Title,
		text:     resp.Text,
		palette:  board.Palette(resp.Palette),
		priority: clampPriority(resp.Priority),
	}
	if p.title == "" {
		p.title = "Idea Processing Error"
	}
	if p.text == "" {
		p.text = "Could not generate details for this idea."
	}
	for _, link := range resp.Links {
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			p.links = append(p.links, link)
		}
	}
	if !p.palette.Valid() {
		p.palette = board.PaletteNeutral
	}
	return p, nil
}

func clampPriority(raw any) int {
	var f float64
	switch t := raw.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 3
		}
		f = parsed
	default:
		return 3
	}
	v := int(f)
	if v == 0 {
		return 3
	}
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
