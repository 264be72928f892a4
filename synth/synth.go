// Package synth turns drained utterances into idea tiles through an LLM.
// Failures never surface as errors to the caller; every failure mode
// produces a fallback tile so the board always reflects what happened.
package synth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"

	"inspira/board"
	"inspira/diag"
	"inspira/utterance"
)

// NewGeminiClient builds the production LLM client. Returns nil (synthesis
// disabled, config-error tiles) when projectID is empty.
func NewGeminiClient(ctx context.Context, projectID, location string) (gollem.LLMClient, error) {
	if projectID == "" {
		return nil, nil
	}
	client, err := gemini.New(ctx, projectID, location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	return client, nil
}

type Client struct {
	llm gollem.LLMClient
	rec *diag.Log
	rnd func() float64
}

// New wraps an LLM client. llm may be nil; Generate then returns config-error
// tiles without touching the network. rec may be nil to disable diagnostics.
func New(llm gollem.LLMClient, rec *diag.Log) *Client {
	return &Client{llm: llm, rec: rec, rnd: rand.Float64}
}

func (c *Client) record(t diag.EntryType, title string, data diag.Payload) {
	if c.rec != nil {
		c.rec.Add(t, title, data)
	}
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Generate synthesizes one tile from a drained utterance. The tile is placed
// at (x, y); the caller assigns Z when adding it to the board.
func (c *Client) Generate(ctx context.Context, in utterance.Input, x, y float64) board.Tile {
	suffix := fmt.Sprintf("(for %q)", snippet(in.Transcript, 30))

	if c.llm == nil {
		msg := "LLM project is not configured. Set the Gemini project and location."
		c.record(diag.TypeSynthError, "Synthesis Unavailable "+suffix, diag.ErrorPayload{Message: msg, Context: in.Transcript})
		return c.errorTile("Synthesis Config Error", msg, board.Observation, board.PaletteWarning, x, y)
	}

	prompt := buildPrompt(in)
	c.record(diag.TypeSynthPrompt, "Synthesis Prompt "+suffix, diag.PromptPayload{Prompt: prompt, Transcript: in.Transcript})

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return c.failureTile(err, in, x, y, suffix)
	}
	c.record(diag.TypeSynthRaw, "Raw Response "+suffix, diag.Blob{Raw: raw})

	parsed, err := parseTile(raw)
	if err != nil {
		return c.failureTile(err, in, x, y, suffix)
	}
	c.record(diag.TypeSynthParsed, "Parsed Response "+suffix, diag.Blob{Raw: stripFence(raw)})

	if !parsed.category.Valid() {
		c.record(diag.TypeSynthError, "Invalid Category "+suffix,
			diag.ErrorPayload{Message: fmt.Sprintf("received %q, defaulted to observation", parsed.category), Context: in.Transcript})
		parsed.category = board.Observation
	}

	tile := board.Tile{
		ID:       board.NewID(),
		Category: parsed.category,
		Content: board.Content{
			Title: parsed.title,
			Text:  parsed.text,
			Links: parsed.links,
		},
		Style: board.Style{Palette: parsed.palette, Priority: parsed.priority},
		Life: board.Life{
			Duration:     board.DefaultDuration,
			PauseOnHover: true,
			AllowPin:     true,
		},
		X:        x,
		Y:        y,
		Rotation: c.rnd()*6 - 3,
	}
	c.record(diag.TypeSynthTile, "Tile Created "+suffix, diag.TilePayload{Tile: tile})
	return tile
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	session, err := c.llm.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create synthesis session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate tile content")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("synthesis returned empty response")
	}
	return resp.Texts[0], nil
}

// failureTile maps an error to the fallback tile the user sees. The mapping
// keys off the message text because gollem flattens provider errors.
func (c *Client) failureTile(err error, in utterance.Input, x, y float64, suffix string) board.Tile {
	c.record(diag.TypeSynthError, "Synthesis Error "+suffix, diag.ErrorPayload{Message: err.Error(), Context: in.Transcript})

	title := "Idea Capture Failed"
	text := fmt.Sprintf("Could not process: %q. Try rephrasing.", snippet(in.Transcript, 40))
	category := board.Observation
	palette := board.PaletteWarning

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid json") || strings.Contains(msg, "unexpected token") || strings.Contains(msg, "invalid character"):
		title = "AI Formatting Error"
		text = "AI response was not valid JSON. Please try again. Logged."
		category = board.Creative
	case strings.Contains(msg, "blocked") || strings.Contains(msg, "safety"):
		title = "Content Flagged"
		text = "Input or AI response flagged for safety. Please rephrase."
		category = board.Creative
	case strings.Contains(msg, "api key not valid") || strings.Contains(msg, "api_key_invalid") || strings.Contains(msg, "permission"):
		title = "LLM Credentials Invalid"
		text = "The Gemini project credentials are invalid or not configured correctly."
	}

	tile := c.errorTile(title, text, category, palette, x, y)
	c.record(diag.TypeSynthTile, "Error Tile Created "+suffix, diag.TilePayload{Tile: tile})
	return tile
}

func (c *Client) errorTile(title, text string, category board.Category, palette board.Palette, x, y float64) board.Tile {
	return board.Tile{
		ID:       board.NewID(),
		Category: category,
		Content:  board.Content{Title: title, Text: text},
		Style:    board.Style{Palette: palette, Priority: 1},
		Life: board.Life{
			Duration:     board.DefaultDuration,
			PauseOnHover: true,
			AllowPin:     true,
		},
		X: x,
		Y: y,
		// Rotation stays 0 so error tiles read as system output.
	}
}
