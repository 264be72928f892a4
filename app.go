package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/gollem"

	"inspira/audio"
	"inspira/board"
	"inspira/diag"
	"inspira/log"
	"inspira/synth"
	"inspira/transcriber"
	"inspira/utterance"
)

type AppConfig struct {
	DeepgramKey  string
	Model        string
	Language     string
	BoardWidth   float64
	BoardHeight  float64
	TileDuration time.Duration // 0 means the board default
}

type micState int

const (
	micUnknown micState = iota
	micAllowed
	micDenied
)

// App wires the pipeline together: capture feeds the stream controller,
// stream events feed the accumulator, drained utterances feed synthesis,
// and finished tiles land on the board. It owns the single live session;
// starting a new one fully releases the previous.
type App struct {
	cfg   AppConfig
	sink  EventSink
	rec   *diag.Log
	tiles *board.Board
	acc   *utterance.Accumulator
	ctrl  *transcriber.Controller
	ideas *synth.Client
	vad   *vadProcessor

	capCtx  audio.Context
	capture audio.CaptureDevice

	mu            sync.Mutex
	listening     bool
	streamReady   bool
	synthReady    bool
	mic           micState
	captureActive bool
	tickDone      chan struct{}
	utterances    int
	tileCount     int
	sessStart     time.Time

	synthWG sync.WaitGroup
}

func NewApp(cfg AppConfig, llm gollem.LLMClient, sink EventSink, rec *diag.Log) *App {
	return newApp(cfg, llm, sink, rec, nil)
}

// newApp exists so tests can inject a scripted stream session.
func newApp(cfg AppConfig, llm gollem.LLMClient, sink EventSink, rec *diag.Log, dial transcriber.DialFunc) *App {
	if sink == nil {
		sink = nopSink{}
	}
	if rec == nil {
		rec = diag.NewLog()
	}

	a := &App{
		cfg:         cfg,
		sink:        sink,
		rec:         rec,
		tiles:       board.New(cfg.BoardWidth, cfg.BoardHeight),
		ideas:       synth.New(llm, rec),
		streamReady: cfg.DeepgramKey != "",
		synthReady:  llm != nil,
	}

	a.acc = utterance.NewAccumulator(a.finalizeUtterance)
	a.acc.OnSkipped(func(transcript string) {
		a.rec.Add(diag.TypeInfo, "Transcript Skipped (Too Short)", diag.Message(transcript))
	})

	a.tiles.OnExpired(func(t board.Tile) {
		a.rec.Add(diag.TypeInfo, "Tile Expired", diag.TilePayload{Tile: t})
		a.sink.TileExpired(t)
	})

	tcfg := transcriber.Config{
		APIKey:     cfg.DeepgramKey,
		Model:      cfg.Model,
		Language:   cfg.Language,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	}
	if dial == nil {
		a.ctrl = transcriber.New(tcfg, a.streamHandlers())
	} else {
		a.ctrl = transcriber.NewWithDial(tcfg, a.streamHandlers(), dial)
	}

	if !a.streamReady {
		rec.Add(diag.TypeStreamError, "Transcription Configuration Error",
			diag.Message("DEEPGRAM_API_KEY is not set. Real-time transcription is disabled."))
	}
	if llm == nil {
		rec.Add(diag.TypeSynthError, "Synthesis Configuration Error",
			diag.Message("Gemini project is not configured. Tile generation is disabled."))
	}

	return a
}

// SetCapture hands the app its audio source. May be nil; the app then runs
// the stream without feeding audio (scripted sessions in tests).
func (a *App) SetCapture(ctx audio.Context, dev audio.CaptureDevice) {
	a.mu.Lock()
	a.capCtx = ctx
	a.capture = dev
	a.mu.Unlock()
}

// Diag returns the in-app diagnostic ring.
func (a *App) Diag() *diag.Log { return a.rec }

// Listening reports whether a streaming session is currently open.
func (a *App) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// StartStop toggles the listening session, mirroring a single UI control.
func (a *App) StartStop(ctx context.Context) {
	a.mu.Lock()
	streamReady, synthReady, mic := a.streamReady, a.synthReady, a.mic
	a.mu.Unlock()

	if !streamReady {
		a.rec.Add(diag.TypeStreamError, "Start Listening Attempt Failed",
			diag.Message("transcription is not ready (API key issue)"))
		a.sink.BlockingError("Transcription is not available. Check the Deepgram API key.")
		return
	}
	if !synthReady {
		a.rec.Add(diag.TypeSynthError, "Start Listening Attempt Blocked",
			diag.Message("synthesis is not configured; tile generation disabled"))
		a.sink.BlockingError("Idea synthesis is not available. Check the Gemini configuration.")
		return
	}

	switch a.ctrl.State() {
	case transcriber.StateOpen, transcriber.StateConnecting:
		a.rec.Add(diag.TypeStreamEvent, "Stop Listening Initiated", diag.Message("user requested stop"))
		a.stopListening()
	default:
		if mic == micDenied {
			a.sink.BlockingError("Microphone access was denied. Re-enable it and try again.")
			return
		}
		a.startListening(ctx)
	}
}

func (a *App) startListening(ctx context.Context) {
	a.rec.Add(diag.TypeStreamEvent, "Start Listening Initiated", diag.Message("user requested start"))
	a.acc.Reset()

	a.mu.Lock()
	capture := a.capture
	a.mu.Unlock()

	if capture != nil {
		if a.vad == nil {
			vp, err := newVADProcessor()
			if err != nil {
				log.Warnf("vad init failed: %v", err)
			} else {
				a.vad = vp
			}
		}
		if a.vad != nil {
			a.vad.Reset()
		}

		capture.SetCallback(func(data []byte, frameCount uint32) {
			if len(data) == 0 {
				return
			}
			pcm := make([]byte, len(data))
			copy(pcm, data)
			a.ctrl.Feed(pcm)

			if a.vad != nil {
				a.vad.Process(data)
			}
			var sumSquares float64
			for i := 0; i+1 < len(data); i += 2 {
				sample := int16(binary.LittleEndian.Uint16(data[i:]))
				normalized := float64(sample) / 32768.0
				sumSquares += normalized * normalized
			}
			a.sink.AudioLevel(math.Sqrt(sumSquares / float64(len(data)/2)))
		})

		if err := capture.Start(); err != nil {
			capture.ClearCallback()
			a.mu.Lock()
			a.mic = micDenied
			a.mu.Unlock()
			a.rec.Add(diag.TypeInfo, "Microphone Permission",
				diag.Message(fmt.Sprintf("capture start failed: %v", err)))
			a.sink.BlockingError("Could not open the microphone: " + err.Error())
			return
		}
		a.mu.Lock()
		a.mic = micAllowed
		a.captureActive = true
		a.mu.Unlock()
		a.rec.Add(diag.TypeInfo, "Microphone Permission", diag.Message("capture device acquired"))
	}

	a.mu.Lock()
	a.sessStart = time.Now()
	done := make(chan struct{})
	a.tickDone = done
	a.mu.Unlock()

	if a.vad != nil && capture != nil {
		go a.runSilenceMonitor(done)
	}

	log.SessionStart(a.cfg.Model, a.cfg.Language)
	a.ctrl.Start(ctx)
}

func (a *App) stopListening() {
	a.ctrl.Stop()
	a.releaseCapture()
}

// releaseCapture stops the audio side of the session. Safe to call more
// than once; the stream controller side is handled separately.
func (a *App) releaseCapture() {
	a.mu.Lock()
	capture := a.capture
	active := a.captureActive
	a.captureActive = false
	done := a.tickDone
	a.tickDone = nil
	start := a.sessStart
	a.sessStart = time.Time{}
	a.mu.Unlock()

	if done != nil {
		close(done)
	}
	if capture != nil && active {
		capture.Stop()
		capture.ClearCallback()
	}

	if !start.IsZero() {
		stats := a.ctrl.Stats()
		log.StreamMetrics(log.StreamMetricsData{
			TotalMs:      float64(time.Since(start).Milliseconds()),
			AudioS:       float64(stats.SentChunks) * transcriber.ChunkDuration.Seconds(),
			SentChunks:   int(stats.SentChunks),
			SentKB:       float64(stats.SentBytes) / 1024,
			RecvMessages: int(stats.RecvMessages),
			RecvFinals:   int(stats.RecvFinals),
			RecvInterims: int(stats.RecvInterims),
		})
	}
}

func (a *App) runSilenceMonitor(done <-chan struct{}) {
	mon := newSilenceMonitor()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			switch mon.Tick(a.vad.HasSpeechTick()) {
			case SilenceWarn, SilenceRepeat:
				log.Info("no_voice_warning")
				a.rec.Add(diag.TypeInfo, "No Voice Detected", diag.Message("no speech for 8s"))
				a.sink.SilenceWarning(true)
			case SilenceWarnClear:
				a.sink.SilenceWarning(false)
			case SilenceAutoClose:
				log.Info("silence_auto_close")
				a.rec.Add(diag.TypeStreamEvent, "Silence Auto-Stop", diag.Message("no speech for 30s, stopping session"))
				a.stopListening()
				return
			}
		}
	}
}

func (a *App) streamHandlers() transcriber.Handlers {
	return transcriber.Handlers{
		OnOpen: func() {
			a.rec.Add(diag.TypeStreamEvent, "Connection Opened", diag.Message("streaming session established"))
			a.mu.Lock()
			a.listening = true
			a.mu.Unlock()
			a.sink.ListeningChanged(true)
		},
		OnClose: func() {
			a.rec.Add(diag.TypeStreamEvent, "Connection Closed", diag.Message("streaming session ended"))
			a.mu.Lock()
			a.listening = false
			a.mu.Unlock()
			a.sink.ListeningChanged(false)
			a.releaseCapture()
			// Flush speech buffered when the session ended mid-utterance.
			if a.acc.Pending() {
				a.acc.Flush()
			}
		},
		OnTranscript: func(res transcriber.Result) {
			if res.Transcript == "" {
				return
			}
			title := "Interim Transcript"
			if res.IsFinal {
				title = "Final Transcript"
			}
			a.rec.Add(diag.TypeStreamTranscript, title, diag.TranscriptPayload{
				Transcript: res.Transcript,
				Final:      res.IsFinal,
				Confidence: res.Confidence,
			})
			if res.IsFinal {
				a.acc.AddFinal(res.Transcript)
				log.Confidence(res.Confidence)
			} else {
				a.sink.InterimTranscript(res.Transcript)
			}
		},
		OnMetadata: func(m transcriber.Metadata) {
			a.rec.Add(diag.TypeStreamMetadata, "Intelligence Metadata", diag.MetadataPayload{
				Summary:  m.Summary,
				Topics:   m.Topics,
				Language: m.Language,
			})
			a.acc.SetSummary(m.Summary)
			a.acc.SetTopics(m.Topics)
		},
		OnUtteranceEnd: func(ue transcriber.UtteranceEnd) {
			a.rec.Add(diag.TypeStreamEvent, "Utterance Ended",
				diag.Message(fmt.Sprintf("last word end %.2fs", ue.LastWordEnd)))
			a.acc.UtteranceEnd()
		},
		OnError: func(err error) {
			a.rec.Add(diag.TypeStreamError, "Stream Error", diag.ErrorPayload{Message: err.Error()})
			log.Errorf("stream error: %v", err)
			a.mu.Lock()
			a.listening = false
			auth := transcriber.IsAuthError(err)
			if auth {
				a.streamReady = false
				a.mic = micDenied
			}
			a.mu.Unlock()
			a.sink.ListeningChanged(false)
			if auth {
				a.rec.Add(diag.TypeStreamError, "Stream Auth Failed",
					diag.Message("marking transcription as not ready"))
				a.sink.BlockingError("Transcription authentication failed. Check the Deepgram API key.")
			}
		},
		OnStateChange: func(s transcriber.State) {
			a.rec.Add(diag.TypeStreamEvent, "Stream State Change", diag.Message(string(s)))
			a.sink.StreamState(s)
		},
	}
}

// finalizeUtterance runs on the accumulator's debounce timer. Placement is
// decided up front; the synthesis call runs concurrently, so tiles land in
// completion order, not utterance order.
func (a *App) finalizeUtterance(in utterance.Input) {
	a.mu.Lock()
	a.utterances++
	a.mu.Unlock()

	a.rec.Add(diag.TypeTranscript,
		fmt.Sprintf("Final Transcript for Tile Gen: %q", truncate(in.Transcript, 70)),
		diag.UtterancePayload{Transcript: in.Transcript, Summary: in.Summary, Topics: in.Topics})
	log.UtteranceText(in.Transcript)

	x, y := a.tiles.PlaceNew()

	a.synthWG.Add(1)
	go func() {
		defer a.synthWG.Done()
		started := time.Now()
		tile := a.ideas.Generate(context.Background(), in, x, y)
		if a.cfg.TileDuration > 0 && tile.Life.Duration == board.DefaultDuration {
			tile.Life.Duration = a.cfg.TileDuration
		}
		added := a.tiles.Add(tile)

		a.mu.Lock()
		a.tileCount++
		a.mu.Unlock()

		// Fallback tiles carry priority 1 and zero rotation.
		failed := added.Style.Priority == 1 && added.Rotation == 0
		log.Synthesis(string(added.Category), added.Content.Title, time.Since(started), failed)
		a.sink.TileAdded(added)
	}()
}

// WaitSynthesis blocks until in-flight synthesis calls finish. Stopping the
// stream never cancels them; tests and shutdown use this to drain.
func (a *App) WaitSynthesis() {
	a.synthWG.Wait()
}

// Shutdown stops any live session and waits for in-flight work.
func (a *App) Shutdown() {
	if a.ctrl.State() == transcriber.StateOpen || a.ctrl.State() == transcriber.StateConnecting {
		a.stopListening()
	}
	a.synthWG.Wait()

	a.mu.Lock()
	utterances, tileCount := a.utterances, a.tileCount
	a.mu.Unlock()
	if utterances > 0 {
		log.SessionEnd(utterances, tileCount)
	}
}

// Board surface, exposed to the UI collaborator.

func (a *App) Tiles() []board.Tile  { return a.tiles.Tiles() }
func (a *App) Pinned() []board.Tile { return a.tiles.Pinned() }

func (a *App) Pin(id string) {
	a.rec.Add(diag.TypeInfo, "Tile Pinned", diag.Message(id))
	a.tiles.Pin(id)
}

func (a *App) Dismiss(id string) {
	a.rec.Add(diag.TypeInfo, "Tile Dismissed", diag.Message(id))
	a.tiles.Dismiss(id)
	a.sink.TileDismissed(id)
}

func (a *App) BringToFront(id string) { a.tiles.BringToFront(id) }

// Move clamps to the board with the drag padding before committing.
func (a *App) Move(id string, x, y float64) {
	w, h := a.tiles.Size()
	cx, cy := board.Clamp(x, y, w, h)
	a.tiles.Move(id, cx, cy)
}

func (a *App) HoverStart(id string) { a.tiles.HoverStart(id) }
func (a *App) HoverEnd(id string)   { a.tiles.HoverEnd(id) }

func (a *App) ClearUnpinned() {
	a.rec.Add(diag.TypeInfo, "Board Action", diag.Message("cleared unpinned tiles"))
	a.tiles.ClearUnpinned()
}

func (a *App) Resize(width, height float64) { a.tiles.Resize(width, height) }

// PinnedExport renders the pinned tiles, in pin order, as plain text for an
// external formatting collaborator.
func (a *App) PinnedExport() string {
	pinned := a.tiles.Pinned()
	if len(pinned) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range pinned {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n%s\n", t.Category, t.Content.Title, t.Content.Text)
		for _, link := range t.Content.Links {
			fmt.Fprintf(&b, "  %s\n", link)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
