package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

const liveEndpoint = "wss://api.deepgram.com/v1/listen"

// liveMessage is the superset of the JSON events the live socket emits:
// Results (transcripts), UtteranceEnd, and Metadata carrying the
// intelligence side channel (summarize:v2, detect_topics:v2).
type liveMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	LastWordEnd float64 `json:"last_word_end"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
				PunctuatedWord string  `json:"punctuated_word"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
	Summary *struct {
		Summary string `json:"summary"`
	} `json:"summary"`
	Topics []struct {
		Topic      string  `json:"topic"`
		Confidence float64 `json:"confidence"`
	} `json:"topics"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detected_language"`
}

type deepgramSession struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// dialDeepgram opens the live transcription socket with interim results,
// utterance-end detection, and the intelligence features enabled.
func dialDeepgram(ctx context.Context, cfg Config) (RawSession, error) {
	endpoint, err := url.Parse(liveEndpoint)
	if err != nil {
		return nil, err
	}

	q := endpoint.Query()
	q.Set("model", cfg.Model)
	q.Set("language", cfg.Language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("summarize", "v2")
	q.Set("detect_topics", "v2")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, endpoint.String(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, err
	}

	return &deepgramSession{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *deepgramSession) Send(chunk []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, chunk)
}

func (s *deepgramSession) CloseSend() error {
	msg := []byte(`{"type":"CloseStream"}`)
	return s.conn.Write(s.ctx, websocket.MessageText, msg)
}

func (s *deepgramSession) Recv() (Event, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return Event{}, err
		}

		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, fmt.Errorf("live message parse error: %w", err)
		}

		switch msg.Type {
		case "Results":
			return Event{Kind: EventTranscript, Result: msg.result()}, nil
		case "UtteranceEnd":
			return Event{Kind: EventUtteranceEnd, UtteranceEnd: UtteranceEnd{LastWordEnd: msg.LastWordEnd}}, nil
		case "Metadata":
			return Event{Kind: EventMetadata, Metadata: msg.metadata()}, nil
		default:
			// SpeechStarted and friends: nothing upstream consumes them.
		}
	}
}

func (s *deepgramSession) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *liveMessage) result() Result {
	r := Result{IsFinal: m.IsFinal, SpeechFinal: m.SpeechFinal}
	if len(m.Channel.Alternatives) == 0 {
		return r
	}
	alt := m.Channel.Alternatives[0]
	r.Transcript = strings.TrimSpace(alt.Transcript)
	r.Confidence = alt.Confidence
	for _, w := range alt.Words {
		r.Words = append(r.Words, Word{
			Word:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
			Punctuated: w.PunctuatedWord,
		})
	}
	return r
}

func (m *liveMessage) metadata() Metadata {
	var md Metadata
	if m.Summary != nil {
		md.Summary = m.Summary.Summary
	}
	for _, t := range m.Topics {
		md.Topics = append(md.Topics, t.Topic)
	}
	if m.DetectedLanguage != nil {
		md.Language = m.DetectedLanguage.Language
	}
	return md
}
