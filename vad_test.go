package main

import (
	"encoding/binary"
	"math"
	"testing"
)

func genTone(freq float64, durationMs int) []byte {
	n := 16000 * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func genSilence(durationMs int) []byte {
	return make([]byte, 16000*durationMs/1000*2)
}

func TestVADSilence(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	vp.Process(genSilence(200))
	if vp.HasSpeechTick() {
		t.Error("expected no speech on silence")
	}
}

func TestVADOddChunkSizes(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	// Feed 200ms of silence in 100-byte chunks (not aligned to 640-byte frames)
	silence := genSilence(200)
	for i := 0; i < len(silence); i += 100 {
		end := i + 100
		if end > len(silence) {
			end = len(silence)
		}
		vp.Process(silence[i:end])
	}
	total, speech := vp.Stats()
	if total == 0 {
		t.Fatal("no frames processed from unaligned chunks")
	}
	if speech != 0 {
		t.Errorf("silence classified as speech in %d/%d frames", speech, total)
	}
}

func TestVADHasSpeechTickDelta(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	vp.Process(genSilence(200))
	vp.HasSpeechTick() // consume the window
	// No new frames since the last tick
	if vp.HasSpeechTick() {
		t.Error("expected false with no frames since previous tick")
	}
}

func TestVADReset(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	vp.Process(genTone(440, 200))
	vp.Reset()
	if total, speech := vp.Stats(); total != 0 || speech != 0 {
		t.Errorf("stats after reset = %d/%d, want 0/0", speech, total)
	}
}
