package audio

import (
	"sync"
	"testing"
	"time"
)

type listContext struct {
	devices []DeviceInfo
}

func (c *listContext) Devices() ([]DeviceInfo, error) { return c.devices, nil }
func (c *listContext) Close()                         {}
func (c *listContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, nil
}

func TestPickDevice(t *testing.T) {
	ctx := &listContext{devices: []DeviceInfo{
		{ID: "0", Name: "Built-in Microphone"},
		{ID: "1", Name: "AirPods Pro"},
	}}

	d, err := PickDevice(ctx, "airpods")
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "1" {
		t.Errorf("picked %q", d.Name)
	}

	d, err = PickDevice(ctx, "")
	if err != nil || d != nil {
		t.Errorf("empty name should mean default device, got %v / %v", d, err)
	}

	if _, err := PickDevice(ctx, "webcam"); err == nil {
		t.Error("expected error for unknown device name")
	}
}

func TestIsBluetooth(t *testing.T) {
	for name, want := range map[string]bool{
		"AirPods Pro":          true,
		"WH-1000XM4 bluetooth": true,
		"Built-in Microphone":  false,
	} {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFakeCaptureReplaysPCM(t *testing.T) {
	pcm := make([]byte, fakeFrameSize*BytesPerFrame*3)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	ctx := NewFakePCMContext(pcm, false)
	dev, err := ctx.NewCapture(nil, DefaultCaptureConfig())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []byte
	dev.SetCallback(func(data []byte, frameCount uint32) {
		mu.Lock()
		if len(got) < len(pcm) {
			got = append(got, data...)
		}
		mu.Unlock()
	})

	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}

	fake := dev.(*FakeCapture)
	select {
	case <-fake.AudioDone():
	case <-time.After(time.Second):
		t.Fatal("audio never finished")
	}
	dev.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) < len(pcm) {
		t.Fatalf("delivered %d bytes, want at least %d", len(got), len(pcm))
	}
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], pcm[i])
		}
	}
}

func TestFakeCaptureFeedsSilenceAfterAudio(t *testing.T) {
	ctx := NewFakePCMContext(make([]byte, fakeFrameSize*BytesPerFrame), false)
	dev, _ := ctx.NewCapture(nil, DefaultCaptureConfig())

	var mu sync.Mutex
	chunks := 0
	dev.SetCallback(func(data []byte, frameCount uint32) {
		mu.Lock()
		chunks++
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := chunks
		mu.Unlock()
		if n > 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	dev.Stop()

	mu.Lock()
	defer mu.Unlock()
	if chunks <= 5 {
		t.Errorf("only %d chunks delivered; silence feed did not run", chunks)
	}
}

func TestFakeCaptureStopWithoutCallback(t *testing.T) {
	ctx := NewFakePCMContext(nil, true)
	dev, _ := ctx.NewCapture(nil, DefaultCaptureConfig())
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Stop()
}
