package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"inspira/audio"
	"inspira/board"
	"inspira/diag"
	"inspira/log"
	"inspira/shutdown"
	"inspira/synth"
)

var version = "dev"

func main() {
	deviceFlag := flag.String("device", "", "Use capture device matching this name substring")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	langFlag := flag.String("lang", "en-US", "Transcription language code")
	modelFlag := flag.String("model", "nova-2-general", "Transcription model")
	durationFlag := flag.Duration("duration", board.DefaultDuration, "How long unpinned tiles stay on the board")
	boardFlag := flag.String("board", "1280x800", "Board dimensions in pixels (WxH)")
	wavFlag := flag.String("wav", "", "Replay a WAV file instead of capturing the microphone")
	headlessFlag := flag.Bool("headless", false, "Run the line-based console frontend instead of the TUI")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location)")
	profileFlag := flag.String("profile", "", "Enable pprof server (e.g., localhost:6060)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("inspira %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	boardW, boardH, err := parseBoardSize(*boardFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	llm, err := synth.NewGeminiClient(ctx, os.Getenv("GEMINI_PROJECT"), geminiLocation())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Gemini client init failed: %v\n", err)
		log.Errorf("gemini init error: %v", err)
	}

	rec := diag.NewLog()
	rec.OnAppend(func(e diag.Entry) {
		log.DiagEntry(string(e.Type), e.Title)
	})

	useTUI := !*headlessFlag && term.IsTerminal(int(os.Stdout.Fd()))

	var sink EventSink
	var tSink *tuiSink
	var cSink *consoleSink
	if useTUI {
		tSink = newTUISink()
		sink = tSink
	} else {
		cSink = newConsoleSink(os.Stdout)
		sink = cSink
	}

	app := NewApp(AppConfig{
		DeepgramKey:  os.Getenv("DEEPGRAM_API_KEY"),
		Model:        *modelFlag,
		Language:     *langFlag,
		BoardWidth:   boardW,
		BoardHeight:  boardH,
		TileDuration: *durationFlag,
	}, llm, sink, rec)

	audioCtx, capture, err := openCapture(*wavFlag, *deviceFlag, *setupFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		log.Errorf("audio init error: %v", err)
		os.Exit(1)
	}
	defer audioCtx.Close()
	defer capture.Close()
	app.SetCapture(audioCtx, capture)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)

	if useTUI {
		p := NewTUIProgram(app)
		tSink.attach(p)
		go func() {
			<-sigChan
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			log.Errorf("tui error: %v", err)
		}
	} else {
		go func() {
			<-sigChan
			app.Shutdown()
			log.Close()
			os.Exit(0)
		}()
		fmt.Println("inspira — press Enter to toggle listening; 'help' for commands")
		runConsole(ctx, app, cSink)
	}
	app.Shutdown()
}

func geminiLocation() string {
	if loc := os.Getenv("GEMINI_LOCATION"); loc != "" {
		return loc
	}
	return "us-central1"
}

func parseBoardSize(s string) (w, h float64, err error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid board size %q (want WxH)", s)
	}
	w, err = strconv.ParseFloat(ws, 64)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid board width %q", ws)
	}
	h, err = strconv.ParseFloat(hs, 64)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid board height %q", hs)
	}
	return w, h, nil
}

func openCapture(wavPath, deviceName string, setup bool) (audio.Context, audio.CaptureDevice, error) {
	if wavPath != "" {
		fakeCtx, err := audio.NewFakeContext(wavPath, true)
		if err != nil {
			return nil, nil, fmt.Errorf("loading WAV: %w", err)
		}
		capture, err := fakeCtx.NewCapture(nil, audio.DefaultCaptureConfig())
		if err != nil {
			return nil, nil, err
		}
		return fakeCtx, capture, nil
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		return nil, nil, err
	}

	var device *audio.DeviceInfo
	switch {
	case deviceName != "":
		device, err = audio.PickDevice(audioCtx, deviceName)
	case setup:
		device, err = audio.SelectDevice(audioCtx)
	}
	if err != nil {
		audioCtx.Close()
		return nil, nil, err
	}
	if device != nil && audio.IsBluetooth(device.Name) {
		fmt.Println("Warning: bluetooth microphones reduce transcription quality")
	}

	capture, err := audioCtx.NewCapture(device, audio.DefaultCaptureConfig())
	if err != nil {
		audioCtx.Close()
		return nil, nil, err
	}
	return audioCtx, capture, nil
}

func runConsole(ctx context.Context, app *App, sink *consoleSink) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "", "start", "stop":
			app.StartStop(ctx)
		case "tiles":
			for _, t := range app.Tiles() {
				sink.TileAdded(t)
			}
		case "pins":
			export := app.PinnedExport()
			fmt.Print(export)
			if export != "" {
				if err := clipboard.WriteAll(export); err == nil {
					fmt.Println("(copied to clipboard)")
				}
			}
		case "pin":
			app.Pin(arg)
		case "dismiss":
			app.Dismiss(arg)
		case "front":
			app.BringToFront(arg)
		case "clear":
			app.ClearUnpinned()
		case "diag":
			for _, e := range app.Diag().Entries() {
				fmt.Printf("%s  %-20s %s\n", e.Time.Format("15:04:05"), e.Type, e.Title)
			}
		case "quit", "exit":
			return
		case "help":
			fmt.Println("commands: <Enter> toggle listening | tiles | pins | pin <id> | dismiss <id> | front <id> | clear | diag | quit")
		default:
			fmt.Printf("unknown command %q (try 'help')\n", cmd)
		}
	}
}
