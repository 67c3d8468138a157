package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/joho/godotenv"
	"github.com/progrium/voice-sessions/config"
	"github.com/progrium/voice-sessions/level"
	"github.com/progrium/voice-sessions/loop"
	"github.com/progrium/voice-sessions/session"
	"tractor.dev/toolkit-go/engine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	engine.Run(Main{})
}

type Main struct{}

func fatal(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// Serve joins a session and prints the bot's volume and band values,
// without a transcript or ray display.
func (m *Main) Serve(ctx context.Context) {
	cfg, err := config.Load(os.Getenv("VOICE_CONFIG"))
	fatal(err)
	slog.SetDefault(cfg.Logging.NewLogger())

	format := beep.Format{
		SampleRate:  beep.SampleRate(cfg.Audio.SampleRate),
		NumChannels: cfg.Audio.Channels,
		Precision:   4,
	}
	if cfg.Audio.Playback {
		fatal(speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)))
	}

	lp := loop.New(cfg.Display.FrameRate)
	sess := session.New(cfg.Session, lp, session.DialPeer(session.PeerOptions{
		Format:   format,
		Playback: cfg.Audio.Playback,
	}))
	ext := level.New(lp)

	every := cfg.Display.FrameRate / 10
	if every < 1 {
		every = 1
	}
	var n int
	defer ext.Subscribe(func(v float64) {
		n++
		if n%every != 0 {
			return
		}
		var bands []string
		for _, b := range ext.Bands() {
			bands = append(bands, fmt.Sprintf("%5.1f", b.Value))
		}
		fmt.Printf("\r%-20s %.2f  [%s]", strings.Repeat("#", int(v*20)), v, strings.Join(bands, " "))
	}).Release()
	defer sess.OnState(func(st session.State) {
		ext.SetActive(st.Active())
		fmt.Printf("\n-- %s\n", st)
	}).Release()
	defer sess.OnTrack(func(t level.Track) {
		ext.SetTrack(t)
	}).Release()

	go func() {
		if err := sess.Connect(ctx); err != nil {
			slog.Error("connect failed", "err", err)
			engine.Terminate()
		}
	}()
	lp.Run(ctx)
	ext.Close()
	sess.Disconnect()
}
