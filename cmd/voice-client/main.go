package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/joho/godotenv"
	"github.com/progrium/voice-sessions/config"
	"github.com/progrium/voice-sessions/connect"
	"github.com/progrium/voice-sessions/level"
	"github.com/progrium/voice-sessions/loop"
	"github.com/progrium/voice-sessions/metrics"
	"github.com/progrium/voice-sessions/record"
	"github.com/progrium/voice-sessions/session"
	"github.com/progrium/voice-sessions/signal"
	"github.com/progrium/voice-sessions/transcript"
	"github.com/progrium/voice-sessions/visualizer"
	"tractor.dev/toolkit-go/engine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	engine.Run(Main{})
}

type Main struct {
	cfg *config.Config
	rec *record.Session
}

func fatal(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func (m *Main) TerminateDaemon(ctx context.Context) error {
	if m.rec == nil {
		return nil
	}
	path, err := m.rec.Save(m.cfg.Record.Dir)
	if err != nil {
		return err
	}
	slog.Info("session saved", "path", path)
	return nil
}

func (m *Main) Serve(ctx context.Context) {
	cfg, err := config.Load(os.Getenv("VOICE_CONFIG"))
	fatal(err)
	m.cfg = cfg
	slog.SetDefault(cfg.Logging.NewLogger())

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				slog.Error("metrics", "err", err)
			}
		}()
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(cfg.Audio.SampleRate),
		NumChannels: cfg.Audio.Channels,
		Precision:   4,
	}
	if cfg.Audio.Playback {
		fatal(speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)))
	}

	peerOpts := session.PeerOptions{Format: format, Playback: cfg.Audio.Playback}
	if cfg.Record.Enabled {
		m.rec = record.NewSession(cfg.Session.BotType)
		peerOpts.Record = func(trackID string) (session.RTPSink, error) {
			w, err := m.rec.TrackWriter(cfg.Record.Dir, trackID, 48000, uint16(cfg.Audio.Channels))
			if err != nil {
				return nil, err
			}
			return w, nil
		}
	}

	var sessOpts []session.Option
	if cfg.Session.ConnectURL != "" {
		c := &connect.Client{
			URL:  cfg.Session.ConnectURL,
			HTTP: &http.Client{Timeout: time.Duration(cfg.Session.Timeout) * time.Second},
		}
		if err := c.Health(ctx); err != nil {
			slog.Warn("backend health check failed", "err", err)
		}
		sessOpts = append(sessOpts, session.WithConnector(c))
	}

	lp := loop.New(cfg.Display.FrameRate)
	sess := session.New(cfg.Session, lp, session.DialPeer(peerOpts), sessOpts...)
	ext := level.New(lp)
	asm := transcript.NewAssembler()
	pb := transcript.NewPlayback()
	rend := visualizer.NewRenderer(lp, ext, cfg.Display.Rays, nil)
	view := newView(os.Stdout, cfg.Display.FrameRate/15)

	var subs signal.Group
	subs.Add(
		sess.OnState(func(st session.State) {
			if st == session.Connecting {
				asm.Reset()
				pb.Reset()
			}
			ext.SetActive(st.Active())
			view.setState(st)
			if m.rec != nil {
				m.rec.Record(record.TypeState, string(st))
			}
		}),
		sess.OnTrack(func(t level.Track) {
			ext.SetTrack(t)
		}),
		sess.OnEvent(func(e transcript.Event) {
			asm.Handle(e)
			pb.Handle(e)
			if m.rec != nil {
				m.rec.RecordEvent(e)
			}
		}),
		asm.Subscribe(view.setMessages),
		pb.Subscribe(view.setProgress),
		rend.Subscribe(view.setRays),
	)

	lp.Post(rend.Start)
	go func() {
		if err := sess.Connect(ctx); err != nil {
			slog.Error("connect failed", "err", err)
			engine.Terminate()
		}
	}()

	err = lp.Run(ctx)

	// the loop has stopped, so teardown runs here
	subs.Release()
	rend.Stop()
	ext.Close()
	sess.Disconnect()
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}
