// Package level turns a live audio track into a smoothed volume level in
// [0,1] suitable for driving an animation.
package level

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/progrium/voice-sessions/loop"
	"github.com/progrium/voice-sessions/metrics"
	"github.com/progrium/voice-sessions/signal"
)

// Track is a live audio source an Extractor can attach to.
// Implementations must be comparable. Open is called on every attach, so
// re-attaching a detached track opens it again. A track with a single
// reader may refuse a second Open; the Extractor logs that like any other
// setup failure and the level stays 0.
type Track interface {
	ID() string
	Open() (beep.Streamer, beep.Format, error)
}

// Opener builds the analysis context for a track.
type Opener func(Track) (Analysis, error)

// OpenAnalyser opens t and pumps its audio into a new Analyser.
func OpenAnalyser(t Track) (Analysis, error) {
	s, format, err := t.Open()
	if err != nil {
		return nil, fmt.Errorf("open track %s: %w", t.ID(), err)
	}
	rate := format.SampleRate.N(time.Second)
	if rate <= 0 {
		return nil, fmt.Errorf("track %s: invalid sample rate %d", t.ID(), rate)
	}
	a := NewAnalyser(rate)
	go a.Pump(effects.Mono(s))
	return a, nil
}

// Extractor owns the frequency bands and the analysis context for at most
// one track at a time. All methods must be called from the loop that
// drives its scheduler.
type Extractor struct {
	sched loop.Scheduler
	open  Opener
	log   *slog.Logger

	bands    []Band
	track    Track
	analysis Analysis
	bins     []byte
	ranges   []binRange
	frame    loop.FrameID
	ticking  bool

	volume *signal.Value[float64]
	active *signal.Value[bool]
}

type Option func(*Extractor)

func WithOpener(open Opener) Option {
	return func(e *Extractor) { e.open = open }
}

func WithBands(bands []Band) Option {
	return func(e *Extractor) { e.bands = append([]Band(nil), bands...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

func New(sched loop.Scheduler, opts ...Option) *Extractor {
	e := &Extractor{
		sched:  sched,
		open:   OpenAnalyser,
		log:    slog.Default(),
		bands:  DefaultBands(),
		volume: signal.NewValue(0.0),
		active: signal.NewValue(false),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "level")
	return e
}

// SetTrack attaches t, replacing any current track. A nil t detaches.
// Any previous analysis is released before a new one is built. If the
// analysis cannot be built the failure is logged and the level stays 0.
func (e *Extractor) SetTrack(t Track) {
	if t == e.track && (t == nil || e.analysis != nil) {
		return
	}
	e.detach()
	e.track = t
	if t == nil {
		return
	}

	a, err := e.open(t)
	if err != nil {
		metrics.AnalysisSetupFailures.Inc()
		e.log.Warn("analysis setup failed", "track", t.ID(), "err", err)
		return
	}
	e.attach(a)
}

func (e *Extractor) Track() Track { return e.track }

// SetActive records whether the session is live.
func (e *Extractor) SetActive(active bool) {
	if e.active.Get() != active {
		e.active.Set(active)
	}
}

func (e *Extractor) Active() bool { return e.active.Get() }

func (e *Extractor) Volume() float64 { return e.volume.Get() }

// Bands returns a copy of the current band state.
func (e *Extractor) Bands() []Band {
	return append([]Band(nil), e.bands...)
}

// Subscribe observes every published volume.
func (e *Extractor) Subscribe(fn func(volume float64)) signal.Subscription {
	return e.volume.Subscribe(fn)
}

// SubscribeActive observes changes to the session-active flag.
func (e *Extractor) SubscribeActive(fn func(active bool)) signal.Subscription {
	return e.active.Subscribe(fn)
}

// Close detaches the current track. It is safe to call repeatedly.
func (e *Extractor) Close() {
	e.detach()
	e.track = nil
}

func (e *Extractor) attach(a Analysis) {
	e.analysis = a
	metrics.AnalysisGraphs.Inc()
	n := a.FrequencyBinCount()
	e.bins = make([]byte, n)
	e.ranges = bandRanges(e.bands, a.SampleRate(), n)
	for i := range e.bands {
		e.bands[i].Value = 0
	}
	e.log.Debug("analysis attached", "track", e.track.ID(), "rate", a.SampleRate(), "bins", n)
	e.schedule()
}

func (e *Extractor) detach() {
	if e.ticking {
		e.sched.CancelFrame(e.frame)
		e.ticking = false
	}
	if e.analysis != nil {
		if err := e.analysis.Close(); err != nil {
			e.log.Warn("analysis close", "err", err)
		}
		e.analysis = nil
		metrics.AnalysisGraphs.Dec()
		e.bins = nil
		e.ranges = nil
	}
	e.setVolume(0)
}

func (e *Extractor) schedule() {
	e.frame = e.sched.RequestFrame(e.tick)
	e.ticking = true
}

func (e *Extractor) tick(time.Time) {
	e.ticking = false
	a := e.analysis
	if a == nil {
		return
	}
	a.ByteFrequencyData(e.bins)
	for i, r := range e.ranges {
		var raw float64
		if r.end > r.start {
			raw = mean(e.bins[r.start:r.end])
		}
		e.bands[i].Update(raw)
	}
	metrics.AnalysisTicks.Inc()
	e.setVolume(volumeOf(e.bands))
	// an observer may have detached or replaced the track
	if e.analysis == a && !e.ticking {
		e.schedule()
	}
}

func (e *Extractor) setVolume(v float64) {
	metrics.Volume.Set(v)
	e.volume.Set(v)
}
