// Package session owns the connection to a voice backend: its lifecycle,
// the remote bot audio track and the ordered stream of speech events.
//
// Transport callbacks arrive on arbitrary goroutines. Session posts every
// one of them onto its loop.Poster, so observers registered with OnState,
// OnTrack and OnEvent always run on the loop in arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/progrium/voice-sessions/config"
	"github.com/progrium/voice-sessions/connect"
	"github.com/progrium/voice-sessions/level"
	"github.com/progrium/voice-sessions/loop"
	"github.com/progrium/voice-sessions/metrics"
	"github.com/progrium/voice-sessions/rtvi"
	"github.com/progrium/voice-sessions/signal"
	"github.com/progrium/voice-sessions/transcript"
)

type State string

const (
	Disconnected   State = "disconnected"
	Connecting     State = "connecting"
	Authenticating State = "authenticating"
	Connected      State = "connected"
	Ready          State = "ready"
)

// Active reports whether the session is in any state but disconnected.
func (s State) Active() bool { return s != Disconnected }

var ErrAlreadyConnected = errors.New("session already connected")

// Conn is an established transport.
type Conn interface {
	// Run blocks until the transport ends.
	Run() error
	Close() error
}

// Handlers receive transport callbacks. They may be called from any
// goroutine.
type Handlers struct {
	Connected  func()
	Closed     func()
	Track      func(level.Track)
	TrackEnded func(level.Track)
	Message    func([]byte)
}

// Dialer establishes a transport to a signaling URL.
type Dialer func(ctx context.Context, url string, h Handlers) (Conn, error)

type Session struct {
	cfg       config.SessionConfig
	post      loop.Poster
	dial      Dialer
	connector *connect.Client
	log       *slog.Logger

	state  *signal.Value[State]
	track  *signal.Value[level.Track]
	events signal.Observers[transcript.Event]

	mu         sync.Mutex
	gen        int
	conn       Conn
	connecting bool
	started    time.Time
}

type Option func(*Session)

// WithConnector overrides the client used to request a room. By default
// one is built when the configuration names a connect URL.
func WithConnector(c *connect.Client) Option {
	return func(s *Session) { s.connector = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func New(cfg config.SessionConfig, post loop.Poster, dial Dialer, opts ...Option) *Session {
	s := &Session{
		cfg:   cfg,
		post:  post,
		dial:  dial,
		log:   slog.Default(),
		state: signal.NewValue(Disconnected),
		track: signal.NewValue[level.Track](nil),
	}
	if cfg.ConnectURL != "" {
		s.connector = &connect.Client{
			URL:  cfg.ConnectURL,
			HTTP: &http.Client{Timeout: s.timeout()},
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session")
	return s
}

func (s *Session) State() State { return s.state.Get() }

func (s *Session) Active() bool { return s.state.Get().Active() }

// Track returns the current remote audio track, or nil.
func (s *Session) Track() level.Track { return s.track.Get() }

func (s *Session) OnState(fn func(State)) signal.Subscription {
	return s.state.Subscribe(fn)
}

func (s *Session) OnTrack(fn func(level.Track)) signal.Subscription {
	return s.track.Subscribe(fn)
}

// OnEvent observes speech events in the order the backend sent them.
func (s *Session) OnEvent(fn func(transcript.Event)) signal.Subscription {
	return s.events.Add(fn)
}

// Connect requests a room if a connect URL is configured, then dials the
// signaling URL. It returns once the transport is established; the
// session keeps running until Disconnect or until the remote side ends it.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil || s.connecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.gen++
	gen := s.gen
	s.connecting = true
	s.started = time.Now()
	s.mu.Unlock()

	s.postState(gen, Connecting)

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	url := s.cfg.SignalURL
	if s.connector != nil {
		s.postState(gen, Authenticating)
		creds, err := s.connector.Connect(ctx, connect.Request{BotType: s.cfg.BotType})
		if err != nil {
			s.teardown(gen)
			return err
		}
		url, err = creds.SignalURL()
		if err != nil {
			s.teardown(gen)
			return err
		}
	}

	s.log.Info("dialing", "url", url)
	conn, err := s.dial(ctx, url, s.handlers(gen))
	if err != nil {
		s.teardown(gen)
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// disconnected while dialing
		s.mu.Unlock()
		conn.Close()
		return context.Canceled
	}
	s.conn = conn
	s.connecting = false
	s.mu.Unlock()

	go func() {
		if err := conn.Run(); err != nil {
			s.log.Warn("transport ended", "err", err)
		}
		s.teardown(gen)
	}()
	return nil
}

// Disconnect closes the transport, clears the track and returns the
// session to disconnected. It is safe to call at any time.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	conn := s.conn
	s.conn = nil
	s.connecting = false
	s.mu.Unlock()

	s.post.Post(func() { s.reset(gen) })
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) timeout() time.Duration {
	if s.cfg.Timeout < 1 {
		return 30 * time.Second
	}
	return time.Duration(s.cfg.Timeout) * time.Second
}

func (s *Session) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// teardown ends connection gen if it is still current.
func (s *Session) teardown(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	next := s.gen
	conn := s.conn
	s.conn = nil
	s.connecting = false
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.post.Post(func() { s.reset(next) })
}

func (s *Session) reset(gen int) {
	if !s.current(gen) {
		return
	}
	if s.track.Get() != nil {
		s.track.Set(nil)
	}
	s.setState(Disconnected)
}

func (s *Session) postState(gen int, st State) {
	s.post.Post(func() {
		if s.current(gen) {
			s.setState(st)
		}
	})
}

func (s *Session) setState(st State) {
	if s.state.Get() == st {
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(st)).Inc()
	s.log.Info("state", "state", st)
	s.state.Set(st)
}

func (s *Session) handlers(gen int) Handlers {
	return Handlers{
		Connected: func() {
			s.post.Post(func() {
				if !s.current(gen) {
					return
				}
				switch s.state.Get() {
				case Connecting, Authenticating:
					s.mu.Lock()
					metrics.ConnectDuration.Observe(time.Since(s.started).Seconds())
					s.mu.Unlock()
					s.setState(Connected)
				}
			})
		},
		Closed: func() {
			s.teardown(gen)
		},
		Track: func(t level.Track) {
			s.post.Post(func() {
				if s.current(gen) {
					s.track.Set(t)
				}
			})
		},
		TrackEnded: func(t level.Track) {
			s.post.Post(func() {
				if s.current(gen) && s.track.Get() == t {
					s.track.Set(nil)
				}
			})
		},
		Message: func(b []byte) {
			s.message(gen, b)
		},
	}
}

func (s *Session) message(gen int, b []byte) {
	msg, err := rtvi.Decode(b)
	if err != nil {
		s.log.Debug("dropping message", "err", err)
		return
	}

	switch msg.Type {
	case rtvi.TypeBotReady:
		s.postState(gen, Ready)
		return
	case rtvi.TypeError:
		text, fatal, err := msg.Err()
		if err != nil {
			s.log.Debug("dropping message", "err", err)
			return
		}
		s.log.Error("backend error", "error", text, "fatal", fatal)
		if fatal {
			s.teardown(gen)
		}
		return
	}

	e, ok, err := msg.Event()
	if err != nil {
		s.log.Debug("dropping message", "type", msg.Type, "err", err)
		return
	}
	if !ok {
		return
	}
	s.post.Post(func() {
		if s.current(gen) {
			s.events.Notify(e)
		}
	})
}
