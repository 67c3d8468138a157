// Package transcript assembles speech events into an ordered list of
// dialogue messages.
package transcript

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/progrium/voice-sessions/metrics"
	"github.com/progrium/voice-sessions/signal"
)

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Complete  bool
}

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// Assembler owns the message sequence of one session. It is not safe for
// concurrent use; events must be handled in arrival order.
//
// The sequence is append-only apart from the trailing assistant message,
// whose content grows while a generation streams. At most one assistant
// message is incomplete at a time.
type Assembler struct {
	messages []Message
	state    State
	chunks   []string

	now     func() time.Time
	log     *slog.Logger
	changed signal.Observers[[]Message]
}

func NewAssembler() *Assembler {
	return &Assembler{
		now: time.Now,
		log: slog.Default().With("component", "transcript"),
	}
}

// SetClock replaces the time source used to stamp assistant messages.
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Assembler) State() State { return a.state }

// Messages returns a copy of the current sequence.
func (a *Assembler) Messages() []Message {
	return append([]Message(nil), a.messages...)
}

// Subscribe observes the sequence after every change.
func (a *Assembler) Subscribe(fn func([]Message)) signal.Subscription {
	return a.changed.Add(fn)
}

// Reset clears the sequence for a new session.
func (a *Assembler) Reset() {
	a.messages = nil
	a.chunks = nil
	a.state = Idle
	a.notify()
}

func (a *Assembler) Handle(e Event) {
	switch e := e.(type) {
	case UserTranscript:
		a.userTranscript(e)
	case BotStarted:
		a.botStarted()
	case BotText:
		a.botText(e.Text)
	case BotStopped:
		a.botStopped()
	case BotTTSStarted, BotTTSText, BotTTSStopped:
		// playback progress, see Playback
	default:
		a.log.Debug("unhandled event", "type", e)
	}
}

func (a *Assembler) userTranscript(e UserTranscript) {
	if !e.Final {
		return
	}
	if strings.TrimSpace(e.Text) == "" {
		metrics.TranscriptDropped.WithLabelValues("empty_user_text").Inc()
		return
	}
	// only the last message may be open, so a user turn seals the open
	// assistant message; later chunks of the same generation start a new one
	if open := a.openTail(); open != nil {
		open.Complete = true
		a.chunks = nil
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	a.append(Message{Role: User, Content: e.Text, Timestamp: ts, Complete: true})
}

func (a *Assembler) botStarted() {
	if a.state == Streaming {
		metrics.TranscriptDropped.WithLabelValues("restart").Inc()
	}
	a.state = Streaming
	a.chunks = nil
}

func (a *Assembler) botText(text string) {
	if strings.TrimSpace(text) == "" {
		metrics.TranscriptDropped.WithLabelValues("empty_chunk").Inc()
		return
	}
	a.chunks = append(a.chunks, text)
	if open := a.openTail(); a.state == Streaming && open != nil {
		open.Content = strings.Join(a.chunks, " ")
		a.notify()
		return
	}
	a.chunks = []string{text}
	a.state = Streaming
	a.append(Message{Role: Assistant, Content: text, Timestamp: a.now()})
}

func (a *Assembler) botStopped() {
	open := a.openTail()
	if open == nil && a.state == Idle {
		metrics.TranscriptDropped.WithLabelValues("stop_without_start").Inc()
		return
	}
	a.state = Idle
	a.chunks = nil
	if open != nil {
		open.Complete = true
		a.notify()
	}
}

// openTail returns the trailing assistant message if it is still open.
func (a *Assembler) openTail() *Message {
	if len(a.messages) == 0 {
		return nil
	}
	m := &a.messages[len(a.messages)-1]
	if m.Role != Assistant || m.Complete {
		return nil
	}
	return m
}

func (a *Assembler) append(m Message) {
	m.ID = xid.New().String()
	a.messages = append(a.messages, m)
	metrics.TranscriptMessages.WithLabelValues(string(m.Role)).Inc()
	a.notify()
}

func (a *Assembler) notify() {
	a.changed.Notify(a.Messages())
}
