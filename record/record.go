// Package record keeps a timestamped log of a voice session and persists
// it as CBOR, with the bot's audio copied to Ogg files alongside.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/rs/xid"

	"github.com/progrium/voice-sessions/transcript"
)

type Timestamp time.Duration // relative to session start
type ID string

func newID() ID {
	return ID(xid.New().String())
}

const (
	TypeState = "state"

	sessionFile = "session"
)

func init() {
	RegisterEvent[string](TypeState)
	RegisterEvent[transcript.UserTranscript](transcript.Name(transcript.UserTranscript{}))
	RegisterEvent[transcript.BotStarted](transcript.Name(transcript.BotStarted{}))
	RegisterEvent[transcript.BotText](transcript.Name(transcript.BotText{}))
	RegisterEvent[transcript.BotStopped](transcript.Name(transcript.BotStopped{}))
	RegisterEvent[transcript.BotTTSStarted](transcript.Name(transcript.BotTTSStarted{}))
	RegisterEvent[transcript.BotTTSText](transcript.Name(transcript.BotTTSText{}))
	RegisterEvent[transcript.BotTTSStopped](transcript.Name(transcript.BotTTSStopped{}))
}

type EventMeta struct {
	At   Timestamp
	Type string
	ID   ID
}

type Event struct {
	EventMeta
	Data any
}

func (e *Event) UnmarshalCBOR(data []byte) error {
	type eventRawData struct {
		EventMeta
		Data cbor.RawMessage
	}
	var eraw eventRawData
	if err := cbor.Unmarshal(data, &eraw); err != nil {
		return err
	}
	typ, ok := eventTypes[eraw.Type]
	if !ok {
		return fmt.Errorf("unknown event type %q", eraw.Type)
	}
	value := reflect.New(typ)
	if err := cbor.Unmarshal(eraw.Data, value.Interface()); err != nil {
		return fmt.Errorf("event %s: %w", eraw.Type, err)
	}
	e.EventMeta = eraw.EventMeta
	e.Data = reflect.Indirect(value).Interface()
	return nil
}

// TrackFile names an audio file written for a remote track.
type TrackFile struct {
	TrackID string
	Start   Timestamp
	File    string
}

type Session struct {
	ID      ID
	Start   time.Time
	BotType string

	mu     sync.Mutex
	tracks []TrackFile
	events []Event
	now    func() time.Time
}

func NewSession(botType string) *Session {
	return &Session{
		ID:      newID(),
		Start:   time.Now().UTC(),
		BotType: botType,
		now:     time.Now,
	}
}

func (s *Session) since() Timestamp {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return Timestamp(now().Sub(s.Start))
}

// Record appends an event stamped with the time since the session started.
func (s *Session) Record(typ string, data any) Event {
	return s.RecordAt(s.since(), typ, data)
}

func (s *Session) RecordAt(at Timestamp, typ string, data any) Event {
	e := Event{
		EventMeta: EventMeta{ID: newID(), At: at, Type: typ},
		Data:      data,
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return e
}

// RecordEvent appends a speech event under its wire name.
func (s *Session) RecordEvent(e transcript.Event) Event {
	return s.Record(transcript.Name(e), e)
}

func (s *Session) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range s.events {
		if seen[e.Type] {
			continue
		}
		seen[e.Type] = true
		out = append(out, e.Type)
	}
	sort.Strings(out)
	return out
}

// Events returns the events of typ in time order. An empty typ matches
// every event.
func (s *Session) Events(typ string) []Event {
	return s.Between(0, Timestamp(1<<63-1), typ)
}

// Between returns the events of typ recorded within [from, to].
func (s *Session) Between(from, to Timestamp, typ string) []Event {
	s.mu.Lock()
	var out []Event
	for _, e := range s.events {
		if typ != "" && e.Type != typ {
			continue
		}
		if e.At < from || e.At > to {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At < out[j].At
	})
	return out
}

// Transcript returns the recorded speech events in time order.
func (s *Session) Transcript() []transcript.Event {
	var out []transcript.Event
	for _, e := range s.Events("") {
		if te, ok := e.Data.(transcript.Event); ok {
			out = append(out, te)
		}
	}
	return out
}

func (s *Session) Tracks() []TrackFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TrackFile(nil), s.tracks...)
}

// Dir is where the session is saved under root.
func (s *Session) Dir(root string) string {
	return filepath.Join(root, string(s.ID))
}

// TrackWriter creates an Ogg file under root for the Opus packets of a
// remote track.
func (s *Session) TrackWriter(root, trackID string, sampleRate uint32, channels uint16) (*oggwriter.OggWriter, error) {
	dir := s.Dir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("track-%s.ogg", trackID)
	w, err := oggwriter.New(filepath.Join(dir, name), sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", trackID, err)
	}
	at := s.since()
	s.mu.Lock()
	s.tracks = append(s.tracks, TrackFile{TrackID: trackID, Start: at, File: name})
	s.mu.Unlock()
	return w, nil
}

type sessionMarshal struct {
	ID      ID
	Start   time.Time
	BotType string
	Tracks  []TrackFile
	Events  []Event
}

func (s *Session) MarshalCBOR() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cbor.Marshal(sessionMarshal{
		ID:      s.ID,
		Start:   s.Start,
		BotType: s.BotType,
		Tracks:  s.tracks,
		Events:  s.events,
	})
}

func (s *Session) UnmarshalCBOR(data []byte) error {
	var sm sessionMarshal
	if err := cbor.Unmarshal(data, &sm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ID = sm.ID
	s.Start = sm.Start
	s.BotType = sm.BotType
	s.tracks = sm.Tracks
	s.events = sm.Events
	return nil
}

// Save writes the session to <root>/<id>/session and returns the path.
func (s *Session) Save(root string) (string, error) {
	dir := s.Dir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	b, err := cbor.Marshal(s)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, sessionFile)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a saved session. path may name the session file or the
// directory containing it.
func Load(path string) (*Session, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, sessionFile)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := cbor.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

var eventTypes = map[string]reflect.Type{}

// RegisterEvent associates an event type name with the Go type its data
// decodes into.
func RegisterEvent[T any](name string) {
	eventTypes[name] = reflect.TypeOf((*T)(nil)).Elem()
}
