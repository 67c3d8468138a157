package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"

	"github.com/progrium/voice-sessions/transcript"
)

var ignoreIDs = cmp.Options{
	cmpopts.IgnoreFields(EventMeta{}, "ID"),
}

func ms(n int) Timestamp {
	return Timestamp(time.Duration(n) * time.Millisecond)
}

func TestEventsSortedByTime(t *testing.T) {
	s := NewSession("intake")
	s.RecordAt(ms(30), TypeState, "ready")
	s.RecordAt(ms(10), TypeState, "connecting")
	s.RecordAt(ms(20), TypeState, "connected")
	s.RecordAt(ms(15), "bot-llm-text", transcript.BotText{Text: "hi"})

	assert.DeepEqual(t, []string{"bot-llm-text", TypeState}, s.EventTypes())
	assert.DeepEqual(t,
		[]Event{
			{EventMeta: EventMeta{At: ms(10), Type: TypeState}, Data: "connecting"},
			{EventMeta: EventMeta{At: ms(20), Type: TypeState}, Data: "connected"},
			{EventMeta: EventMeta{At: ms(30), Type: TypeState}, Data: "ready"},
		},
		s.Events(TypeState),
		ignoreIDs,
	)
	assert.Equal(t, 2, len(s.Between(ms(15), ms(20), "")))
}

func TestRecordUsesSessionClock(t *testing.T) {
	s := NewSession("")
	s.now = func() time.Time { return s.Start.Add(1500 * time.Millisecond) }
	e := s.RecordEvent(transcript.BotStarted{})
	assert.Equal(t, ms(1500), e.At)
	assert.Equal(t, "bot-llm-started", e.Type)
	assert.Assert(t, e.ID != "")
}

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	s := NewSession("intake")
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.RecordAt(ms(5), TypeState, "connecting")
	s.RecordAt(ms(100), "user-transcription", transcript.UserTranscript{Text: "hello", Final: true, Timestamp: ts})
	s.RecordAt(ms(200), "bot-llm-started", transcript.BotStarted{})
	s.RecordAt(ms(210), "bot-llm-text", transcript.BotText{Text: "Hi there"})
	s.RecordAt(ms(250), "bot-llm-stopped", transcript.BotStopped{})

	path, err := s.Save(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, string(s.ID), "session"), path)

	loaded, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "intake", loaded.BotType)
	assert.DeepEqual(t, s.Events(""), loaded.Events(""))

	// typed data survives so the transcript can be replayed
	a := transcript.NewAssembler()
	for _, e := range loaded.Transcript() {
		a.Handle(e)
	}
	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Assert(t, msgs[0].Timestamp.Equal(ts))
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.Assert(t, msgs[1].Complete)
}

func TestLoadUnknownEventType(t *testing.T) {
	b, err := cbor.Marshal(sessionMarshal{
		ID:     "x",
		Events: []Event{{EventMeta: EventMeta{Type: "mystery"}, Data: 1}},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.WriteFile(path, b, 0644))

	_, err = Load(path)
	assert.ErrorContains(t, err, `unknown event type "mystery"`)
}

func TestTrackWriter(t *testing.T) {
	root := t.TempDir()
	s := NewSession("")
	w, err := s.TrackWriter(root, "bot-audio", 48000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	tracks := s.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "track-bot-audio.ogg", tracks[0].File)
	_, err = os.Stat(filepath.Join(s.Dir(root), tracks[0].File))
	require.NoError(t, err)
}
