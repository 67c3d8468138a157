// Package rtvi encodes and decodes the JSON event messages a voice backend
// sends over the session data channel.
package rtvi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/progrium/voice-sessions/transcript"
)

const (
	Label = "rtvi-ai"

	TypeBotReady = "bot-ready"
	TypeError    = "error"
)

// Message is one data-channel envelope.
type Message struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type textData struct {
	Text string `json:"text"`
}

type userTranscriptData struct {
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

type errorData struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal"`
}

// Decode parses a raw data-channel payload.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("rtvi: %w", err)
	}
	if m.Label != "" && m.Label != Label {
		return Message{}, fmt.Errorf("rtvi: unexpected label %q", m.Label)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("rtvi: missing type")
	}
	return m, nil
}

// Event converts m into a transcript event. ok is false for message types
// that carry no speech event.
func (m Message) Event() (e transcript.Event, ok bool, err error) {
	switch m.Type {
	case "user-transcription":
		var d userTranscriptData
		if err := m.unmarshalData(&d); err != nil {
			return nil, false, err
		}
		ut := transcript.UserTranscript{Text: d.Text, Final: d.Final}
		if d.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, d.Timestamp); err == nil {
				ut.Timestamp = ts
			}
		}
		return ut, true, nil
	case "bot-llm-started":
		return transcript.BotStarted{}, true, nil
	case "bot-llm-stopped":
		return transcript.BotStopped{}, true, nil
	case "bot-tts-started":
		return transcript.BotTTSStarted{}, true, nil
	case "bot-tts-stopped":
		return transcript.BotTTSStopped{}, true, nil
	case "bot-llm-text", "bot-tts-text":
		var d textData
		if err := m.unmarshalData(&d); err != nil {
			return nil, false, err
		}
		if m.Type == "bot-tts-text" {
			return transcript.BotTTSText{Text: d.Text}, true, nil
		}
		return transcript.BotText{Text: d.Text}, true, nil
	}
	return nil, false, nil
}

// Err returns the backend error carried by an error message.
func (m Message) Err() (msg string, fatal bool, err error) {
	if m.Type != TypeError {
		return "", false, nil
	}
	var d errorData
	if err := m.unmarshalData(&d); err != nil {
		return "", false, err
	}
	return d.Error, d.Fatal, nil
}

func (m Message) unmarshalData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("rtvi: %s: missing data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("rtvi: %s: %w", m.Type, err)
	}
	return nil
}

// Encode builds the wire form of a transcript event.
func Encode(e transcript.Event) ([]byte, error) {
	var data any
	switch e := e.(type) {
	case transcript.UserTranscript:
		d := userTranscriptData{Text: e.Text, Final: e.Final}
		if !e.Timestamp.IsZero() {
			d.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		data = d
	case transcript.BotText:
		data = textData{Text: e.Text}
	case transcript.BotTTSText:
		data = textData{Text: e.Text}
	}
	return encode(transcript.Name(e), data)
}

// EncodeReady builds a bot-ready message.
func EncodeReady(version string) ([]byte, error) {
	return encode(TypeBotReady, map[string]string{"version": version})
}

func encode(typ string, data any) ([]byte, error) {
	m := Message{Label: Label, Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		m.Data = b
	}
	return json.Marshal(m)
}
