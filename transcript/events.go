package transcript

import "time"

// Event is one speech event delivered by the transport, in arrival order.
type Event interface {
	eventName() string
}

// UserTranscript is speech-to-text output for the user. Only final
// transcripts become messages.
type UserTranscript struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// BotStarted marks the start of a bot generation.
type BotStarted struct{}

// BotText is one streamed fragment of bot output.
type BotText struct {
	Text string
}

// BotStopped marks the end of a bot generation.
type BotStopped struct{}

// BotTTSStarted, BotTTSText and BotTTSStopped report speech playback
// progress. They do not change message content.
type BotTTSStarted struct{}

type BotTTSText struct {
	Text string
}

type BotTTSStopped struct{}

func (UserTranscript) eventName() string { return "user-transcription" }
func (BotStarted) eventName() string     { return "bot-llm-started" }
func (BotText) eventName() string        { return "bot-llm-text" }
func (BotStopped) eventName() string     { return "bot-llm-stopped" }
func (BotTTSStarted) eventName() string  { return "bot-tts-started" }
func (BotTTSText) eventName() string     { return "bot-tts-text" }
func (BotTTSStopped) eventName() string  { return "bot-tts-stopped" }

// Name returns the wire name of an event.
func Name(e Event) string {
	return e.eventName()
}
