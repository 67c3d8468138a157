package transcript

import (
	"strings"

	"github.com/progrium/voice-sessions/signal"
)

// Progress is what the bot has spoken aloud in the current utterance.
type Progress struct {
	Speaking bool
	Spoken   string
}

// Playback tracks word-level TTS progress separately from message
// content, so a UI can highlight the part of a reply already heard.
type Playback struct {
	progress *signal.Value[Progress]
	words    []string
}

func NewPlayback() *Playback {
	return &Playback{progress: signal.NewValue(Progress{})}
}

func (p *Playback) Progress() Progress { return p.progress.Get() }

func (p *Playback) Subscribe(fn func(Progress)) signal.Subscription {
	return p.progress.Subscribe(fn)
}

func (p *Playback) Handle(e Event) {
	switch e := e.(type) {
	case BotTTSStarted:
		p.words = nil
		p.progress.Set(Progress{Speaking: true})
	case BotTTSText:
		if strings.TrimSpace(e.Text) == "" {
			return
		}
		p.words = append(p.words, strings.TrimSpace(e.Text))
		p.progress.Set(Progress{Speaking: true, Spoken: strings.Join(p.words, " ")})
	case BotTTSStopped:
		cur := p.progress.Get()
		p.progress.Set(Progress{Spoken: cur.Spoken})
	}
}

func (p *Playback) Reset() {
	p.words = nil
	p.progress.Set(Progress{})
}
