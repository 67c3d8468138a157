package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/progrium/voice-sessions/session"
	"github.com/progrium/voice-sessions/transcript"
	"github.com/progrium/voice-sessions/visualizer"
)

var levels = []rune(" ▁▂▃▄▅▆▇█")

const (
	clearLine = "\r\033[K"
	tailWidth = 48
)

// view renders the session to a terminal: completed transcript messages
// scroll above a status line holding the ray display and the reply in
// progress. All methods run on the loop.
type view struct {
	w       io.Writer
	every   int
	frame   int
	printed int
	tail    string
	spoken  string
	status  bool
}

func newView(w io.Writer, every int) *view {
	if every < 1 {
		every = 1
	}
	return &view{w: w, every: every}
}

func (v *view) clear() {
	if v.status {
		io.WriteString(v.w, clearLine)
		v.status = false
	}
}

func (v *view) setState(st session.State) {
	v.clear()
	fmt.Fprintf(v.w, "-- %s\n", st)
}

func (v *view) setMessages(msgs []transcript.Message) {
	if len(msgs) < v.printed {
		v.printed = 0
	}
	v.tail = ""
	for v.printed < len(msgs) {
		m := msgs[v.printed]
		if !m.Complete {
			v.tail = m.Content
			break
		}
		v.clear()
		fmt.Fprintf(v.w, "[%s] %s: %s\n", m.Timestamp.Format(time.TimeOnly), m.Role, m.Content)
		v.printed++
	}
}

func (v *view) setProgress(p transcript.Progress) {
	v.spoken = ""
	if p.Speaking {
		v.spoken = p.Spoken
	}
}

func (v *view) setRays(rays []float64) {
	v.frame++
	if v.frame%v.every != 0 {
		return
	}
	var b strings.Builder
	b.WriteString(clearLine)
	b.WriteString(sparkline(rays))
	text := v.tail
	if text == "" {
		text = v.spoken
	}
	if text != "" {
		b.WriteString("  ")
		b.WriteString(lastRunes(text, tailWidth))
	}
	io.WriteString(v.w, b.String())
	v.status = true
}

func sparkline(rays []float64) string {
	out := make([]rune, len(rays))
	top := len(levels) - 1
	for i, r := range rays {
		idx := int(r / visualizer.MaxLength * float64(top))
		if idx < 0 {
			idx = 0
		}
		if idx > top {
			idx = top
		}
		out[i] = levels[idx]
	}
	return string(out)
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
