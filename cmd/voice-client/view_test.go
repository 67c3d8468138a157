package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/progrium/voice-sessions/session"
	"github.com/progrium/voice-sessions/transcript"
	"github.com/progrium/voice-sessions/visualizer"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, " ▄█", sparkline([]float64{0, visualizer.MaxLength / 2, visualizer.MaxLength}))
	assert.Equal(t, "█", sparkline([]float64{visualizer.MaxLength * 2}))
}

func TestViewPrintsCompletedMessagesOnce(t *testing.T) {
	var buf bytes.Buffer
	v := newView(&buf, 1)
	ts := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	user := transcript.Message{Role: transcript.User, Content: "hi", Timestamp: ts, Complete: true}
	reply := transcript.Message{Role: transcript.Assistant, Content: "Hello", Timestamp: ts}

	v.setMessages([]transcript.Message{user, reply})
	assert.Equal(t, "[09:30:00] user: hi\n", buf.String())
	assert.Equal(t, "Hello", v.tail)

	reply.Content = "Hello there"
	reply.Complete = true
	v.setMessages([]transcript.Message{user, reply})
	assert.Equal(t, "[09:30:00] user: hi\n[09:30:00] assistant: Hello there\n", buf.String())
	assert.Equal(t, "", v.tail)

	// reset starts over
	v.setMessages(nil)
	assert.Equal(t, 0, v.printed)
}

func TestViewStatusLine(t *testing.T) {
	var buf bytes.Buffer
	v := newView(&buf, 2)
	v.tail = "partial reply"

	v.setRays([]float64{visualizer.MaxLength})
	assert.Equal(t, "", buf.String())
	v.setRays([]float64{visualizer.MaxLength})
	assert.Equal(t, clearLine+"█  partial reply", buf.String())

	buf.Reset()
	v.setState(session.Ready)
	assert.Equal(t, clearLine+"-- ready\n", buf.String())
}

func TestLastRunes(t *testing.T) {
	assert.Equal(t, "short", lastRunes("short", 10))
	s := lastRunes(strings.Repeat("a", 20)+"end", 5)
	assert.Equal(t, "…aend", s)
}
