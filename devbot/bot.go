package devbot

import (
	"context"
	"strings"
	"time"

	"github.com/progrium/voice-sessions/rtvi"
	"github.com/progrium/voice-sessions/transcript"
)

// TextSender is satisfied by *webrtc.DataChannel.
type TextSender interface {
	SendText(string) error
}

type bot struct {
	script Script
	out    TextSender
	voice  Voice
	now    func() time.Time
}

func (b *bot) send(e transcript.Event) error {
	msg, err := rtvi.Encode(e)
	if err != nil {
		return err
	}
	return b.out.SendText(string(msg))
}

func (b *bot) ready() error {
	msg, err := rtvi.EncodeReady("0.3")
	if err != nil {
		return err
	}
	return b.out.SendText(string(msg))
}

// run plays the script until it ends or ctx is done.
func (b *bot) run(ctx context.Context) error {
	if err := b.ready(); err != nil {
		return err
	}
	for {
		for _, turn := range b.script.Turns {
			if err := b.turn(ctx, turn); err != nil {
				return err
			}
			if err := sleep(ctx, b.script.Pause); err != nil {
				return err
			}
		}
		if !b.script.Loop {
			return nil
		}
	}
}

func (b *bot) turn(ctx context.Context, t Turn) error {
	if t.User != "" {
		if err := b.send(transcript.UserTranscript{Text: t.User, Final: true, Timestamp: b.now()}); err != nil {
			return err
		}
	}

	if err := b.send(transcript.BotStarted{}); err != nil {
		return err
	}
	for _, chunk := range t.Bot {
		if err := sleep(ctx, b.script.ChunkDelay); err != nil {
			return err
		}
		if err := b.send(transcript.BotText{Text: chunk}); err != nil {
			return err
		}
	}
	if err := b.send(transcript.BotStopped{}); err != nil {
		return err
	}

	if err := b.send(transcript.BotTTSStarted{}); err != nil {
		return err
	}
	for _, chunk := range t.Bot {
		if err := b.send(transcript.BotTTSText{Text: strings.TrimSpace(chunk)}); err != nil {
			return err
		}
		if err := b.voice.Speak(ctx, chunk); err != nil {
			return err
		}
	}
	return b.send(transcript.BotTTSStopped{})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
