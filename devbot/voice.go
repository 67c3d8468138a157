package devbot

import (
	"context"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

const (
	sampleRate    = beep.SampleRate(48000)
	frameDuration = 20 * time.Millisecond
	wordDuration  = 220 * time.Millisecond
	maxPacketSize = 1500
)

// Voice renders bot speech onto the audio track.
type Voice interface {
	Speak(ctx context.Context, text string) error
}

// toneVoice speaks a sine tone per word, alternating pitch and loudness so
// a level meter on the other end has something to follow.
type toneVoice struct {
	track *webrtc.TrackLocalStaticSample
	enc   *opus.Encoder
	pcm   []float32
	buf   [][2]float64
	out   []byte
	words int
}

func newToneVoice(track *webrtc.TrackLocalStaticSample) (*toneVoice, error) {
	enc, err := opus.NewEncoder(sampleRate.N(time.Second), 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	n := sampleRate.N(frameDuration)
	return &toneVoice{
		track: track,
		enc:   enc,
		pcm:   make([]float32, n),
		buf:   make([][2]float64, n),
		out:   make([]byte, maxPacketSize),
	}, nil
}

func (v *toneVoice) Speak(ctx context.Context, text string) error {
	for range strings.Fields(text) {
		tone, err := generators.SineTone(sampleRate, 180+float64(v.words%4)*40)
		if err != nil {
			return err
		}
		word := &effects.Volume{
			Streamer: beep.Take(sampleRate.N(wordDuration), tone),
			Base:     2,
			Volume:   -float64(v.words % 3),
		}
		v.words++
		if err := v.play(ctx, word); err != nil {
			return err
		}
	}
	return nil
}

func (v *toneVoice) play(ctx context.Context, s beep.Streamer) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		n, ok := s.Stream(v.buf)
		if !ok {
			return nil
		}
		for i := range v.pcm {
			v.pcm[i] = 0
			if i < n {
				v.pcm[i] = float32(v.buf[i][0])
			}
		}
		size, err := v.enc.EncodeFloat32(v.pcm, v.out)
		if err != nil {
			return err
		}
		if err := v.track.WriteSample(media.Sample{Data: v.out[:size], Duration: frameDuration}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
