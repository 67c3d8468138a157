package trackstreamer

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"
	"gopkg.in/hraban/opus.v2"
)

const (
	decodeBufDuration = 60 * time.Millisecond
	opusClockRate     = 48000
	maxLate           = 20
)

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RTPWriter is satisfied by *oggwriter.OggWriter.
type RTPWriter interface {
	WriteRTP(*rtp.Packet) error
}

type sampleDecoder interface {
	DecodeFloat32(data []byte, buf []float32) (int, error)
}

// TrackStreamer decodes an Opus RTP track into a beep.Streamer.
type TrackStreamer struct {
	track        RTPReader
	format       beep.Format
	dec          sampleDecoder
	decodeBuf    []float32
	pcm          []float32
	sampleBuffer *samplebuilder.SampleBuilder
	err          error
}

var _ beep.Streamer = (*TrackStreamer)(nil)

func New(track RTPReader, format beep.Format) (*TrackStreamer, error) {
	dec, err := opus.NewDecoder(format.SampleRate.N(time.Second), format.NumChannels)
	if err != nil {
		return nil, err
	}
	return &TrackStreamer{
		format:       format,
		decodeBuf:    make([]float32, format.NumChannels*format.SampleRate.N(decodeBufDuration)),
		dec:          dec,
		track:        track,
		sampleBuffer: samplebuilder.New(maxLate, &codecs.OpusPacket{}, opusClockRate),
	}, nil
}

func (t *TrackStreamer) Format() beep.Format {
	return t.format
}

// Err reports why the stream ended, or nil if the track ended normally.
func (t *TrackStreamer) Err() error {
	return t.err
}

func (t *TrackStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		samples[i], ok = t.nextPCM()
		if !ok {
			return i, i > 0
		}
	}
	return len(samples), true
}

func (t *TrackStreamer) decodeNextPacket(buf []float32) (int, error) {
	s := t.sampleBuffer.Pop()
	for s == nil {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			return 0, err
		}
		t.sampleBuffer.Push(pkt)
		s = t.sampleBuffer.Pop()
	}
	return t.dec.DecodeFloat32(s.Data, buf)
}

var errReadFailed = errors.New("track read failed")

func (t *TrackStreamer) nextPCM() (sample [2]float64, ok bool) {
	for len(t.pcm) == 0 {
		n, err := t.decodeNextPacket(t.decodeBuf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return [2]float64{}, false
			}
			var opusErr opus.Error
			if errors.As(err, &opusErr) {
				continue // bad packet, try the next one
			}
			t.err = errors.Join(errReadFailed, err)
			return [2]float64{}, false
		}
		t.pcm = t.decodeBuf[:n*t.format.NumChannels]
	}
	left := float64(t.pcm[0])
	right := left
	if t.format.NumChannels > 1 {
		right = float64(t.pcm[1])
	}
	t.pcm = t.pcm[t.format.NumChannels:]
	return [2]float64{left, right}, true
}

type tee struct {
	src RTPReader
	mu  sync.Mutex
	dst RTPWriter
	err error
}

// Tee copies every packet read from src to dst. A write failure stops
// further copying but never interrupts reads.
func Tee(src RTPReader, dst RTPWriter) RTPReader {
	return &tee{src: src, dst: dst}
}

func (t *tee) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, attrs, err := t.src.ReadRTP()
	if err != nil {
		return pkt, attrs, err
	}
	t.mu.Lock()
	if t.err == nil {
		t.err = t.dst.WriteRTP(pkt)
	}
	t.mu.Unlock()
	return pkt, attrs, nil
}
