package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/pion/webrtc/v3"

	"github.com/progrium/voice-sessions/level"
	"github.com/progrium/voice-sessions/trackstreamer"
)

var errOpened = errors.New("track already opened")

// RemoteTrack is the bot's audio track as a level.Track. An RTP track has
// a single reader, so it can be opened once.
type RemoteTrack struct {
	remote   trackstreamer.RTPReader
	id       string
	format   beep.Format
	playback bool
	play     func(beep.Streamer)
	sink     trackstreamer.RTPWriter
	// ended receives the decoder's error, nil on a normal end of track.
	ended func(err error)

	mu     sync.Mutex
	opened bool
}

var _ level.Track = (*RemoteTrack)(nil)

func newRemoteTrack(remote *webrtc.TrackRemote, format beep.Format) *RemoteTrack {
	return &RemoteTrack{remote: remote, id: remote.ID(), format: format, play: speaker.Play}
}

func (t *RemoteTrack) ID() string { return t.id }

// Open decodes the track into PCM. When playback is enabled the decoded
// audio is also copied to the speaker, which must already be initialized.
// The returned streamer is the only reader of the decoder.
func (t *RemoteTrack) Open() (beep.Streamer, beep.Format, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opened {
		return nil, beep.Format{}, errOpened
	}

	src := t.remote
	if t.sink != nil {
		src = trackstreamer.Tee(src, t.sink)
	}
	ts, err := trackstreamer.New(src, t.format)
	if err != nil {
		return nil, beep.Format{}, err
	}
	t.opened = true

	var s beep.Streamer = &endNotifier{Streamer: ts, done: t.ended}
	if t.playback {
		q := newPlaybackQueue(ts.Format().SampleRate.N(time.Second))
		s = &playbackTap{Streamer: s, queue: q}
		t.play(q)
	}
	return s, ts.Format(), nil
}

// endNotifier calls done once when the wrapped stream is exhausted.
type endNotifier struct {
	beep.Streamer
	once sync.Once
	done func(err error)
}

func (e *endNotifier) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.Streamer.Stream(samples)
	if !ok && e.done != nil {
		e.once.Do(func() { e.done(e.Streamer.Err()) })
	}
	return n, ok
}

// playbackTap copies everything streamed through it into a playback
// queue, and closes the queue when the stream ends.
type playbackTap struct {
	beep.Streamer
	queue *playbackQueue
}

func (p *playbackTap) Stream(samples [][2]float64) (int, bool) {
	n, ok := p.Streamer.Stream(samples)
	p.queue.push(samples[:n])
	if !ok {
		p.queue.close()
	}
	return n, ok
}

// playbackQueue is read by the speaker mixer goroutine while the analysis
// pump fills it. It holds at most max samples and drops the oldest.
type playbackQueue struct {
	mu     sync.Mutex
	buf    [][2]float64
	max    int
	closed bool
}

func newPlaybackQueue(max int) *playbackQueue {
	return &playbackQueue{max: max}
}

func (q *playbackQueue) push(samples [][2]float64) {
	if len(samples) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, samples...)
	if over := len(q.buf) - q.max; over > 0 {
		q.buf = q.buf[over:]
	}
}

func (q *playbackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Stream plays queued audio and pads with silence while the queue is
// empty. It drains once the queue is closed and empty.
func (q *playbackQueue) Stream(samples [][2]float64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := copy(samples, q.buf)
	q.buf = q.buf[n:]
	if q.closed {
		return n, n > 0
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (q *playbackQueue) Err() error { return nil }
