// Package visualizer computes the ray lengths of a radial volume display.
package visualizer

import (
	"math"
	"math/rand"
	"time"

	"github.com/progrium/voice-sessions/loop"
	"github.com/progrium/voice-sessions/signal"
)

const (
	DefaultRays = 50
	MaxLength   = 100

	peakThreshold = 0.9
	rayGain       = 4
	shimmer       = 0.3
)

// Rays fills dst with one length per ray for the given volume.
func Rays(dst []float64, volume float64, active bool, rnd *rand.Rand) {
	n := len(dst)
	switch {
	case !active:
		for i := range dst {
			dst[i] = 0
		}
	case volume > peakThreshold:
		for i := range dst {
			dst[i] = MaxLength
		}
	default:
		for i := range dst {
			r := 1 + rnd.Float64()*shimmer
			dst[i] = math.Min(volume*rayGain*r, 1) * MaxLength * variation(i, n)
		}
	}
}

// variation is the fixed angular bias of ray i of n.
func variation(i, n int) float64 {
	return 0.8 + 0.2*math.Abs(math.Sin(2*math.Pi*float64(i)/float64(n)))
}

// Source supplies the current level.
type Source interface {
	Volume() float64
	Active() bool
}

// Renderer recomputes the rays from its source on every frame while
// running.
type Renderer struct {
	sched   loop.Scheduler
	src     Source
	rnd     *rand.Rand
	rays    []float64
	frame   loop.FrameID
	running bool

	observers signal.Observers[[]float64]
}

func NewRenderer(sched loop.Scheduler, src Source, rays int, rnd *rand.Rand) *Renderer {
	if rays <= 0 {
		rays = DefaultRays
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Renderer{
		sched: sched,
		src:   src,
		rnd:   rnd,
		rays:  make([]float64, rays),
	}
}

// Rays returns a copy of the most recent frame.
func (r *Renderer) Rays() []float64 {
	return append([]float64(nil), r.rays...)
}

// Subscribe observes each rendered frame. The slice is reused between
// frames and must not be retained.
func (r *Renderer) Subscribe(fn func([]float64)) signal.Subscription {
	return r.observers.Add(fn)
}

func (r *Renderer) Start() {
	if r.running {
		return
	}
	r.running = true
	r.frame = r.sched.RequestFrame(r.render)
}

// Stop cancels the pending frame. It is safe to call when not running.
func (r *Renderer) Stop() {
	if !r.running {
		return
	}
	r.running = false
	r.sched.CancelFrame(r.frame)
}

func (r *Renderer) render(time.Time) {
	if !r.running {
		return
	}
	Rays(r.rays, r.src.Volume(), r.src.Active(), r.rnd)
	r.observers.Notify(r.rays)
	if r.running {
		r.frame = r.sched.RequestFrame(r.render)
	}
}
