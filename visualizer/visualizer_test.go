package visualizer

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/progrium/voice-sessions/loop"
)

func TestPeakRaysAreUniform(t *testing.T) {
	rays := make([]float64, DefaultRays)
	Rays(rays, 0.95, true, rand.New(rand.NewSource(1)))
	for _, l := range rays {
		assert.Equal(t, rays[0], l)
	}
	assert.Equal(t, float64(MaxLength), rays[0])
}

func TestInactiveRaysAreZero(t *testing.T) {
	rays := make([]float64, DefaultRays)
	for _, v := range []float64{0, 0.5, 0.95, 1} {
		for i := range rays {
			rays[i] = 42
		}
		Rays(rays, v, false, rand.New(rand.NewSource(1)))
		for _, l := range rays {
			assert.Equal(t, 0.0, l)
		}
	}
}

func TestRayBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	rays := make([]float64, DefaultRays)
	for step := 0; step <= 90; step++ {
		v := float64(step) / 100
		Rays(rays, v, true, rnd)
		for i, l := range rays {
			bias := variation(i, len(rays))
			lo := math.Min(v*4, 1) * MaxLength * bias
			hi := math.Min(v*4*1.3, 1) * MaxLength * bias
			assert.Assert(t, l >= lo-1e-9 && l <= hi+1e-9, "ray %d len %v not in [%v,%v]", i, l, lo, hi)
		}
	}
}

func TestVariationIsFixed(t *testing.T) {
	assert.Equal(t, 0.8, variation(0, 50))
	assert.Assert(t, math.Abs(variation(12, 48)-1.0) < 1e-9)
	assert.Equal(t, variation(3, 50), variation(3, 50))
}

type level struct {
	volume float64
	active bool
}

func (l *level) Volume() float64 { return l.volume }
func (l *level) Active() bool    { return l.active }

func TestRendererLoop(t *testing.T) {
	m := loop.NewManual()
	src := &level{volume: 0.95, active: true}
	r := NewRenderer(m, src, 0, rand.New(rand.NewSource(1)))

	frames := 0
	sub := r.Subscribe(func(rays []float64) { frames++ })
	defer sub.Release()

	r.Start()
	r.Start()
	assert.Equal(t, 1, m.Pending())
	m.StepN(3, time.Now())
	assert.Equal(t, 3, frames)
	assert.Equal(t, DefaultRays, len(r.Rays()))
	assert.Equal(t, float64(MaxLength), r.Rays()[10])

	src.active = false
	m.Step(time.Now())
	assert.Equal(t, 0.0, r.Rays()[10])

	r.Stop()
	r.Stop()
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 0, m.Step(time.Now()))
	assert.Equal(t, 4, frames)
}
