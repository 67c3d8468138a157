package level

import (
	"io"
	"math"
	"sync"

	"github.com/gopxl/beep"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	FFTSize = 1024

	// defaults of a Web Audio AnalyserNode
	smoothingTimeConstant = 0.8
	minDecibels           = -100.0
	maxDecibels           = -30.0

	pumpChunk = 480
)

// Analysis is a spectral analysis context attached to one audio track.
type Analysis interface {
	FrequencyBinCount() int
	SampleRate() int
	// ByteFrequencyData fills dst with the current magnitude spectrum
	// scaled to 0-255.
	ByteFrequencyData(dst []byte)
	Close() error
}

// Analyser computes byte-valued frequency data over the most recent
// FFTSize samples of a mono stream. Samples arrive from the pump
// goroutine; reads happen on the loop.
type Analyser struct {
	sampleRate int
	fft        *fourier.FFT
	window     []float64

	mu       sync.Mutex
	ring     []float64
	pos      int
	frame    []float64
	coeffs   []complex128
	smoothed []float64

	source    beep.Streamer
	done      chan struct{}
	closeOnce sync.Once
}

var _ Analysis = (*Analyser)(nil)

func NewAnalyser(sampleRate int) *Analyser {
	return &Analyser{
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(FFTSize),
		window:     blackman(FFTSize),
		ring:       make([]float64, FFTSize),
		frame:      make([]float64, FFTSize),
		coeffs:     make([]complex128, FFTSize/2+1),
		smoothed:   make([]float64, FFTSize/2),
		done:       make(chan struct{}),
	}
}

func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

func (a *Analyser) FrequencyBinCount() int { return FFTSize / 2 }

func (a *Analyser) SampleRate() int { return a.sampleRate }

// Push appends samples, mixed down to mono, to the analysis window.
func (a *Analyser) Push(samples [][2]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = (s[0] + s[1]) / 2
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

// Pump streams s into the analyser until s is drained or the analyser is
// closed. It is meant to run on its own goroutine.
func (a *Analyser) Pump(s beep.Streamer) {
	a.mu.Lock()
	a.source = s
	a.mu.Unlock()

	buf := make([][2]float64, pumpChunk)
	for {
		select {
		case <-a.done:
			return
		default:
		}
		n, ok := s.Stream(buf)
		if n > 0 {
			a.Push(buf[:n])
		}
		if !ok {
			return
		}
	}
}

func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.frame {
		a.frame[i] = a.ring[(a.pos+i)%len(a.ring)] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 255 / (maxDecibels - minDecibels)
	for k := range a.smoothed {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / FFTSize
		a.smoothed[k] = smoothingTimeConstant*a.smoothed[k] + (1-smoothingTimeConstant)*mag
		if k >= len(dst) {
			continue
		}
		db := minDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := (db - minDecibels) * scale
		switch {
		case v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
}

// Close stops the pump and releases the source if it is closable.
func (a *Analyser) Close() (err error) {
	a.closeOnce.Do(func() {
		close(a.done)
		a.mu.Lock()
		src := a.source
		a.mu.Unlock()
		if c, ok := src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return
}
