package level

import (
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func streamSamples(t *testing.T, s beep.Streamer, n int) [][2]float64 {
	t.Helper()
	buf := make([][2]float64, n)
	got, ok := s.Stream(buf)
	require.True(t, ok)
	require.Equal(t, n, got)
	return buf
}

func TestAnalyserSilence(t *testing.T) {
	a := NewAnalyser(48000)
	a.Push(streamSamples(t, generators.Silence(FFTSize), FFTSize))

	dst := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(dst)
	for i, v := range dst {
		assert.Equal(t, byte(0), v, "bin %d", i)
	}
}

func TestAnalyserSinePeak(t *testing.T) {
	rate := beep.SampleRate(48000)
	gen, err := generators.SineTone(rate, 1000)
	require.NoError(t, err)

	a := NewAnalyser(rate.N(time.Second))
	a.Push(streamSamples(t, gen, FFTSize))

	dst := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(dst)

	peak := BinIndex(1000, a.SampleRate(), len(dst))
	assert.Equal(t, byte(255), dst[peak])
	assert.Assert(t, dst[400] < 64, "far bin %d", dst[400])
}

func TestAnalyserFeedsExtractorBands(t *testing.T) {
	rate := beep.SampleRate(48000)
	gen, err := generators.SineTone(rate, 1000)
	require.NoError(t, err)

	a := NewAnalyser(rate.N(time.Second))
	a.Push(streamSamples(t, gen, FFTSize))

	bins := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(bins)
	ranges := bandRanges(DefaultBands(), a.SampleRate(), len(bins))

	// 1kHz sits in the 500-2000Hz band
	mid := mean(bins[ranges[2].start:ranges[2].end])
	high := mean(bins[ranges[4].start:ranges[4].end])
	assert.Assert(t, mid > high, "mid %v high %v", mid, high)
}

func TestAnalyserPumpAndClose(t *testing.T) {
	a := NewAnalyser(1000)
	done := make(chan struct{})
	go func() {
		a.Pump(generators.Silence(5000))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish a finite stream")
	}
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
