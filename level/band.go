package level

import "math"

const (
	// smoothingFactor is the fraction of the gap to the raw band energy
	// closed on each tick.
	smoothingFactor = 0.4
	// decayStep scaled by smoothingFactor is the linear fall per tick
	// while a band is silent.
	decayStep = 5
	// silenceFloor is the raw band mean under which a band decays.
	silenceFloor = 1
	// volumeGain lifts quiet speech off the floor and lets full-scale
	// speech saturate.
	volumeGain = 3
)

// Band is one perceptual slice of the spectrum and its smoothed energy.
type Band struct {
	Start, End float64 // Hz
	Value      float64 // smoothed energy, 0-255
}

// DefaultBands covers the fundamental, formant and sibilance ranges of speech.
func DefaultBands() []Band {
	return []Band{
		{Start: 85, End: 255},
		{Start: 255, End: 500},
		{Start: 500, End: 2000},
		{Start: 2000, End: 4000},
		{Start: 4000, End: 8000},
	}
}

// Update folds one raw band mean into the smoothed value. Silence falls
// linearly; anything audible is approached exponentially.
func (b *Band) Update(raw float64) {
	if raw < silenceFloor {
		b.Value = math.Max(b.Value-decayStep*smoothingFactor, 0)
		return
	}
	b.Value += (raw - b.Value) * smoothingFactor
}

// BinIndex maps a frequency to the nearest index of a magnitude array of
// numBins bins spanning 0 to the Nyquist frequency.
func BinIndex(freq float64, sampleRate, numBins int) int {
	if sampleRate <= 0 || numBins <= 0 {
		return 0
	}
	nyquist := float64(sampleRate) / 2
	idx := int(math.Round(freq / nyquist * float64(numBins-1)))
	if idx < 0 {
		return 0
	}
	if idx > numBins {
		return numBins
	}
	return idx
}

type binRange struct {
	start, end int
}

func bandRanges(bands []Band, sampleRate, numBins int) []binRange {
	ranges := make([]binRange, len(bands))
	for i, b := range bands {
		ranges[i] = binRange{
			start: BinIndex(b.Start, sampleRate, numBins),
			end:   BinIndex(b.End, sampleRate, numBins),
		}
	}
	return ranges
}

// mean returns the arithmetic mean of bins, or 0 for an empty slice.
func mean(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins))
}

// volumeOf normalizes the summed band energy to [0,1].
func volumeOf(bands []Band) float64 {
	if len(bands) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bands {
		sum += b.Value
	}
	return math.Min(sum/(float64(len(bands))*255)*volumeGain, 1)
}
