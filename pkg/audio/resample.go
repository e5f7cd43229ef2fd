package audio

// Resampler converts mono float32 PCM from one sample rate to another using
// linear interpolation, carrying the last sample of one chunk into the next
// so a stream of chunks resamples as if it were one continuous buffer.
type Resampler struct {
	fromRate   int
	toRate     int
	ratio      float64
	lastSample float32
	havePrev   bool
}

// NewResampler builds a resampler for the given rate conversion. When
// fromRate == toRate, Resample is a pass-through copy.
func NewResampler(fromRate, toRate int) *Resampler {
	return &Resampler{
		fromRate: fromRate,
		toRate:   toRate,
		ratio:    float64(fromRate) / float64(toRate),
	}
}

// Resample converts input at fromRate into output at toRate.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.fromRate == r.toRate || len(input) == 0 {
		out := make([]float32, len(input))
		copy(out, input)
		if len(input) > 0 {
			r.lastSample = input[len(input)-1]
			r.havePrev = true
		}
		return out
	}

	outLen := int(float64(len(input)) / r.ratio)
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * r.ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))

		var a, b float32
		if idx == 0 {
			if r.havePrev {
				a = r.lastSample
			} else {
				a = input[0]
			}
			if len(input) > 0 {
				b = input[0]
			}
		} else if idx-1 < len(input) {
			a = input[idx-1]
			if idx < len(input) {
				b = input[idx]
			} else {
				b = a
			}
		} else {
			a = input[len(input)-1]
			b = a
		}

		out[i] = a + (b-a)*frac
	}

	r.lastSample = input[len(input)-1]
	r.havePrev = true
	return out
}

// Reset forgets any carried-over sample, used when the capture/playback
// stream restarts after a gap.
func (r *Resampler) Reset() {
	r.havePrev = false
	r.lastSample = 0
}
