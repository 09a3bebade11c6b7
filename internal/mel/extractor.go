// Package mel computes log-mel spectrogram features for the acoustic model.
//
// The parameters are fixed by the model's training recipe: 16kHz input,
// 512-point FFT over 400-sample Hann-windowed frames with a 160-sample hop,
// 128 triangular filters on the Kaldi mel scale between 125 and 7500Hz,
// natural log with a 1e-5 floor, padded or truncated to 3000 frames.
package mel

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// SampleRate is the pipeline audio rate in Hz.
	SampleRate = 16000
	// FFTSize is the number of points in the forward transform.
	FFTSize = 512
	// HopLength is the stride between successive frames, in samples.
	HopLength = 160
	// WindowLength is the number of samples windowed per frame.
	WindowLength = 400
	// NumMelBins is the number of triangular mel filters.
	NumMelBins = 128
	// ModelFrames is the fixed frame length the model expects.
	ModelFrames = 3000

	melLowHz  = 125.0
	melHighHz = 7500.0
	logFloor  = 1e-5
)

// Features is a model-ready log-mel matrix with its validity mask.
// Data is row-major [ModelFrames x NumMelBins]; Mask[i] is 1 for real
// frames and 0 for padding. Immutable once produced.
type Features struct {
	Data        []float32
	Mask        []float32
	ValidFrames int
}

// FrameCount returns the number of mel frames produced from n input samples:
// max(0, (n-WindowLength)/HopLength + 1). Used by the scheduler to gate
// inference on expected frame counts without running the extractor.
func FrameCount(n int) int {
	if n < WindowLength {
		return 0
	}
	return (n-WindowLength)/HopLength + 1
}

// melFilter is one triangular filter, stored sparsely: weights[i] applies
// to FFT bin start+i.
type melFilter struct {
	start   int
	weights []float64
}

// Extractor converts raw mono samples to log-mel features. It caches the
// Hann window, the mel filterbank, and the FFT plan; a single instance is
// reused across cycles and must not be shared between goroutines.
type Extractor struct {
	window  []float64
	filters []melFilter
	fft     *fourier.FFT

	// per-call scratch, reused to avoid reallocating 3000 times a cycle
	frame  []float64
	coeffs []complex128
	power  []float64
}

// NewExtractor builds the window, filterbank, and FFT plan.
func NewExtractor() *Extractor {
	return &Extractor{
		window:  hannWindow(WindowLength),
		filters: melFilterbank(NumMelBins, FFTSize, SampleRate, melLowHz, melHighHz),
		fft:     fourier.NewFFT(FFTSize),
		frame:   make([]float64, FFTSize),
		coeffs:  make([]complex128, FFTSize/2+1),
		power:   make([]float64, FFTSize/2+1),
	}
}

// Extract computes the padded log-mel matrix and attention mask for samples.
// Deterministic and total: any input, including empty, yields a full
// [ModelFrames x NumMelBins] matrix. Frames beyond ModelFrames are dropped.
func (e *Extractor) Extract(samples []float32) Features {
	total := FrameCount(len(samples))
	valid := total
	if valid > ModelFrames {
		valid = ModelFrames
	}

	data := make([]float32, ModelFrames*NumMelBins)
	mask := make([]float32, ModelFrames)

	for t := 0; t < valid; t++ {
		start := t * HopLength
		for i := 0; i < WindowLength; i++ {
			e.frame[i] = float64(samples[start+i]) * e.window[i]
		}
		// frame[WindowLength:FFTSize] is the zero padding; it is never
		// written after construction so it stays zero.

		e.fft.Coefficients(e.coeffs, e.frame)
		for k := range e.power {
			re := real(e.coeffs[k])
			im := imag(e.coeffs[k])
			e.power[k] = re*re + im*im
		}

		row := data[t*NumMelBins : (t+1)*NumMelBins]
		for m, f := range e.filters {
			var acc float64
			for i, w := range f.weights {
				acc += w * e.power[f.start+i]
			}
			if acc < logFloor {
				acc = logFloor
			}
			row[m] = float32(math.Log(acc))
		}
		mask[t] = 1
	}

	return Features{Data: data, Mask: mask, ValidFrames: valid}
}

// hannWindow returns a symmetric Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts Hz to the Kaldi mel scale (natural log variant).
func hzToMel(hz float64) float64 {
	return 1127 * math.Log(1+hz/700)
}

// melFilterbank builds numBins triangular filters over the FFT's positive
// frequency bins. Edge points are equally spaced in mel between lowHz and
// highHz; each filter rises linearly to 1 at its center and falls back to 0,
// with weights computed in the mel domain. Bins at a filter's outer edges
// get weight 0, so boundary bins are never double counted.
func melFilterbank(numBins, fftSize, sampleRate int, lowHz, highHz float64) []melFilter {
	melLow := hzToMel(lowHz)
	melHigh := hzToMel(highHz)

	// numBins+2 equally spaced edge points in mel space.
	points := make([]float64, numBins+2)
	step := (melHigh - melLow) / float64(numBins+1)
	for i := range points {
		points[i] = melLow + float64(i)*step
	}

	numFreqBins := fftSize/2 + 1
	binMel := make([]float64, numFreqBins)
	for k := range binMel {
		binMel[k] = hzToMel(float64(k) * float64(sampleRate) / float64(fftSize))
	}

	filters := make([]melFilter, numBins)
	for m := range filters {
		left, center, right := points[m], points[m+1], points[m+2]

		start := -1
		var weights []float64
		for k, mk := range binMel {
			rise := (mk - left) / (center - left)
			fall := (right - mk) / (right - center)
			w := math.Min(rise, fall)
			if w <= 0 {
				if start >= 0 && len(weights) > 0 {
					break // past the right edge
				}
				continue
			}
			if start < 0 {
				start = k
			}
			weights = append(weights, w)
		}
		if start < 0 {
			start = 0
		}
		filters[m] = melFilter{start: start, weights: weights}
	}
	return filters
}
