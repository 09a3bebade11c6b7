package mel

import (
	"math"
	"testing"
)

func TestFrameCount(t *testing.T) {
	tests := []struct {
		samples int
		want    int
	}{
		{0, 0},
		{399, 0}, // shorter than one window
		{400, 1},
		{559, 1},
		{560, 2}, // 400 + one hop
		{16000, 98},    // 1s
		{48000, 298},   // 3s
		{480000, 2998}, // 30s window cap
	}
	for _, tt := range tests {
		if got := FrameCount(tt.samples); got != tt.want {
			t.Errorf("FrameCount(%d) = %d, want %d", tt.samples, got, tt.want)
		}
	}
}

func TestExtractShapes(t *testing.T) {
	e := NewExtractor()
	feats := e.Extract(make([]float32, 16000))

	if len(feats.Data) != ModelFrames*NumMelBins {
		t.Errorf("len(Data) = %d, want %d", len(feats.Data), ModelFrames*NumMelBins)
	}
	if len(feats.Mask) != ModelFrames {
		t.Errorf("len(Mask) = %d, want %d", len(feats.Mask), ModelFrames)
	}
	if feats.ValidFrames != FrameCount(16000) {
		t.Errorf("ValidFrames = %d, want %d", feats.ValidFrames, FrameCount(16000))
	}
}

func TestExtractMaskInvariant(t *testing.T) {
	e := NewExtractor()
	feats := e.Extract(make([]float32, 48000)) // 3s of silence

	valid := FrameCount(48000)
	for i, m := range feats.Mask {
		if i < valid && m != 1 {
			t.Fatalf("Mask[%d] = %v, want 1 for real frame", i, m)
		}
		if i >= valid && m != 0 {
			t.Fatalf("Mask[%d] = %v, want 0 for padding", i, m)
		}
	}
}

func TestExtractSilence(t *testing.T) {
	e := NewExtractor()
	feats := e.Extract(make([]float32, 48000))

	// Real frames: every mel energy clamps to the floor, so values are
	// ln(1e-5). Padding frames stay zero-filled.
	wantFloor := float32(math.Log(1e-5))
	valid := feats.ValidFrames
	for i := 0; i < valid*NumMelBins; i++ {
		if feats.Data[i] != wantFloor {
			t.Fatalf("Data[%d] = %v, want %v (log floor)", i, feats.Data[i], wantFloor)
		}
	}
	for i := valid * NumMelBins; i < len(feats.Data); i++ {
		if feats.Data[i] != 0 {
			t.Fatalf("Data[%d] = %v, want 0 in padding", i, feats.Data[i])
		}
	}
}

func TestExtractEmptyInput(t *testing.T) {
	e := NewExtractor()
	feats := e.Extract(nil)

	if feats.ValidFrames != 0 {
		t.Errorf("ValidFrames = %d, want 0", feats.ValidFrames)
	}
	for i, m := range feats.Mask {
		if m != 0 {
			t.Fatalf("Mask[%d] = %v, want all-zero mask for empty input", i, m)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor()
	samples := sine(440, 16000, 16000)

	a := e.Extract(samples)
	b := e.Extract(samples)

	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("Data[%d] differs between runs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
	for i := range a.Mask {
		if a.Mask[i] != b.Mask[i] {
			t.Fatalf("Mask[%d] differs between runs", i)
		}
	}
}

func TestExtractToneAboveFloor(t *testing.T) {
	e := NewExtractor()
	feats := e.Extract(sine(440, 16000, 16000))

	floor := float32(math.Log(1e-5))
	above := 0
	for i := 0; i < feats.ValidFrames*NumMelBins; i++ {
		if feats.Data[i] > floor {
			above++
		}
	}
	if above == 0 {
		t.Error("a 440Hz tone should lift some mel bins above the log floor")
	}
}

func TestExtractTruncatesLongInput(t *testing.T) {
	e := NewExtractor()
	// 31s of audio produces more than ModelFrames frames; the tail is
	// silently dropped and the output stays exactly ModelFrames long.
	feats := e.Extract(make([]float32, 31*16000))

	if FrameCount(31*16000) <= ModelFrames {
		t.Fatal("test input should exceed the model frame length")
	}
	if feats.ValidFrames != ModelFrames {
		t.Errorf("ValidFrames = %d, want %d", feats.ValidFrames, ModelFrames)
	}
	for i, m := range feats.Mask {
		if m != 1 {
			t.Fatalf("Mask[%d] = %v, want all-ones mask when truncating", i, m)
		}
	}
}

func TestMelFilterbankShape(t *testing.T) {
	filters := melFilterbank(NumMelBins, FFTSize, SampleRate, 125, 7500)

	if len(filters) != NumMelBins {
		t.Fatalf("got %d filters, want %d", len(filters), NumMelBins)
	}

	// Filters narrower than one FFT bin's mel width (possible at the low
	// end with 128 bins) legitimately cover no bin; their output clamps
	// to the log floor.
	nonEmpty := 0
	prevStart := 0
	for m, f := range filters {
		if len(f.weights) == 0 {
			continue
		}
		nonEmpty++
		if f.start < prevStart {
			t.Errorf("filter %d starts at bin %d, before an earlier filter at %d", m, f.start, prevStart)
		}
		prevStart = f.start

		for _, w := range f.weights {
			if w <= 0 || w > 1 {
				t.Errorf("filter %d has weight %v outside (0, 1]", m, w)
			}
		}
		if end := f.start + len(f.weights); end > FFTSize/2+1 {
			t.Errorf("filter %d extends to bin %d beyond spectrum", m, end)
		}
	}
	if nonEmpty < NumMelBins/2 {
		t.Errorf("only %d of %d filters cover any FFT bin", nonEmpty, NumMelBins)
	}
}

func TestHzToMel(t *testing.T) {
	// Kaldi scale: 1127 * ln(1 + f/700)
	if got := hzToMel(0); got != 0 {
		t.Errorf("hzToMel(0) = %v, want 0", got)
	}
	want := 1127 * math.Log(2)
	if got := hzToMel(700); math.Abs(got-want) > 1e-9 {
		t.Errorf("hzToMel(700) = %v, want %v", got, want)
	}
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(WindowLength)

	if w[0] != 0 {
		t.Errorf("w[0] = %v, want 0", w[0])
	}
	if last := w[len(w)-1]; math.Abs(last) > 1e-12 {
		t.Errorf("w[last] = %v, want 0 (symmetric window)", last)
	}
	// Symmetry
	for i := 0; i < len(w)/2; i++ {
		if math.Abs(w[i]-w[len(w)-1-i]) > 1e-12 {
			t.Fatalf("window asymmetric at %d: %v vs %v", i, w[i], w[len(w)-1-i])
		}
	}
}

// sine generates a float32 sine tone.
func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
