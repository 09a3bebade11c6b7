package audio

import (
	"fmt"
	"io"
	"math"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// EncodeWAV encodes mono float32 samples as 16-bit signed little-endian PCM
// in a canonical RIFF/WAVE container (44-byte header). Samples are clamped
// to [-1, 1] before conversion.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(buf, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(floatToPCM16(s))
	}

	intBuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(intBuf); err != nil {
		return nil, fmt.Errorf("writing wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}

	out, err := io.ReadAll(buf.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav buffer: %w", err)
	}
	return out, nil
}

// floatToPCM16 converts a [-1, 1] float sample to int16, clamping overshoot.
func floatToPCM16(s float32) int16 {
	v := float64(s) * math.MaxInt16
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}
