package audio

import "math"

// RMS returns the root-mean-square energy of the samples. Values around
// 0.01-0.02 correspond to quiet speech at typical microphone gain; pure
// digital silence is 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
