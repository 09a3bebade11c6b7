// Package engine is the boundary to the acoustic model: mel features and an
// attention mask go in, a per-frame token logit tensor comes out. The model
// itself is a black box; everything upstream talks to the Engine interface
// so tests can script the tensor traffic.
package engine

import (
	"context"
	"fmt"

	"github.com/openvitals/vitalscribe/internal/mel"
)

// Logits is the model output: a flat row-major [TimeSteps x VocabSize]
// tensor, logits[t*VocabSize+v]. Produced once per inference call and
// read-only afterward.
type Logits struct {
	Data      []float32
	TimeSteps int
	VocabSize int
}

// Engine runs one inference over a feature matrix and its mask.
type Engine interface {
	// Infer blocks for the duration of the model call. The inputs are the
	// flat [1 x 3000 x 128] feature matrix and [1 x 3000] mask produced by
	// the mel extractor; a shape mismatch is rejected before the model is
	// invoked.
	Infer(ctx context.Context, features, mask []float32) (Logits, error)
	// Close releases model resources.
	Close() error
}

// ValidateShapes rejects inputs that violate the model's tensor contract.
func ValidateShapes(features, mask []float32) error {
	if want := mel.ModelFrames * mel.NumMelBins; len(features) != want {
		return fmt.Errorf("engine: features length %d, contract requires %d (%dx%d)",
			len(features), want, mel.ModelFrames, mel.NumMelBins)
	}
	if len(mask) != mel.ModelFrames {
		return fmt.Errorf("engine: mask length %d, contract requires %d", len(mask), mel.ModelFrames)
	}
	return nil
}
