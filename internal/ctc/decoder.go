package ctc

import "fmt"

// GreedyDecode collapses a flat [timeSteps x vocabSize] logit tensor into a
// token id sequence. At each step the argmax token is taken (strict >, so
// the first index wins ties) and emitted only when it is not the blank and
// differs from the previous step's argmax: blanks always separate repeat
// runs, and a blank itself is never emitted. A trailing end-of-sequence
// token is dropped.
func GreedyDecode(logits []float32, timeSteps, vocabSize int) ([]int, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("ctc: vocab size must be > 0, got %d", vocabSize)
	}
	if len(logits) < timeSteps*vocabSize {
		return nil, fmt.Errorf("ctc: logits length %d < %d steps x %d vocab", len(logits), timeSteps, vocabSize)
	}

	var out []int
	prev := -1
	for t := 0; t < timeSteps; t++ {
		row := logits[t*vocabSize : (t+1)*vocabSize]
		best := 0
		bestVal := row[0]
		for v := 1; v < vocabSize; v++ {
			if row[v] > bestVal {
				best = v
				bestVal = row[v]
			}
		}

		if best != BlankID && best != prev {
			out = append(out, best)
		}
		prev = best
	}

	if n := len(out); n > 0 && out[n-1] == EOSID {
		out = out[:n-1]
	}
	return out, nil
}
