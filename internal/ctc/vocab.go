// Package ctc decodes per-frame token distributions into text: greedy
// argmax with CTC repeat collapsing, then sub-word detokenization through
// a loaded vocabulary.
package ctc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Reserved token ids. The file may name these anything; their meaning is
// fixed by the model contract.
const (
	BlankID   = 0 // CTC blank / padding
	UnknownID = 1
	EOSID     = 2 // end of sequence
)

// boundaryMarker is the sub-word boundary character (U+2581, "lower one
// eighth block") that SentencePiece-style tokenizers use to start a word.
const boundaryMarker = "▁"

// Vocabulary maps token ids to sub-word string pieces. Built once at load
// time; read-only afterward and safe to share across sessions.
type Vocabulary struct {
	pieces []string
}

// tokenizerFile is the on-disk tokenizer document. model.vocab comes in two
// shapes: a positional [piece, score] array (index = id) or a {piece: id}
// object. added_tokens entries override the base vocabulary.
type tokenizerFile struct {
	Model struct {
		Vocab json.RawMessage `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// LoadVocabulary reads and parses a tokenizer vocabulary file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ctc: reading vocabulary: %w", err)
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("ctc: %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary parses a tokenizer JSON document into a Vocabulary.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var tf tokenizerFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing tokenizer JSON: %w", err)
	}

	var pieces []string
	if len(tf.Model.Vocab) > 0 {
		var err error
		pieces, err = parseVocabField(tf.Model.Vocab)
		if err != nil {
			return nil, err
		}
	}

	// Added tokens are applied last so explicit id/content pairs win.
	for _, at := range tf.AddedTokens {
		if at.ID < 0 {
			return nil, fmt.Errorf("added token %q has negative id %d", at.Content, at.ID)
		}
		for at.ID >= len(pieces) {
			pieces = append(pieces, "")
		}
		pieces[at.ID] = at.Content
	}

	if len(pieces) == 0 {
		return nil, fmt.Errorf("no vocabulary entries found")
	}

	return &Vocabulary{pieces: pieces}, nil
}

// parseVocabField handles both vocab shapes.
func parseVocabField(raw json.RawMessage) ([]string, error) {
	// Positional array of [piece, score] pairs.
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err == nil {
		pieces := make([]string, len(pairs))
		for i, p := range pairs {
			if len(p) == 0 {
				return nil, fmt.Errorf("vocab entry %d is empty", i)
			}
			var piece string
			if err := json.Unmarshal(p[0], &piece); err != nil {
				return nil, fmt.Errorf("vocab entry %d: %w", i, err)
			}
			pieces[i] = piece
		}
		return pieces, nil
	}

	// {piece: id} object.
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("model.vocab is neither a pair array nor an id map: %w", err)
	}
	maxID := -1
	for _, id := range m {
		if id < 0 {
			return nil, fmt.Errorf("vocab id %d is negative", id)
		}
		if id > maxID {
			maxID = id
		}
	}
	pieces := make([]string, maxID+1)
	for piece, id := range m {
		pieces[id] = piece
	}
	return pieces, nil
}

// Size returns the number of token ids in the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.pieces)
}

// Piece returns the string piece for id, or the unknown placeholder for
// ids outside the table.
func (v *Vocabulary) Piece(id int) string {
	if id < 0 || id >= len(v.pieces) || v.pieces[id] == "" {
		return v.unknownPiece()
	}
	return v.pieces[id]
}

// Detokenize converts surviving token ids to text: reserved blank/EOS ids
// are skipped even if the decoder let one through, unknown ids render as
// the unknown placeholder, boundary markers become spaces, and the result
// is trimmed.
func (v *Vocabulary) Detokenize(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id == BlankID || id == EOSID {
			continue
		}
		b.WriteString(v.Piece(id))
	}
	text := strings.ReplaceAll(b.String(), boundaryMarker, " ")
	return strings.TrimSpace(text)
}

func (v *Vocabulary) unknownPiece() string {
	if UnknownID < len(v.pieces) && v.pieces[UnknownID] != "" {
		return v.pieces[UnknownID]
	}
	return "<unk>"
}
