// Package tiktoken counts model tokens with the tiktoken encodings.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when a model has no registered encoding.
const DefaultEncoding = "cl100k_base"

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves name as a model first, then as an encoding.
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// ForModel is NewTiktokenTokenizer with a fallback to DefaultEncoding, so
// non-OpenAI models still get an approximate count.
func ForModel(model string) (*Tokenizer, error) {
	if t, err := NewTiktokenTokenizer(model); err == nil {
		return t, nil
	}
	return NewTiktokenTokenizer(DefaultEncoding)
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens implements agent.TokenCounter.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

func (t *Tokenizer) DecodeIds(ids []int) string {
	return t.enc.Decode(ids)
}
