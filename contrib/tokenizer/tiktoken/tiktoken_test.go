package tiktoken

import "testing"

// Encodings are downloaded on first use; skip when offline.
func newTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := ForModel("claude-sonnet-4-5")
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	return tok
}

func TestCountTokens(t *testing.T) {
	tok := newTokenizer(t)

	if n := tok.CountTokens(""); n != 0 {
		t.Errorf("CountTokens(\"\") = %d", n)
	}
	short := tok.CountTokens("hello")
	long := tok.CountTokens("hello hello hello hello")
	if short <= 0 || long <= short {
		t.Errorf("counts not monotonic: %d, %d", short, long)
	}
	if got := len(tok.Encode("hello world")); got != tok.CountTokens("hello world") {
		t.Errorf("CountTokens should equal encoded length, got %d", got)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tok := newTokenizer(t)
	text := "Starting agents on task"
	if got := tok.DecodeIds(tok.Encode(text)); got != text {
		t.Errorf("DecodeIds() = %q", got)
	}
}
