package embeddings

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT-style special token IDs.
const (
	padTokenID = 0
	clsTokenID = 101
	sepTokenID = 102

	// hashVocabSize bounds hashed token IDs so they stay inside a typical
	// transformer vocabulary (30522 for BERT-family models), clear of the
	// special-token range.
	hashVocabSize = 30000
	tokenIDOffset = 999
)

// Tokenizer converts text to fixed-length model input. Tokens are hashed
// into a stable ID space rather than looked up in a vocabulary file; this
// trades exact wordpiece fidelity for a zero-asset deployment, which is
// acceptable because the same hashing is applied at index and query time.
type Tokenizer struct {
	MaxLength int
}

// NewTokenizer creates a tokenizer with the given sequence length cap.
func NewTokenizer(maxLength int) *Tokenizer {
	if maxLength <= 0 {
		maxLength = 512
	}
	if maxLength < 2 {
		maxLength = 2
	}
	return &Tokenizer{MaxLength: maxLength}
}

// Tokenize produces padded, truncated model input for one text.
func (t *Tokenizer) Tokenize(text string) *TokenizedInput {
	words := splitTokens(text)

	// Reserve two slots for [CLS] and [SEP].
	maxWords := t.MaxLength - 2
	truncated := false
	if len(words) > maxWords {
		words = words[:maxWords]
		truncated = true
	}

	length := len(words) + 2
	inputIDs := make([]int32, t.MaxLength)
	attention := make([]int32, t.MaxLength)
	tokenTypes := make([]int32, t.MaxLength)

	inputIDs[0] = clsTokenID
	attention[0] = 1
	for i, w := range words {
		inputIDs[i+1] = tokenID(w)
		attention[i+1] = 1
	}
	inputIDs[len(words)+1] = sepTokenID
	attention[len(words)+1] = 1

	return &TokenizedInput{
		InputIDs:      inputIDs,
		AttentionMask: attention,
		TokenTypeIDs:  tokenTypes,
		Length:        length,
		Truncated:     truncated,
	}
}

// splitTokens lowercases and splits on anything that is not a letter or
// digit.
func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenID(token string) int32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int32(h.Sum32()%hashVocabSize) + tokenIDOffset
}
