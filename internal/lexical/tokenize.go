package lexical

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// TokenizerID is recorded in the manifest and in every BM25 sidecar;
// Load rejects a sidecar whose recorded id differs, so a tokenizer
// change means the sidecar is rebuilt (§4.5, "tokenizer mismatch
// invalidates the BM25 sidecar").
const TokenizerID = "unicode-words-v1"

// Tokenize splits text into lowercased word tokens on Unicode letter/digit
// boundaries, after NFC-normalizing the input so visually identical text
// encoded with different combining sequences maps to the same tokens.
func Tokenize(text string) []string {
	normalized := norm.NFC.String(text)

	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}
