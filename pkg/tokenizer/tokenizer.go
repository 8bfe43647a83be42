// Package tokenizer implements a character-level codec.
//
// The vocabulary is the sorted set of distinct runes in a training corpus;
// each rune's id is its position in that order. A typical English corpus
// yields a few dozen to a hundred symbols, which sets the model's vocab_size.
package tokenizer

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Tokenizer maps runes to ids and back.
type Tokenizer struct {
	// vocab maps token ID to rune, in sorted rune order
	vocab []rune

	// inverseVocab maps rune to ID for O(1) lookup
	inverseVocab map[rune]int
}

// NewCharTokenizer builds a vocabulary from every distinct rune in corpus.
func NewCharTokenizer(corpus string) (*Tokenizer, error) {
	if corpus == "" {
		return nil, fmt.Errorf("corpus is empty")
	}
	if !utf8.ValidString(corpus) {
		return nil, fmt.Errorf("corpus is not valid UTF-8")
	}
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}
	vocab := make([]rune, 0, len(seen))
	for r := range seen {
		vocab = append(vocab, r)
	}
	slices.Sort(vocab)
	return fromVocab(vocab)
}

func fromVocab(vocab []rune) (*Tokenizer, error) {
	t := &Tokenizer{
		vocab:        vocab,
		inverseVocab: make(map[rune]int, len(vocab)),
	}
	for id, r := range vocab {
		if _, dup := t.inverseVocab[r]; dup {
			return nil, fmt.Errorf("duplicate symbol %q at id %d", r, id)
		}
		t.inverseVocab[r] = id
	}
	return t, nil
}

// VocabSize returns the number of symbols.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Symbols returns the vocabulary in id order.
func (t *Tokenizer) Symbols() []rune {
	return slices.Clone(t.vocab)
}

// Encode converts text into token IDs. Runes outside the vocabulary and
// invalid UTF-8 are errors.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for pos, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[pos:]); size == 1 {
				return nil, fmt.Errorf("invalid UTF-8 at byte offset %d", pos)
			}
		}
		id, ok := t.inverseVocab[r]
		if !ok {
			return nil, fmt.Errorf("unknown symbol %q at byte offset %d", r, pos)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode converts token IDs back into text.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(t.vocab) {
			return "", fmt.Errorf("token %d at position %d out of range [0, %d)", id, i, len(t.vocab))
		}
		sb.WriteRune(t.vocab[id])
	}
	return sb.String(), nil
}
