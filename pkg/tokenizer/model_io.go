package tokenizer

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Save writes the vocabulary to a file.
//
// File format, one symbol per line in id order:
//
//	<base64_encoded_utf8_symbol> <id>
//
// Symbols are base64 encoded so that whitespace and newlines survive.
func (t *Tokenizer) Save(filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for id, r := range t.vocab {
		encoded := base64.StdEncoding.EncodeToString([]byte(string(r)))
		if _, err := fmt.Fprintf(writer, "%s %d\n", encoded, id); err != nil {
			return fmt.Errorf("failed to write symbol %d: %w", id, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// LoadTokenizer reads a vocabulary written by Save. Ids must be dense and
// in order.
func LoadTokenizer(filepath string) (*Tokenizer, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var vocab []rune
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid line %d: expected 2 fields, got %d", lineNum, len(parts))
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid id on line %d: %w", lineNum, err)
		}
		if id != len(vocab) {
			return nil, fmt.Errorf("line %d: expected id %d, got %d", lineNum, len(vocab), id)
		}
		raw, err := base64.StdEncoding.DecodeString(parts[0])
		if err != nil {
			return nil, fmt.Errorf("failed to decode symbol on line %d: %w", lineNum, err)
		}
		r, size := utf8.DecodeRune(raw)
		if (r == utf8.RuneError && size == 1) || size != len(raw) {
			return nil, fmt.Errorf("line %d: symbol is not a single UTF-8 rune", lineNum)
		}
		vocab = append(vocab, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("no symbols in %s", filepath)
	}
	return fromVocab(vocab)
}
