package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Special token ids of the bert-base-uncased vocabulary.
const (
	padTokenID = 0
	unkTokenID = 100
	clsTokenID = 101
	sepTokenID = 102
)

// tokenizer handles BERT-style WordPiece tokenization.
type tokenizer struct {
	vocab map[string]int
}

// loadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func loadTokenizer(path string) (*tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}

	return &tokenizer{vocab: tokenizerData.Model.Vocab}, nil
}

// encoding is one model input row.
type encoding struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
}

// encode tokenizes text into a [CLS] ... [SEP] row padded to maxLen.
func (t *tokenizer) encode(text string, maxLen int) encoding {
	tokens := t.tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	enc := encoding{
		inputIDs:      make([]int64, maxLen),
		attentionMask: make([]int64, maxLen),
		tokenTypeIDs:  make([]int64, maxLen),
	}
	enc.inputIDs[0] = clsTokenID
	enc.attentionMask[0] = 1
	for i, tok := range tokens {
		enc.inputIDs[i+1] = tok
		enc.attentionMask[i+1] = 1
	}
	end := len(tokens) + 1
	enc.inputIDs[end] = sepTokenID
	enc.attentionMask[end] = 1
	for i := end + 1; i < maxLen; i++ {
		enc.inputIDs[i] = padTokenID
	}
	return enc
}

// tokenize converts text to token ids (lower-cased, punctuation trimmed).
func (t *tokenizer) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range t.wordPiece(word) {
			if id, ok := t.vocab[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, unkTokenID)
			}
		}
	}
	return tokens
}

// wordPiece greedily splits word into the longest known prefixes.
func (t *tokenizer) wordPiece(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
