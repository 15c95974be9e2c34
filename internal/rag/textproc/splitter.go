package textproc

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// defaultSeparators orders split points from the largest natural boundary
// down to single characters: paragraph break, line break, sentence end,
// word boundary, character.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// TokenSplitter splits text into overlapping segments bounded by a token
// budget. Token counts come from the cl100k_base encoding, the tokenizer of
// the gpt-3.5-turbo family and of text-embedding models, so chunk sizes line
// up with what the embedding service actually sees.
type TokenSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	tokenizer    *tiktoken.Tiktoken
}

// NewTokenSplitter creates a TokenSplitter with the given token budget and
// overlap.
func NewTokenSplitter(chunkSize, chunkOverlap int) (*TokenSplitter, error) {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &TokenSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		tokenizer:    tke,
	}, nil
}

// TokenLen returns the number of tokens in text.
func (s *TokenSplitter) TokenLen(text string) int {
	return len(s.tokenizer.Encode(text, nil, nil))
}

// SplitText splits text into chunks of at most ChunkSize tokens, preferring
// the largest separator that still fits the budget and overlapping
// consecutive chunks by roughly ChunkOverlap tokens.
func (s *TokenSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, defaultSeparators)
}

func (s *TokenSplitter) split(text string, separators []string) []string {
	var final []string

	// Pick the first separator actually present in the text; the empty
	// separator always applies and splits into single characters.
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	var good []string
	for _, piece := range splits {
		if s.TokenLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}

	return final
}

// merge greedily joins splits back together up to the chunk budget, then
// slides the window so the tail of one chunk (about ChunkOverlap tokens)
// starts the next.
func (s *TokenSplitter) merge(splits []string, separator string) []string {
	sepLen := s.TokenLen(separator)

	var docs []string
	var current []string
	total := 0

	for _, piece := range splits {
		l := s.TokenLen(piece)

		joinLen := 0
		if len(current) > 0 {
			joinLen = sepLen
		}
		if total+l+joinLen > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			// Drop leading pieces until the carried-over tail fits the
			// overlap budget and leaves room for the next piece.
			for total > s.ChunkOverlap || (total+l+joinLen > s.ChunkSize && total > 0) {
				total -= s.TokenLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
				if len(current) == 0 {
					break
				}
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		total += l
		current = append(current, piece)
	}

	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitOn splits text by separator; the empty separator splits into
// individual characters.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, separator)
	}

	filtered := parts[:0]
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
