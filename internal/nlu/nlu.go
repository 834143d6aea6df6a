// Package nlu turns free-form patient answers into symptoms and factors of
// the dialog tree.
package nlu

import (
	"context"
	"strings"
	"unicode"

	"aimar/internal/dialog"
)

// Extractor resolves symptoms and factors from utterances. ExtractSymptom
// returns nil without error when nothing in the tree matches.
type Extractor interface {
	ExtractSymptom(ctx context.Context, text string, tree *dialog.Tree) (*dialog.Symptom, error)
	ExtractFactor(ctx context.Context, answer string, candidates []string) (string, error)
}

// Keyword matches whole words against symptom names, aliases and candidate
// factors. It needs no network and is the default extractor.
type Keyword struct{}

func NewKeyword() *Keyword {
	return &Keyword{}
}

func (Keyword) ExtractSymptom(_ context.Context, text string, tree *dialog.Tree) (*dialog.Symptom, error) {
	haystack := pad(normalize(text))
	if strings.TrimSpace(haystack) == "" || tree == nil {
		return nil, nil
	}

	var (
		best    *dialog.Symptom
		bestLen int
	)
	for i := range tree.Symptoms {
		s := &tree.Symptoms[i]
		for _, term := range append([]string{s.Name}, s.Aliases...) {
			n := normalize(term)
			if n == "" || len(n) <= bestLen {
				continue
			}
			if strings.Contains(haystack, pad(n)) {
				best, bestLen = s, len(n)
			}
		}
	}
	return best, nil
}

func (Keyword) ExtractFactor(_ context.Context, answer string, candidates []string) (string, error) {
	norm := normalize(answer)
	if norm == "" {
		return "", nil
	}

	haystack := pad(norm)
	for _, c := range candidates {
		if n := normalize(c); n != "" && strings.Contains(haystack, pad(n)) {
			return strings.ToLower(strings.TrimSpace(c)), nil
		}
	}
	return norm, nil
}

// normalize lower-cases s, turns punctuation into spaces and collapses runs
// of whitespace.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '\'' {
			return -1
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func pad(s string) string {
	return " " + s + " "
}
