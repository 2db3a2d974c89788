package pipeline

import (
	"sort"

	"visitor-forecast/internal/model"
)

// LabelEncoder maps categorical values onto dense zero-based integer codes
// assigned in sorted order.
type LabelEncoder struct {
	codes map[string]int
	vocab []string
}

// Fit learns the vocabulary from the distinct values given
func (e *LabelEncoder) Fit(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	e.vocab = make([]string, 0, len(seen))
	for v := range seen {
		e.vocab = append(e.vocab, v)
	}
	sort.Strings(e.vocab)

	e.codes = make(map[string]int, len(e.vocab))
	for i, v := range e.vocab {
		e.codes[v] = i
	}
	return e
}

// Transform returns the code of a value. A missing value is the sentinel; an
// unseen value gets the fallback code, one past the last learned code.
func (e *LabelEncoder) Transform(value string, present bool) float64 {
	if !present {
		return model.Sentinel
	}
	if code, ok := e.codes[value]; ok {
		return float64(code)
	}
	return float64(e.FallbackCode())
}

// FallbackCode is the code given to values unseen during Fit
func (e *LabelEncoder) FallbackCode() int {
	return len(e.vocab)
}

// Classes returns the learned vocabulary in code order
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.vocab...)
}
