package flow

import (
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FuzzyDistanceThreshold is the maximum edit distance accepted when falling
// back to approximate matching. A match further away than this, or tied with
// a candidate from a different intent, is treated as unresolved.
const FuzzyDistanceThreshold = 2

// Canonicalize normalizes raw user text for matching: Unicode NFC, trimmed
// surrounding whitespace, lower-cased.
func Canonicalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
}

// Resolve maps canonicalized user text onto one of the vocabulary's intent
// values. The pipeline short-circuits on first success: exact match, then
// qualified-prefix match, then bounded edit-distance fuzzy match. The second
// return value reports whether resolution succeeded.
func (v *Vocabulary) Resolve(raw string) (string, bool) {
	text := Canonicalize(raw)
	if text == "" {
		return "", false
	}

	if value, ok := v.exactMatch(text); ok {
		return value, true
	}
	if value, ok := v.prefixMatch(text); ok {
		return value, true
	}
	return v.fuzzyMatch(text)
}

// exactMatch compares the text against every canonical value, label, and
// synonym.
func (v *Vocabulary) exactMatch(text string) (string, bool) {
	for _, intent := range v.Intents {
		for _, candidate := range intent.candidates() {
			if text == candidate {
				return intent.Value, true
			}
		}
	}
	return "", false
}

// prefixMatch strips a recognized qualified prefix (e.g. "smoker:" or
// "อาการ:") and matches the remainder exactly against the intent set.
func (v *Vocabulary) prefixMatch(text string) (string, bool) {
	for _, prefix := range v.Prefixes {
		if !strings.HasPrefix(text, prefix) {
			continue
		}
		remainder := Canonicalize(strings.TrimPrefix(text, prefix))
		if remainder == "" {
			continue
		}
		if value, ok := v.exactMatch(remainder); ok {
			return value, true
		}
	}
	return "", false
}

// fuzzyMatch accepts the closest candidate within the edit-distance threshold,
// but only when it is a strict unique minimum: a tie between two different
// intents means the input is ambiguous and stays unresolved.
func (v *Vocabulary) fuzzyMatch(text string) (string, bool) {
	bestDistance := FuzzyDistanceThreshold + 1
	bestValue := ""
	tied := false

	for _, intent := range v.Intents {
		for _, candidate := range intent.candidates() {
			d := editDistance(text, candidate)
			switch {
			case d < bestDistance:
				bestDistance = d
				bestValue = intent.Value
				tied = false
			case d == bestDistance && intent.Value != bestValue:
				tied = true
			}
		}
	}

	if bestDistance > FuzzyDistanceThreshold || tied {
		return "", false
	}
	slog.Debug("Vocabulary fuzzy match accepted", "text", text, "value", bestValue, "distance", bestDistance)
	return bestValue, true
}

// candidates returns every accepted text form for the intent, canonicalized.
func (i Intent) candidates() []string {
	forms := make([]string, 0, len(i.Synonyms)+2)
	forms = append(forms, Canonicalize(i.Value), Canonicalize(i.Label))
	for _, syn := range i.Synonyms {
		forms = append(forms, Canonicalize(syn))
	}
	return forms
}

// editDistance computes the Levenshtein distance between two strings over
// runes, so multi-byte scripts compare by character rather than by byte.
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
