package voiceparse

import (
	"slices"
	"unicode/utf8"
)

// extraVocabulary lists transliterated words the parsers understand that are
// not already number words, unit aliases or category keywords.
var extraVocabulary = []string{
	"kal", "aaj", "parso", "parson", "porshu", "din", "hafte", "hapta",
	"soptaho", "mahina", "mahine", "mash", "saal", "bochor", "baad", "pore",
	"agle", "porer", "taka", "rupaye", "rupiya", "prati",
}

// Vocabulary returns the sorted set of words worth boosting in a speech
// recogniser so that it transcribes them in the spelling the parsers expect.
// Words of two letters or fewer are left out; boosting them produces
// false positives.
func Vocabulary() []string {
	seen := make(map[string]bool)
	add := func(w string) {
		if utf8.RuneCountInString(w) > 2 {
			seen[w] = true
		}
	}
	for w := range numberWords {
		add(w)
	}
	for w, canon := range unitAliases {
		if w != canon {
			add(w)
		}
	}
	for w := range categoryCanon {
		add(w)
	}
	for _, w := range extraVocabulary {
		add(w)
	}
	out := keys(seen)
	slices.Sort(out)
	return out
}
