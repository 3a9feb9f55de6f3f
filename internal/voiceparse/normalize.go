// Package voiceparse turns speech-to-text transcripts into structured
// inventory fields.
//
// Transcripts are expected to mix English with transliterated Hindi and
// Bengali words ("paanch ta alu", "2 kilo tomato 3 din"). The package never
// tries to identify the language of a word; it only matches closed word
// lists, so the same word list works for every supported language.
//
// Four entry points are provided:
//
//   - [Normalize] rewrites number words as digit literals.
//   - [ParseItem] extracts quantity, unit, expiry, category and name from an
//     "add item" utterance.
//   - [ParseDate] parses a free-form relative or absolute date phrase.
//   - [ParsePrice] parses a free-form currency amount.
//
// All functions are pure and safe for concurrent use. Functions that depend
// on the current date take it as an argument; see [Clock].
package voiceparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// numberWords maps transliterated number words to their values.
// Overlapping spellings across languages (e.g. "char", "panch") map to the
// same value, so a single table serves Hindi, Bengali and English.
var numberWords = map[string]float64{
	// Hindi
	"ek": 1, "do": 2, "teen": 3, "char": 4, "chaar": 4, "paanch": 5, "panch": 5,
	"che": 6, "chhe": 6, "saat": 7, "aath": 8, "nau": 9, "das": 10,
	"gyarah": 11, "barah": 12, "terah": 13, "chaudah": 14, "pandrah": 15,
	"solah": 16, "satrah": 17, "atharah": 18, "unnis": 19, "bees": 20,
	"aadha": 0.5, "adha": 0.5, "dhai": 2.5, "dedh": 1.5,

	// Bengali
	"dui": 2, "tin": 3, "choy": 6, "sat": 7, "at": 8, "noy": 9, "dosh": 10,
	"egaro": 11, "baro": 12, "tero": 13, "choddo": 14, "ponero": 15, "kuri": 20,
	"ad": 0.5, "der": 1.5, "arai": 2.5,

	// English
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"fifteen": 15, "twenty": 20, "half": 0.5,
}

// numberWordRe matches any dictionary word as a whole word. Longer words come
// first so that alternation never prefers a shorter prefix.
var numberWordRe = compileWordSet(keys(numberWords))

// nativeDigits maps the zero code point of each supported digit block to the
// ASCII digit '0'. Devanagari and Bengali speech engines sometimes emit
// native digits even when the rest of the transcript is transliterated.
var nativeDigits = []rune{'०', '০'}

// Normalize replaces every transliterated number word in text with its digit
// equivalent ("paanch" → "5", "aadha" → "0.5"). Words outside the dictionary
// are left untouched. The text is first passed through [Fold].
//
// Normalize is idempotent: digits are never rewritten, so normalizing
// already-normalized text is a no-op.
func Normalize(text string) string {
	text = Fold(text)
	return numberWordRe.ReplaceAllStringFunc(text, func(w string) string {
		v, ok := numberWords[strings.ToLower(w)]
		if !ok {
			return w
		}
		return formatNumber(v)
	})
}

// Fold applies Unicode compatibility normalisation, strips combining marks
// from Latin letters ("pāñch" → "panch") and rewrites Devanagari and Bengali
// digits as ASCII. Vowel signs and viramas on Indic letters are kept, so
// native-script words survive intact. Fold does not change letter case.
func Fold(text string) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	latinBase := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			if latinBase {
				continue
			}
		} else {
			latinBase = unicode.Is(unicode.Latin, r)
		}
		b.WriteRune(nativeDigit(r))
	}
	return norm.NFKC.String(b.String())
}

// nativeDigit maps a Devanagari or Bengali digit to its ASCII digit.
func nativeDigit(r rune) rune {
	for _, zero := range nativeDigits {
		if r >= zero && r <= zero+9 {
			return '0' + (r - zero)
		}
	}
	return r
}

// formatNumber renders v in its shortest decimal form (5, 0.5, 2.5).
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// compileWordSet builds a case-insensitive whole-word alternation regex.
func compileWordSet(words []string) *regexp.Regexp {
	sorted := make([]string, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
