package voiceparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// UnknownItemName is the name given to an item when nothing is left of the
// utterance after the recognised fields have been removed.
const UnknownItemName = "Unknown Item"

// ParsedItem is the result of [ParseItem]. Fields the utterance did not
// mention keep their zero value; Quantity is a pointer because 0 is never a
// meaningful quantity but "not said" has to be distinguishable from it.
type ParsedItem struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity"`
	Unit       string   `json:"unit,omitempty"`
	Category   string   `json:"category,omitempty"`
	ExpiryDate string   `json:"expiry_date,omitempty"`
}

// unitAliases maps spoken unit words to the closed unit vocabulary.
// "ta", "ti" and "khana" are Bengali counter suffixes ("paanch ta alu").
var unitAliases = map[string]string{
	"kg": "kg", "kgs": "kg", "kilo": "kg", "kilos": "kg", "kilogram": "kg", "kilograms": "kg",
	"g": "g", "gm": "g", "gms": "g", "gram": "g", "grams": "g",
	"l": "l", "ltr": "l", "litre": "l", "litres": "l", "liter": "l", "liters": "l",
	"ml": "ml",
	"dozen": "dozen", "darjan": "dozen",
	"piece": "pieces", "pieces": "pieces", "pcs": "pieces", "pc": "pieces",
	"ta": "pieces", "ti": "pieces", "khana": "pieces",
	"pack": "pack", "packs": "pack", "packet": "pack", "packets": "pack",
	"bag": "bag", "bags": "bag", "bosta": "bag", "tholi": "bag",

	// Devanagari and Bengali script spellings.
	"किलो": "kg", "ग्राम": "g", "लीटर": "l", "दर्जन": "dozen",
	"কেজি": "kg", "গ্রাম": "g", "লিটার": "l", "ডজন": "dozen", "টা": "pieces",
}

// categoryCanon maps native category words to canonical category names.
// Keywords missing from the map are capitalised as spoken.
var categoryCanon = map[string]string{
	"sobji": "Vegetables",
	"phal":  "Fruits",
	"dudh":  "Dairy",
}

var (
	numberUnitRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([\p{L}\p{M}]+)`)
	bareNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	expiryDaysRe = regexp.MustCompile(`(?:^|[^\d.])(\d+(?:\.\d+)?)\s*(?:days?|din)\b(?:\s+(?:baad|bad|mein|pore)\b)?`)
	tomorrowRe   = regexp.MustCompile(`\b(?:tomorrow|kal)\b`)
	nextWeekRe   = regexp.MustCompile(`\b(?:next\s+week|agle\s+hafte|porer\s+soptaho)\b`)
	categoryRe   = regexp.MustCompile(`\b(fruit|vegetable|dairy|meat|grain|snack|spice|household|sobji|phal|dudh)s?\b`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s]+`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// stopWords are removed from the residual text before it becomes the name.
var stopWords = compileWordSet([]string{
	"add", "koro", "karo", "chahiye", "chai", "expiry", "date", "hai", "ko", "ka",
	// expiry vocabulary
	"day", "days", "din", "tomorrow", "kal", "next", "week", "agle", "hafte", "porer", "soptaho",
	// category vocabulary
	"fruit", "fruits", "vegetable", "vegetables", "dairy", "meat", "grain", "grains",
	"snack", "snacks", "spice", "spices", "household", "sobji", "phal", "dudh",
})

// itemState is threaded through the extraction stages.
type itemState struct {
	text string
	item ParsedItem
	now  time.Time

	// quantityMatched and expiryDaysMatched record which stages consumed
	// digits, so that the name stage knows to drop leftover numerals.
	quantityMatched   bool
	expiryDaysMatched bool
}

type itemStage func(itemState) itemState

// itemStages run in a fixed order. Quantity+unit must precede the expiry
// stage: a recognised unit word is the only thing that tells "5 kg" apart
// from "5 days".
var itemStages = []itemStage{
	quantityStage,
	expiryStage,
	categoryStage,
	nameStage,
}

// ParseItem extracts the fields of an "add item" utterance such as
// "add 2 kg tomato" or "paanch ta alu 3 din". now anchors relative expiry
// expressions. Unrecognised words are never an error: they end up in Name.
func ParseItem(transcript string, now time.Time) ParsedItem {
	st := itemState{
		text: Normalize(strings.ToLower(strings.TrimSpace(transcript))),
		now:  now,
	}
	for _, stage := range itemStages {
		st = stage(st)
	}
	return st.item
}

// ParseQuantity extracts a quantity from an answer to "how much?". A
// recognised unit is canonicalised. Any other number yields a quantity with
// no unit, so "4 bottles" and "do hai" both give a bare count. ok is false
// when the answer contains no number.
func ParseQuantity(answer string) (quantity float64, unit string, ok bool) {
	text := Normalize(strings.ToLower(strings.TrimSpace(answer)))
	if q, u, _, found := matchQuantityUnit(text); found {
		return q, u, true
	}
	if m := bareNumberRe.FindString(text); m != "" {
		if q, err := strconv.ParseFloat(m, 64); err == nil {
			return q, "", true
		}
	}
	return 0, "", false
}

// matchQuantityUnit finds the first "<number> <unit>" pair whose unit word is
// in the unit vocabulary. span is the byte range of the match in text.
func matchQuantityUnit(text string) (quantity float64, unit string, span [2]int, ok bool) {
	for _, m := range numberUnitRe.FindAllStringSubmatchIndex(text, -1) {
		word := text[m[4]:m[5]]
		canon, known := unitAliases[word]
		if !known {
			continue
		}
		q, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		return q, canon, [2]int{m[0], m[1]}, true
	}
	return 0, "", [2]int{}, false
}

func quantityStage(st itemState) itemState {
	if q, unit, span, ok := matchQuantityUnit(st.text); ok {
		st.item.Quantity = &q
		st.item.Unit = unit
		st.text = cut(st.text, span[0], span[1])
		st.quantityMatched = true
		return st
	}
	// A bare number is only a guess and stays in the text: the expiry stage
	// may still claim it as a day count.
	if m := bareNumberRe.FindString(st.text); m != "" {
		if q, err := strconv.ParseFloat(m, 64); err == nil {
			st.item.Quantity = &q
			st.quantityMatched = true
		}
	}
	return st
}

// expiryStage claims a whole-day count ("3 din", "10 din baad"). A
// fractional count such as "dedh din" is not a day offset and is skipped.
func expiryStage(st itemState) itemState {
	for _, m := range expiryDaysRe.FindAllStringSubmatchIndex(st.text, -1) {
		n, err := strconv.Atoi(st.text[m[2]:m[3]])
		if err != nil {
			continue
		}
		st.item.ExpiryDate = addDays(st.now, n)
		st.text = cut(st.text, m[2], m[1])
		st.expiryDaysMatched = true
		return st
	}
	if loc := tomorrowRe.FindStringIndex(st.text); loc != nil {
		st.item.ExpiryDate = addDays(st.now, 1)
		st.text = cut(st.text, loc[0], loc[1])
		return st
	}
	if loc := nextWeekRe.FindStringIndex(st.text); loc != nil {
		st.item.ExpiryDate = addDays(st.now, 7)
		st.text = cut(st.text, loc[0], loc[1])
	}
	return st
}

func categoryStage(st itemState) itemState {
	m := categoryRe.FindStringSubmatchIndex(st.text)
	if m == nil {
		return st
	}
	keyword := st.text[m[2]:m[3]]
	if canon, ok := categoryCanon[keyword]; ok {
		st.item.Category = canon
	} else {
		st.item.Category = Capitalize(st.text[m[0]:m[1]])
	}
	st.text = cut(st.text, m[0], m[1])
	return st
}

func nameStage(st itemState) itemState {
	name := stopWords.ReplaceAllString(st.text, " ")
	if st.quantityMatched || st.expiryDaysMatched {
		name = bareNumberRe.ReplaceAllString(name, " ")
	}
	name = punctRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(spaceRe.ReplaceAllString(name, " "))
	if name == "" {
		name = UnknownItemName
	}
	st.item.Name = name
	return st
}

// Capitalize upper-cases the first letter of s after trimming surrounding
// whitespace. The rest of s is kept verbatim.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// cut removes text[start:end], leaving a space so that neighbouring words do
// not merge.
func cut(text string, start, end int) string {
	return text[:start] + " " + text[end:]
}
