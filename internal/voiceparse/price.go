package voiceparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Price is the result of [ParsePrice].
type Price struct {
	Amount float64 `json:"amount"`

	// PerUnit reports that the amount is a rate ("50 per kg", "10 each")
	// rather than a total. Callers multiply by the quantity themselves.
	PerUnit bool `json:"per_unit"`
}

const currencyMarker = `(?:₹|rs\.?|rupees?|rupaye|rupiya|taka|tk|inr)`

var (
	amountRe = regexp.MustCompile(`(?:` + currencyMarker + `\s*)?(\d+(?:\.\d+)?)(?:\s*` + currencyMarker + `)?`)

	// thousandsRe joins digit groups written as "1,200".
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})\b`)

	perUnitRe = regexp.MustCompile(`(?:\b(?:per|each|prati)|/)\s*(?:piece|kg|kilo|unit|liter|litre|item|packet|bag|box|dozen|g|ml|l)s?\b`)
	eachRe    = regexp.MustCompile(`\b(?:each|prati)\b`)
)

// ParsePrice extracts a currency amount from a spoken price such as
// "50 rupees per kg", "rs. 120" or "dosh taka prati kg". The first number in the
// transcript is the amount. ok is false when the transcript holds no number.
func ParsePrice(transcript string) (Price, bool) {
	text := Normalize(strings.ToLower(strings.TrimSpace(transcript)))
	text = thousandsRe.ReplaceAllString(text, "$1$2")

	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return Price{}, false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Price{}, false
	}
	return Price{
		Amount:  amount,
		PerUnit: perUnitRe.MatchString(text) || eachRe.MatchString(text),
	}, true
}
