package dialogue

import (
	"strings"
	"time"

	"github.com/freshtrack/freshtrack/internal/voiceparse"
)

// Notices shown when an answer cannot be parsed. The dialogue continues with
// the field left at its default.
const (
	NoticeQuantity = "Couldn't catch the quantity, using 1."
	NoticeCategory = "Couldn't catch the category."
	NoticeExpiry   = "Couldn't understand the expiry date, leaving it empty."
	NoticePrice    = "Couldn't understand the price, leaving it at 0."
)

// begin starts a dialogue from Idle.
func begin(st State) (State, error) {
	if _, ok := st.(Idle); !ok {
		return st, ErrSessionActive
	}
	return ListeningInitial{}, nil
}

// heardInitial turns the opening utterance into a draft and asks for the
// first missing field. Only quantity is ever skipped unless skipKnown is set,
// in which case category and expiry supplied by the utterance are kept too.
func heardInitial(text string, now time.Time, skipKnown bool) State {
	p := voiceparse.ParseItem(text, now)
	d := Draft{
		Name:       p.Name,
		Quantity:   p.Quantity,
		Unit:       p.Unit,
		Category:   p.Category,
		ExpiryDate: p.ExpiryDate,
	}
	return askFrom(FieldQuantity, d, skipKnown)
}

// askFrom returns the Asking state for the first field at or after f that
// still needs an answer, or Confirming when none does.
func askFrom(f Field, d Draft, skipKnown bool) State {
	for ; f != 0; f = f.next() {
		if !known(f, d, skipKnown) {
			return Asking{Field: f, Draft: d}
		}
	}
	return Confirming{Item: finalize(d)}
}

func known(f Field, d Draft, skipKnown bool) bool {
	switch f {
	case FieldQuantity:
		return d.Quantity != nil
	case FieldCategory:
		return skipKnown && d.Category != ""
	case FieldExpiry:
		return skipKnown && d.ExpiryDate != ""
	default:
		return false
	}
}

// prompted moves from a spoken question to listening for its answer.
func prompted(a Asking) Listening {
	return Listening{Field: a.Field, Draft: a.Draft, Attempt: a.Attempt}
}

// heard applies an answer to the draft and moves to the next question.
// notice is non-empty when the answer could not be parsed.
func heard(l Listening, text string, now time.Time, skipKnown bool) (next State, notice string) {
	d := l.Draft
	switch l.Field {
	case FieldQuantity:
		if q, unit, ok := voiceparse.ParseQuantity(text); ok {
			d.Quantity = &q
			if unit != "" {
				d.Unit = unit
			}
		} else {
			notice = NoticeQuantity
		}
	case FieldCategory:
		if c := voiceparse.Capitalize(strings.TrimSpace(text)); c != "" {
			d.Category = c
		} else {
			notice = NoticeCategory
		}
	case FieldExpiry:
		if date, ok := voiceparse.ParseDate(text, now); ok {
			d.ExpiryDate = date
		} else {
			d.ExpiryDate = ""
			notice = NoticeExpiry
		}
	case FieldPrice:
		if p, ok := voiceparse.ParsePrice(text); ok {
			amount := p.Amount
			if p.PerUnit {
				amount *= quantityOr1(d)
			}
			d.Price = &amount
		} else {
			notice = NoticePrice
		}
	}
	return askFrom(l.Field.next(), d, skipKnown), notice
}

// noSpeech handles a listening step that ended without a final transcript.
// The step is retried until maxRetries is exceeded; then the dialogue is
// abandoned and exhausted is true.
func noSpeech(st State, maxRetries int) (next State, exhausted bool) {
	switch s := st.(type) {
	case ListeningInitial:
		if s.Attempt < maxRetries {
			return ListeningInitial{Attempt: s.Attempt + 1}, false
		}
	case Listening:
		if s.Attempt < maxRetries {
			return Asking{Field: s.Field, Draft: s.Draft, Attempt: s.Attempt + 1}, false
		}
	default:
		return st, false
	}
	return Idle{}, true
}

// finalize fills every missing field with its default.
func finalize(d Draft) Item {
	item := Item{
		Name:       d.Name,
		Quantity:   quantityOr1(d),
		Unit:       d.Unit,
		Category:   d.Category,
		ExpiryDate: d.ExpiryDate,
	}
	if item.Name == "" {
		item.Name = DefaultName
	}
	if item.Unit == "" {
		item.Unit = DefaultUnit
	}
	if item.Category == "" {
		item.Category = DefaultCategory
	}
	if d.Price != nil {
		item.Price = *d.Price
	}
	return item
}

func quantityOr1(d Draft) float64 {
	if d.Quantity == nil {
		return DefaultQuantity
	}
	return *d.Quantity
}
