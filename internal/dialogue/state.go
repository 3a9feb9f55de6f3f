// Package dialogue implements the multi-turn "add by voice" conversation.
//
// A dialogue starts with one free-form utterance ("add 2 liter milk"), then
// asks for each field the utterance did not supply, in a fixed order:
// quantity, category, expiry, price. Every question is spoken through a
// [Speaker] and answered through a [Listener]. When all answers are in, the
// dialogue waits in [Confirming] until the user confirms or cancels.
//
// The state is a closed sum type: each variant carries exactly the data that
// phase needs. Transitions are pure functions over [State] values; [Session]
// drives them from speech I/O and owns the single in-flight dialogue.
package dialogue

import "fmt"

// Field identifies a draft field the dialogue asks about.
type Field int

const (
	FieldQuantity Field = iota + 1
	FieldCategory
	FieldExpiry
	FieldPrice
)

// String returns the lower-case field name.
func (f Field) String() string {
	switch f {
	case FieldQuantity:
		return "quantity"
	case FieldCategory:
		return "category"
	case FieldExpiry:
		return "expiry"
	case FieldPrice:
		return "price"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// next returns the field asked after f, or 0 after the last one.
func (f Field) next() Field {
	if f >= FieldPrice {
		return 0
	}
	return f + 1
}

// Phase is the flat name of a dialogue state, used in logs, metrics and on
// the wire.
type Phase string

const (
	PhaseIdle             Phase = "IDLE"
	PhaseListeningInitial Phase = "LISTENING_INITIAL"
	PhaseAskQuantity      Phase = "ASK_QUANTITY"
	PhaseListenQuantity   Phase = "LISTENING_QUANTITY"
	PhaseAskCategory      Phase = "ASK_CATEGORY"
	PhaseListenCategory   Phase = "LISTENING_CATEGORY"
	PhaseAskExpiry        Phase = "ASK_EXPIRY"
	PhaseListenExpiry     Phase = "LISTENING_EXPIRY"
	PhaseAskPrice         Phase = "ASK_PRICE"
	PhaseListenPrice      Phase = "LISTENING_PRICE"
	PhaseConfirm          Phase = "CONFIRM"
)

var askPhases = map[Field]Phase{
	FieldQuantity: PhaseAskQuantity,
	FieldCategory: PhaseAskCategory,
	FieldExpiry:   PhaseAskExpiry,
	FieldPrice:    PhaseAskPrice,
}

var listenPhases = map[Field]Phase{
	FieldQuantity: PhaseListenQuantity,
	FieldCategory: PhaseListenCategory,
	FieldExpiry:   PhaseListenExpiry,
	FieldPrice:    PhaseListenPrice,
}

// State is one of [Idle], [ListeningInitial], [Asking], [Listening] or
// [Confirming]. State values are immutable; transitions return new values.
type State interface {
	Phase() Phase
	state()
}

// Idle means no dialogue is in progress.
type Idle struct{}

// ListeningInitial waits for the opening utterance.
type ListeningInitial struct {
	// Attempt counts no-speech retries of this step, starting at 0.
	Attempt int
}

// Asking speaks the question for Field.
type Asking struct {
	Field   Field
	Draft   Draft
	Attempt int
}

// Listening waits for the answer to the question for Field.
type Listening struct {
	Field   Field
	Draft   Draft
	Attempt int
}

// Confirming holds the completed record until the user confirms or cancels.
type Confirming struct {
	Item Item
}

func (Idle) Phase() Phase             { return PhaseIdle }
func (ListeningInitial) Phase() Phase { return PhaseListeningInitial }
func (a Asking) Phase() Phase         { return askPhases[a.Field] }
func (l Listening) Phase() Phase      { return listenPhases[l.Field] }
func (Confirming) Phase() Phase       { return PhaseConfirm }

func (Idle) state()             {}
func (ListeningInitial) state() {}
func (Asking) state()           {}
func (Listening) state()        {}
func (Confirming) state()       {}

// Draft is the record being collected. Empty strings and nil pointers mean
// "not known yet".
type Draft struct {
	Name       string   `json:"name,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Category   string   `json:"category,omitempty"`
	ExpiryDate string   `json:"expiry_date,omitempty"`
	Price      *float64 `json:"price,omitempty"`
}

// Item is the completed record handed to the [Sink]. Every field holds either
// a collected value or a default. An empty ExpiryDate means the expiry is
// explicitly unknown.
type Item struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Category   string  `json:"category"`
	ExpiryDate string  `json:"expiry_date"`
	Price      float64 `json:"price"`
}

// Defaults applied to fields still missing when the dialogue reaches
// [Confirming].
const (
	DefaultName     = "Unknown Item"
	DefaultQuantity = 1.0
	DefaultUnit     = "pieces"
	DefaultCategory = "Other"
)

// Edit holds user corrections applied at confirmation. Nil fields are left
// unchanged.
type Edit struct {
	Name       *string  `json:"name,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
	Unit       *string  `json:"unit,omitempty"`
	Category   *string  `json:"category,omitempty"`
	ExpiryDate *string  `json:"expiry_date,omitempty"`
	Price      *float64 `json:"price,omitempty"`
}

// Apply returns item with the non-nil fields of e substituted.
func (e Edit) Apply(item Item) Item {
	if e.Name != nil {
		item.Name = *e.Name
	}
	if e.Quantity != nil {
		item.Quantity = *e.Quantity
	}
	if e.Unit != nil {
		item.Unit = *e.Unit
	}
	if e.Category != nil {
		item.Category = *e.Category
	}
	if e.ExpiryDate != nil {
		item.ExpiryDate = *e.ExpiryDate
	}
	if e.Price != nil {
		item.Price = *e.Price
	}
	return item
}

// DraftOf returns the draft carried by st, if any.
func DraftOf(st State) (Draft, bool) {
	switch s := st.(type) {
	case Asking:
		return s.Draft, true
	case Listening:
		return s.Draft, true
	default:
		return Draft{}, false
	}
}
