// Package inventory stores confirmed pantry items per owner.
//
// Three [Store] backends are provided: [MemStore] for tests and single-node
// use, [PostgresStore] on pgx and [RedisStore] on go-redis, where each owner's
// items live in one hash. [Instrument] wraps any of them with tracing and
// metrics. [Matcher] finds items already on record under a similar name so
// that a user adding "dudh" twice can be warned.
package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freshtrack/freshtrack/internal/dialogue"
)

// Item sources.
const (
	SourceVoice  = "voice"
	SourceManual = "manual"
)

const isoDate = "2006-01-02"

// Item is one stored inventory record.
type Item struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	Category   string    `json:"category"`
	ExpiryDate string    `json:"expiry_date,omitempty"`
	Price      float64   `json:"price"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromDialogue converts a confirmed dialogue item into a record for owner.
func FromDialogue(owner string, it dialogue.Item) Item {
	return Item{
		OwnerID:    owner,
		Name:       it.Name,
		Quantity:   it.Quantity,
		Unit:       it.Unit,
		Category:   it.Category,
		ExpiryDate: it.ExpiryDate,
		Price:      it.Price,
		Source:     SourceVoice,
	}
}

// Validate reports every problem with the item.
func (it *Item) Validate() error {
	var errs []error
	if strings.TrimSpace(it.OwnerID) == "" {
		errs = append(errs, errors.New("owner_id must not be empty"))
	}
	if strings.TrimSpace(it.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if it.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be positive, got %g", it.Quantity))
	}
	if it.Price < 0 {
		errs = append(errs, fmt.Errorf("price must not be negative, got %g", it.Price))
	}
	if it.ExpiryDate != "" {
		if _, err := time.Parse(isoDate, it.ExpiryDate); err != nil {
			errs = append(errs, fmt.Errorf("expiry_date %q is not YYYY-MM-DD", it.ExpiryDate))
		}
	}
	switch it.Source {
	case "", SourceVoice, SourceManual:
	default:
		errs = append(errs, fmt.Errorf("source %q is not %q or %q", it.Source, SourceVoice, SourceManual))
	}
	if len(errs) > 0 {
		return fmt.Errorf("inventory: invalid item: %w", errors.Join(errs...))
	}
	return nil
}
