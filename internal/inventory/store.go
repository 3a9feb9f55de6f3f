package inventory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an item does not exist for the given owner.
var ErrNotFound = errors.New("inventory: item not found")

// Store persists inventory items. Every operation is scoped to one owner;
// an item is invisible to other owners. Implementations must be safe for
// concurrent use.
type Store interface {
	// Add validates and stores item. An empty ID is replaced with a new UUID
	// and a zero CreatedAt with the current time; both are written back.
	Add(ctx context.Context, item *Item) error

	// Get returns one item or ErrNotFound.
	Get(ctx context.Context, owner, id string) (Item, error)

	// List returns the owner's items matching opts, soonest expiry first.
	// Items without an expiry date come last.
	List(ctx context.Context, owner string, opts ListOptions) ([]Item, error)

	// Remove deletes one item or returns ErrNotFound.
	Remove(ctx context.Context, owner, id string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// ListOptions filters [Store.List].
type ListOptions struct {
	// Category keeps only items in this category (case-insensitive).
	Category string

	// ExpiringBefore keeps only items with an expiry date strictly before
	// this YYYY-MM-DD date.
	ExpiringBefore string
}

func (o ListOptions) match(it Item) bool {
	if o.Category != "" && !strings.EqualFold(it.Category, o.Category) {
		return false
	}
	if o.ExpiringBefore != "" && (it.ExpiryDate == "" || it.ExpiryDate >= o.ExpiringBefore) {
		return false
	}
	return true
}

// prepare fills in generated fields and validates item.
func prepare(item *Item, now time.Time) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now.UTC()
	}
	if item.Source == "" {
		item.Source = SourceManual
	}
	return item.Validate()
}

// sortItems orders by expiry date with undated items last, then by name.
func sortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		switch {
		case a.ExpiryDate == b.ExpiryDate:
		case a.ExpiryDate == "":
			return 1
		case b.ExpiryDate == "":
			return -1
		default:
			return cmp.Compare(a.ExpiryDate, b.ExpiryDate)
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
