package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/inventory"
	"github.com/freshtrack/freshtrack/internal/observe"
)

type createItemRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
	Unit       string  `json:"unit" validate:"omitempty,oneof=kg g l ml dozen pieces pack bag"`
	Category   string  `json:"category" validate:"max=100"`
	ExpiryDate string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Price      float64 `json:"price" validate:"gte=0"`
}

type createItemResponse struct {
	Item    inventory.Item    `json:"item"`
	Similar []inventory.Match `json:"similar,omitempty"`
}

type listItemsResponse struct {
	Items []inventory.Item `json:"items"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	q := r.URL.Query()
	opts := inventory.ListOptions{
		Category:       q.Get("category"),
		ExpiringBefore: q.Get("expiring_before"),
	}
	if opts.ExpiringBefore != "" {
		if _, err := time.Parse(time.DateOnly, opts.ExpiringBefore); err != nil {
			writeError(w, http.StatusBadRequest, "expiring_before must be YYYY-MM-DD")
			return
		}
	}

	items, err := s.store.List(r.Context(), owner, opts)
	if err != nil {
		s.storeFailed(w, r, "list", err)
		return
	}
	if items == nil {
		items = []inventory.Item{}
	}
	writeJSON(w, http.StatusOK, listItemsResponse{Items: items})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	var req createItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	existing, err := s.store.List(r.Context(), owner, inventory.ListOptions{})
	if err != nil {
		s.storeFailed(w, r, "list", err)
		return
	}

	item := inventory.Item{
		OwnerID:    owner,
		Name:       req.Name,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		Category:   req.Category,
		ExpiryDate: req.ExpiryDate,
		Price:      req.Price,
		Source:     inventory.SourceManual,
	}
	if item.Unit == "" {
		item.Unit = dialogue.DefaultUnit
	}
	if item.Category == "" {
		item.Category = dialogue.DefaultCategory
	}
	if err := item.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Add(r.Context(), &item); err != nil {
		s.storeFailed(w, r, "add", err)
		return
	}

	writeJSON(w, http.StatusCreated, createItemResponse{
		Item:    item,
		Similar: s.matcher.FindSimilar(existing, item.Name),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.Get(r.Context(), r.PathValue("owner"), r.PathValue("id"))
	if err != nil {
		s.storeFailed(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), r.PathValue("owner"), r.PathValue("id")); err != nil {
		s.storeFailed(w, r, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storeFailed maps a store error to a response.
func (s *Server) storeFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, inventory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	observe.Logger(r.Context()).Error("api: inventory "+op+" failed", "owner", r.PathValue("owner"), "err", err)
	writeError(w, http.StatusInternalServerError, "inventory unavailable")
}
