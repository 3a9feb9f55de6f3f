package api

import (
	"net/http"

	"github.com/freshtrack/freshtrack/internal/voiceparse"
)

type parseRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type dateResponse struct {
	Date string `json:"date"`
}

func (s *Server) handleParseItem(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}
	item := voiceparse.ParseItem(req.Text, s.clock.Now())
	s.metrics.RecordParseRequest(r.Context(), "item", item.Name != voiceparse.UnknownItemName)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleParseDate(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}
	date, ok := voiceparse.ParseDate(req.Text, s.clock.Now())
	s.metrics.RecordParseRequest(r.Context(), "date", ok)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "no date recognised")
		return
	}
	writeJSON(w, http.StatusOK, dateResponse{Date: date})
}

func (s *Server) handleParsePrice(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, ok := voiceparse.ParsePrice(req.Text)
	s.metrics.RecordParseRequest(r.Context(), "price", ok)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "no price recognised")
		return
	}
	writeJSON(w, http.StatusOK, price)
}
