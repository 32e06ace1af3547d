package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"freightquote/internal/cache"
	"freightquote/internal/freight"
	"freightquote/internal/quote"
)

type QuoteResponse struct {
	QuoteID string                `json:"quote_id"`
	Results []freight.QuoteResult `json:"results"`
	// Cheapest is the deliverable carrier with the lowest total after GST.
	Cheapest string `json:"cheapest,omitempty"`
	Cached   bool   `json:"cached"`
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var in freight.QuoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	s.respondQuotes(w, r, in)
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, err := rateQuery(q)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	carrier := firstOf(q, carrierKeys)
	if carrier == "" {
		s.respondQuotes(w, r, in)
		return
	}
	res, err := s.engine.Quote(carrier, in)
	switch {
	case errors.Is(err, quote.ErrUnknownCarrier):
		writeErrorJSON(w, http.StatusNotFound, "resource_not_found", err.Error())
		return
	case errors.Is(err, freight.ErrInvalidInput):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "quote failed")
		return
	}
	results := []freight.QuoteResult{res}
	writeJSON(w, http.StatusOK, QuoteResponse{QuoteID: uuid.NewString(), Results: results, Cheapest: cheapest(results)})
}

func (s *Server) respondQuotes(w http.ResponseWriter, r *http.Request, in freight.QuoteInput) {
	in, err := in.Validate()
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	results, cached, err := s.quoteAll(r.Context(), in)
	if err != nil {
		if errors.Is(err, freight.ErrInvalidInput) {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.log.WithError(err).Error("quote failed")
		writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "quote failed")
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		QuoteID:  uuid.NewString(),
		Results:  results,
		Cheapest: cheapest(results),
		Cached:   cached,
	})
}

// quoteAll consults the cache before fanning out. Cache failures are logged
// and otherwise ignored.
func (s *Server) quoteAll(ctx context.Context, in freight.QuoteInput) ([]freight.QuoteResult, bool, error) {
	if s.cache == nil {
		results, err := s.engine.GetAllPartnerQuotes(in)
		return results, false, err
	}
	var names []string
	for _, c := range s.engine.Carriers() {
		names = append(names, c.Name)
	}
	key, err := cache.Key(in, names)
	if err != nil {
		return nil, false, err
	}
	if results, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.WithError(err).Warn("quote cache read failed")
	} else if ok {
		return results, true, nil
	}
	results, err := s.engine.GetAllPartnerQuotes(in)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, key, results); err != nil {
		s.log.WithError(err).Warn("quote cache write failed")
	}
	return results, false, nil
}

func cheapest(results []freight.QuoteResult) string {
	best := -1
	for i, r := range results {
		if r.Deliverable && (best < 0 || r.TotalAfterGST < results[best].TotalAfterGST) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return results[best].Carrier
}
