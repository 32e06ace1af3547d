package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"freightquote/internal/cache"
	"freightquote/internal/pincode"
	"freightquote/internal/quote"
)

type Server struct {
	engine   *quote.Engine
	pincodes pincode.Lookup
	cache    cache.QuoteCache
	ready    func() bool
	log      logrus.FieldLogger
}

// Options wires the handler's collaborators. Cache is optional. Ready, when
// set, gates /healthz until the pincode master is loaded.
type Options struct {
	Engine   *quote.Engine
	Pincodes pincode.Lookup
	Cache    cache.QuoteCache
	Ready    func() bool
	Logger   *logrus.Logger
}

func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		engine:   opts.Engine,
		pincodes: opts.Pincodes,
		cache:    opts.Cache,
		ready:    opts.Ready,
		log:      logger,
	}
	r := chi.NewRouter()
	// Observability: Request ID and access log through logrus
	r.Use(requestIDMiddleware)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/quotes", s.handleCreateQuote)
	r.Get("/rates", s.handleGetRates)
	r.Get("/carriers", s.handleListCarriers)
	r.Get("/pincodes/{code}", s.handleGetPincode)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleListCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"carriers": s.engine.Carriers()})
}

func (s *Server) handleGetPincode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if !pincode.Valid(code) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_pincode", "pincode must be 6 digits")
		return
	}
	rec, ok := s.pincodes.Lookup(code)
	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "pincode not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// encodeFailure is sent when a response body cannot be marshalled.
var encodeFailure = []byte(`{"error":{"code":"internal_error","message":"failed to encode response"}}` + "\n")

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(encodeFailure)
		return
	}
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
			r.Header.Set("X-Request-ID", rid)
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}
