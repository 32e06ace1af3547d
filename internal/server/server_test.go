package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/quote"
	"freightquote/internal/rate"
	"freightquote/internal/ratecard"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]freight.QuoteResult
	hits int
}

func (c *memCache) Get(_ context.Context, key string) ([]freight.QuoteResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	if ok {
		c.hits++
	}
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, results []freight.QuoteResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]freight.QuoteResult{}
	}
	c.data[key] = results
	return nil
}

func newHandler(t *testing.T, qc *memCache) http.Handler {
	t.Helper()
	records, err := pincode.CSVSource{Path: "../pincode/testdata/pincodes.csv"}.Load(context.Background())
	if err != nil {
		t.Fatalf("load pincodes: %v", err)
	}
	m, err := pincode.NewMaster(records)
	if err != nil {
		t.Fatalf("build master: %v", err)
	}
	cards, err := ratecard.Defaults()
	if err != nil {
		t.Fatalf("default cards: %v", err)
	}
	strategies, err := rate.NewAll(cards)
	if err != nil {
		t.Fatalf("strategies: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine, err := quote.NewEngine(m, strategies, quote.WithLogger(logger))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	opts := Options{Engine: engine, Pincodes: m, Logger: logger}
	if qc != nil {
		opts.Cache = qc
	}
	return New(opts)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeQuotes(t *testing.T, rr *httptest.ResponseRecorder) QuoteResponse {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res QuoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	return res
}

func TestHealthz(t *testing.T) {
	h := newHandler(t, nil)
	rr := do(h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body 'ok', got %q", body)
	}
}

func TestHealthz_NotReady(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	loaded := false
	h := New(Options{Ready: func() bool { return loaded }, Logger: logger})
	if rr := do(h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", rr.Code)
	}
	loaded = true
	if rr := do(h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after load, got %d", rr.Code)
	}
}

func TestRequestIDHeaderPresent(t *testing.T) {
	h := newHandler(t, nil)
	rr := do(h, http.MethodGet, "/healthz", "")
	if rid := rr.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rid := rr.Header().Get("X-Request-ID"); rid != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", rid)
	}
}

func TestCreateQuote(t *testing.T) {
	h := newHandler(t, nil)
	body := `{"origin_pincode":"560001","destination_pincode":"631502",
		"items":[{"weight_kg":73,"length_cm":1,"breadth_cm":1,"height_cm":1}]}`
	res := decodeQuotes(t, do(h, http.MethodPost, "/quotes", body))

	if _, err := uuid.Parse(res.QuoteID); err != nil {
		t.Fatalf("quote_id is not a uuid: %q", res.QuoteID)
	}
	if len(res.Results) != 4 {
		t.Fatalf("expected 4 carrier results, got %d", len(res.Results))
	}
	sx := res.Results[0]
	if sx.Carrier != "Safexpress" || !sx.Deliverable {
		t.Fatalf("unexpected first result: %+v", sx)
	}
	if sx.TotalBeforeGST != 1391.32 || sx.GSTAmount != 142.44 || sx.TotalAfterGST != 1533.76 {
		t.Fatalf("unexpected safexpress totals: %+v", sx)
	}
	if res.Cheapest == "" {
		t.Fatalf("expected a cheapest carrier")
	}
	if res.Cached {
		t.Fatalf("no cache configured, cached must be false")
	}
}

func TestCreateQuote_UnknownPincodeIsAResult(t *testing.T) {
	h := newHandler(t, nil)
	body := `{"origin_pincode":"560001","destination_pincode":"999999",
		"items":[{"weight_kg":5,"length_cm":10,"breadth_cm":10,"height_cm":10}]}`
	res := decodeQuotes(t, do(h, http.MethodPost, "/quotes", body))
	for _, r := range res.Results {
		if r.Deliverable || r.ReasonCode != freight.ReasonPincodeNotFound {
			t.Fatalf("expected pincode_not_found, got %+v", r)
		}
	}
	if res.Cheapest != "" {
		t.Fatalf("expected no cheapest carrier, got %q", res.Cheapest)
	}
}

func TestCreateQuote_UsesCache(t *testing.T) {
	qc := &memCache{}
	h := newHandler(t, qc)
	body := `{"origin_pincode":"560001","destination_pincode":"600001","gst_mode":"12pct",
		"items":[{"weight_kg":12,"length_cm":40,"breadth_cm":30,"height_cm":30}]}`

	first := decodeQuotes(t, do(h, http.MethodPost, "/quotes", body))
	second := decodeQuotes(t, do(h, http.MethodPost, "/quotes", body))
	if first.Cached || !second.Cached {
		t.Fatalf("expected miss then hit, got %v then %v", first.Cached, second.Cached)
	}
	if qc.hits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", qc.hits)
	}
	if first.QuoteID == second.QuoteID {
		t.Fatalf("each response gets its own quote_id")
	}
	if second.Results[0].TotalAfterGST != first.Results[0].TotalAfterGST {
		t.Fatalf("cached results differ")
	}
}

func TestGetRates(t *testing.T) {
	h := newHandler(t, nil)
	res := decodeQuotes(t, do(h, http.MethodGet, "/rates?from=560001&to=600001&weight_kg=73", ""))
	if len(res.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res.Results))
	}
	if got := res.Results[0].BaseFreight; got != 791.32 {
		t.Fatalf("unexpected safexpress base freight: %v", got)
	}
}

func TestGetRates_SingleCarrierService(t *testing.T) {
	h := newHandler(t, nil)
	res := decodeQuotes(t, do(h, http.MethodGet, "/rates?origin=560001&destination=600001&weight=73&carrier=delhivery&service=mps", ""))
	if len(res.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.Results))
	}
	r := res.Results[0]
	if r.Carrier != "Delhivery" || r.Service != freight.ServiceMPS || r.BaseFreight != 611.01 {
		t.Fatalf("unexpected mps result: %+v", r)
	}
}

func TestListCarriers(t *testing.T) {
	h := newHandler(t, nil)
	rr := do(h, http.MethodGet, "/carriers", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res struct {
		Carriers []quote.Carrier `json:"carriers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(res.Carriers) != 4 || res.Carriers[3].Name != "BlueDart" {
		t.Fatalf("unexpected carriers: %+v", res.Carriers)
	}
}

func TestGetPincode(t *testing.T) {
	h := newHandler(t, nil)
	rr := do(h, http.MethodGet, "/pincodes/635109", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rec struct {
		City     string `json:"city"`
		Carriers map[string]struct {
			Zone string `json:"zone"`
			ODA  string `json:"oda"`
		} `json:"carriers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if rec.City != "Hosur" || rec.Carriers["delhivery"].ODA != "yes" || rec.Carriers["safexpress"].ODA != "no" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
