package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopinfra/internal/blob"
	"shopinfra/internal/cart"
	"shopinfra/internal/geo"
	"shopinfra/internal/rate"
)

func newTestHandler() http.Handler {
	est := rate.NewDistance(geo.Static{})
	carts := cart.NewService(blob.NewMemoryStore(), nil, nil)
	return New(est, carts, nil)
}

func postJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body 'ok', got %q", body)
	}
}

func TestRequestIDHeaderPresent(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rid := rr.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestEstimateRates(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/rates", map[string]any{
		"origin":      map[string]any{"country": "US", "city": "New York"},
		"destination": map[string]any{"country": "FR", "city": "Paris"},
		"package":     map[string]any{"weight": 0},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res RateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success=true")
	}
	// Static geocoder has no entries, so the default distance applies:
	// Standard 15.0 then Express 22.5.
	if len(res.Rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(res.Rates))
	}
	if res.Rates[0].Rate != 15.0 || res.Rates[1].Rate != 22.5 {
		t.Fatalf("unexpected rates: %+v", res.Rates)
	}
}

func TestEstimateRates_ServiceFilter(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/rates", map[string]any{
		"origin":      map[string]any{"country": "US", "city": "New York"},
		"destination": map[string]any{"country": "FR", "city": "Paris"},
		"package":     map[string]any{"weight": 1},
		"service":     "express",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res RateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Rates) != 1 || res.Rates[0].ServiceName != "Express" {
		t.Fatalf("expected only Express, got %+v", res.Rates)
	}
}

func TestEstimateRates_MissingFields(t *testing.T) {
	h := newTestHandler()
	for _, body := range []map[string]any{
		{"destination": map[string]any{"country": "FR"}, "package": map[string]any{}},
		{"origin": map[string]any{"country": "US"}, "package": map[string]any{}},
		{"origin": map[string]any{"country": "US"}, "destination": map[string]any{"country": "FR"}},
	} {
		rr := postJSON(t, h, http.MethodPost, "/rates", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, rr.Code)
		}
		var e struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if e.Error.Code != "invalid_request" {
			t.Fatalf("unexpected error code: %s", e.Error.Code)
		}
	}
}

func TestEstimateRates_EmptyAddress(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/rates", map[string]any{
		"origin":      map[string]any{},
		"destination": map[string]any{"country": "FR"},
		"package":     map[string]any{"weight": 1},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartFlow(t *testing.T) {
	h := newTestHandler()

	// Add twice: quantities merge into one line.
	rr := postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product":  map[string]any{"id": "p1", "name": "Gold Ring", "price": 120.0},
		"quantity": 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	rr = postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product":  map[string]any{"id": "p1", "name": "Gold Ring", "price": 120.0},
		"quantity": 3,
	})
	var res CartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Quantity != 5 {
		t.Fatalf("expected one line with quantity 5, got %+v", res.Items)
	}
	if res.TotalItemCount != 5 || res.TotalAmount != 600.0 {
		t.Fatalf("unexpected totals: %+v", res.Totals)
	}

	// Absolute quantity update.
	rr = postJSON(t, h, http.MethodPut, "/carts/u1/items/p1", map[string]any{"quantity": 1})
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity 1, got %+v", res.Items)
	}

	// Quantity zero removes the line.
	rr = postJSON(t, h, http.MethodPut, "/carts/u1/items/p1", map[string]any{"quantity": 0})
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Items) != 0 || res.TotalItemCount != 0 {
		t.Fatalf("expected empty cart, got %+v", res)
	}

	// Cart persists across requests.
	req := httptest.NewRequest(http.MethodGet, "/carts/u1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAddItem_DefaultQuantityIsOne(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product": map[string]any{"id": "p1", "name": "Gold Ring", "price": 120.0},
	})
	var res CartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Quantity != 1 {
		t.Fatalf("expected single line quantity 1, got %+v", res.Items)
	}
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product":  map[string]any{"id": "p1", "price": 10.0},
		"quantity": 0,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAddItem_MissingProduct(t *testing.T) {
	h := newTestHandler()
	rr := postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{"quantity": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRemoveItem_AbsentIsNoOp(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodDelete, "/carts/u1/items/p-missing", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res CartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", res.Items)
	}
}

// readOnlyStore accepts reads and deletes but refuses writes.
type readOnlyStore struct {
	blob.Store
}

func (readOnlyStore) Put(context.Context, string, []byte) error {
	return errors.New("store down")
}

func TestAddItem_PersistFailureReturnsWarning(t *testing.T) {
	carts := cart.NewService(readOnlyStore{Store: blob.NewMemoryStore()}, nil, nil)
	h := New(rate.NewDistance(geo.Static{}), carts, nil)

	rr := postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product": map[string]any{"id": "p1", "price": 10.0}, "quantity": 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 despite persist failure, got %d", rr.Code)
	}
	var res CartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Warning != "persist_failed" {
		t.Fatalf("expected persist_failed warning, got %q", res.Warning)
	}
	if len(res.Items) != 1 || res.Items[0].Quantity != 2 {
		t.Fatalf("mutation should survive persist failure, got %+v", res.Items)
	}
}

func TestClearCart(t *testing.T) {
	h := newTestHandler()
	postJSON(t, h, http.MethodPost, "/carts/u1/items", map[string]any{
		"product": map[string]any{"id": "p1", "price": 10.0}, "quantity": 2,
	})

	req := httptest.NewRequest(http.MethodDelete, "/carts/u1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res CartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Items) != 0 || res.TotalAmount != 0 {
		t.Fatalf("expected cleared cart, got %+v", res)
	}
}
