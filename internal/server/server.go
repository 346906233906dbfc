package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopinfra/internal/cart"
	"shopinfra/internal/rate"
)

type Server struct {
	est   rate.Estimator
	carts *cart.Service
	log   *zap.Logger
}

func New(est rate.Estimator, carts *cart.Service, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{est: est, carts: carts, log: log}
	r := chi.NewRouter()
	// Observability: Request ID and request logging
	r.Use(requestIDMiddleware)
	r.Use(requestLogger(log))
	r.Get("/healthz", s.handleHealth)
	r.Post("/rates", s.handleEstimateRates)
	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Get("/", s.handleGetCart)
		r.Delete("/", s.handleClearCart)
		r.Post("/items", s.handleAddItem)
		r.Put("/items/{productID}", s.handleUpdateQuantity)
		r.Delete("/items/{productID}", s.handleRemoveItem)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Rates
type RateRequest struct {
	Origin      *rate.Address `json:"origin"`
	Destination *rate.Address `json:"destination"`
	Package     *rate.Package `json:"package"`
	Service     string        `json:"service"`
}

type RateResponse struct {
	Success bool         `json:"success"`
	Rates   []rate.Offer `json:"rates"`
}

func (s *Server) handleEstimateRates(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.Origin == nil || req.Destination == nil || req.Package == nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "origin, destination and package required")
		return
	}

	offers, err := s.est.Estimate(r.Context(), *req.Origin, *req.Destination, *req.Package)
	if err != nil {
		if errors.Is(err, rate.ErrInvalidInput) {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "origin, destination and package required")
			return
		}
		s.log.Error("rate estimate failed", zap.Error(err))
		writeErrorJSON(w, http.StatusInternalServerError, "estimate_failed", "failed to estimate rates")
		return
	}
	if req.Service != "" {
		// A service filter that matches nothing leaves the full list, so the
		// caller still gets at least one usable offer.
		if filtered := filterByService(offers, req.Service); len(filtered) > 0 {
			offers = filtered
		}
	}

	writeJSON(w, http.StatusOK, RateResponse{Success: true, Rates: offers})
}

func filterByService(offers []rate.Offer, service string) []rate.Offer {
	var out []rate.Offer
	for _, o := range offers {
		if strings.EqualFold(o.ServiceName, service) {
			out = append(out, o)
		}
	}
	return out
}

// Carts
type AddItemRequest struct {
	Product  *cart.Product `json:"product"`
	Quantity *int          `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type CartResponse struct {
	CartID string          `json:"cartId"`
	Items  []cart.LineItem `json:"items"`
	cart.Totals
	Warning string `json:"warning,omitempty"`
}

func cartResponse(c *cart.Cart, persistErr error) CartResponse {
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	res := CartResponse{CartID: c.ID, Items: items, Totals: c.Totals()}
	if persistErr != nil {
		res.Warning = "persist_failed"
	}
	return res
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDParam(w, r)
	if !ok {
		return
	}
	c := s.carts.Get(r.Context(), cartID)
	writeJSON(w, http.StatusOK, cartResponse(c, nil))
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDParam(w, r)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.Product == nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "product required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	c, err := s.carts.AddItem(r.Context(), cartID, *req.Product, quantity)
	if err != nil && errors.Is(err, cart.ErrInvalidItem) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "product id and quantity >= 1 required")
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(c, err))
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDParam(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.Quantity == nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "quantity required")
		return
	}

	c, err := s.carts.UpdateQuantity(r.Context(), cartID, productID, *req.Quantity)
	writeJSON(w, http.StatusOK, cartResponse(c, err))
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDParam(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	c, err := s.carts.RemoveItem(r.Context(), cartID, productID)
	writeJSON(w, http.StatusOK, cartResponse(c, err))
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDParam(w, r)
	if !ok {
		return
	}
	c, err := s.carts.Clear(r.Context(), cartID)
	writeJSON(w, http.StatusOK, cartResponse(c, err))
}

func cartIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if cartID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "cart id required")
		return "", false
	}
	return cartID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
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
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
