package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/pos-till/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кассы.
// Пустой allowedOrigins отключает CORS.
func (h *Handler) SetupRouter(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Encoding"},
			MaxAge:         300,
		}))
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/shift", func(r chi.Router) {
			r.Get("/", h.GetShift)
			r.Post("/start", h.StartShift)
			r.Post("/close/preview", h.PreviewClose)
			r.Post("/close", h.CloseShift)
			r.Delete("/marker", h.ClearMarker)

			r.Get("/history", h.GetShiftHistory)
			r.Delete("/history/{id}", h.DeleteShiftHistory)
		})

		r.Post("/sales", h.RecordSale)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RegisterPayment)
			r.Get("/", h.GetPayments)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Route("/balance", func(r chi.Router) {
			r.Get("/", h.GetBalance)
			r.Post("/", h.SaveBalance)
			r.Get("/history", h.GetBalanceHistory)
			r.Delete("/{date}", h.DeleteBalance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
