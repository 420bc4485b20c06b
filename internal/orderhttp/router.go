package orderhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.Health)

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/customer-phone", h.FindByCustomerPhone)
		r.Get("/delivery-address", h.FindByDeliveryAddress)
		r.Get("/product-id", h.FindByProductID)
		r.Get("/recent", h.FindRecent)
		r.Post("/", h.CreateOrder)

		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}", h.UpdateOrder)
		r.Put("/{id}/information", h.UpdateOrderInfo)
		r.Put("/{id}/add-product", h.AddProduct)
		r.Put("/{id}/delete-product", h.RemoveProduct)
		r.Put("/{id}/change-amount", h.ChangeAmount)
		r.Delete("/{id}", h.DeleteOrder)
	})

	return r
}
