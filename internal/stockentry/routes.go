package stockentry

import "github.com/go-chi/chi/v5"

// Routes mounts the stock entry endpoints.
func Routes(r chi.Router, h *Handler) {
	r.Route("/stock-entries", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Post("/fetch-items", h.FetchItems)
		r.Post("/item-details", h.ItemDetails)
		r.Post("/uom-details", h.UOMDetails)
		r.Post("/warehouse-details", h.WarehouseDetails)
		r.Get("/production-orders/{order}", h.ProductionOrderDetails)
		r.Get("/references/{docType}/{name}", h.ReferenceDetails)
		r.Get("/{name}", h.Show)
		r.Put("/{name}", h.Update)
		r.Post("/{name}/submit", h.Submit)
		r.Post("/{name}/cancel", h.Cancel)
		r.Get("/{name}/return-journal", h.ReturnJournal)
	})
}
