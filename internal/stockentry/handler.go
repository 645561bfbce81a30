package stockentry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes the stock entry lifecycle over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "stock entry not found")
	case errors.Is(err, manufacturing.ErrOrderNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "production order not found")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this operation was already processed")
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusConflict, "Busy", "a concurrent posting holds the lock, retry shortly")
	default:
		httpx.RespondError(w, err)
	}
}

// Create stores a new draft entry.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStockEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	e := req.toDomain()
	e.CreatedBy = actorID(r)
	if err := h.service.Create(r.Context(), &e); err != nil {
		h.logger.Error("create stock entry failed", "error", err)
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(e, nil))
}

// Show returns one entry by name.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e, nil))
}

// Update replaces a draft entry.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateStockEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	req.apply(&e)
	if err := h.service.Update(r.Context(), &e); err != nil {
		h.logger.Error("update stock entry failed", "entry", e.Name, "error", err)
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e, nil))
}

// Submit posts a draft entry to the stock ledger.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, err := h.service.Submit(r.Context(), name, actorID(r), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.Error("submit stock entry failed", "entry", name, "error", err)
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e, nil))
}

// Cancel reverses a submitted entry.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, err := h.service.Cancel(r.Context(), name, actorID(r), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.Error("cancel stock entry failed", "entry", name, "error", err)
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e, nil))
}

// FetchItems expands a production order into pending raw material rows.
func (h *Handler) FetchItems(w http.ResponseWriter, r *http.Request) {
	var req FetchItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	e := StockEntry{
		Purpose:         req.Purpose,
		ProductionOrder: req.ProductionOrder,
		FGCompletedQty:  req.FGCompletedQty,
	}
	notices, err := h.service.FetchItems(r.Context(), &e)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(e, notices))
}

// ReturnJournal derives the credit/debit note skeleton for a submitted
// return entry.
func (h *Handler) ReturnJournal(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.DeriveReturnJournal(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, draft)
}

// ItemDetails resolves an item master row for form prefill.
func (h *Handler) ItemDetails(w http.ResponseWriter, r *http.Request) {
	var req ItemDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.ItemLookup(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// UOMDetails resolves a unit conversion for a line.
func (h *Handler) UOMDetails(w http.ResponseWriter, r *http.Request) {
	var req UOMDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.UOMDetails(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// WarehouseDetails reports stock level and carrying rate of a bin.
func (h *Handler) WarehouseDetails(w http.ResponseWriter, r *http.Request) {
	var req WarehouseDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.WarehouseDetails(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// ProductionOrderDetails reports the order state a manufacture draft needs.
func (h *Handler) ProductionOrderDetails(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ProductionOrderDetails(r.Context(), chi.URLParam(r, "order"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// ReferenceDetails reports the party and state of a return reference
// document for form prefill.
func (h *Handler) ReferenceDetails(w http.ResponseWriter, r *http.Request) {
	doc, party, err := h.service.ReferenceDetails(r.Context(),
		RefDocType(chi.URLParam(r, "docType")), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReferenceResponse(doc, party))
}

// actorID extracts the acting user from the request context. Zero when the
// request is unauthenticated.
func actorID(r *http.Request) int64 {
	if v, ok := r.Context().Value(shared.ActorIDKey).(int64); ok {
		return v
	}
	return 0
}
