package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridseoul/landcell/internal/reservation/application"
	"github.com/gridseoul/landcell/internal/reservation/domain"
	settlement "github.com/gridseoul/landcell/internal/settlement/application"
	"github.com/gridseoul/landcell/pkg/tracing"
)

// CellReader is the mirror read used by the hold-listing endpoint.
type CellReader interface {
	GetCells(ctx context.Context, ids []int64) ([]domain.Cell, error)
}

type AreaReader interface {
	ListPurchasable(ctx context.Context) ([]domain.PurchasableArea, error)
}

type ContractReader interface {
	ListByBuyer(ctx context.Context, buyerID int64) ([]domain.Contract, error)
}

// IdempotencyStore guards the settlement endpoint against double submission
// of the same order number.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Handler struct {
	log        *slog.Logger
	holds      *application.Coordinator
	settlement *settlement.Service
	cells      CellReader
	areas      AreaReader
	contracts  ContractReader
	idem       IdempotencyStore
	tracer     trace.Tracer
}

func NewHandler(log *slog.Logger, holds *application.Coordinator, settle *settlement.Service, cells CellReader, areas AreaReader, contracts ContractReader, idem IdempotencyStore) *Handler {
	return &Handler{
		log:        log,
		holds:      holds,
		settlement: settle,
		cells:      cells,
		areas:      areas,
		contracts:  contracts,
		idem:       idem,
		tracer:     otel.Tracer("reservation-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/holds", h.acquireHold)
	r.Post("/holds/release", h.releaseHold)
	r.Post("/settlements", h.settle)
	r.Get("/cells/holds", h.listHolds)
	r.Get("/areas/purchasable", h.listPurchasableAreas)
	r.Get("/buyers/{id}/contracts", h.listContracts)

	return r
}

type holdReq struct {
	CellIDs []int64 `json:"cellIds"`
	BuyerID int64   `json:"buyerId"`
}

type cellHoldResp struct {
	CellID           int64  `json:"cellId"`
	Status           string `json:"status"`
	LeaseRemainingMs int64  `json:"leaseRemainingMs"`
}

func (h *Handler) acquireHold(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AcquireHold")
	defer span.End()

	var req holdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	result, err := h.holds.AcquireHold(ctx, req.CellIDs, req.BuyerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cells := make([]cellHoldResp, 0, len(result.Cells))
	for _, c := range result.Cells {
		cells = append(cells, cellHoldResp{
			CellID:           c.CellID,
			Status:           string(c.Status),
			LeaseRemainingMs: c.LeaseRemaining.Milliseconds(),
		})
	}

	status := http.StatusOK
	if len(result.Blocked) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"acquired": result.Acquired,
		"blocked":  result.Blocked,
		"cells":    cells,
	})
}

func (h *Handler) releaseHold(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ReleaseHold")
	defer span.End()

	var req holdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.holds.Cancel(ctx, req.CellIDs, req.BuyerID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

type settleReq struct {
	CellIDs     []int64 `json:"cellIds"`
	BuyerID     int64   `json:"buyerId"`
	OrderNo     string  `json:"orderNo"`
	AuthNo      string  `json:"authNo"`
	CouponCount int64   `json:"couponCount"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Settle")
	defer span.End()

	var req settleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.OrderNo == "" {
		http.Error(w, "orderNo required", http.StatusBadRequest)
		return
	}

	idemKey := "settle:" + req.OrderNo
	seen, err := h.idem.Seen(ctx, idemKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if seen {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "order already submitted",
		})
		return
	}

	traceparent := r.Header.Get(tracing.TraceparentHeader)
	if traceparent == "" {
		traceparent = tracing.Traceparent(ctx)
	}

	result, err := h.settlement.Settle(ctx, settlement.SettleInput{
		CellIDs:     req.CellIDs,
		BuyerID:     req.BuyerID,
		OrderNo:     req.OrderNo,
		AuthNo:      req.AuthNo,
		CouponCount: req.CouponCount,
		Traceparent: traceparent,
	})
	if err != nil {
		// The order was not charged; let the caller retry with the same
		// order number.
		if ferr := h.idem.Forget(ctx, idemKey); ferr != nil {
			h.log.Error("idempotency key forget failed", "key", idemKey, "err", ferr)
		}
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, map[string]any{
		"success":    result.Success,
		"resultCode": result.ResultCode,
		"message":    result.Message,
		"trNo":       result.TransactionNo,
		"price":      result.Price,
	})
}

func (h *Handler) listHolds(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListHolds")
	defer span.End()

	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		http.Error(w, "invalid ids", http.StatusBadRequest)
		return
	}

	cells, err := h.cells.GetCells(ctx, ids)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type holdView struct {
		CellID   int64  `json:"cellId"`
		Status   string `json:"status"`
		OnHoldBy *int64 `json:"onHoldBy,omitempty"`
	}
	views := make([]holdView, 0, len(cells))
	for _, c := range cells {
		views = append(views, holdView{CellID: c.ID, Status: string(c.Status()), OnHoldBy: c.OnHoldBy})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": views})
}

func (h *Handler) listPurchasableAreas(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListPurchasableAreas")
	defer span.End()

	areas, err := h.areas.ListPurchasable(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type areaView struct {
		AreaID           int64  `json:"areaId"`
		Name             string `json:"name"`
		TotalCells       int64  `json:"totalCells"`
		PurchasableCells int64  `json:"purchasableCells"`
	}
	views := make([]areaView, 0, len(areas))
	for _, a := range areas {
		views = append(views, areaView{AreaID: a.AreaID, Name: a.Name, TotalCells: a.TotalCellCount, PurchasableCells: a.PurchasableCellCount})
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": views})
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListContracts")
	defer span.End()

	buyerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid buyer id", http.StatusBadRequest)
		return
	}

	contracts, err := h.contracts.ListByBuyer(ctx, buyerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type contractView struct {
		ID       int64   `json:"id"`
		AreaID   int64   `json:"areaId"`
		OrderNo  string  `json:"orderNo"`
		TrNo     string  `json:"trNo"`
		Price    int64   `json:"price"`
		Refunded bool    `json:"refunded"`
		CellIDs  []int64 `json:"cellIds"`
	}
	views := make([]contractView, 0, len(contracts))
	for _, c := range contracts {
		views = append(views, contractView{
			ID: c.ID, AreaID: c.AreaID, OrderNo: c.OrderNo, TrNo: c.TransactionNo,
			Price: c.Price, Refunded: c.Refunded, CellIDs: c.CellIDs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": views})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCellNotFound), errors.Is(err, domain.ErrAreaNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyOwned),
		errors.Is(err, domain.ErrAreaNotPurchasable),
		errors.Is(err, domain.ErrLeaseExpired),
		errors.Is(err, domain.ErrRefundBlocksRepurchase),
		errors.Is(err, domain.ErrInsufficientCoupons):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrSettlementFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Error("internal error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, errors.New("empty")
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
