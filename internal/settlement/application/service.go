package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridseoul/landcell/internal/clock"
	reservation "github.com/gridseoul/landcell/internal/reservation/application"
	"github.com/gridseoul/landcell/internal/reservation/domain"
	settlement "github.com/gridseoul/landcell/internal/settlement/domain"
)

const eventSettlementRecorded = "SettlementRecorded"

type SettleInput struct {
	CellIDs []int64
	BuyerID int64
	// OrderNo is the order number the payment UI was opened with; the
	// gateway treats it as an idempotency key.
	OrderNo string
	// AuthNo is the authorization token the payment UI handed back.
	AuthNo string
	// CouponCount is how many cells the buyer wants discounted; that many
	// coupons are debited on success.
	CouponCount int64
	Traceparent string
}

// SettleResult is always definite: a gateway decline is reported here with
// Success=false, not as an error.
type SettleResult struct {
	Success       bool
	ResultCode    string
	Message       string
	TransactionNo string
	Price         int64
}

// Service converts a verified hold into ownership. The gateway call happens
// outside any open database transaction; exclusivity during that window
// comes from the lock store holder check, not from row locking.
type Service struct {
	log       *slog.Logger
	cells     CellRepository
	areas     AreaRepository
	contracts ContractRepository
	ledger    CouponLedger
	locks     LockStore
	gateway   PaymentGateway
	clock     clock.Clock
	tracer    trace.Tracer
}

func NewService(log *slog.Logger, cells CellRepository, areas AreaRepository, contracts ContractRepository, ledger CouponLedger, locks LockStore, gateway PaymentGateway, clk clock.Clock) *Service {
	return &Service{
		log:       log,
		cells:     cells,
		areas:     areas,
		contracts: contracts,
		ledger:    ledger,
		locks:     locks,
		gateway:   gateway,
		clock:     clk,
		tracer:    otel.Tracer("settlement"),
	}
}

// Settle runs the full settlement workflow for a batch of cells held by one
// buyer. All-or-nothing: a decline or failure never leaves a subset owned.
func (s *Service) Settle(ctx context.Context, in SettleInput) (SettleResult, error) {
	ctx, span := s.tracer.Start(ctx, "Settle")
	defer span.End()

	cells, area, err := s.checkPreconditions(ctx, in)
	if err != nil {
		return SettleResult{}, err
	}

	// Holder re-check happens last, immediately before the gateway call;
	// the lease may have expired since the hold was granted.
	holder := reservation.HolderKey(in.BuyerID)
	for _, id := range in.CellIDs {
		current, ok, err := s.locks.Get(ctx, reservation.LockKey(id))
		if err != nil {
			return SettleResult{}, err
		}
		if !ok || current != holder {
			s.log.Info("settlement refused, hold not live",
				"buyer_id", in.BuyerID, "cell_id", id)
			return SettleResult{}, domain.ErrLeaseExpired
		}
	}

	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		OrderNo: in.OrderNo,
		AuthNo:  in.AuthNo,
		BuyerID: in.BuyerID,
	})
	if err != nil {
		// Transport-level failure: no ownership was written, but the hold
		// must not stay stuck.
		s.forceRelease(ctx, in)
		return SettleResult{}, fmt.Errorf("%w: gateway: %v", domain.ErrSettlementFailed, err)
	}

	if !auth.Success {
		return s.handleDecline(ctx, in, auth)
	}

	if err := s.commit(ctx, in, cells, area, auth); err != nil {
		// The failed transaction rolled back on its own; reset the holds
		// in a fresh one so the cells never stay stuck on hold.
		s.forceRelease(ctx, in)
		return SettleResult{}, fmt.Errorf("%w: %v", domain.ErrSettlementFailed, err)
	}

	// Locks go after commit: a crash in between leaves only a stale lock
	// the TTL (and the reaper's mirror sweep) will clear.
	s.releaseLocks(ctx, in)

	s.log.Info("settlement committed",
		"buyer_id", in.BuyerID, "cell_ids", in.CellIDs, "order_no", in.OrderNo, "tr_no", auth.TransactionNo)
	return SettleResult{
		Success:       true,
		ResultCode:    auth.ResultCode,
		Message:       auth.Message,
		TransactionNo: auth.TransactionNo,
		Price:         auth.Price,
	}, nil
}

// checkPreconditions verifies everything that can be verified cheaply and
// without side effects, before any external call.
func (s *Service) checkPreconditions(ctx context.Context, in SettleInput) ([]domain.Cell, domain.Area, error) {
	if len(in.CellIDs) == 0 {
		return nil, domain.Area{}, domain.ErrCellNotFound
	}

	cells, err := s.cells.GetCells(ctx, in.CellIDs)
	if err != nil {
		return nil, domain.Area{}, err
	}
	if len(cells) != len(in.CellIDs) {
		return nil, domain.Area{}, domain.ErrCellNotFound
	}

	for _, cell := range cells {
		if !cell.Purchasable() {
			return nil, domain.Area{}, domain.ErrAlreadyOwned
		}
	}

	area, err := s.areas.GetArea(ctx, cells[0].AreaID)
	if err != nil {
		return nil, domain.Area{}, err
	}
	if area.Status != domain.AreaStatusOpen {
		return nil, domain.Area{}, domain.ErrAreaNotPurchasable
	}

	refunded, err := s.contracts.HasRefunded(ctx, in.BuyerID, area.ID)
	if err != nil {
		return nil, domain.Area{}, err
	}
	if refunded {
		return nil, domain.Area{}, domain.ErrRefundBlocksRepurchase
	}

	if in.CouponCount > 0 {
		balance, err := s.ledger.Balance(ctx, in.BuyerID)
		if err != nil {
			return nil, domain.Area{}, err
		}
		if balance < in.CouponCount {
			return nil, domain.Area{}, domain.ErrInsufficientCoupons
		}
	}

	return cells, area, nil
}

// handleDecline is the expected business outcome for a refused payment:
// the hold mirror is cleared, the locks released, and the decline payload
// returned to the caller as data. The cells are immediately re-acquirable.
func (s *Service) handleDecline(ctx context.Context, in SettleInput, auth AuthorizeResult) (SettleResult, error) {
	now := s.clock.Now()
	err := s.cells.WithTx(ctx, func(txCtx context.Context) error {
		return s.cells.ClearHold(txCtx, in.CellIDs, now)
	})
	if err != nil {
		s.log.Error("hold clear after decline failed", "buyer_id", in.BuyerID, "err", err)
	}
	s.releaseLocks(ctx, in)

	s.log.Info("settlement declined by gateway",
		"buyer_id", in.BuyerID, "cell_ids", in.CellIDs, "result_code", auth.ResultCode, "message", auth.Message)
	return SettleResult{
		Success:    false,
		ResultCode: auth.ResultCode,
		Message:    auth.Message,
	}, nil
}

// commit performs the atomic ownership transition and all bookkeeping in
// one transaction: owners set, hold mirror cleared, settlement record and
// join rows written, area counter recomputed, coupon ledger adjusted, and
// the outbox row appended.
func (s *Service) commit(ctx context.Context, in SettleInput, cells []domain.Cell, area domain.Area, auth AuthorizeResult) error {
	now := s.clock.Now()

	event := settlement.SettlementRecorded{
		OrderNo:       in.OrderNo,
		TransactionNo: auth.TransactionNo,
		BuyerID:       in.BuyerID,
		AreaID:        area.ID,
		CellIDs:       in.CellIDs,
		Price:         auth.Price,
		RecordedAt:    now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.cells.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.cells.SetOwner(txCtx, in.CellIDs, in.BuyerID, now); err != nil {
			return err
		}

		contract := domain.Contract{
			AreaID:        area.ID,
			BuyerID:       in.BuyerID,
			OrderNo:       in.OrderNo,
			TransactionNo: auth.TransactionNo,
			Price:         auth.Price,
			CreatedAt:     now,
			CellIDs:       in.CellIDs,
		}
		if _, err := s.contracts.CreateWithOutbox(txCtx, contract, eventSettlementRecorded, payload, in.Traceparent); err != nil {
			return err
		}

		// Recount, never increment.
		owned, err := s.cells.CountOwnedInArea(txCtx, area.ID)
		if err != nil {
			return err
		}
		if err := s.areas.UpdatePurchaseCount(txCtx, area.ID, owned); err != nil {
			return err
		}

		if in.CouponCount > 0 {
			if err := s.ledger.Debit(txCtx, in.BuyerID, in.CouponCount); err != nil {
				return err
			}
		}
		if area.CouponGrant {
			if err := s.ledger.Credit(txCtx, in.BuyerID, int64(len(cells))); err != nil {
				return err
			}
		}
		return nil
	})
}

// forceRelease resets the hold mirror in a fresh transaction and drops the
// locks, so a failed settlement can never leave a cell stuck on hold.
func (s *Service) forceRelease(ctx context.Context, in SettleInput) {
	now := s.clock.Now()
	err := s.cells.WithTx(ctx, func(txCtx context.Context) error {
		return s.cells.ClearHold(txCtx, in.CellIDs, now)
	})
	if err != nil {
		// The reaper clears the mirror once the lease elapses.
		s.log.Error("forced hold reset failed", "buyer_id", in.BuyerID, "cell_ids", in.CellIDs, "err", err)
	}
	s.releaseLocks(ctx, in)
	s.log.Info("holds force-released after failed settlement", "buyer_id", in.BuyerID, "cell_ids", in.CellIDs)
}

func (s *Service) releaseLocks(ctx context.Context, in SettleInput) {
	holder := reservation.HolderKey(in.BuyerID)
	for _, id := range in.CellIDs {
		if _, err := s.locks.Release(ctx, reservation.LockKey(id), holder); err != nil {
			s.log.Error("lock release failed", "cell_id", id, "err", err)
		}
	}
}
