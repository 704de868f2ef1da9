package usecase

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// QtyTolerance absorbs exchange-side quantity rounding when comparing
// protective-order sums against position size.
const QtyTolerance = 0.05

// ReconcileResult is the structured outcome of one reconciliation pass.
type ReconcileResult struct {
	OrphanedOrdersCancelled int
	SymbolsReset            []string
	OrdersChecked           int
	PositionsChecked        int
	Errors                  int
}

// Reconciler compares exchange-reported orders and positions against each
// other and corrects drift. It never throws into the calling loop; every
// failure is counted and logged instead.
type Reconciler struct {
	exchange domain.Exchange
	logger   *zap.Logger
}

func NewReconciler(exchange domain.Exchange, logger *zap.Logger) *Reconciler {
	return &Reconciler{exchange: exchange, logger: logger}
}

// Run executes both checks: cancel protective orders whose position is gone,
// and reset all protection for any symbol whose stop or target quantity sums
// drifted from the position size. The checks are independent; a failure in
// one does not stop the other.
func (r *Reconciler) Run(ctx context.Context) (result *ReconcileResult) {
	result = &ReconcileResult{}
	defer func() {
		if rec := recover(); rec != nil {
			result.Errors++
			r.logger.Error("reconciliation panic", zap.Any("panic", rec))
		}
	}()

	orders, err := r.exchange.GetOpenOrders(ctx, "")
	if err != nil {
		result.Errors++
		r.logger.Error("fetch open orders failed", zap.Error(err))
		return result
	}
	positions, err := r.exchange.GetOpenPositions(ctx, "")
	if err != nil {
		result.Errors++
		r.logger.Error("fetch open positions failed", zap.Error(err))
		return result
	}
	result.OrdersChecked = len(orders)
	result.PositionsChecked = len(positions)

	posBySymbol := make(map[string]domain.ExternalPosition, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	r.cancelOrphans(ctx, orders, posBySymbol, result)
	r.fixQuantityDrift(ctx, orders, positions, result)

	r.logger.Info("reconciliation pass done",
		zap.Int("orders_checked", result.OrdersChecked),
		zap.Int("positions_checked", result.PositionsChecked),
		zap.Int("orphans_cancelled", result.OrphanedOrdersCancelled),
		zap.Strings("symbols_reset", result.SymbolsReset),
		zap.Int("errors", result.Errors))
	return result
}

// cancelOrphans removes every order whose symbol has no open position left,
// whatever its type. Usually these are stops/targets that survived their
// position's close, but a stale entry order is just as much drift.
func (r *Reconciler) cancelOrphans(ctx context.Context, orders []domain.ExternalOrder, posBySymbol map[string]domain.ExternalPosition, result *ReconcileResult) {
	for _, o := range orders {
		if _, ok := posBySymbol[o.Symbol]; ok {
			continue
		}
		if err := r.exchange.CancelOrder(ctx, o.Symbol, o.ID); err != nil {
			result.Errors++
			r.logger.Error("cancel orphaned order failed",
				zap.String("symbol", o.Symbol),
				zap.String("order_id", o.ID),
				zap.Error(err))
			continue
		}
		result.OrphanedOrdersCancelled++
		r.logger.Warn("cancelled orphaned order",
			zap.String("symbol", o.Symbol),
			zap.String("order_id", o.ID),
			zap.String("type", o.Type))
	}
}

// fixQuantityDrift verifies that stop and target quantities independently
// sum to the position size. On any mismatch all protective orders for the
// symbol are cancelled, both sides, because a partial correction could leave
// a half-hedged position; the next trading cycle re-creates protection.
func (r *Reconciler) fixQuantityDrift(ctx context.Context, orders []domain.ExternalOrder, positions []domain.ExternalPosition, result *ReconcileResult) {
	for _, p := range positions {
		var stopQty, tpQty float64
		for _, o := range orders {
			if o.Symbol != p.Symbol {
				continue
			}
			switch o.Type {
			case domain.OrderTypeStop:
				stopQty += o.Quantity
			case domain.OrderTypeTakeProfit:
				tpQty += o.Quantity
			}
		}
		if withinTolerance(stopQty, p.Size) && withinTolerance(tpQty, p.Size) {
			continue
		}

		r.logger.Warn("protective quantity drift, resetting all orders",
			zap.String("symbol", p.Symbol),
			zap.Float64("position_size", p.Size),
			zap.Float64("stop_qty", stopQty),
			zap.Float64("tp_qty", tpQty))
		if err := r.exchange.CancelAllOrders(ctx, p.Symbol); err != nil {
			result.Errors++
			r.logger.Error("reset protective orders failed",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		result.SymbolsReset = append(result.SymbolsReset, p.Symbol)
	}
}

func withinTolerance(sum, size float64) bool {
	if size == 0 {
		return sum == 0
	}
	return math.Abs(sum-size) <= size*QtyTolerance
}
