package reconcile

import (
	"context"
	"fmt"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/pkg/logger"
)

// StockReport compares a product's stored stock with the total of its
// movement lines.
type StockReport struct {
	ProductID    id.ID `json:"productId"`
	CurrentStock int64 `json:"currentStock"`
	Inward       int64 `json:"inward"`
	Outward      int64 `json:"outward"`
	Expected     int64 `json:"expected"`
	Drift        int64 `json:"drift"`
}

// Consistent reports whether stored stock equals the line total.
func (r StockReport) Consistent() bool {
	return r.Drift == 0
}

// VerifyStock recomputes a product's stock from active movement lines.
func (e *Engine) VerifyStock(ctx context.Context, tenantID string, productID id.ID) (StockReport, error) {
	var rep StockReport
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		rep, err = e.verify(ctx, tenantID, productID)
		return err
	})
	if err != nil {
		return StockReport{}, apperror.FromContext(err)
	}
	return rep, nil
}

// RepairStock overwrites stored stock with the line total when they differ.
// It holds the product's key lock, so no movement of the product runs in
// between. A negative line total is refused: it means lines themselves are wrong.
func (e *Engine) RepairStock(ctx context.Context, tenantID, actorID string, productID id.ID) (StockReport, error) {
	var rep StockReport
	info := opInfo{
		op:       movement.OpRepair,
		tenantID: tenantID,
		docID:    id.Nil(),
		lockKeys: productKeys(tenantID, []id.ID{productID}),
	}
	err := e.execute(ctx, info, func(ctx context.Context, sg *saga, _ *lockSet) error {
		var err error
		rep, err = e.verify(ctx, tenantID, productID)
		if err != nil || rep.Consistent() {
			return err
		}
		if rep.Expected < 0 {
			return apperror.NewStockConflict(productID.String(), -rep.Expected, rep.CurrentStock).
				WithDetail("expected", rep.Expected)
		}

		err = sg.run(ctx, "set stock",
			func(ctx context.Context) error { return e.products.SetStock(ctx, tenantID, productID, rep.Expected) },
			func(ctx context.Context) error { return e.products.SetStock(ctx, tenantID, productID, rep.CurrentStock) })
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}

		entry := movement.JournalEntry{
			ID:        id.New(),
			TenantID:  tenantID,
			Operation: movement.OpRepair,
			ActorID:   actorID,
			Deltas:    map[string]int64{productID.String(): -rep.Drift},
			CreatedAt: e.now(),
		}
		if err := e.journal.Record(ctx, entry); err != nil {
			return fmt.Errorf("record journal: %w", err)
		}
		return nil
	})
	if err != nil {
		return StockReport{}, err
	}

	if !rep.Consistent() {
		logger.Warn(ctx, "stock drift repaired",
			"tenant_id", tenantID, "product_id", productID,
			"stored", rep.CurrentStock, "expected", rep.Expected, "drift", rep.Drift)
	}
	return rep, nil
}

// verify locks the product row, then sums its lines, so no movement of the
// product can commit in between.
func (e *Engine) verify(ctx context.Context, tenantID string, productID id.ID) (StockReport, error) {
	products, err := e.products.GetMany(ctx, tenantID, []id.ID{productID})
	if err != nil {
		return StockReport{}, fmt.Errorf("load product: %w", err)
	}
	p, ok := products[productID]
	if !ok {
		return StockReport{}, apperror.NewNotFound("product", productID.String())
	}

	in, out, err := e.lines.SumByProduct(ctx, tenantID, productID)
	if err != nil {
		return StockReport{}, fmt.Errorf("sum lines: %w", err)
	}

	expected := in - out
	return StockReport{
		ProductID:    productID,
		CurrentStock: p.CurrentStock,
		Inward:       in,
		Outward:      out,
		Expected:     expected,
		Drift:        p.CurrentStock - expected,
	}, nil
}
