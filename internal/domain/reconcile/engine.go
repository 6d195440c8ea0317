// Package reconcile keeps product stock consistent with movement documents.
//
// Every operation runs inside one tx.Manager transaction and one saga. On an
// atomic backend the transaction rollback undoes a failed operation; otherwise
// the saga replays compensations of the completed steps in reverse order.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/core/tx"
	"templestock/internal/core/validate"
	"templestock/internal/domain/movement"
	"templestock/internal/domain/product"
	"templestock/internal/keylock"
	"templestock/pkg/logger"
)

var tracer = otel.Tracer("templestock/reconcile")

const (
	defaultOperationTimeout    = 10 * time.Second
	defaultCompensationTimeout = 15 * time.Second
)

// ReferenceGuard is satisfied by *uniqueness.Guard.
type ReferenceGuard interface {
	RequireUniqueReference(ctx context.Context, tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) error
}

// Config bounds engine operations.
type Config struct {
	OperationTimeout    time.Duration
	CompensationTimeout time.Duration
}

// Deps are the ports the engine drives.
type Deps struct {
	Products  product.Store
	Documents movement.Repository
	Lines     movement.LineSet
	Guard     ReferenceGuard
	Journal   movement.Journal
	Locker    keylock.Locker
	TxManager tx.Manager
}

// Engine applies movement documents to product stock.
type Engine struct {
	products product.Store
	docs     movement.Repository
	lines    movement.LineSet
	guard    ReferenceGuard
	journal  movement.Journal
	locker   keylock.Locker
	txm      tx.Manager
	cfg      Config
	now      func() time.Time
}

// NewEngine creates an Engine. Zero timeouts fall back to defaults.
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = defaultCompensationTimeout
	}
	return &Engine{
		products: deps.Products,
		docs:     deps.Documents,
		lines:    deps.Lines,
		guard:    deps.Guard,
		journal:  deps.Journal,
		locker:   deps.Locker,
		txm:      deps.TxManager,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// --- Movement operations ---

// CreateMovement validates and persists a new Active document and applies its
// lines to stock. Outward lines are reserved in the given order; the first line
// that cannot be covered fails the whole call with INSUFFICIENT_STOCK.
func (e *Engine) CreateMovement(ctx context.Context, tenantID, actorID string, h Header, lines []movement.Line) (Result, error) {
	h = h.normalized()
	h.Status = movement.StatusActive
	if err := e.validateHeader(h, lines); err != nil {
		return Result{}, err
	}

	now := e.now()
	doc := movement.NewDocument(tenantID, h.Direction, actorID)
	h.applyTo(doc)
	doc.UpdatedBy = actorID
	doc.CreatedAt, doc.UpdatedAt = now, now
	doc.Lines = movement.Renumber(doc.ID, lines)

	info := opInfo{
		op:        movement.OpCreate,
		tenantID:  tenantID,
		direction: h.Direction,
		docID:     doc.ID,
		lockKeys:  []string{referenceKey(tenantID, h.Direction, h.ReferenceNo)},
	}
	err := e.execute(ctx, info, func(ctx context.Context, sg *saga, locks *lockSet) error {
		return e.create(ctx, sg, locks, doc, actorID)
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "movement created",
		"document_id", doc.ID, "direction", doc.Direction, "reference_no", doc.ReferenceNo, "lines", len(doc.Lines))
	return Result{DocumentID: doc.ID}, nil
}

func (e *Engine) create(ctx context.Context, sg *saga, locks *lockSet, doc *movement.Document, actorID string) error {
	if err := e.guard.RequireUniqueReference(ctx, doc.TenantID, doc.Direction, doc.ReferenceNo, id.Nil()); err != nil {
		return err
	}

	pids := productIDs(doc.Lines)
	if err := locks.acquire(ctx, productKeys(doc.TenantID, pids)...); err != nil {
		return err
	}
	products, err := e.products.GetMany(ctx, doc.TenantID, pids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	if err := checkLines(doc.Lines, products); err != nil {
		return err
	}

	if doc.Direction == movement.Outward {
		for _, l := range doc.Lines {
			if err := e.reserve(ctx, sg, doc.TenantID, l); err != nil {
				return err
			}
		}
	}

	err = sg.run(ctx, "create document",
		func(ctx context.Context) error { return e.docs.Create(ctx, doc) },
		func(ctx context.Context) error { return e.docs.Delete(ctx, doc.TenantID, doc.ID) })
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	err = sg.run(ctx, "insert lines",
		func(ctx context.Context) error { return e.lines.ReplaceAll(ctx, doc.ID, doc.Lines) },
		func(ctx context.Context) error { return e.lines.DeleteAll(ctx, doc.ID) })
	if err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	deltas := netDeltas(doc.Direction, nil, doc.Lines)
	if doc.Direction == movement.Inward {
		if err := e.applyDeltas(ctx, sg, doc, deltas); err != nil {
			return err
		}
	}

	return e.record(ctx, doc, movement.OpCreate, actorID, nil, doc.Lines, deltas)
}

// UpdateMovement replaces the header and the full line set of a document. The
// reversal of the old lines is checked against current stock on its own first:
// if undoing them would take any product below zero the update fails with
// STOCK_CONFLICT before anything is written. The reversal and the new lines are
// then applied as one net delta per product.
func (e *Engine) UpdateMovement(ctx context.Context, tenantID, actorID string, docID id.ID, h Header, lines []movement.Line) (Result, error) {
	h = h.normalized()
	if err := e.validateHeader(h, lines); err != nil {
		return Result{}, err
	}
	newLines := movement.Renumber(docID, lines)

	info := opInfo{
		op:        movement.OpUpdate,
		tenantID:  tenantID,
		direction: h.Direction,
		docID:     docID,
		lockKeys:  []string{documentKey(tenantID, docID), referenceKey(tenantID, h.Direction, h.ReferenceNo)},
	}
	var deltas []Delta
	err := e.execute(ctx, info, func(ctx context.Context, sg *saga, locks *lockSet) error {
		old, err := e.docs.GetForUpdate(ctx, tenantID, h.Direction, docID)
		if err != nil {
			return err
		}
		oldLines, err := e.lines.ListFor(ctx, docID)
		if err != nil {
			return fmt.Errorf("load lines: %w", err)
		}

		if old.ReferenceNo != h.ReferenceNo {
			if err := e.guard.RequireUniqueReference(ctx, tenantID, h.Direction, h.ReferenceNo, docID); err != nil {
				return err
			}
		}

		pids := productIDs(oldLines, newLines)
		if err := locks.acquire(ctx, productKeys(tenantID, pids)...); err != nil {
			return err
		}
		products, err := e.products.GetMany(ctx, tenantID, pids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		if err := checkLines(newLines, products); err != nil {
			return err
		}

		var before, after []movement.Line
		if old.IsActive() {
			before = oldLines
		}
		if h.Status == movement.StatusActive {
			after = newLines
		}
		if err := checkReversal(old, before, products); err != nil {
			return err
		}
		deltas = netDeltas(h.Direction, before, after)
		if err := e.applyDeltas(ctx, sg, old, deltas); err != nil {
			return err
		}

		err = sg.run(ctx, "replace lines",
			func(ctx context.Context) error { return e.lines.ReplaceAll(ctx, docID, newLines) },
			func(ctx context.Context) error { return e.lines.ReplaceAll(ctx, docID, oldLines) })
		if err != nil {
			return fmt.Errorf("replace lines: %w", err)
		}

		updated := *old
		h.applyTo(&updated)
		updated.UpdatedBy = actorID
		updated.UpdatedAt = e.now()
		err = sg.run(ctx, "update document",
			func(ctx context.Context) error { return e.docs.Update(ctx, &updated) },
			func(ctx context.Context) error {
				restore := *old
				restore.Version = updated.Version
				return e.docs.Update(ctx, &restore)
			})
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}

		return e.record(ctx, &updated, movement.OpUpdate, actorID, oldLines, newLines, deltas)
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "movement updated", "document_id", docID, "direction", h.Direction, "deltas", len(deltas))
	return Result{DocumentID: docID}, nil
}

// DeleteMovement reverses an active document's lines, then removes the lines
// and the header.
func (e *Engine) DeleteMovement(ctx context.Context, tenantID, actorID string, direction movement.Direction, docID id.ID) (Result, error) {
	if !direction.Valid() {
		return Result{}, apperror.NewValidation("unknown direction").WithDetail("direction", string(direction))
	}

	info := opInfo{
		op:        movement.OpDelete,
		tenantID:  tenantID,
		direction: direction,
		docID:     docID,
		lockKeys:  []string{documentKey(tenantID, docID)},
	}
	err := e.execute(ctx, info, func(ctx context.Context, sg *saga, locks *lockSet) error {
		doc, err := e.docs.GetForUpdate(ctx, tenantID, direction, docID)
		if err != nil {
			return err
		}
		lines, err := e.lines.ListFor(ctx, docID)
		if err != nil {
			return fmt.Errorf("load lines: %w", err)
		}

		var deltas []Delta
		if doc.IsActive() {
			pids := productIDs(lines)
			if err := locks.acquire(ctx, productKeys(tenantID, pids)...); err != nil {
				return err
			}
			products, err := e.products.GetMany(ctx, tenantID, pids)
			if err != nil {
				return fmt.Errorf("load products: %w", err)
			}
			if err := checkReversal(doc, lines, products); err != nil {
				return err
			}
			deltas = netDeltas(direction, lines, nil)
			if err := e.applyDeltas(ctx, sg, doc, deltas); err != nil {
				return err
			}
		}

		err = sg.run(ctx, "delete lines",
			func(ctx context.Context) error { return e.lines.DeleteAll(ctx, docID) },
			func(ctx context.Context) error { return e.lines.ReplaceAll(ctx, docID, lines) })
		if err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}

		err = sg.run(ctx, "delete document",
			func(ctx context.Context) error { return e.docs.Delete(ctx, tenantID, docID) },
			func(ctx context.Context) error { return e.docs.Create(ctx, doc) })
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}

		return e.record(ctx, doc, movement.OpDelete, actorID, lines, nil, deltas)
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "movement deleted", "document_id", docID, "direction", direction)
	return Result{DocumentID: docID}, nil
}

// GetMovement returns a document with its lines.
func (e *Engine) GetMovement(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error) {
	doc, err := e.docs.Get(ctx, tenantID, direction, docID)
	if err != nil {
		return nil, err
	}
	lines, err := e.lines.ListFor(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// History returns the newest journal entries of a document, including deleted ones.
func (e *Engine) History(ctx context.Context, tenantID string, docID id.ID, limit int) ([]movement.JournalEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return e.journal.History(ctx, tenantID, docID, limit)
}

// --- Typed commands ---

// CreateInward records received goods.
func (e *Engine) CreateInward(ctx context.Context, cmd CreateInward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	h := inwardHeader(cmd.VendorName, cmd.VendorMobile, cmd.VendorAddress, cmd.ChallanNo, cmd.Date, cmd.Description, movement.StatusActive)
	return e.CreateMovement(ctx, cmd.TenantID, cmd.ActorID, h, inwardLines(cmd.Lines))
}

// UpdateInward replaces an inward document.
func (e *Engine) UpdateInward(ctx context.Context, cmd UpdateInward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	h := inwardHeader(cmd.VendorName, cmd.VendorMobile, cmd.VendorAddress, cmd.ChallanNo, cmd.Date, cmd.Description, cmd.Status)
	return e.UpdateMovement(ctx, cmd.TenantID, cmd.ActorID, cmd.DocumentID, h, inwardLines(cmd.Lines))
}

// DeleteInward removes an inward document.
func (e *Engine) DeleteInward(ctx context.Context, cmd DeleteInward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	return e.DeleteMovement(ctx, cmd.TenantID, cmd.ActorID, movement.Inward, cmd.DocumentID)
}

// CreateOutward records issued goods.
func (e *Engine) CreateOutward(ctx context.Context, cmd CreateOutward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	h := outwardHeader(cmd.CustomerName, cmd.CustomerMobile, cmd.OutwardNo, cmd.Date, cmd.Description, movement.StatusActive)
	return e.CreateMovement(ctx, cmd.TenantID, cmd.ActorID, h, outwardLines(cmd.Lines))
}

// UpdateOutward replaces an outward document.
func (e *Engine) UpdateOutward(ctx context.Context, cmd UpdateOutward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	h := outwardHeader(cmd.CustomerName, cmd.CustomerMobile, cmd.OutwardNo, cmd.Date, cmd.Description, cmd.Status)
	return e.UpdateMovement(ctx, cmd.TenantID, cmd.ActorID, cmd.DocumentID, h, outwardLines(cmd.Lines))
}

// DeleteOutward removes an outward document.
func (e *Engine) DeleteOutward(ctx context.Context, cmd DeleteOutward) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, err
	}
	return e.DeleteMovement(ctx, cmd.TenantID, cmd.ActorID, movement.Outward, cmd.DocumentID)
}

// --- Execution ---

type opInfo struct {
	op        movement.Operation
	tenantID  string
	direction movement.Direction
	docID     id.ID
	lockKeys  []string
}

// execute bounds fn by the operation timeout, takes the operation's key locks,
// runs fn in a transaction and compensates on failure. Locks fn adds through
// the lock set are held until compensation has finished too.
func (e *Engine) execute(ctx context.Context, info opInfo, fn func(ctx context.Context, sg *saga, locks *lockSet) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "reconcile."+string(info.op), trace.WithAttributes(
		attribute.String("tenant_id", info.tenantID),
		attribute.String("direction", string(info.direction)),
		attribute.String("document_id", info.docID.String()),
	))
	defer span.End()

	locks := newLockSet(e.locker)
	defer locks.release(context.WithoutCancel(ctx))
	if err := locks.acquire(ctx, info.lockKeys...); err != nil {
		return e.fail(ctx, span, info, err)
	}

	sg := newSaga(!tx.IsAtomic(e.txm), e.cfg.CompensationTimeout)
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx, sg, locks)
	})
	if err != nil {
		if cerr := sg.compensate(ctx); cerr != nil {
			logger.Error(ctx, "compensation failed, stock needs repair",
				"tenant_id", info.tenantID, "document_id", info.docID, "operation", info.op,
				"error", err, "compensation_error", cerr)
		}
		return e.fail(ctx, span, info, err)
	}
	return nil
}

// fail maps err to an AppError, records it on the span and logs what the
// caller cannot act on.
func (e *Engine) fail(ctx context.Context, span trace.Span, info opInfo, err error) error {
	if errors.Is(err, keylock.ErrNotObtained) {
		err = apperror.NewTimeout(err)
	}
	err = apperror.FromContext(err)
	if _, ok := apperror.AsAppError(err); !ok && ctx.Err() != nil {
		err = apperror.NewTimeout(err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.CodeOf(err))

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "movement operation failed",
			"tenant_id", info.tenantID, "document_id", info.docID, "operation", info.op, "error", err)
		return apperror.NewInternal(err)
	}
	if appErr.Retryable {
		logger.Warn(ctx, "movement operation aborted",
			"tenant_id", info.tenantID, "document_id", info.docID, "operation", info.op, "error", err)
	}
	return err
}

// --- Steps ---

func (e *Engine) validateHeader(h Header, lines []movement.Line) error {
	if err := validate.Struct(h); err != nil {
		return err
	}
	if len(lines) == 0 {
		return apperror.NewValidation("at least one line is required")
	}
	if dateOnly(h.MovementDate).After(dateOnly(e.now())) {
		return apperror.NewValidation("movement date cannot be in the future").
			WithDetail("movementDate", h.MovementDate.Format(time.DateOnly))
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// checkLines requires every line to reference an active product of the tenant
// with a positive quantity.
func checkLines(lines []movement.Line, products map[id.ID]*product.Product) error {
	for _, l := range lines {
		p, ok := products[l.ProductID]
		switch {
		case !ok:
			return apperror.NewInvalidLine(l.LineNo, "product not found").WithDetail("productId", l.ProductID.String())
		case !p.IsActive():
			return apperror.NewInvalidLine(l.LineNo, "product is inactive").WithDetail("productId", l.ProductID.String())
		case l.Qty <= 0:
			return apperror.NewInvalidLine(l.LineNo, "quantity must be positive").WithDetail("productId", l.ProductID.String())
		}
	}
	return nil
}

// checkReversal fails with STOCK_CONFLICT when undoing lines on their own
// would take any product below zero. products must be locked.
func checkReversal(doc *movement.Document, lines []movement.Line, products map[id.ID]*product.Product) error {
	for _, d := range netDeltas(doc.Direction, lines, nil) {
		p, ok := products[d.ProductID]
		if !ok || p.CurrentStock+d.Qty >= 0 {
			continue
		}
		return apperror.NewStockConflict(d.ProductID.String(), -d.Qty, p.CurrentStock).
			WithDetail("documentId", doc.ID.String())
	}
	return nil
}

// reserve takes l.Qty out of stock, or fails with INSUFFICIENT_STOCK naming the line.
func (e *Engine) reserve(ctx context.Context, sg *saga, tenantID string, l movement.Line) error {
	return sg.run(ctx, fmt.Sprintf("reserve line %d", l.LineNo),
		func(ctx context.Context) error {
			ok, err := e.products.Reserve(ctx, tenantID, l.ProductID, l.Qty)
			if err != nil {
				return fmt.Errorf("reserve line %d: %w", l.LineNo, err)
			}
			if ok {
				return nil
			}
			p, err := e.products.Get(ctx, tenantID, l.ProductID)
			if err != nil {
				return fmt.Errorf("reserve line %d: %w", l.LineNo, err)
			}
			return apperror.NewInsufficientStock(l.ProductID.String(), l.Qty, p.CurrentStock).
				WithDetail("lineNo", l.LineNo)
		},
		func(ctx context.Context) error {
			_, err := e.products.AdjustStock(ctx, tenantID, l.ProductID, l.Qty)
			return err
		})
}

// applyDeltas adjusts stock in delta order. A shortfall on an inward document
// means received goods were already issued (STOCK_CONFLICT); on an outward
// document it is plain INSUFFICIENT_STOCK.
func (e *Engine) applyDeltas(ctx context.Context, sg *saga, doc *movement.Document, deltas []Delta) error {
	for _, d := range deltas {
		err := sg.run(ctx, "adjust "+d.ProductID.String(),
			func(ctx context.Context) error {
				_, err := e.products.AdjustStock(ctx, doc.TenantID, d.ProductID, d.Qty)
				return err
			},
			func(ctx context.Context) error {
				_, err := e.products.AdjustStock(ctx, doc.TenantID, d.ProductID, -d.Qty)
				return err
			})
		if err == nil {
			continue
		}
		if apperror.Is(err, apperror.CodeInsufficientStock) {
			available := availableOf(err)
			if doc.Direction == movement.Inward {
				return apperror.NewStockConflict(d.ProductID.String(), -d.Qty, available).
					WithDetail("documentId", doc.ID.String())
			}
			return apperror.NewInsufficientStock(d.ProductID.String(), -d.Qty, available).
				WithDetail("documentId", doc.ID.String())
		}
		return fmt.Errorf("adjust stock of %s: %w", d.ProductID, err)
	}
	return nil
}

func availableOf(err error) int64 {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return 0
	}
	v, _ := appErr.Details["available"].(int64)
	return v
}

func (e *Engine) record(ctx context.Context, doc *movement.Document, op movement.Operation, actorID string, before, after []movement.Line, deltas []Delta) error {
	entry := movement.JournalEntry{
		ID:         id.New(),
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		Direction:  doc.Direction,
		Operation:  op,
		ActorID:    actorID,
		Before:     before,
		After:      after,
		Deltas:     deltaMap(deltas),
		CreatedAt:  e.now(),
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		return fmt.Errorf("record journal: %w", err)
	}
	return nil
}
