package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/domain/product"
	"templestock/internal/domain/reconcile"
	"templestock/internal/domain/uniqueness"
	"templestock/internal/infrastructure/storage/memory"
	"templestock/internal/keylock"
)

const tenant = "temple-1"

type fixture struct {
	t      *testing.T
	store  *memory.Store
	engine *reconcile.Engine
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLines(t, nil)
}

// newFixtureWithLines lets a test wrap the line set to inject failures.
func newFixtureWithLines(t *testing.T, wrap func(movement.LineSet) movement.LineSet) *fixture {
	st := memory.New()
	var lines movement.LineSet = st.Movements
	if wrap != nil {
		lines = wrap(lines)
	}
	e := reconcile.NewEngine(reconcile.Deps{
		Products:  st.Products,
		Documents: st.Movements,
		Lines:     lines,
		Guard:     uniqueness.NewGuard(st.Movements, st.Products),
		Journal:   st.Journal,
		Locker:    keylock.NewLocal(),
		TxManager: st.TxManager(),
	}, reconcile.Config{OperationTimeout: 5 * time.Second, CompensationTimeout: 5 * time.Second})
	return &fixture{t: t, store: st, engine: e, ctx: context.Background()}
}

func yesterday() time.Time {
	return time.Now().UTC().AddDate(0, 0, -1)
}

func (f *fixture) product(name string) id.ID {
	f.t.Helper()
	p := product.New(tenant, name)
	p.Category, p.UnitOfMeasure = "pooja", "kg"
	require.NoError(f.t, f.store.Products.Create(f.ctx, p))
	return p.ID
}

func (f *fixture) stock(pid id.ID) int64 {
	f.t.Helper()
	p, err := f.store.Products.Get(f.ctx, tenant, pid)
	require.NoError(f.t, err)
	return p.CurrentStock
}

func inward(ref string, lines ...reconcile.InwardLine) reconcile.CreateInward {
	return reconcile.CreateInward{
		TenantID:      tenant,
		ActorID:       "user-1",
		VendorName:    "Sri Traders",
		VendorAddress: "12 Temple Street",
		ChallanNo:     ref,
		Date:          yesterday(),
		Lines:         lines,
	}
}

func outward(ref string, lines ...reconcile.OutwardLine) reconcile.CreateOutward {
	return reconcile.CreateOutward{
		TenantID:     tenant,
		ActorID:      "user-1",
		CustomerName: "Annadanam Hall",
		OutwardNo:    ref,
		Date:         yesterday(),
		Lines:        lines,
	}
}

func in(pid id.ID, qty int64) reconcile.InwardLine { return reconcile.InwardLine{ProductID: pid, Qty: qty} }
func out(pid id.ID, qty int64) reconcile.OutwardLine {
	return reconcile.OutwardLine{ProductID: pid, Qty: qty}
}

func updateInward(docID id.ID, cmd reconcile.CreateInward) reconcile.UpdateInward {
	return reconcile.UpdateInward{
		TenantID:      cmd.TenantID,
		ActorID:       cmd.ActorID,
		DocumentID:    docID,
		VendorName:    cmd.VendorName,
		VendorMobile:  cmd.VendorMobile,
		VendorAddress: cmd.VendorAddress,
		ChallanNo:     cmd.ChallanNo,
		Date:          cmd.Date,
		Description:   cmd.Description,
		Lines:         cmd.Lines,
	}
}

func updateOutward(docID id.ID, cmd reconcile.CreateOutward) reconcile.UpdateOutward {
	return reconcile.UpdateOutward{
		TenantID:       cmd.TenantID,
		ActorID:        cmd.ActorID,
		DocumentID:     docID,
		CustomerName:   cmd.CustomerName,
		CustomerMobile: cmd.CustomerMobile,
		OutwardNo:      cmd.OutwardNo,
		Date:           cmd.Date,
		Description:    cmd.Description,
		Lines:          cmd.Lines,
	}
}

func (f *fixture) receive(ref string, pid id.ID, qty int64) id.ID {
	f.t.Helper()
	res, err := f.engine.CreateInward(f.ctx, inward(ref, in(pid, qty)))
	require.NoError(f.t, err)
	return res.DocumentID
}

func (f *fixture) assertConsistent(pids ...id.ID) {
	f.t.Helper()
	for _, pid := range pids {
		rep, err := f.engine.VerifyStock(f.ctx, tenant, pid)
		require.NoError(f.t, err)
		assert.True(f.t, rep.Consistent(), "product %s drifted: %+v", pid, rep)
	}
}

func TestEngine_Scenario(t *testing.T) {
	f := newFixture(t)
	rice := f.product("Rice")
	f.receive("OPEN-1", rice, 10)
	require.EqualValues(t, 10, f.stock(rice))

	cmd := inward("CH-100", in(rice, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)
	assert.EqualValues(t, 15, f.stock(rice))

	_, err = f.engine.CreateOutward(f.ctx, outward("OUT-1", out(rice, 20)))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, 1, appErr.Details["lineNo"])
	assert.EqualValues(t, 15, appErr.Details["available"])
	assert.EqualValues(t, 15, f.stock(rice))

	cmd.Lines = []reconcile.InwardLine{in(rice, 8)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	require.NoError(t, err)
	assert.EqualValues(t, 18, f.stock(rice))

	_, err = f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: tenant, DocumentID: res.DocumentID})
	require.NoError(t, err)
	assert.EqualValues(t, 10, f.stock(rice))

	_, err = f.engine.GetMovement(f.ctx, tenant, movement.Inward, res.DocumentID)
	assert.True(t, apperror.IsNotFound(err))
	f.assertConsistent(rice)
}

func TestEngine_ConcurrentOutwardsForFullStock(t *testing.T) {
	f := newFixture(t)
	ghee := f.product("Ghee")
	f.receive("OPEN-1", ghee, 10)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.CreateOutward(f.ctx, outward(fmt.Sprintf("OUT-%d", i), out(ghee, 10)))
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperror.Is(err, apperror.CodeInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 1, rejected.Load())
	assert.EqualValues(t, 0, f.stock(ghee))
	f.assertConsistent(ghee)
}

func TestEngine_UpdateWithSameLinesHasNoStockEffect(t *testing.T) {
	f := newFixture(t)
	oil := f.product("Oil")
	f.receive("OPEN-1", oil, 10)

	cmd := outward("OUT-1", out(oil, 4))
	res, err := f.engine.CreateOutward(f.ctx, cmd)
	require.NoError(t, err)
	require.EqualValues(t, 6, f.stock(oil))

	cmd.Description = "corrected customer note"
	_, err = f.engine.UpdateOutward(f.ctx, updateOutward(res.DocumentID, cmd))
	require.NoError(t, err)
	assert.EqualValues(t, 6, f.stock(oil))

	doc, err := f.engine.GetMovement(f.ctx, tenant, movement.Outward, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, "corrected customer note", doc.Description)
	require.Len(t, doc.Lines, 1)
	assert.EqualValues(t, 4, doc.Lines[0].Qty)
}

func TestEngine_CreateThenDeleteRestoresStock(t *testing.T) {
	f := newFixture(t)
	a, b := f.product("Camphor"), f.product("Kumkum")
	f.receive("OPEN-A", a, 7)
	f.receive("OPEN-B", b, 3)

	res, err := f.engine.CreateOutward(f.ctx, outward("OUT-1", out(a, 2), out(b, 3), out(a, 1)))
	require.NoError(t, err)
	assert.EqualValues(t, 4, f.stock(a))
	assert.EqualValues(t, 0, f.stock(b))

	_, err = f.engine.DeleteOutward(f.ctx, reconcile.DeleteOutward{TenantID: tenant, DocumentID: res.DocumentID})
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.stock(a))
	assert.EqualValues(t, 3, f.stock(b))
	f.assertConsistent(a, b)
}

func TestEngine_MultiLineOutwardRejectsAtomically(t *testing.T) {
	f := newFixture(t)
	a, b := f.product("Flowers"), f.product("Coconut")
	f.receive("OPEN-A", a, 10)
	f.receive("OPEN-B", b, 1)

	_, err := f.engine.CreateOutward(f.ctx, outward("OUT-1", out(a, 5), out(b, 3)))
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, 2, appErr.Details["lineNo"])
	assert.Equal(t, b.String(), appErr.Details["productId"])

	assert.EqualValues(t, 10, f.stock(a))
	assert.EqualValues(t, 1, f.stock(b))

	taken, err := f.store.Movements.ExistsReference(f.ctx, tenant, movement.Outward, "OUT-1", id.Nil())
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestEngine_ReversalOfConsumedReceiptConflicts(t *testing.T) {
	f := newFixture(t)
	milk := f.product("Milk")
	cmd := inward("CH-1", in(milk, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)

	_, err = f.engine.CreateOutward(f.ctx, outward("OUT-1", out(milk, 4)))
	require.NoError(t, err)

	_, err = f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: tenant, DocumentID: res.DocumentID})
	assert.True(t, apperror.Is(err, apperror.CodeStockConflict), "got %v", err)
	assert.EqualValues(t, 1, f.stock(milk))

	cmd.Lines = []reconcile.InwardLine{in(milk, 2)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	assert.True(t, apperror.Is(err, apperror.CodeStockConflict), "got %v", err)
	assert.EqualValues(t, 1, f.stock(milk))

	doc, err := f.engine.GetMovement(f.ctx, tenant, movement.Inward, res.DocumentID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, doc.Lines[0].Qty)
	f.assertConsistent(milk)
}

func TestEngine_UpdateChecksReversalBeforeNetting(t *testing.T) {
	f := newFixture(t)
	ghee := f.product("Ghee")
	cmd := inward("CH-1", in(ghee, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)

	_, err = f.engine.CreateOutward(f.ctx, outward("OUT-1", out(ghee, 3)))
	require.NoError(t, err)
	require.EqualValues(t, 2, f.stock(ghee))

	// Netted the change is +1, but undoing the 5 received would leave -3.
	cmd.Lines = []reconcile.InwardLine{in(ghee, 6)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeStockConflict, appErr.Code)
	assert.Equal(t, ghee.String(), appErr.Details["productId"])
	assert.EqualValues(t, 2, appErr.Details["available"])
	assert.EqualValues(t, 2, f.stock(ghee))

	doc, err := f.engine.GetMovement(f.ctx, tenant, movement.Inward, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.EqualValues(t, 5, doc.Lines[0].Qty)

	// Unrelated products on the same document do not matter.
	other := f.product("Camphor")
	cmd.Lines = []reconcile.InwardLine{in(other, 1)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	assert.True(t, apperror.Is(err, apperror.CodeStockConflict), "got %v", err)
	assert.EqualValues(t, 0, f.stock(other))
	f.assertConsistent(ghee, other)
}

func TestEngine_OutwardUpdateBeyondStock(t *testing.T) {
	f := newFixture(t)
	sugar := f.product("Sugar")
	f.receive("OPEN-1", sugar, 5)

	cmd := outward("OUT-1", out(sugar, 4))
	res, err := f.engine.CreateOutward(f.ctx, cmd)
	require.NoError(t, err)

	cmd.Lines = []reconcile.OutwardLine{out(sugar, 7)}
	_, err = f.engine.UpdateOutward(f.ctx, updateOutward(res.DocumentID, cmd))
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock), "got %v", err)
	assert.EqualValues(t, 1, f.stock(sugar))

	cmd.Lines = []reconcile.OutwardLine{out(sugar, 5)}
	_, err = f.engine.UpdateOutward(f.ctx, updateOutward(res.DocumentID, cmd))
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.stock(sugar))
}

func TestEngine_InactiveDocumentsDoNotCount(t *testing.T) {
	f := newFixture(t)
	salt := f.product("Salt")

	cmd := inward("CH-1", in(salt, 6))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, f.stock(salt))

	doc, err := f.engine.GetMovement(f.ctx, tenant, movement.Inward, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, movement.StatusActive, doc.Status)

	deactivate := updateInward(res.DocumentID, cmd)
	deactivate.Status = movement.StatusInactive
	_, err = f.engine.UpdateInward(f.ctx, deactivate)
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.stock(salt))

	deactivate.Lines = []reconcile.InwardLine{in(salt, 9)}
	_, err = f.engine.UpdateInward(f.ctx, deactivate)
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.stock(salt), "an inactive document stays out of stock")

	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	require.NoError(t, err)
	assert.EqualValues(t, 6, f.stock(salt))

	_, err = f.engine.UpdateInward(f.ctx, deactivate)
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.stock(salt))

	_, err = f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: tenant, DocumentID: res.DocumentID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.stock(salt))
	f.assertConsistent(salt)
}

func TestEngine_InvalidLines(t *testing.T) {
	f := newFixture(t)
	active := f.product("Turmeric")
	retired := product.New(tenant, "Old Incense")
	retired.Status = product.StatusInactive
	require.NoError(t, f.store.Products.Create(f.ctx, retired))

	tests := []struct {
		name   string
		lines  []reconcile.InwardLine
		lineNo int
		reason string
	}{
		{"unknown product", []reconcile.InwardLine{in(active, 1), in(id.New(), 1)}, 2, "product not found"},
		{"inactive product", []reconcile.InwardLine{in(retired.ID, 1)}, 1, "product is inactive"},
		{"zero quantity", []reconcile.InwardLine{in(active, 0)}, 1, "quantity must be positive"},
		{"negative quantity", []reconcile.InwardLine{in(active, 2), in(active, -1)}, 2, "quantity must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateInward(f.ctx, inward("CH-"+tt.name, tt.lines...))
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperror.CodeInvalidLine, appErr.Code)
			assert.Equal(t, tt.lineNo, appErr.Details["lineNo"])
			assert.Equal(t, tt.reason, appErr.Details["reason"])
		})
	}
	assert.EqualValues(t, 0, f.stock(active))
}

func TestEngine_OtherTenantProductIsInvalid(t *testing.T) {
	f := newFixture(t)
	foreign := product.New("temple-2", "Rice")
	require.NoError(t, f.store.Products.Create(f.ctx, foreign))

	_, err := f.engine.CreateInward(f.ctx, inward("CH-1", in(foreign.ID, 1)))
	assert.True(t, apperror.Is(err, apperror.CodeInvalidLine))
}

func TestEngine_ReferenceUniqueness(t *testing.T) {
	f := newFixture(t)
	dal := f.product("Dal")
	f.receive("CH-1", dal, 3)

	_, err := f.engine.CreateInward(f.ctx, inward(" CH-1 ", in(dal, 1)))
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateReference), "got %v", err)

	_, err = f.engine.CreateOutward(f.ctx, outward("CH-1", out(dal, 1)))
	assert.NoError(t, err, "outward numbers are a separate namespace")

	second := inward("CH-2", in(dal, 1))
	res, err := f.engine.CreateInward(f.ctx, second)
	require.NoError(t, err)
	second.ChallanNo = "CH-1"
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, second))
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateReference), "got %v", err)
}

func TestEngine_Validation(t *testing.T) {
	f := newFixture(t)
	pid := f.product("Jaggery")

	future := inward("CH-1", in(pid, 1))
	future.Date = time.Now().UTC().AddDate(0, 0, 2)
	_, err := f.engine.CreateInward(f.ctx, future)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	noLines := inward("CH-2")
	_, err = f.engine.CreateInward(f.ctx, noLines)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	noAddress := inward("CH-3", in(pid, 1))
	noAddress.VendorAddress = "  "
	_, err = f.engine.CreateInward(f.ctx, noAddress)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.engine.CreateMovement(f.ctx, tenant, "u", reconcile.Header{
		Direction:        "sideways",
		CounterpartyName: "x",
		ReferenceNo:      "R",
		MovementDate:     yesterday(),
	}, []movement.Line{{ProductID: pid, Qty: 1}})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestEngine_TenantScoping(t *testing.T) {
	f := newFixture(t)
	pid := f.product("Honey")
	docID := f.receive("CH-1", pid, 2)

	_, err := f.engine.GetMovement(f.ctx, "temple-2", movement.Inward, docID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: "temple-2", DocumentID: docID})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.engine.DeleteOutward(f.ctx, reconcile.DeleteOutward{TenantID: tenant, DocumentID: docID})
	assert.True(t, apperror.IsNotFound(err), "an inward document is not an outward one")
	assert.EqualValues(t, 2, f.stock(pid))
}

func TestEngine_Journal(t *testing.T) {
	f := newFixture(t)
	pid := f.product("Wicks")

	cmd := inward("CH-1", in(pid, 2))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)
	cmd.Lines = []reconcile.InwardLine{in(pid, 5)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	require.NoError(t, err)
	_, err = f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: tenant, DocumentID: res.DocumentID})
	require.NoError(t, err)

	history, err := f.engine.History(f.ctx, tenant, res.DocumentID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, movement.OpDelete, history[0].Operation)
	assert.Equal(t, movement.OpUpdate, history[1].Operation)
	assert.Equal(t, movement.OpCreate, history[2].Operation)
	assert.Equal(t, map[string]int64{pid.String(): 3}, history[1].Deltas)
	assert.Equal(t, map[string]int64{pid.String(): -5}, history[0].Deltas)
}

func TestEngine_VerifyAndRepairStock(t *testing.T) {
	f := newFixture(t)
	pid := f.product("Ash")
	f.receive("CH-1", pid, 10)
	_, err := f.engine.CreateOutward(f.ctx, outward("OUT-1", out(pid, 3)))
	require.NoError(t, err)

	require.NoError(t, f.store.Products.SetStock(f.ctx, tenant, pid, 99))

	rep, err := f.engine.VerifyStock(f.ctx, tenant, pid)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StockReport{ProductID: pid, CurrentStock: 99, Inward: 10, Outward: 3, Expected: 7, Drift: 92}, rep)

	rep, err = f.engine.RepairStock(f.ctx, tenant, "auditor", pid)
	require.NoError(t, err)
	assert.EqualValues(t, 92, rep.Drift)
	assert.EqualValues(t, 7, f.stock(pid))
	f.assertConsistent(pid)

	_, err = f.engine.VerifyStock(f.ctx, tenant, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

// faultyLines fails ReplaceAll while armed, after optionally running a hook.
type faultyLines struct {
	movement.LineSet
	armed  atomic.Bool
	before func()
}

func (l *faultyLines) ReplaceAll(ctx context.Context, documentID id.ID, lines []movement.Line) error {
	if !l.armed.Load() {
		return l.LineSet.ReplaceAll(ctx, documentID, lines)
	}
	if l.before != nil {
		l.before()
		return ctx.Err()
	}
	return errors.New("disk full")
}

func TestEngine_LinePersistenceFailureCompensates(t *testing.T) {
	var faulty *faultyLines
	f := newFixtureWithLines(t, func(ls movement.LineSet) movement.LineSet {
		faulty = &faultyLines{LineSet: ls}
		return faulty
	})
	pid := f.product("Sandal Paste")
	cmd := inward("CH-1", in(pid, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)

	faulty.armed.Store(true)

	_, err = f.engine.CreateOutward(f.ctx, outward("OUT-1", out(pid, 4)))
	assert.True(t, apperror.Is(err, apperror.CodeInternal), "got %v", err)
	assert.EqualValues(t, 5, f.stock(pid))
	taken, err := f.store.Movements.ExistsReference(f.ctx, tenant, movement.Outward, "OUT-1", id.Nil())
	require.NoError(t, err)
	assert.False(t, taken, "header must be removed by compensation")

	cmd.Lines = []reconcile.InwardLine{in(pid, 9)}
	_, err = f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
	assert.Error(t, err)
	assert.EqualValues(t, 5, f.stock(pid))

	faulty.armed.Store(false)
	f.assertConsistent(pid)
}

func TestEngine_CancelledCallerStillCompensates(t *testing.T) {
	var faulty *faultyLines
	f := newFixtureWithLines(t, func(ls movement.LineSet) movement.LineSet {
		faulty = &faultyLines{LineSet: ls}
		return faulty
	})
	pid := f.product("Betel Leaves")
	f.receive("CH-1", pid, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	faulty.before = cancel
	faulty.armed.Store(true)

	_, err := f.engine.CreateOutward(ctx, outward("OUT-1", out(pid, 8)))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeTimeout), "got %v", err)
	assert.True(t, apperror.IsRetryable(err))
	assert.EqualValues(t, 8, f.stock(pid))

	faulty.armed.Store(false)
	f.assertConsistent(pid)
}

// gatedLines parks the first ListFor while armed until release is closed.
type gatedLines struct {
	movement.LineSet
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedLines(ls movement.LineSet) *gatedLines {
	return &gatedLines{LineSet: ls, entered: make(chan struct{}), release: make(chan struct{})}
}

func (l *gatedLines) ListFor(ctx context.Context, documentID id.ID) ([]movement.Line, error) {
	lines, err := l.LineSet.ListFor(ctx, documentID)
	if l.armed.CompareAndSwap(true, false) {
		close(l.entered)
		<-l.release
	}
	return lines, err
}

func TestEngine_DeleteAndUpdateOfOneDocumentSerialize(t *testing.T) {
	var gate *gatedLines
	f := newFixtureWithLines(t, func(ls movement.LineSet) movement.LineSet {
		gate = newGatedLines(ls)
		return gate
	})
	rice := f.product("Rice")
	cmd := inward("CH-1", in(rice, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)

	gate.armed.Store(true)
	deleted := make(chan error, 1)
	go func() {
		_, err := f.engine.DeleteInward(f.ctx, reconcile.DeleteInward{TenantID: tenant, DocumentID: res.DocumentID})
		deleted <- err
	}()
	<-gate.entered

	updated := make(chan error, 1)
	go func() {
		cmd.Lines = []reconcile.InwardLine{in(rice, 8)}
		_, err := f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
		updated <- err
	}()

	select {
	case err := <-updated:
		t.Fatalf("update finished while the delete was in progress: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)

	require.NoError(t, <-deleted)
	err = <-updated
	assert.True(t, apperror.IsNotFound(err), "got %v", err)

	_, err = f.engine.GetMovement(f.ctx, tenant, movement.Inward, res.DocumentID)
	assert.True(t, apperror.IsNotFound(err))
	assert.EqualValues(t, 0, f.stock(rice))
	f.assertConsistent(rice)
}

func TestEngine_ConcurrentDeletesReverseOnce(t *testing.T) {
	var gate *gatedLines
	f := newFixtureWithLines(t, func(ls movement.LineSet) movement.LineSet {
		gate = newGatedLines(ls)
		return gate
	})
	oil := f.product("Oil")
	f.receive("OPEN-1", oil, 10)
	res, err := f.engine.CreateOutward(f.ctx, outward("OUT-1", out(oil, 4)))
	require.NoError(t, err)
	require.EqualValues(t, 6, f.stock(oil))

	del := reconcile.DeleteOutward{TenantID: tenant, DocumentID: res.DocumentID}
	gate.armed.Store(true)
	first := make(chan error, 1)
	go func() {
		_, err := f.engine.DeleteOutward(f.ctx, del)
		first <- err
	}()
	<-gate.entered

	second := make(chan error, 1)
	go func() {
		_, err := f.engine.DeleteOutward(f.ctx, del)
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-first)
	assert.True(t, apperror.IsNotFound(<-second))
	assert.EqualValues(t, 10, f.stock(oil))
	f.assertConsistent(oil)
}

func TestEngine_RepairWaitsForMovements(t *testing.T) {
	var gate *gatedLines
	f := newFixtureWithLines(t, func(ls movement.LineSet) movement.LineSet {
		gate = newGatedLines(ls)
		return gate
	})
	dal := f.product("Dal")
	cmd := inward("CH-1", in(dal, 5))
	res, err := f.engine.CreateInward(f.ctx, cmd)
	require.NoError(t, err)

	gate.armed.Store(true)
	updated := make(chan error, 1)
	go func() {
		cmd.Lines = []reconcile.InwardLine{in(dal, 2)}
		_, err := f.engine.UpdateInward(f.ctx, updateInward(res.DocumentID, cmd))
		updated <- err
	}()
	<-gate.entered

	// The update holds the document but has not locked the product yet, so
	// the repair may run first. Either order must leave stock consistent.
	repaired := make(chan error, 1)
	go func() {
		_, err := f.engine.RepairStock(f.ctx, tenant, "auditor", dal)
		repaired <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-updated)
	require.NoError(t, <-repaired)
	assert.EqualValues(t, 2, f.stock(dal))
	f.assertConsistent(dal)
}

func TestEngine_MixedConcurrentOperationsKeepStockConsistent(t *testing.T) {
	f := newFixture(t)
	a, b := f.product("Flowers"), f.product("Coconut")
	f.receive("OPEN-A", a, 50)
	f.receive("OPEN-B", b, 50)

	docs := make([]id.ID, 6)
	cmds := make([]reconcile.CreateOutward, len(docs))
	for i := range docs {
		cmds[i] = outward(fmt.Sprintf("OUT-%d", i), out(a, 2), out(b, 1))
		res, err := f.engine.CreateOutward(f.ctx, cmds[i])
		require.NoError(t, err)
		docs[i] = res.DocumentID
	}

	var wg sync.WaitGroup
	for i := range docs {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				var err error
				switch j {
				case 0:
					c := cmds[i]
					c.Lines = []reconcile.OutwardLine{out(b, 3), out(a, 1)}
					_, err = f.engine.UpdateOutward(f.ctx, updateOutward(docs[i], c))
				case 1:
					_, err = f.engine.DeleteOutward(f.ctx, reconcile.DeleteOutward{TenantID: tenant, DocumentID: docs[i]})
				default:
					_, err = f.engine.CreateInward(f.ctx, inward(fmt.Sprintf("CH-%d", i), in(a, 1), in(b, 1)))
				}
				if err != nil && !apperror.IsNotFound(err) {
					t.Errorf("op %d on document %d: %v", j, i, err)
				}
			}(i, j)
		}
	}
	wg.Wait()

	f.assertConsistent(a, b)
}
