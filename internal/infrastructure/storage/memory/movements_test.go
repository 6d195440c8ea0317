package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

func TestMovements_SumByProductCountsActiveDocuments(t *testing.T) {
	r := NewMovements()
	ctx := context.Background()
	pid := id.New()

	add := func(dir movement.Direction, ref string, status movement.Status, qty int64) {
		doc := movement.NewDocument("t1", dir, "u")
		doc.ReferenceNo = ref
		doc.Status = status
		require.NoError(t, r.Create(ctx, doc))
		require.NoError(t, r.ReplaceAll(ctx, doc.ID, movement.Renumber(doc.ID, []movement.Line{{ProductID: pid, Qty: qty}})))
	}
	add(movement.Inward, "IN-1", movement.StatusActive, 10)
	add(movement.Inward, "IN-2", movement.StatusInactive, 100)
	add(movement.Outward, "OUT-1", movement.StatusActive, 4)

	in, out, err := r.SumByProduct(ctx, "t1", pid)
	require.NoError(t, err)
	assert.EqualValues(t, 10, in)
	assert.EqualValues(t, 4, out)

	in, out, err = r.SumByProduct(ctx, "t2", pid)
	require.NoError(t, err)
	assert.Zero(t, in+out)
}

func TestMovements_UpdateChecksVersion(t *testing.T) {
	r := NewMovements()
	ctx := context.Background()
	doc := movement.NewDocument("t1", movement.Inward, "u")
	doc.ReferenceNo = "CH-1"
	require.NoError(t, r.Create(ctx, doc))

	first := *doc
	require.NoError(t, r.Update(ctx, &first))
	assert.Equal(t, 2, first.Version)

	stale := *doc
	err := r.Update(ctx, &stale)
	assert.True(t, apperror.Is(err, apperror.CodeConcurrentModification))
}

func TestMovements_ReferenceBackstop(t *testing.T) {
	r := NewMovements()
	ctx := context.Background()
	a := movement.NewDocument("t1", movement.Outward, "u")
	a.ReferenceNo = "OUT-1"
	require.NoError(t, r.Create(ctx, a))

	b := movement.NewDocument("t1", movement.Outward, "u")
	b.ReferenceNo = "OUT-1"
	assert.True(t, apperror.Is(r.Create(ctx, b), apperror.CodeDuplicateReference))
}

func TestMovements_ListForOrdersByLineNo(t *testing.T) {
	r := NewMovements()
	ctx := context.Background()
	docID := id.New()
	lines := movement.Renumber(docID, []movement.Line{{Qty: 1}, {Qty: 2}, {Qty: 3}})
	lines[0], lines[2] = lines[2], lines[0]

	require.NoError(t, r.ReplaceAll(ctx, docID, lines))
	got, err := r.ListFor(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].LineNo, got[1].LineNo, got[2].LineNo})
}
