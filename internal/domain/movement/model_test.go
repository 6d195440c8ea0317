package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"templestock/internal/core/id"
)

func TestDirectionSign(t *testing.T) {
	assert.Equal(t, int64(1), Inward.Sign())
	assert.Equal(t, int64(-1), Outward.Sign())
	assert.False(t, Direction("transfer").Valid())
}

func TestRenumber(t *testing.T) {
	docID := id.New()
	p := id.New()
	in := []Line{{ProductID: p, Qty: 3}, {ProductID: p, Qty: 4, LineNo: 9}}

	out := Renumber(docID, in)

	assert.Len(t, out, 2)
	assert.Equal(t, 1, out[0].LineNo)
	assert.Equal(t, 2, out[1].LineNo)
	assert.Equal(t, docID, out[1].DocumentID)
	assert.NotEqual(t, out[0].ID, out[1].ID)
	assert.True(t, id.IsNil(in[0].ID), "input slice must not be modified")
	assert.Equal(t, int64(7), TotalQty(out))
}

func TestNewDocumentDefaults(t *testing.T) {
	doc := NewDocument("t1", Outward, "u1")
	assert.True(t, doc.IsActive())
	assert.Equal(t, 1, doc.Version)
	assert.False(t, id.IsNil(doc.ID))
}
