package reconcile

import (
	"sort"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

// Delta is the net stock change for one product.
type Delta struct {
	ProductID id.ID
	Qty       int64
}

// effect is the signed stock contribution of lines of direction d, per product.
func effect(d movement.Direction, lines []movement.Line) map[id.ID]int64 {
	out := make(map[id.ID]int64, len(lines))
	for _, l := range lines {
		out[l.ProductID] += d.Sign() * l.Qty
	}
	return out
}

// netDeltas nets the reversal of before against the application of after and
// returns non-zero changes in product id order. Pass nil for a side that does
// not count (inactive document, create, delete).
func netDeltas(d movement.Direction, before, after []movement.Line) []Delta {
	net := effect(d, after)
	for pid, qty := range effect(d, before) {
		net[pid] -= qty
	}

	out := make([]Delta, 0, len(net))
	for pid, qty := range net {
		if qty != 0 {
			out = append(out, Delta{ProductID: pid, Qty: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i].ProductID, out[j].ProductID) })
	return out
}

// productIDs returns the distinct products referenced by the line sets, sorted.
func productIDs(sets ...[]movement.Line) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, lines := range sets {
		for _, l := range lines {
			if _, ok := seen[l.ProductID]; ok {
				continue
			}
			seen[l.ProductID] = struct{}{}
			out = append(out, l.ProductID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}

func deltaMap(deltas []Delta) map[string]int64 {
	if len(deltas) == 0 {
		return nil
	}
	out := make(map[string]int64, len(deltas))
	for _, d := range deltas {
		out[d.ProductID.String()] = d.Qty
	}
	return out
}
